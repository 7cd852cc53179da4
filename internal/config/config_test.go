package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.Port != DefaultPort {
		t.Fatalf("got port %d, want %d", c.Port, DefaultPort)
	}
	if c.Mode != "rw" {
		t.Fatalf("got mode %q, want rw", c.Mode)
	}
}

func TestLoadFromFileMissingReturnsDefault(t *testing.T) {
	c, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Port != DefaultPort {
		t.Fatalf("got port %d, want default %d", c.Port, DefaultPort)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tftpd.yaml")
	content := "dir: /srv/tftp\nport: 6969\nmode: ro\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Dir != "/srv/tftp" || c.Port != 6969 || c.Mode != "ro" {
		t.Fatalf("got %+v, want overridden fields applied", c)
	}
}

func TestApplyEnvironmentVariables(t *testing.T) {
	c := DefaultConfig()
	t.Setenv("TFTPD_PORT", "6969")
	t.Setenv("TFTPD_MODE", "wo")
	c.ApplyEnvironmentVariables()
	if c.Port != 6969 || c.Mode != "wo" {
		t.Fatalf("got %+v, want env overrides applied", c)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	c := DefaultConfig()
	c.Dir = t.TempDir()
	c.Mode = "bogus"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func TestValidateCreatesDataDir(t *testing.T) {
	c := DefaultConfig()
	c.Dir = filepath.Join(t.TempDir(), "nested", "data")
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(c.Dir); err != nil {
		t.Fatalf("expected data dir to be created: %v", err)
	}
}
