package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	Dir     string        `yaml:"dir"`
	Port    int           `yaml:"port"`
	UID     int           `yaml:"uid"`
	GID     int           `yaml:"gid"`
	Mode    string        `yaml:"mode"` // "rw", "ro", or "wo"
	Threads int           `yaml:"threads"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DefaultConfig returns a configuration with sane defaults, matching
// the reference server's unprivileged nobody:nobody identity and
// well-known TFTP port.
func DefaultConfig() *Config {
	return &Config{
		Dir:     DefaultDir,
		Port:    DefaultPort,
		UID:     DefaultUID,
		GID:     DefaultGID,
		Mode:    DefaultMode,
		Threads: DefaultThreads,
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// LoadFromFile loads configuration from a YAML file. A missing file
// is not an error: it yields the default configuration.
func LoadFromFile(filename string) (*Config, error) {
	config := DefaultConfig()

	if filename == "" {
		return config, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnvironmentVariables applies environment variables to the
// configuration. Environment variables take precedence over the
// config file but are overridden by explicit CLI flags.
func (c *Config) ApplyEnvironmentVariables() {
	if val := os.Getenv("TFTPD_DIR"); val != "" {
		c.Dir = val
	}
	if val := os.Getenv("TFTPD_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Port = port
		}
	}
	if val := os.Getenv("TFTPD_UID"); val != "" {
		if uid, err := strconv.Atoi(val); err == nil {
			c.UID = uid
		}
	}
	if val := os.Getenv("TFTPD_GID"); val != "" {
		if gid, err := strconv.Atoi(val); err == nil {
			c.GID = gid
		}
	}
	if val := os.Getenv("TFTPD_MODE"); val != "" {
		c.Mode = val
	}
	if val := os.Getenv("TFTPD_THREADS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Threads = n
		}
	}
	if val := os.Getenv("TFTPD_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
}

// Validate validates the configuration, creating the data directory
// if it does not already exist.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("dir cannot be empty")
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	switch c.Mode {
	case "rw", "ro", "wo":
	default:
		return fmt.Errorf("invalid mode %q, must be one of: rw, ro, wo", c.Mode)
	}

	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}
