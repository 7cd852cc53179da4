package options

import (
	"testing"

	"github.com/Merith-TK/tftpd/internal/wire"
)

func TestNegotiateDefaults(t *testing.T) {
	req := &wire.Request{Opcode: wire.OpRRQ, Filename: "f", Mode: "octet"}
	n, oack := Negotiate(req, true, 123)
	if n.BlockSize != DefaultBlockSize || n.TimeoutSeconds != DefaultTimeoutSeconds || n.WindowSize != DefaultWindowSize {
		t.Fatalf("unexpected defaults: %+v", n)
	}
	if len(oack) != 0 {
		t.Fatalf("expected no OACK options when none requested, got %+v", oack)
	}
}

func TestNegotiateClampsBlksize(t *testing.T) {
	req := &wire.Request{Options: []wire.Option{{Name: "blksize", Value: "999999"}}}
	n, oack := Negotiate(req, true, 0)
	if n.BlockSize != MaxBlockSize {
		t.Fatalf("got %d, want clamped to %d", n.BlockSize, MaxBlockSize)
	}
	if len(oack) != 1 || oack[0].Name != "blksize" {
		t.Fatalf("unexpected oack: %+v", oack)
	}
}

func TestNegotiateClampsTimeoutLow(t *testing.T) {
	req := &wire.Request{Options: []wire.Option{{Name: "timeout", Value: "0"}}}
	n, _ := Negotiate(req, true, 0)
	if n.TimeoutSeconds != MinTimeoutSeconds {
		t.Fatalf("got %d, want %d", n.TimeoutSeconds, MinTimeoutSeconds)
	}
}

func TestNegotiateTSizeOverwrittenOnRead(t *testing.T) {
	req := &wire.Request{Options: []wire.Option{{Name: "tsize", Value: "0"}}}
	n, oack := Negotiate(req, true, 10000)
	if n.TSize != 10000 {
		t.Fatalf("got tsize %d, want 10000", n.TSize)
	}
	if len(oack) != 1 || oack[0].Value != "10000" {
		t.Fatalf("unexpected oack: %+v", oack)
	}
}

func TestNegotiateTSizeClientAnnouncedOnWrite(t *testing.T) {
	req := &wire.Request{Options: []wire.Option{{Name: "tsize", Value: "600"}}}
	n, _ := Negotiate(req, false, 0)
	if n.TSize != 600 {
		t.Fatalf("got tsize %d, want 600", n.TSize)
	}
}

func TestNegotiateDropsUnknownOption(t *testing.T) {
	req := &wire.Request{Options: []wire.Option{{Name: "rollover", Value: "1"}}}
	n, oack := Negotiate(req, true, 0)
	if len(oack) != 0 {
		t.Fatalf("expected unknown option dropped, got %+v", oack)
	}
	if n.BlockSize != DefaultBlockSize {
		t.Fatalf("unexpected mutation from unknown option: %+v", n)
	}
}

func TestNegotiatePreservesClientOrder(t *testing.T) {
	req := &wire.Request{Options: []wire.Option{
		{Name: "tsize", Value: "0"},
		{Name: "blksize", Value: "8192"},
	}}
	_, oack := Negotiate(req, true, 10000)
	if len(oack) != 2 || oack[0].Name != "tsize" || oack[1].Name != "blksize" {
		t.Fatalf("expected order preserved, got %+v", oack)
	}
}
