// Package session turns one initial RRQ/WRQ/ERROR datagram into a
// fully negotiated transfer session: it allocates the session's
// ephemeral socket, classifies the opcode, enforces the configured
// read-only/write-only policy, applies the path guard, negotiates
// options, opens the file, and hands off to the transfer engine.
package session

import (
	"errors"
	"net"
	"os"

	"github.com/Merith-TK/tftpd/internal/options"
	"github.com/Merith-TK/tftpd/internal/pathguard"
	"github.com/Merith-TK/tftpd/internal/tftperr"
	"github.com/Merith-TK/tftpd/internal/transfer"
	"github.com/Merith-TK/tftpd/internal/utils"
	"github.com/Merith-TK/tftpd/internal/wire"
)

// Mode is the server's configured access policy.
type Mode int

const (
	ReadWrite Mode = iota
	ReadOnly
	WriteOnly
)

// Dispatcher builds and runs one session per initial datagram.
type Dispatcher struct {
	Root   string // canonical, absolute service root (the Chdir target)
	Mode   Mode
	Logger *utils.Logger
	Engine *transfer.Engine
}

// Dispatch handles a single initial datagram received on the
// well-known listening socket. It never returns an error: all
// failures are logged and, where the protocol calls for it, reported
// to the peer as an ERROR packet.
func (d *Dispatcher) Dispatch(initial []byte, peer *net.UDPAddr) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv6zero, Port: 0})
	if err != nil {
		d.Logger.Error("session: failed to allocate ephemeral socket for %s: %v", peer, err)
		return
	}
	defer conn.Close()

	op, err := wire.DecodeOpcode(initial)
	if err != nil {
		d.Logger.Debug("session: malformed initial datagram from %s: %v", peer, err)
		sendError(conn, peer, tftperr.IllegalOperation, "Malformed packet")
		return
	}

	switch op {
	case wire.OpRRQ:
		if d.Mode == WriteOnly {
			sendError(conn, peer, tftperr.IllegalOperation, "reading not allowed")
			return
		}
		d.serve(conn, peer, initial, true)
	case wire.OpWRQ:
		if d.Mode == ReadOnly {
			sendError(conn, peer, tftperr.IllegalOperation, "writing not allowed")
			return
		}
		d.serve(conn, peer, initial, false)
	case wire.OpERROR:
		errp, _ := wire.DecodeError(initial)
		d.Logger.Debug("session: received unsolicited ERROR from %s: %+v", peer, errp)
	default:
		sendError(conn, peer, tftperr.IllegalOperation, "Unexpected opcode")
	}
}

// serve handles the shared RRQ/WRQ setup: decode, mode check, path
// guard, option negotiation, file open, and engine hand-off.
func (d *Dispatcher) serve(conn *net.UDPConn, peer *net.UDPAddr, initial []byte, isRead bool) {
	op, _ := wire.DecodeOpcode(initial)
	req, err := wire.DecodeRequest(op, initial[2:])
	if err != nil {
		d.Logger.Debug("session: malformed request from %s: %v", peer, err)
		sendError(conn, peer, tftperr.IllegalOperation, "Malformed packet")
		return
	}

	if req.Mode != "octet" {
		sendError(conn, peer, tftperr.NotDefined, "Unsupported mode")
		return
	}

	path, perr := pathguard.Resolve(d.Root, req.Filename)
	if perr != nil {
		d.Logger.Debug("session: path guard rejected %q from %s: %v", req.Filename, peer, perr)
		coded := tftperr.As(perr)
		sendError(conn, peer, coded.Code, coded.Message)
		return
	}

	var file *os.File
	var fileSize int64

	if isRead {
		f, info, oerr := openForRead(path)
		if oerr != nil {
			code, msg := readOpenError(oerr)
			sendError(conn, peer, code, msg)
			return
		}
		file, fileSize = f, info.Size()
	} else {
		f, oerr := openForWrite(path)
		if oerr != nil {
			code, msg := writeOpenError(oerr)
			sendError(conn, peer, code, msg)
			return
		}
		file = f
	}
	defer file.Close()

	negotiated, oackOpts := options.Negotiate(req, isRead, fileSize)

	sess := &transfer.Session{
		Conn:        conn,
		Peer:        peer,
		File:        file,
		Negotiated:  negotiated,
		Logger:      d.Logger,
		DisplayName: path,
	}
	if len(oackOpts) > 0 {
		sess.OACKOptions = oackOpts
	}

	var runErr error
	if isRead {
		runErr = d.Engine.RunDownload(sess)
	} else {
		runErr = d.Engine.RunUpload(sess)
	}
	if runErr != nil {
		d.Logger.Debug("session: transfer of %s with %s ended: %v", path, peer, runErr)
	}
}

func openForRead(path string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, os.ErrNotExist
	}
	return f, info, nil
}

func openForWrite(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

func readOpenError(err error) (uint16, string) {
	if errors.Is(err, os.ErrNotExist) {
		return tftperr.FileNotFound, "File not found"
	}
	return tftperr.AccessViolation, "Permission denied"
}

func writeOpenError(err error) (uint16, string) {
	if errors.Is(err, os.ErrExist) {
		return tftperr.FileAlreadyExists, "File already exists"
	}
	return tftperr.AccessViolation, "Cannot create file"
}

func sendError(conn *net.UDPConn, peer *net.UDPAddr, code uint16, message string) {
	conn.WriteToUDP(wire.EncodeError(code, message), peer)
}

// String returns a human-readable label for a Mode.
func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	default:
		return "read-write"
	}
}
