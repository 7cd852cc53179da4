// Package transfer implements the lockstep TFTP transfer engine: the
// RRQ (download) and WRQ (upload) state machines, including
// timeout/retransmission, duplicate suppression, 16-bit block-number
// wraparound, and foreign-TID rejection.
//
// Every datagram of a session is read from and written to the
// session's own ephemeral socket. Unlike a connected UDP socket (which
// would have the kernel silently drop datagrams from any address
// other than the negotiated peer), the engine keeps the socket
// unconnected and checks the sender address itself, so it can answer
// a foreign peer with ERROR 5 instead of merely discarding the
// datagram.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/Merith-TK/tftpd/internal/options"
	"github.com/Merith-TK/tftpd/internal/tftperr"
	"github.com/Merith-TK/tftpd/internal/utils"
	"github.com/Merith-TK/tftpd/internal/wire"
)

// maxRetries is the number of times a single DATA/ACK/OACK packet is
// transmitted before the session gives up on it: one initial send
// plus four retransmissions.
const maxRetries = 5

var (
	errTimeout          = errors.New("transfer: timed out waiting for peer")
	errPeerAborted      = errors.New("transfer: peer sent ERROR")
	errRetriesExhausted = errors.New("transfer: retransmission limit exceeded")
)

// Session is the per-transfer state owned by exactly one worker.
type Session struct {
	Conn *net.UDPConn
	Peer *net.UDPAddr
	File *os.File

	Negotiated  options.Negotiated
	OACKOptions []wire.Option // nil when no options were negotiated

	Logger      *utils.Logger
	DisplayName string // the guarded on-disk path, used only for logging
}

// Engine drives the RRQ/WRQ state machines over a Session.
type Engine struct{}

// RunDownload implements the RRQ state machine: SendingData(n) ->
// AwaitingAck(n) -> SendingData(n+1) -> ... -> Done.
func (e *Engine) RunDownload(sess *Session) error {
	timeout := negotiatedTimeout(sess)

	if sess.OACKOptions != nil {
		if err := e.sendAndAwait(sess, wire.EncodeOack(sess.OACKOptions), timeout, ackExpector(0)); err != nil {
			return err
		}
	}

	block := uint16(1)
	for {
		payload := make([]byte, sess.Negotiated.BlockSize)
		n, rerr := io.ReadFull(sess.File, payload)
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			rerr = nil
		}
		if rerr != nil {
			e.sendError(sess, tftperr.NotDefined, "read error")
			return fmt.Errorf("transfer: reading %s: %w", sess.DisplayName, rerr)
		}
		payload = payload[:n]
		last := n < sess.Negotiated.BlockSize

		if err := e.sendAndAwait(sess, wire.EncodeData(block, payload), timeout, ackExpector(block)); err != nil {
			return err
		}

		if last {
			sess.Logger.Info("Sent %s to %s.", sess.DisplayName, sess.Peer)
			return nil
		}
		block++
	}
}

// RunUpload implements the WRQ state machine: SendingAck(n) ->
// AwaitingData(n+1) -> WritingBlock(n+1) -> ... -> Done.
func (e *Engine) RunUpload(sess *Session) error {
	timeout := negotiatedTimeout(sess)

	var ackPkt []byte
	if sess.OACKOptions != nil {
		ackPkt = wire.EncodeOack(sess.OACKOptions)
	} else {
		ackPkt = wire.EncodeAck(0)
	}

	expected := uint16(1)
	for {
		var payload []byte
		var last bool

		onPacket := func(op wire.Opcode, b []byte) classification {
			switch op {
			case wire.OpDATA:
				d, err := wire.DecodeData(b)
				if err != nil {
					return retry
				}
				switch d.Block {
				case expected:
					payload = d.Payload
					last = len(d.Payload) < sess.Negotiated.BlockSize
					return done
				case expected - 1:
					// Client never saw our ACK; resend it immediately
					// rather than waiting out the rest of the timeout.
					sess.Conn.WriteToUDP(ackPkt, sess.Peer)
					return retry
				default:
					return retry
				}
			case wire.OpERROR:
				logPeerError(sess, b)
				return abort
			default:
				return retry
			}
		}

		if err := e.sendAndAwait(sess, ackPkt, timeout, onPacket); err != nil {
			return err
		}

		if _, err := sess.File.Write(payload); err != nil {
			e.sendError(sess, tftperr.DiskFull, "disk full")
			return fmt.Errorf("transfer: writing %s: %w", sess.DisplayName, err)
		}

		ackPkt = wire.EncodeAck(expected)
		if last {
			sess.Conn.WriteToUDP(ackPkt, sess.Peer)
			sess.Logger.Info("Received %s from %s.", sess.DisplayName, sess.Peer)
			return nil
		}
		expected++
	}
}

// classification is the verdict sendAndAwait's caller reaches after
// inspecting one received packet.
type classification int

const (
	retry classification = iota // duplicate/out-of-order/garbage: keep waiting
	done                        // this is the packet we were waiting for
	abort                       // peer sent ERROR: stop the session silently
)

// ackExpector builds an onPacket classifier that waits for ACK(block).
func ackExpector(block uint16) func(wire.Opcode, []byte) classification {
	return func(op wire.Opcode, b []byte) classification {
		switch op {
		case wire.OpACK:
			ack, err := wire.DecodeAck(b)
			if err != nil || ack.Block != block {
				return retry
			}
			return done
		case wire.OpERROR:
			return abort
		default:
			return retry
		}
	}
}

// sendAndAwait transmits pkt, then waits for a packet that onPacket
// classifies as done. On timeout it retransmits pkt, up to maxRetries
// total transmissions; on sustained timeout it reports the session's
// error to the peer and aborts. Packets from a foreign peer are
// answered with ERROR 5 and otherwise ignored without consuming a
// retry.
func (e *Engine) sendAndAwait(sess *Session, pkt []byte, timeout time.Duration, onPacket func(wire.Opcode, []byte) classification) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		if _, err := sess.Conn.WriteToUDP(pkt, sess.Peer); err != nil {
			return fmt.Errorf("transfer: write to %s: %w", sess.Peer, err)
		}

		deadline := time.Now().Add(timeout)
		for {
			b, err := recvUntil(sess, deadline)
			if err == errTimeout {
				break
			}
			if err != nil {
				return fmt.Errorf("transfer: read from %s: %w", sess.Peer, err)
			}

			op, derr := wire.DecodeOpcode(b)
			if derr != nil {
				continue
			}

			switch onPacket(op, b) {
			case done:
				return nil
			case abort:
				return errPeerAborted
			default:
				continue
			}
		}
	}

	e.sendError(sess, tftperr.NotDefined, "retransmission limit exceeded")
	return errRetriesExhausted
}

// recvUntil reads the next datagram addressed to sess.Peer, answering
// and discarding any datagram from a different source (a foreign
// TID) without returning it to the caller.
func recvUntil(sess *Session, deadline time.Time) ([]byte, error) {
	buf := make([]byte, 4+65464)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, errTimeout
		}
		if err := sess.Conn.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			return nil, err
		}

		n, addr, err := sess.Conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, errTimeout
			}
			return nil, err
		}

		if !sameUDPAddr(addr, sess.Peer) {
			sess.Conn.WriteToUDP(wire.EncodeError(tftperr.UnknownTID, "unknown transfer ID"), addr)
			continue
		}

		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	}
}

func sameUDPAddr(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

func negotiatedTimeout(sess *Session) time.Duration {
	return time.Duration(sess.Negotiated.TimeoutSeconds) * time.Second
}

func (e *Engine) sendError(sess *Session, code uint16, message string) {
	sess.Conn.WriteToUDP(wire.EncodeError(code, message), sess.Peer)
}

func logPeerError(sess *Session, b []byte) {
	errp, err := wire.DecodeError(b)
	if err != nil {
		sess.Logger.Debug("peer %s sent an unparsable ERROR during transfer of %s", sess.Peer, sess.DisplayName)
		return
	}
	sess.Logger.Debug("peer %s aborted transfer of %s: code=%d %q", sess.Peer, sess.DisplayName, errp.Code, errp.Message)
}
