// Package server implements the TFTP listener: it binds the
// well-known UDP port, drops privileges, and fans incoming initial
// datagrams out to a bounded worker pool that runs each transfer
// session to completion.
package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/Merith-TK/tftpd/internal/config"
	"github.com/Merith-TK/tftpd/internal/privilege"
	"github.com/Merith-TK/tftpd/internal/session"
	"github.com/Merith-TK/tftpd/internal/transfer"
	"github.com/Merith-TK/tftpd/internal/utils"
	"github.com/Merith-TK/tftpd/internal/workerpool"
)

// maxDatagramSize is large enough for any negotiated blksize (RFC
// 2348 caps it at 65464) plus the DATA header.
const maxDatagramSize = 4 + 65464

// TFTPServer listens for RRQ/WRQ/ERROR datagrams and dispatches each
// to its own ephemeral session.
type TFTPServer struct {
	cfg    *config.Config
	logger *utils.Logger

	conn *net.UDPConn
	pool *workerpool.Pool
	done chan struct{}
}

// NewTFTPServer creates a new TFTP server.
func NewTFTPServer(cfg *config.Config, logger *utils.Logger) *TFTPServer {
	return &TFTPServer{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start binds the listening socket, drops privileges, and serves
// until ctx is canceled.
func (s *TFTPServer) Start(ctx context.Context) error {
	addr := &net.UDPAddr{IP: net.IPv6zero, Port: s.cfg.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP port %d: %w", s.cfg.Port, err)
	}
	s.conn = conn

	if err := privilege.Drop(s.cfg.UID, s.cfg.GID); err != nil {
		conn.Close()
		return fmt.Errorf("failed to drop privileges: %w", err)
	}

	root, err := os.Getwd()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	if s.cfg.Dir != "" {
		if err := os.Chdir(s.cfg.Dir); err != nil {
			conn.Close()
			return fmt.Errorf("failed to chdir to %s: %w", s.cfg.Dir, err)
		}
		root, err = os.Getwd()
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to resolve data directory: %w", err)
		}
	}

	dispatcher := &session.Dispatcher{
		Root:   root,
		Mode:   parseMode(s.cfg.Mode),
		Logger: s.logger,
		Engine: &transfer.Engine{},
	}

	s.pool = workerpool.New(s.cfg.Threads, s.cfg.Threads*4)
	s.logger.Info("TFTP server listening on port %d, serving %s (%s)", s.cfg.Port, root, s.cfg.Mode)

	go s.acceptLoop(dispatcher)

	<-ctx.Done()
	return s.Stop()
}

func (s *TFTPServer) acceptLoop(dispatcher *session.Dispatcher) {
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.done:
				return
			default:
				s.logger.Error("failed to read UDP packet: %v", err)
				return
			}
		}

		initial := make([]byte, n)
		copy(initial, buf[:n])
		s.pool.Submit(func() {
			dispatcher.Dispatch(initial, peer)
		})
	}
}

// Stop stops accepting new sessions. In-flight sessions (each on
// their own ephemeral socket) are left to finish or time out on
// their own.
func (s *TFTPServer) Stop() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Name returns the server name.
func (s *TFTPServer) Name() string {
	return "TFTP"
}

// Port returns the port the server is listening on.
func (s *TFTPServer) Port() int {
	return s.cfg.Port
}

func parseMode(mode string) session.Mode {
	switch mode {
	case "ro":
		return session.ReadOnly
	case "wo":
		return session.WriteOnly
	default:
		return session.ReadWrite
	}
}
