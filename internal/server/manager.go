package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/Merith-TK/tftpd/internal/config"
	"github.com/Merith-TK/tftpd/internal/utils"
)

// Manager runs one or more Servers and coordinates their shutdown.
// Only a TFTP server is wired in today, but the Server interface
// keeps the door open for a future protocol to share the same
// start/stop lifecycle without reworking the entrypoint.
type Manager struct {
	config  *config.Config
	logger  *utils.Logger
	servers []Server
	wg      sync.WaitGroup
}

// Server is the lifecycle every protocol server implements.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
	Port() int
}

// NewManager creates a new server manager.
func NewManager(cfg *config.Config, logger *utils.Logger) *Manager {
	return &Manager{
		config: cfg,
		logger: logger,
	}
}

// Start creates and starts all configured servers.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.Info("starting server manager")

	if err := m.createServers(); err != nil {
		return fmt.Errorf("failed to create servers: %w", err)
	}

	for _, srv := range m.servers {
		m.wg.Add(1)
		go func(s Server) {
			defer m.wg.Done()
			m.logger.Info("starting %s server on port %d", s.Name(), s.Port())
			if err := s.Start(ctx); err != nil {
				m.logger.Error("%s server stopped with error: %v", s.Name(), err)
			}
		}(srv)
	}

	return nil
}

// Stop stops all running servers and waits for them to exit.
func (m *Manager) Stop() error {
	m.logger.Info("stopping all servers")

	for _, srv := range m.servers {
		if err := srv.Stop(); err != nil {
			m.logger.Error("failed to stop %s server: %v", srv.Name(), err)
		}
	}

	m.wg.Wait()
	m.logger.Info("all servers stopped")
	return nil
}

func (m *Manager) createServers() error {
	m.servers = append(m.servers, NewTFTPServer(m.config, m.logger))
	return nil
}
