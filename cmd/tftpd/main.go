package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Merith-TK/tftpd/internal/config"
	"github.com/Merith-TK/tftpd/internal/server"
	"github.com/Merith-TK/tftpd/internal/utils"
)

var (
	cfg *config.Config

	configFile string
	dataDir    string
	port       int
	uid        int
	gid        int
	readOnly   bool
	writeOnly  bool
	threads    int
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "tftpd [data-directory]",
	Short: "A TFTP server",
	Long: `A TFTP server implementing RFC 1350 and the RFC 2347/2348/2349
option extensions (blksize, timeout, tsize).

Examples:
  tftpd ./data --port=6969
  tftpd --config=tftpd.yml
  tftpd ./data --read-only --uid=65534 --gid=65534`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file path")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "UDP port to listen on (default: 69)")
	rootCmd.PersistentFlags().IntVar(&uid, "uid", 0, "User ID to drop privileges to after binding")
	rootCmd.PersistentFlags().IntVar(&gid, "gid", 0, "Group ID to drop privileges to after binding")
	rootCmd.PersistentFlags().BoolVar(&readOnly, "read-only", false, "Reject WRQ, serve RRQ only")
	rootCmd.PersistentFlags().BoolVar(&writeOnly, "write-only", false, "Reject RRQ, accept WRQ only")
	rootCmd.PersistentFlags().IntVar(&threads, "threads", 0, "Number of worker goroutines")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

func runServer(cmd *cobra.Command, args []string) error {
	var err error

	if len(args) > 0 {
		dataDir = args[0]
	}

	cfg, err = loadConfiguration()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := applyCLIFlags(cfg); err != nil {
		return fmt.Errorf("failed to apply CLI flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting tftpd...")
	logger.Info("Data directory: %s", cfg.Dir)

	manager := server.NewManager(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	utils.GracefulShutdown(ctx, cancel, logger, func() error {
		return manager.Stop()
	})

	return nil
}

func loadConfiguration() (*config.Config, error) {
	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvironmentVariables()
	return cfg, nil
}

func applyCLIFlags(cfg *config.Config) error {
	if dataDir != "" {
		cfg.Dir = dataDir
	}
	if port > 0 {
		cfg.Port = port
	}
	if uid > 0 {
		cfg.UID = uid
	}
	if gid > 0 {
		cfg.GID = gid
	}
	if readOnly && writeOnly {
		return fmt.Errorf("--read-only and --write-only are mutually exclusive")
	}
	if readOnly {
		cfg.Mode = "ro"
	}
	if writeOnly {
		cfg.Mode = "wo"
	}
	if threads > 0 {
		cfg.Threads = threads
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
