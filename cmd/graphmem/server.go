package graphmem

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/graphmem/pkg/config"
	"github.com/soundprediction/graphmem/pkg/logger"
	"github.com/soundprediction/graphmem/pkg/server"
	"github.com/soundprediction/graphmem/pkg/store"
	"github.com/soundprediction/graphmem/pkg/telemetry"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the graphmem HTTP server",
	Long: `Start the graphmem HTTP server to provide REST API access to the memory store.

The server provides endpoints for:
- Creating and deleting entities, observations and relations
- Reading and searching the knowledge graph
- Recording thinking-session invocations
- Inspecting and switching the active backend
- Health checks

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServer,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serverCmd.Flags().StringVar(&serverMode, "mode", "debug", "Server mode (debug, release, test)")

	// Database flags
	serverCmd.Flags().String("sqlite-path", "", "Path of the embedded SQLite database file")
	serverCmd.Flags().String("postgres-url", "", "PostgreSQL connection URL")
	serverCmd.Flags().String("mysql-url", "", "MySQL connection URL")

	// Telemetry flags
	serverCmd.Flags().String("telemetry-parquet-path", "", "Path to directory for error telemetry")
	serverCmd.Flags().Bool("telemetry-to-database", false, "Also write error telemetry to the active backend")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with command-line flags
	overrideConfigWithFlags(cmd, cfg)

	// Validate configuration
	if err := validateServerConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	registry := cfg.Registry()

	ctx := context.Background()
	mgr, err := store.Open(ctx, registry, cfg.Database.Active)
	if err != nil {
		return fmt.Errorf("failed to open backend %q: %w", cfg.Database.Active, err)
	}
	defer mgr.Close()

	if err := mgr.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	log := buildLogger(cfg, mgr)
	log.Info("Backend ready", "backend", mgr.Active())

	// Create and setup server
	srv := server.New(cfg, mgr, registry, log)
	srv.Setup()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		log.Info("Received signal", "signal", sig.String())

		// Create shutdown context with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Shutdown server
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		log.Info("Server stopped gracefully")
		return nil
	}
}

// buildLogger assembles the slog chain: colorized stderr output, Parquet
// error telemetry when a path is configured, and optionally the database
// telemetry sink.
func buildLogger(cfg *config.Config, mgr *store.Manager) *slog.Logger {
	var handler slog.Handler = logger.NewColorHandler(os.Stderr, &slog.HandlerOptions{
		Level: logger.ParseLevel(cfg.Log.Level),
	})

	if cfg.Telemetry.ParquetPath != "" {
		parquetHandler, err := telemetry.NewParquetHandler(handler, cfg.Telemetry.ParquetPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to initialize error tracking: %v\n", err)
		} else {
			handler = parquetHandler
		}
	}

	if cfg.Telemetry.ToDatabase {
		handler = telemetry.NewSQLHandler(handler, mgr)
	}

	return slog.New(handler)
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	// Server flags
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}

	// Database flags
	if cmd.Flags().Changed("sqlite-path") {
		cfg.Database.SQLitePath, _ = cmd.Flags().GetString("sqlite-path")
	}
	if cmd.Flags().Changed("postgres-url") {
		cfg.Database.PostgresURL, _ = cmd.Flags().GetString("postgres-url")
	}
	if cmd.Flags().Changed("mysql-url") {
		cfg.Database.MySQLURL, _ = cmd.Flags().GetString("mysql-url")
	}

	// Telemetry flags
	if cmd.Flags().Changed("telemetry-parquet-path") {
		cfg.Telemetry.ParquetPath, _ = cmd.Flags().GetString("telemetry-parquet-path")
	}
	if cmd.Flags().Changed("telemetry-to-database") {
		cfg.Telemetry.ToDatabase, _ = cmd.Flags().GetBool("telemetry-to-database")
	}
}

func validateServerConfig(cfg *config.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}

	switch cfg.Database.Active {
	case store.BackendSQLite:
		if cfg.Database.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case store.BackendPostgres:
		if cfg.Database.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required")
		}
	case store.BackendMySQL:
		if cfg.Database.MySQLURL == "" {
			return fmt.Errorf("mysql URL is required")
		}
	default:
		return fmt.Errorf("unsupported backend: %s", cfg.Database.Active)
	}
	return nil
}
