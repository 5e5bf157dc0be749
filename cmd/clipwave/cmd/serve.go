package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clipwave/clipwave/internal/config"
	"github.com/clipwave/clipwave/internal/database"
	internalhttp "github.com/clipwave/clipwave/internal/http"
	"github.com/clipwave/clipwave/internal/http/handlers"
	"github.com/clipwave/clipwave/internal/pipeline"
	"github.com/clipwave/clipwave/internal/progress"
	"github.com/clipwave/clipwave/internal/repository"
	"github.com/clipwave/clipwave/internal/service"
	"github.com/clipwave/clipwave/internal/storage"
	"github.com/clipwave/clipwave/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the clipwave server",
	Long: `Start the clipwave HTTP server and API.

The server provides:
- REST API for submitting, inspecting, and cancelling clip jobs
- Live job progress endpoint
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "clipwave.db", "Database DSN")
	serveCmd.Flags().String("data-dir", "./data", "Base directory for the object store")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	mustBindPFlag("storage.base_dir", serveCmd.Flags().Lookup("data-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Database
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing database", slog.String("error", err.Error()))
		}
	}()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Repositories and storage
	clipRepo := repository.NewClipRepository(db.DB)

	store, err := storage.NewFSStore(cfg.Storage.BaseDir)
	if err != nil {
		return fmt.Errorf("initializing object store: %w", err)
	}

	// Progress sink
	var sink interface {
		progress.Sink
		progress.Reader
	}
	if cfg.Redis.Enabled {
		sink = progress.NewRedisSink(cfg.Redis)
		logger.Info("using redis progress sink", slog.String("addr", cfg.Redis.Addr))
	} else {
		sink = progress.NewMemorySink()
	}

	// Pipeline and services
	orchestrator := pipeline.NewOrchestrator(clipRepo, store, sink, cfg, logger)
	jobs := service.NewJobRunner(orchestrator, logger)
	clipService := service.NewClipService(clipRepo, store, jobs, logger)

	janitor := service.NewJanitor(cfg.Storage, logger)
	// Remove scratch files orphaned by a previous run before accepting jobs.
	janitor.Sweep()
	if err := janitor.Start(); err != nil {
		return fmt.Errorf("starting janitor: %w", err)
	}
	defer janitor.Stop()

	// HTTP server
	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	healthHandler := handlers.NewHealthHandler(version.Version).
		WithDB(db.DB).
		WithJobCounter(jobs.ActiveCount)
	healthHandler.Register(server.API())

	clipHandler := handlers.NewClipHandler(clipService, sink)
	clipHandler.Register(server.API())

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	logger.Info("clipwave server running",
		slog.String("address", cfg.Server.Address()),
		slog.String("version", version.Version),
	)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := jobs.Shutdown(shutdownCtx); err != nil {
		logger.Warn("jobs did not drain before timeout", slog.String("error", err.Error()))
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	return nil
}
