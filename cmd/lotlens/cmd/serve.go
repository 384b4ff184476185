package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/lotlens/internal/browse"
	"github.com/MeKo-Tech/lotlens/internal/config"
	"github.com/MeKo-Tech/lotlens/internal/orchestrator"
	"github.com/MeKo-Tech/lotlens/internal/processor"
	"github.com/MeKo-Tech/lotlens/internal/server"
)

const rateLimitPruneInterval = 10 * time.Minute

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP upload service",
	Long: `Start an HTTP server that runs uploads through the external processor.

The server provides the following endpoints:
  POST /process-images                          - Upload an archive or image (fields: file, isAdditional, session)
  GET  /sessions/{id}                           - Browse state of a session
  POST /sessions/{id}/{initial|supplementary}/{advance|retreat}
  GET  /results?images=a,b,c                    - First ten entries of a comma-joined list
  GET  /thumbnails/{path}                       - Scaled preview of a published image
  GET  /assets/{path}                           - Published images
  GET  /ws/process-images                       - Upload with live progress (WebSocket)
  GET  /health, /metrics

Examples:
  lotlens serve
  lotlens serve --port 3000 --processor-command ./bin/analyse
  lotlens serve --host 0.0.0.0 --rate-limit-enabled`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		applyServeFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		srv, cleanup, err := buildServer(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if rl := srv.RateLimiter(); rl != nil {
			go pruneRateLimiter(ctx, rl)
		}

		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			// uploads may sit behind a slow processor; the handler enforces its own deadline
			WriteTimeout: cfg.RequestTimeout() + 10*time.Second,
		}

		go func() {
			slog.Info("Starting lotlens server",
				"host", cfg.Server.Host, "port", cfg.Server.Port,
				"processor", cfg.Processor.Command, "staging_dir", cfg.Storage.StagingDir)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
		slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server shutdown completed")
		}

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

// buildServer wires runner, service, session store and HTTP server. The
// returned cleanup waits for in-flight child processes.
func buildServer(cfg *config.Config) (*server.Server, func(), error) {
	runner, err := processor.NewRunner(cfg.ToProcessorConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create processor runner: %w", err)
	}
	cleanup := func() {
		if err := runner.Close(); err != nil {
			slog.Error("Processor runner shutdown error", "error", err)
		}
	}

	svc, err := newService(cfg, runner)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	store, err := browse.NewStore(cfg.Browse.SessionCacheSize, cfg.Browse.MaxInitial, cfg.Browse.MaxBatch)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create session store: %w", err)
	}

	srv, err := server.NewServer(server.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		CORSOrigin:  cfg.Server.CORSOrigin,
		MaxUploadMB: int64(cfg.Server.MaxUploadMB),
		TimeoutSec:  cfg.Server.TimeoutSec,
		PublicDir:   cfg.Storage.PublicDir,
		Thumbnails:  cfg.ToThumbnailOptions(),
		RateLimit: server.RateLimitConfig{
			Enabled:           cfg.Server.RateLimitEnabled,
			RequestsPerMinute: cfg.Server.RequestsPerMinute,
			RequestsPerHour:   cfg.Server.RequestsPerHour,
			MaxRequestsPerDay: cfg.Server.MaxRequestsPerDay,
			MaxDataPerDay:     cfg.Server.MaxDataPerDayMB << 20,
		},
	}, svc, store)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize server: %w", err)
	}
	return srv, cleanup, nil
}

func newService(cfg *config.Config, runner orchestrator.Runner) (*orchestrator.Service, error) {
	svc, err := orchestrator.NewService(orchestrator.Config{
		StagingDir: cfg.Storage.StagingDir,
		PublicDir:  cfg.Storage.PublicDir,
		OnCleanupError: func(*orchestrator.CleanupError) {
			server.RecordCleanupFailure()
		},
	}, runner)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload service: %w", err)
	}
	return svc, nil
}

func pruneRateLimiter(ctx context.Context, rl *server.RateLimiter) {
	ticker := time.NewTicker(rateLimitPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Prune(24 * time.Hour); n > 0 {
				slog.Debug("Pruned idle rate limit entries", "count", n)
			}
		}
	}
}

// applyServeFlags copies explicitly set flags over the loaded configuration.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Server.Host, _ = f.GetString("host")
	}
	if f.Changed("port") {
		cfg.Server.Port, _ = f.GetInt("port")
	}
	if f.Changed("cors-origin") {
		cfg.Server.CORSOrigin, _ = f.GetString("cors-origin")
	}
	if f.Changed("max-upload-size") {
		cfg.Server.MaxUploadMB, _ = f.GetInt("max-upload-size")
	}
	if f.Changed("timeout") {
		cfg.Server.TimeoutSec, _ = f.GetInt("timeout")
	}
	if f.Changed("shutdown-timeout") {
		cfg.Server.ShutdownTimeout, _ = f.GetInt("shutdown-timeout")
	}
	if f.Changed("staging-dir") {
		cfg.Storage.StagingDir, _ = f.GetString("staging-dir")
	}
	if f.Changed("public-dir") {
		cfg.Storage.PublicDir, _ = f.GetString("public-dir")
	}
	applyProcessorFlags(cmd, cfg)

	if f.Changed("rate-limit-enabled") {
		cfg.Server.RateLimitEnabled, _ = f.GetBool("rate-limit-enabled")
	}
	if f.Changed("requests-per-minute") {
		cfg.Server.RequestsPerMinute, _ = f.GetInt("requests-per-minute")
	}
	if f.Changed("requests-per-hour") {
		cfg.Server.RequestsPerHour, _ = f.GetInt("requests-per-hour")
	}
	if f.Changed("max-requests-per-day") {
		cfg.Server.MaxRequestsPerDay, _ = f.GetInt("max-requests-per-day")
	}
	if f.Changed("max-data-per-day") {
		cfg.Server.MaxDataPerDayMB, _ = f.GetInt64("max-data-per-day")
	}
}

// applyProcessorFlags handles the flags shared by serve and process.
func applyProcessorFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("processor-command") {
		cfg.Processor.Command, _ = f.GetString("processor-command")
	}
	if f.Changed("processor-arg") {
		cfg.Processor.Args, _ = f.GetStringSlice("processor-arg")
	}
	if f.Changed("processor-timeout") {
		cfg.Processor.TimeoutSec, _ = f.GetInt("processor-timeout")
	}
	if f.Changed("max-concurrent") {
		cfg.Processor.MaxConcurrent, _ = f.GetInt("max-concurrent")
	}
}

func addProcessorFlags(cmd *cobra.Command) {
	defaults := config.DefaultConfig()
	cmd.Flags().String("processor-command", defaults.Processor.Command, "external processing program")
	cmd.Flags().StringSlice("processor-arg", defaults.Processor.Args, "arguments placed before <path> <true|false>")
	cmd.Flags().Int("processor-timeout", defaults.Processor.TimeoutSec, "processor timeout in seconds (0 disables)")
	cmd.Flags().Int("max-concurrent", defaults.Processor.MaxConcurrent, "maximum concurrent processor runs")
}

func init() {
	rootCmd.AddCommand(serveCmd)
	defaults := config.DefaultConfig()

	serveCmd.Flags().StringP("host", "H", defaults.Server.Host, "server host")
	serveCmd.Flags().IntP("port", "p", defaults.Server.Port, "server port")
	serveCmd.Flags().String("cors-origin", defaults.Server.CORSOrigin, "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", defaults.Server.MaxUploadMB, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", defaults.Server.TimeoutSec, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", defaults.Server.ShutdownTimeout, "shutdown timeout in seconds")
	serveCmd.Flags().String("staging-dir", defaults.Storage.StagingDir, "directory uploads are staged in")
	serveCmd.Flags().String("public-dir", defaults.Storage.PublicDir, "public asset root the processor writes to")
	addProcessorFlags(serveCmd)
	// Rate limiting flags
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting")
	serveCmd.Flags().Int("requests-per-minute", defaults.Server.RequestsPerMinute, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", defaults.Server.RequestsPerHour, "maximum requests per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", defaults.Server.MaxRequestsPerDay, "maximum requests per day per client")
	serveCmd.Flags().Int64("max-data-per-day", defaults.Server.MaxDataPerDayMB, "maximum upload volume per day per client (MB)")
}
