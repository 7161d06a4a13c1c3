package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tripwire/logviewer/internal/activity"
	"github.com/tripwire/logviewer/internal/audit"
	"github.com/tripwire/logviewer/internal/config"
	"github.com/tripwire/logviewer/internal/logging"
	"github.com/tripwire/logviewer/internal/metrics"
	"github.com/tripwire/logviewer/internal/server/eventstream"
	"github.com/tripwire/logviewer/internal/server/rest"
	"github.com/tripwire/logviewer/internal/server/websocket"
	"github.com/tripwire/logviewer/internal/viewer"
)

func newServeCommand(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the log viewer HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

// runServe wires the service from cfg and serves HTTP until ctx is done.
func runServe(ctx context.Context, cfg *config.Config) error {
	logger, logCloser := logging.New(cfg.LogLevel, cfg.LogFile)
	defer logCloser.Close()
	slog.SetDefault(logger)

	if !cfg.IsEnabled() {
		logger.Info("logviewer: disabled by configuration")
		return nil
	}

	logger.Info("logviewer starting",
		slog.String("version", version),
		slog.String("listen_addr", cfg.ListenAddr),
		slog.String("base_path", cfg.BasePath),
	)

	// ── Session activity store ───────────────────────────────────────────────
	store, err := activity.Open(ctx, cfg.Activity.Driver, cfg.Activity.DSN)
	if err != nil {
		return fmt.Errorf("open activity store: %w", err)
	}
	defer store.Close()

	m := metrics.New()
	opts := []viewer.Option{viewer.WithStore(store), viewer.WithMetrics(m)}

	// ── Audit trail ──────────────────────────────────────────────────────────
	if cfg.AuditLog != "" {
		trail, err := audit.Open(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer trail.Close()
		opts = append(opts, viewer.WithAuditor(trail))
	}

	svc := viewer.New(cfg, config.NewDirectory(""), logger, opts...)
	if cfg.DefaultDirectory != "" {
		if _, err := svc.SetDirectory(cfg.DefaultDirectory, "config"); err != nil {
			logger.Warn("logviewer: default directory rejected; waiting for setDirectory",
				slog.String("path", cfg.DefaultDirectory),
				slog.Any("error", err),
			)
		}
	}

	// ── HTTP API ─────────────────────────────────────────────────────────────
	var auth *rest.JWTConfig
	if cfg.Auth.JWTPublicKeyPath != "" {
		key, err := rest.LoadPublicKey(cfg.Auth.JWTPublicKeyPath)
		if err != nil {
			return err
		}
		auth = &rest.JWTConfig{
			PublicKey: key,
			Issuer:    cfg.Auth.Issuer,
			Audience:  cfg.Auth.Audience,
			Logger:    logger,
		}
		logger.Info("JWT validation enabled")
	} else {
		logger.Warn("auth.jwt_public_key_path not configured; API authentication disabled")
	}

	srv := rest.NewServer(svc,
		eventstream.NewHandler(svc, logger),
		websocket.NewHandler(svc, logger, 0, 0),
		logger,
	)
	httpServer := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: rest.NewRouter(srv, rest.RouterConfig{
			BasePath: cfg.BasePath,
			Auth:     auth,
			Metrics:  m.Handler(),
		}),
		// No WriteTimeout: tail streams stay open for as long as the viewer
		// is watching.
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case serveErr = <-errCh:
		logger.Error("HTTP server error", slog.Any("error", serveErr))
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	// Sessions end first so stream handlers return and Shutdown can drain.
	svc.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", slog.Any("error", err))
	}

	logger.Info("logviewer exited cleanly")
	return serveErr
}
