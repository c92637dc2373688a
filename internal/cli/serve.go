package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lvonguyen/cdrforge/internal/api"
	"github.com/lvonguyen/cdrforge/internal/api/gateway"
	"github.com/lvonguyen/cdrforge/internal/config"
)

func newServeCommand(info BuildInfo) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			return serve(cfg, path, info)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}

func serve(cfg *config.Config, path string, info BuildInfo) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, info)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	logger.Info("Starting CDRForge",
		zap.String("version", info.Version),
		zap.String("commit", info.GitCommit),
		zap.String("config", path),
	)

	a.tel.StartSystemMetricsCollector(ctx)
	if a.resolver != nil {
		a.resolver.Cache().StartCleanup(ctx, time.Minute)
	}
	if n, err := a.store.Count(ctx); err == nil {
		a.metrics.SetSessions(n)
	}

	deps := api.Deps{
		Pipeline: a.pipeline,
		Store:    a.store,
		Engine:   a.engine,
		Logger:   logger,
		Metrics:  a.metrics,
	}
	if a.metrics != nil {
		deps.MetricsHandler = a.tel.MetricsHandler()
	}
	if a.redis != nil {
		deps.ReadyChecks = map[string]api.ReadyCheck{
			"redis": func(ctx context.Context) error { return a.redis.Ping(ctx).Err() },
		}
		if cfg.RateLimit.Enabled {
			limiter := gateway.NewRateLimiter(a.redis, cfg.RateLimit, logger, a.metrics)
			deps.RateLimit = limiter.Middleware(gateway.ClientIP)
		}
	}

	handler := api.NewServer(deps, api.Options{
		Version:        info.Version,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	// Analytics thresholds follow the config file; everything else needs a
	// restart.
	if path != "" {
		w, err := config.NewWatcher(path, logger)
		if err != nil {
			return err
		}
		w.OnChange(func(c *config.Config) {
			a.engine.SetConfig(c.Analytics)
			logger.Info("Analytics configuration reloaded",
				zap.Duration("window", c.Analytics.Window),
				zap.Int("repeat_threshold", c.Analytics.RepeatThreshold),
			)
		})
		stopWatch, err := w.Watch()
		if err != nil {
			logger.Warn("Config watch disabled", zap.Error(err))
		} else {
			defer stopWatch()
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
	return nil
}
