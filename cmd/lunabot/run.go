package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lunabot/internal/api"
	"lunabot/internal/bot"
	"lunabot/internal/config"
	"lunabot/internal/gateway"
	"lunabot/internal/metrics"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the gateway and run the bot",
		Long:  "Connects to the gateway stream and dispatches messages to the bot handlers. Press Ctrl+C to stop.",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiClient := api.New(api.Config{
		BaseURL: "http://" + cfg.Gateway.Host,
		Timeout: cfg.API.Timeout(),
		QueryRetry: api.RetryPolicy{
			MaxRetries: cfg.API.QueryRetries,
			Backoff:    cfg.API.RetryBackoff(),
		},
		Logger: logger,
	})

	client := gateway.New(gateway.Config{
		Host:           cfg.Gateway.Host,
		Path:           cfg.Gateway.Path,
		ConnectTimeout: cfg.Gateway.ConnectTimeout(),
		ReconnectDelay: cfg.Gateway.ReconnectDelay(),
		API:            apiClient,
		State:          &bot.AppState{},
		Logger:         logger,
	})
	if err := client.Include(bot.Router(logger)); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return client.Start(gctx)
	})

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics)
		})
	}

	logger.Info("bot started. Press Ctrl+C to stop.", "gateway", client.URL())

	err = g.Wait()
	client.Close()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	drain := cfg.Gateway.DrainTimeout()
	if drain > 0 {
		drainCtx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		if derr := client.Drain(drainCtx); derr != nil {
			logger.Warn("handlers still running at shutdown", "timeout", drain)
		}
	}
	logger.Info("shutdown complete")
	return err
}

func serveMetrics(ctx context.Context, cfg config.MetricsConfig) error {
	metrics.Register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("metrics server starting", "addr", cfg.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
