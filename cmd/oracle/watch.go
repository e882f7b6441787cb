package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityOracle/internal/oracle"
	"liquidityOracle/internal/storage"
)

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = time.Minute
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.MetricsAddr != "" {
		server := newMetricsServer(cfg.MetricsAddr)
		go func() {
			logger.Info("metrics server start", zap.String("addr", cfg.MetricsAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown", zap.Error(err))
			}
		}()
	}

	logger.Info("watch start", zap.Duration("interval", cfg.WatchInterval))
	return watch(ctx, app.oracle, storage.NewStreamPublisher(cmd.OutOrStdout()), cfg.WatchInterval, logger)
}

// watch polls the oracle until ctx is done and emits every snapshot it has not emitted before.
// Refresh errors are logged and the loop keeps going.
func watch(ctx context.Context, o *oracle.Oracle, out storage.Publisher, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last time.Time
	for {
		snapshot, err := o.Snapshot(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			logger.Warn("snapshot failed", zap.Error(err))
		case snapshot.FetchedAt.After(last):
			last = snapshot.FetchedAt
			if err := out.Publish(ctx, snapshot); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			logger.Info("watch stop")
			return nil
		case <-ticker.C:
		}
	}
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
