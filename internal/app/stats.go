package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"dcollect/internal/config"
	"dcollect/internal/health"
	"dcollect/internal/stats"
)

const (
	statsShutdownTimeout = 3 * time.Second
	statsReadHeaderTO    = 2 * time.Second
)

// startStatsServer starts optional observability HTTP endpoint serving
// delivery counters and probe handlers, and wires graceful shutdown.
// Params: ctx controls lifecycle; cfg provides enabled/listen options;
// logger reports runtime events; counters delivery counters; checker probe registry.
// Returns: stop function (idempotent) and startup error.
func startStatsServer(
	ctx context.Context,
	cfg config.StatsConfig,
	logger *slog.Logger,
	counters *stats.Counters,
	checker *health.Checker,
) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %q: %w", cfg.Listen, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", counters.MetricsHandler())
	mux.Handle("/stats", counters.SnapshotHandler())
	mux.HandleFunc("/live", checker.LiveHandler())
	mux.HandleFunc("/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: statsReadHeaderTO,
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), statsShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("stats shutdown error", slog.String("error", err.Error()))
			}
		})
	}

	go func() {
		<-ctx.Done()
		stop()
	}()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("stats server failed", slog.String("addr", cfg.Listen), slog.String("error", err.Error()))
		}
	}()

	logger.Info("stats server started", slog.String("addr", cfg.Listen))
	return stop, nil
}
