package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/somnus/internal/app"
	"github.com/okian/somnus/internal/config"
	"github.com/okian/somnus/pkg/logger"
	"github.com/okian/somnus/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics server timeout constants.
const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// Initialize logging. Stdout stays reserved for submission rows so
	// the output can be piped when the destination is "-".
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Expose Prometheus metrics while the run is in flight, if asked.
	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(ctx, cfg.MetricsAddr)
		defer stopMetricsServer(srv)
	}

	res, err := app.New(cfg).Run(ctx)
	if err != nil {
		log.Error(ctx, "run failed", logger.Error(err))
		return 1
	}

	log.Info(ctx, "submission written",
		logger.String("output", cfg.Output),
		logger.Int("rows", res.Rows),
		logger.Duration("elapsed", res.Elapsed),
	)

	return 0
}

// startMetricsServer serves the pipeline's Prometheus registry on addr.
func startMetricsServer(ctx context.Context, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		logger.Get().Info(ctx, "serving metrics", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Get().Warn(ctx, "metrics server failed", logger.Error(err))
		}
	}()

	return srv
}

// stopMetricsServer shuts the metrics listener down with a bounded wait.
func stopMetricsServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Get().Error(ctx, "metrics server shutdown failed", logger.Error(err))
	}
}
