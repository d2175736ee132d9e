// Command backfill links every unlinked historical record item in a store
// to a clinical event, creating events where none exist.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vetcore/internal/core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "backfill:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		driver      = flag.String("driver", "", "storage driver: memory|sqlite|postgres (default from VETCORE_STORAGE_DRIVER)")
		pageSize    = flag.Int("page-size", 100, "unlinked items fetched per pass")
		metricsAddr = flag.String("metrics-addr", "", "listen address for Prometheus metrics (disabled when empty)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := core.OpenRecordStore(core.StorageDriver(*driver))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	var metrics core.MetricsRecorder
	if *metricsAddr != "" {
		prom, err := core.NewPrometheusMetricsRecorder()
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		metrics = prom
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(prom.Registry(), promhttp.HandlerOpts{}))
		server := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	coreLogger := core.NewSlogLogger(logger)
	linkerOpts := []core.LinkerOption{core.WithLogger(coreLogger)}
	backfillOpts := []core.BackfillOption{
		core.WithPageSize(*pageSize),
		core.WithBackfillLogger(coreLogger),
	}
	if metrics != nil {
		linkerOpts = append(linkerOpts, core.WithMetrics(metrics))
		backfillOpts = append(backfillOpts, core.WithBackfillMetrics(metrics))
	}

	linker := core.NewLinker(store, linkerOpts...)
	backfill := core.NewBackfill(store, linker, backfillOpts...)

	start := time.Now()
	linked, err := backfill.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("backfill aborted", "linked", linked, "elapsed", elapsed.String(), "error", err)
		return err
	}
	rate := 0.0
	if elapsed > 0 {
		rate = float64(linked) / elapsed.Seconds()
	}
	logger.Info("backfill complete", "linked", linked, "elapsed", elapsed.String(), "items_per_second", fmt.Sprintf("%.1f", rate))
	return nil
}
