package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/storeops/lanewatch/internal/api"
	"github.com/storeops/lanewatch/internal/catalog"
	"github.com/storeops/lanewatch/internal/config"
	"github.com/storeops/lanewatch/internal/correlate"
	"github.com/storeops/lanewatch/internal/detect"
	"github.com/storeops/lanewatch/internal/event"
	"github.com/storeops/lanewatch/internal/ingest"
	"github.com/storeops/lanewatch/internal/pipeline"
	"github.com/storeops/lanewatch/internal/queuehealth"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	cfgPath := flag.String("config", "configs/lanewatch.yaml", "Path to YAML config")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.ListenAddr = *addr
	}

	// ── Product catalog ──────────────────────────────────────────────────────
	var cat *catalog.Catalog
	if cfg.Catalog.ProductsCSV != "" {
		cat, err = catalog.LoadCSV(cfg.Catalog.ProductsCSV)
		if err != nil {
			slog.Error("failed to load product catalog", "path", cfg.Catalog.ProductsCSV, "err", err)
			os.Exit(1)
		}
		slog.Info("catalog loaded", "path", cfg.Catalog.ProductsCSV, "products", cat.Len())
	} else {
		slog.Warn("no product catalog configured, weight and inventory checks disabled")
	}

	// ── Detectors ────────────────────────────────────────────────────────────
	registry := detect.NewRegistry(logger)
	registry.Register(detect.NewBarcodeSwitching())
	registry.Register(detect.NewScannerAvoidance())
	registry.Register(detect.NewWeightDiscrepancy(cat))
	registry.Register(detect.NewInventoryDiscrepancy(cat))
	registry.Register(detect.NewSystemHealth())
	registry.Register(detect.NewQueueSpike(cfg.Detect.QueueSpikeTarget))

	// ── Pipeline ─────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	correlator := correlate.New(time.Duration(cfg.Correlator.WindowSeconds)*time.Second, cfg.Correlator.MaxHistory)
	queues := queuehealth.NewService(cfg.QueueHealth.TargetPerStation, cfg.QueueHealth.HistoryLength, cfg.QueueHealth.IncidentHistory)
	pipe := pipeline.New(ctx, cfg.Engine, registry, correlator, queues, logger)

	// ── Hot-reload watcher ───────────────────────────────────────────────────
	// Analytical state survives a reload; only validation and logging
	// happen here, serving-side limits are read per request.
	loader.OnChange(func(newCfg *config.Config) {
		if err := config.Validate(newCfg); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
			return
		}
		slog.Info("config hot-reloaded", "version", newCfg.Version)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── Stream sources ───────────────────────────────────────────────────────
	sink := ingest.Sink(func(ev *event.Event) {
		if !pipe.ProcessAsync(ev) {
			slog.Warn("event dropped, queue full", "dataset", ev.Dataset, "station", ev.StationID)
		}
	})
	var sources sync.WaitGroup
	if cfg.Ingest.TCP.Addr != "" {
		src := ingest.NewTCPSource(cfg.Ingest.TCP, cfg.Ingest.Strict, sink, logger)
		sources.Add(1)
		go func() {
			defer sources.Done()
			if err := src.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("tcp source stopped", "err", err)
			}
		}()
	}
	if len(cfg.Ingest.Kafka.Brokers) > 0 {
		src := ingest.NewKafkaSource(cfg.Ingest.Kafka, cfg.Ingest.Strict, sink, logger)
		sources.Add(1)
		go func() {
			defer sources.Done()
			if err := src.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("kafka source stopped", "err", err)
			}
		}()
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	handler := api.New(pipe, loader, cfg.Server.BatchMaxEvents)
	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // stop sources and worker pool
	sources.Wait()
	pipe.Shutdown()
	slog.Info("goodbye")
}
