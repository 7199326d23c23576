package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crimewatch/analytics"
	"crimewatch/artifact"
	"crimewatch/config"
	"crimewatch/dataset"
	"crimewatch/db"
	qhttp "crimewatch/http"
	"crimewatch/inference"
	"crimewatch/logger"
	"crimewatch/monitoring"
)

const heartbeatInterval = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("exiting")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	metrics := monitoring.NewMetrics()

	// 2. Initialize database
	sqlite, err := db.Open(cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer sqlite.Close()
	log.Info("database initialized", zap.String("path", cfg.Database.SQLitePath))

	// 3. Dashboard data, loaded once
	var data *analytics.Dataset
	source, closeSource, err := dataset.Open(ctx, cfg, sqlite)
	if err != nil {
		log.Warn("dashboard data source unavailable", zap.Error(err))
	} else {
		data, err = analytics.LoadDataset(ctx, source, log)
		if err != nil {
			log.Warn("dashboard data not loaded", zap.Error(err))
			data = nil
		}
		closeSource()
	}

	// 4. Artifact store and prediction service
	store, closeStore, err := artifact.Open(ctx, cfg.Artifact, sqlite)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	defer closeStore()

	monitor := monitoring.NewRealtimeMonitor(monitoring.NewWebSocketHub(log, metrics, cfg.HTTP.AllowedOrigins), log)
	if err := monitor.Start(heartbeatInterval); err != nil {
		return err
	}
	defer monitor.Stop()

	service, err := inference.NewService(store, cfg.Artifact.Key, inference.ServiceOptions{
		CacheSize: cfg.Cache.PredictionSize,
		Metrics:   metrics,
		Recorder:  sqlite,
		Events:    monitor,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	if err := service.Reload(ctx); err != nil {
		// serve the dashboard anyway; predictions return 503 until an artifact appears
		log.Warn("no model loaded", zap.String("key", cfg.Artifact.Key), zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	if fs, ok := store.(*artifact.FileStore); ok && cfg.Watch.Enabled {
		watcher := inference.NewWatcher(fs.Path(cfg.Artifact.Key), cfg.Watch.Debounce, service, log)
		g.Go(func() error { return watcher.Run(gctx) })
	}

	// 5. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfigFrom(cfg.HTTP), &qhttp.API{
		Data:      data,
		Predictor: service,
		History:   sqlite,
		Monitor:   monitor,
		Metrics:   metrics,
		Logger:    log,
		Started:   time.Now(),
	}, log)
	g.Go(server.Start)

	// 6. Handle graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
