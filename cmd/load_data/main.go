package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"crimewatch/config"
	"crimewatch/dataset"
	"crimewatch/db"
	"crimewatch/logger"
	"crimewatch/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	csvPath := flag.String("csv", "", "CSV export to load (defaults to data.csv_path)")
	sinkKind := flag.String("sink", "sqlite", "target store: sqlite, mongo or postgres")
	batchSize := flag.Int("batch", 0, "override insert batch size")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *csvPath != "" {
		cfg.Data.CSVPath = *csvPath
	}
	if *batchSize > 0 {
		cfg.Database.BatchSize = *batchSize
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *sinkKind, log); err != nil {
		log.Error("load failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, sinkKind string, log *zap.Logger) error {
	var sqlite *db.DB
	if sinkKind == "sqlite" {
		var err error
		sqlite, err = db.Open(cfg.Database.SQLitePath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer sqlite.Close()
	}

	sink, closeSink, err := dataset.OpenSink(ctx, sinkKind, cfg, sqlite)
	if err != nil {
		return err
	}
	defer closeSink()

	ingester := pipeline.NewIngester(
		pipeline.IngestionConfig{BatchSize: cfg.Database.BatchSize},
		dataset.NewCSVSource(cfg.Data.CSVPath),
		pipeline.NewIngestionCleaner(log),
		sink,
		log,
	)
	stats, err := ingester.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("read %d rows from %s\n", stats.Read, cfg.Data.CSVPath)
	fmt.Printf("dropped %d rows missing HOUR, MONTH, DAY_OF_WEEK or OFFENSE_CODE\n", stats.Dropped)
	fmt.Printf("inserted %d rows into %s in %d batches\n", stats.Inserted, sinkKind, stats.BatchesProcessed)
	return nil
}
