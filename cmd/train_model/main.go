package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"crimewatch/artifact"
	"crimewatch/config"
	"crimewatch/dataset"
	"crimewatch/db"
	"crimewatch/logger"
	"crimewatch/monitoring"
	"crimewatch/training"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	source := flag.String("source", "", "override data source: csv, sqlite, mongo or postgres")
	csvPath := flag.String("csv", "", "override CSV path")
	key := flag.String("key", "", "override artifact key")
	modelType := flag.String("model", "", "override model type: random_forest or decision_tree")
	trees := flag.Int("trees", 0, "override number of trees")
	maxDepth := flag.Int("max_depth", -1, "override max tree depth (0 = unlimited)")
	testRatio := flag.Float64("test_ratio", -1, "override test ratio")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *source != "" {
		cfg.Data.Source = *source
	}
	if *csvPath != "" {
		cfg.Data.CSVPath = *csvPath
	}
	if *key != "" {
		cfg.Artifact.Key = *key
	}
	if *modelType != "" {
		cfg.Model.Type = *modelType
	}
	if *trees > 0 {
		cfg.Model.NumTrees = *trees
	}
	if *maxDepth >= 0 {
		cfg.Model.MaxDepth = *maxDepth
	}
	if *testRatio >= 0 {
		cfg.Model.TestRatio = *testRatio
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
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
		log.Error("training failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	sqlite, err := db.Open(cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer sqlite.Close()

	source, closeSource, err := dataset.Open(ctx, cfg, sqlite)
	if err != nil {
		return err
	}
	defer closeSource()

	store, closeStore, err := artifact.Open(ctx, cfg.Artifact, sqlite)
	if err != nil {
		return err
	}
	defer closeStore()

	p := training.NewPipeline(training.ConfigFromModel(cfg.Model, cfg.Artifact), source, store, log,
		training.WithLogStore(sqlite),
		training.WithMetrics(monitoring.NewMetrics()))
	result, err := p.Run(ctx)
	if err != nil {
		return err
	}

	m := result.Artifact.Metrics
	fmt.Printf("model %s (%s) saved under %q\n", result.Artifact.Version, result.Artifact.ModelType, cfg.Artifact.Key)
	fmt.Printf("records: fetched=%d kept=%d train=%d test=%d\n", result.Fetched, result.Kept, result.Artifact.TrainRows, result.Artifact.TestRows)
	fmt.Printf("schema columns: %d, classes: %d\n", result.Artifact.Schema.Len(), len(result.Artifact.Classes))
	if m.Evaluated {
		fmt.Printf("accuracy=%.4f precision=%.4f recall=%.4f\n", m.Accuracy, m.MacroPrecision, m.MacroRecall)
	}
	return nil
}
