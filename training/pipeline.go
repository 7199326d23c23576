package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"crimewatch/artifact"
	"crimewatch/config"
	"crimewatch/dataset"
	"crimewatch/db"
	"crimewatch/ml"
	"crimewatch/monitoring"
	"crimewatch/pipeline"
)

// LogStore records finished training runs.
type LogStore interface {
	SaveTrainingLog(ctx context.Context, log db.TrainingLog) error
}

type Config struct {
	ModelType   string
	Forest      ml.ForestConfig
	TestRatio   float64
	SplitSeed   int64
	ArtifactKey string
}

// ConfigFromModel maps the model and artifact sections of the service config.
func ConfigFromModel(model config.ModelConfig, art config.ArtifactConfig) Config {
	forest := ml.DefaultForestConfig()
	if model.NumTrees > 0 {
		forest.NumTrees = model.NumTrees
	}
	forest.MaxDepth = model.MaxDepth
	if model.MinSamplesSplit > 0 {
		forest.MinSamplesSplit = model.MinSamplesSplit
	}
	forest.MaxFeatures = model.MaxFeatures
	forest.Seed = model.Seed
	forest.Workers = model.Workers

	return Config{
		ModelType:   model.Type,
		Forest:      forest,
		TestRatio:   model.TestRatio,
		SplitSeed:   model.Seed,
		ArtifactKey: art.Key,
	}
}

// Result describes one finished run.
type Result struct {
	Artifact      *ml.Artifact
	Fetched       int
	Kept          int
	DroppedIssues []pipeline.QualityIssue
	Duration      time.Duration
}

// Pipeline turns historical records into a persisted artifact:
// clean, fit schema, encode, split, train, evaluate, save.
type Pipeline struct {
	config  Config
	source  dataset.Source
	store   artifact.Store
	cleaner *pipeline.DataCleaner
	logs    LogStore
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

type Option func(*Pipeline)

func WithLogStore(logs LogStore) Option {
	return func(p *Pipeline) { p.logs = logs }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithCleaner(c *pipeline.DataCleaner) Option {
	return func(p *Pipeline) { p.cleaner = c }
}

func NewPipeline(cfg Config, source dataset.Source, store artifact.Store, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ModelType == "" {
		cfg.ModelType = ml.ModelTypeRandomForest
	}
	p := &Pipeline{
		config: cfg,
		source: source,
		store:  store,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cleaner == nil {
		p.cleaner = pipeline.NewTrainingCleaner(logger)
	}
	return p
}

func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if p.source == nil {
		return nil, errors.New("training pipeline has no data source")
	}
	start := time.Now()

	raw, err := p.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch training data: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: data source returned no records", ml.ErrDataQuality)
	}

	records, issues := p.cleaner.Clean(raw)
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: all %d records dropped while cleaning", ml.ErrDataQuality, len(raw))
	}
	p.logger.Info("training data prepared",
		zap.Int("fetched", len(raw)),
		zap.Int("kept", len(records)),
		zap.Int("dropped", len(raw)-len(records)))

	schema, err := ml.FitSchema(records)
	if err != nil {
		return nil, err
	}
	classes, labels, err := ml.EncodeLabels(records)
	if err != nil {
		return nil, err
	}
	features, err := ml.EncodeRecords(records, schema)
	if err != nil {
		return nil, err
	}

	split, err := ml.TrainTestSplit(features, labels, p.config.TestRatio, p.config.SplitSeed)
	if err != nil {
		return nil, err
	}

	model, err := ml.NewClassifier(p.config.ModelType, p.config.Forest)
	if err != nil {
		return nil, err
	}
	if err := model.Train(split.TrainX, split.TrainY); err != nil {
		return nil, fmt.Errorf("train %s: %w", p.config.ModelType, err)
	}

	metrics, err := ml.Evaluate(model, split.TestX, split.TestY)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if metrics.Evaluated {
		p.logger.Info("model evaluated",
			zap.Float64("accuracy", metrics.Accuracy),
			zap.Float64("macro_precision", metrics.MacroPrecision),
			zap.Float64("macro_recall", metrics.MacroRecall),
			zap.Int("test_rows", metrics.TestRows))
	} else {
		p.logger.Warn("test split is empty, model not evaluated")
	}

	art, err := ml.NewArtifact(p.config.ModelType, schema, classes, model, metrics, len(split.TrainX))
	if err != nil {
		return nil, err
	}
	if p.store != nil {
		if err := ml.SaveArtifact(ctx, p.store, p.config.ArtifactKey, art); err != nil {
			return nil, err
		}
		p.logger.Info("artifact saved",
			zap.String("key", p.config.ArtifactKey),
			zap.String("version", art.Version),
			zap.Int("columns", schema.Len()),
			zap.Int("classes", len(classes)))
	}

	elapsed := time.Since(start)
	p.metrics.TrainingCompleted(metrics.Accuracy, len(split.TrainX), metrics.TestRows, schema.Len(), len(raw)-len(records), elapsed)

	if p.logs != nil {
		entry := db.TrainingLog{
			ModelVersion: art.Version,
			ModelName:    p.config.ModelType,
			Accuracy:     metrics.Accuracy,
			Precision:    metrics.MacroPrecision,
			Recall:       metrics.MacroRecall,
			TrainedAt:    art.CreatedAt,
			DataPoints:   len(split.TrainX),
			TestPoints:   metrics.TestRows,
			Features:     schema.Len(),
			Classes:      len(classes),
		}
		// the artifact is already saved; a lost log row is not fatal
		if err := p.logs.SaveTrainingLog(ctx, entry); err != nil {
			p.logger.Warn("failed to record training log", zap.Error(err))
		}
	}

	return &Result{
		Artifact:      art,
		Fetched:       len(raw),
		Kept:          len(records),
		DroppedIssues: issues,
		Duration:      elapsed,
	}, nil
}
