package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"crimewatch/crime"
	"crimewatch/dataset"
)

type IngestionConfig struct {
	BatchSize  int           `json:"batch_size"`
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
}

type IngestionStats struct {
	Read             int64     `json:"read"`
	Dropped          int64     `json:"dropped"`
	Inserted         int64     `json:"inserted"`
	FailedRecords    int64     `json:"failed_records"`
	BatchesProcessed int64     `json:"batches_processed"`
	LastIngestion    time.Time `json:"last_ingestion"`
}

// Ingester moves records from a source through a cleaner into a sink in batches.
type Ingester struct {
	config  IngestionConfig
	source  dataset.Source
	cleaner *DataCleaner
	sink    dataset.Sink
	logger  *zap.Logger

	stats     IngestionStats
	statsLock sync.RWMutex
}

func NewIngester(config IngestionConfig, source dataset.Source, cleaner *DataCleaner, sink dataset.Sink, logger *zap.Logger) *Ingester {
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{
		config:  config,
		source:  source,
		cleaner: cleaner,
		sink:    sink,
		logger:  logger,
	}
}

// Run performs one full ingestion.
func (in *Ingester) Run(ctx context.Context) (IngestionStats, error) {
	records, err := in.source.Fetch(ctx)
	if err != nil {
		return in.GetStats(), fmt.Errorf("fetch data failed: %w", err)
	}
	cleaned, _ := in.cleaner.Clean(records)

	in.statsLock.Lock()
	in.stats.Read += int64(len(records))
	in.stats.Dropped += int64(len(records) - len(cleaned))
	in.statsLock.Unlock()

	in.logger.Info("records cleaned",
		zap.Int("read", len(records)),
		zap.Int("kept", len(cleaned)),
		zap.Int("dropped", len(records)-len(cleaned)))

	for start := 0; start < len(cleaned); start += in.config.BatchSize {
		end := start + in.config.BatchSize
		if end > len(cleaned) {
			end = len(cleaned)
		}
		if err := in.flush(ctx, cleaned[start:end]); err != nil {
			return in.GetStats(), err
		}
	}
	return in.GetStats(), nil
}

func (in *Ingester) flush(ctx context.Context, batch []crime.Record) error {
	var lastErr error
	for retry := 0; retry < in.config.MaxRetries; retry++ {
		n, err := in.sink.InsertRecords(ctx, batch)
		if err == nil {
			in.statsLock.Lock()
			in.stats.Inserted += int64(n)
			in.stats.BatchesProcessed++
			in.stats.LastIngestion = time.Now()
			in.statsLock.Unlock()
			in.logger.Debug("flushed batch", zap.Int("records", n))
			return nil
		}
		lastErr = err
		in.logger.Warn("batch insert failed", zap.Int("attempt", retry+1), zap.Error(err))
		if retry == in.config.MaxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(retry+1) * in.config.RetryDelay):
		}
	}

	in.statsLock.Lock()
	in.stats.FailedRecords += int64(len(batch))
	in.statsLock.Unlock()
	return fmt.Errorf("save batch failed after %d attempts: %w", in.config.MaxRetries, lastErr)
}

func (in *Ingester) GetStats() IngestionStats {
	in.statsLock.RLock()
	defer in.statsLock.RUnlock()

	return in.stats
}
