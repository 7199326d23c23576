package dataset

import (
	"context"
	"fmt"

	"crimewatch/config"
	"crimewatch/crime"
	"crimewatch/db"
)

// Source yields the historical incidents used for training and the dashboard.
type Source interface {
	Fetch(ctx context.Context) ([]crime.Record, error)
}

// Sink accepts cleaned incidents from the loader.
type Sink interface {
	InsertRecords(ctx context.Context, records []crime.Record) (int, error)
}

// MemorySource serves a fixed slice; each Fetch returns a copy.
type MemorySource struct {
	Records []crime.Record
}

func (m MemorySource) Fetch(ctx context.Context) ([]crime.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]crime.Record(nil), m.Records...), nil
}

// Open builds the source selected by cfg.Data.Source. sqlite is only used
// for the sqlite source. The returned close func is never nil.
func Open(ctx context.Context, cfg *config.Config, sqlite *db.DB) (Source, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Data.Source {
	case "csv":
		return NewCSVSource(cfg.Data.CSVPath), noop, nil
	case "sqlite":
		if sqlite == nil {
			return nil, noop, fmt.Errorf("sqlite source needs an open database")
		}
		return sqlite, noop, nil
	case "mongo":
		src, err := NewMongoSource(ctx, cfg.Database.MongoURI, cfg.Database.MongoDatabase, cfg.Database.MongoCollection)
		if err != nil {
			return nil, noop, err
		}
		return src, func() error { return src.Close(context.Background()) }, nil
	case "postgres":
		src, err := NewPostgresSource(ctx, cfg.Database.PostgresDSN, cfg.Database.PostgresTable)
		if err != nil {
			return nil, noop, err
		}
		return src, func() error { src.Close(); return nil }, nil
	default:
		return nil, noop, fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}
}

// OpenSink builds the ingestion target named by kind: sqlite, mongo or postgres.
func OpenSink(ctx context.Context, kind string, cfg *config.Config, sqlite *db.DB) (Sink, func() error, error) {
	noop := func() error { return nil }
	switch kind {
	case "sqlite":
		if sqlite == nil {
			return nil, noop, fmt.Errorf("sqlite sink needs an open database")
		}
		return sqlite, noop, nil
	case "mongo":
		src, err := NewMongoSource(ctx, cfg.Database.MongoURI, cfg.Database.MongoDatabase, cfg.Database.MongoCollection)
		if err != nil {
			return nil, noop, err
		}
		return src, func() error { return src.Close(context.Background()) }, nil
	case "postgres":
		src, err := NewPostgresSource(ctx, cfg.Database.PostgresDSN, cfg.Database.PostgresTable)
		if err != nil {
			return nil, noop, err
		}
		if err := src.EnsureTable(ctx); err != nil {
			src.Close()
			return nil, noop, err
		}
		return src, func() error { src.Close(); return nil }, nil
	default:
		return nil, noop, fmt.Errorf("unknown sink %q", kind)
	}
}
