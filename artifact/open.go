package artifact

import (
	"context"
	"errors"
	"fmt"

	"crimewatch/config"
	"crimewatch/db"
)

// Open builds the store selected by cfg. The sqlite store reuses sqlite,
// which must then be non-nil. The returned close func is never nil.
func Open(ctx context.Context, cfg config.ArtifactConfig, sqlite *db.DB) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store {
	case "file", "":
		store, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	case "sqlite":
		if sqlite == nil {
			return nil, noop, errors.New("sqlite artifact store needs an open database")
		}
		return NewSQLiteStore(sqlite), noop, nil
	case "redis":
		store, err := NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown artifact store %q", cfg.Store)
	}
}
