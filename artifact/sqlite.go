package artifact

import (
	"context"
	"errors"
	"fmt"

	"crimewatch/db"
)

// SQLiteStore keeps artifacts in the artifacts table of the dashboard database.
type SQLiteStore struct {
	db *db.DB
}

func NewSQLiteStore(d *db.DB) *SQLiteStore {
	return &SQLiteStore{db: d}
}

func (s *SQLiteStore) Save(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.db.SaveBlob(ctx, key, data)
}

func (s *SQLiteStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := s.db.LoadBlob(ctx, key)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}
