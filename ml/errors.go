package ml

import "errors"

var (
	// ErrDataQuality marks training input that cannot produce a usable model.
	ErrDataQuality = errors.New("data quality")
	// ErrSchemaMismatch marks an artifact or vector that cannot be aligned to its feature schema.
	ErrSchemaMismatch = errors.New("schema mismatch")
)
