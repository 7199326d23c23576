package artifact

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("artifact not found")

// Store persists opaque artifact blobs under a key.
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

func validateKey(key string) error {
	if key == "" {
		return errors.New("artifact key is empty")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." || filepath.Base(key) != key {
		return fmt.Errorf("artifact key %q must be a plain name", key)
	}
	return nil
}
