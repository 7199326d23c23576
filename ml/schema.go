package ml

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// FeatureSchema is the ordered list of indicator columns a classifier was
// fitted against. It is immutable once built.
type FeatureSchema struct {
	columns []string
	index   map[string]int
}

// NewFeatureSchema copies columns and rejects empty, blank or duplicate names.
func NewFeatureSchema(columns []string) (FeatureSchema, error) {
	if len(columns) == 0 {
		return FeatureSchema{}, fmt.Errorf("%w: feature schema is empty", ErrSchemaMismatch)
	}
	index := make(map[string]int, len(columns))
	owned := make([]string, len(columns))
	for i, name := range columns {
		if name == "" {
			return FeatureSchema{}, fmt.Errorf("%w: blank column name at position %d", ErrSchemaMismatch, i)
		}
		if prev, ok := index[name]; ok {
			return FeatureSchema{}, fmt.Errorf("%w: duplicate column %q at positions %d and %d", ErrSchemaMismatch, name, prev, i)
		}
		index[name] = i
		owned[i] = name
	}
	return FeatureSchema{columns: owned, index: index}, nil
}

func (s FeatureSchema) Len() int {
	return len(s.columns)
}

// Columns returns a copy of the ordered column names.
func (s FeatureSchema) Columns() []string {
	return append([]string(nil), s.columns...)
}

func (s FeatureSchema) Column(i int) string {
	return s.columns[i]
}

func (s FeatureSchema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

func (s FeatureSchema) Equal(other FeatureSchema) bool {
	if len(s.columns) != len(other.columns) {
		return false
	}
	for i := range s.columns {
		if s.columns[i] != other.columns[i] {
			return false
		}
	}
	return true
}

// Fingerprint is a SHA-256 over the ordered names; any rename or reorder changes it.
func (s FeatureSchema) Fingerprint() string {
	h := sha256.New()
	for _, name := range s.columns {
		h.Write([]byte(name))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s FeatureSchema) MarshalJSON() ([]byte, error) {
	if s.columns == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.columns)
}

func (s *FeatureSchema) UnmarshalJSON(data []byte) error {
	var columns []string
	if err := json.Unmarshal(data, &columns); err != nil {
		return fmt.Errorf("%w: decode feature schema: %v", ErrSchemaMismatch, err)
	}
	schema, err := NewFeatureSchema(columns)
	if err != nil {
		return err
	}
	*s = schema
	return nil
}
