package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"crimewatch/artifact"
)

// Artifact is a fitted classifier bundled with the schema and class list it
// was trained against. It is not modified after construction or decoding.
type Artifact struct {
	Version           string          `json:"version"`
	ModelType         string          `json:"model_type"`
	CreatedAt         time.Time       `json:"created_at"`
	Schema            FeatureSchema   `json:"schema"`
	SchemaFingerprint string          `json:"schema_fingerprint"`
	Classes           []string        `json:"classes"`
	Metrics           Metrics         `json:"metrics"`
	TrainRows         int             `json:"train_rows"`
	TestRows          int             `json:"test_rows"`
	Model             json.RawMessage `json:"model"`

	classifier Classifier
}

// NewArtifact serializes a trained classifier together with its schema.
func NewArtifact(modelType string, schema FeatureSchema, classes []string, model Classifier, metrics Metrics, trainRows int) (*Artifact, error) {
	if model == nil {
		return nil, errors.New("nil classifier")
	}
	if err := checkShape(schema, classes, model); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", modelType, err)
	}
	return &Artifact{
		Version:           uuid.NewString(),
		ModelType:         modelType,
		CreatedAt:         time.Now().UTC(),
		Schema:            schema,
		SchemaFingerprint: schema.Fingerprint(),
		Classes:           append([]string(nil), classes...),
		Metrics:           metrics,
		TrainRows:         trainRows,
		TestRows:          metrics.TestRows,
		Model:             payload,
		classifier:        model,
	}, nil
}

func (a *Artifact) Classifier() Classifier {
	return a.classifier
}

// Label maps a class index back to its offense group.
func (a *Artifact) Label(idx int) (string, error) {
	if idx < 0 || idx >= len(a.Classes) {
		return "", fmt.Errorf("%w: class index %d outside %d classes", ErrSchemaMismatch, idx, len(a.Classes))
	}
	return a.Classes[idx], nil
}

// EncodeArtifact writes the artifact as gzip-compressed JSON.
func EncodeArtifact(a *Artifact) ([]byte, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact: %w", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeArtifact accepts gzip-compressed or plain JSON. An artifact whose
// schema cannot be recovered or does not fit the classifier is rejected
// with ErrSchemaMismatch.
func DecodeArtifact(data []byte) (*Artifact, error) {
	raw := data
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: open gzip: %v", ErrSchemaMismatch, err)
		}
		defer zr.Close()
		raw, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: read gzip: %v", ErrSchemaMismatch, err)
		}
	}

	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		if errors.Is(err, ErrSchemaMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: decode artifact: %v", ErrSchemaMismatch, err)
	}
	if a.Schema.Len() == 0 {
		return nil, fmt.Errorf("%w: artifact has no feature schema", ErrSchemaMismatch)
	}
	if a.SchemaFingerprint != a.Schema.Fingerprint() {
		return nil, fmt.Errorf("%w: schema fingerprint %s does not match columns", ErrSchemaMismatch, a.SchemaFingerprint)
	}
	if len(a.Model) == 0 {
		return nil, fmt.Errorf("%w: artifact has no model", ErrSchemaMismatch)
	}
	model, err := LoadModel(a.ModelType, a.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrSchemaMismatch, a.ModelType, err)
	}
	if err := checkShape(a.Schema, a.Classes, model); err != nil {
		return nil, err
	}
	a.classifier = model
	return &a, nil
}

func SaveArtifact(ctx context.Context, store artifact.Store, key string, a *Artifact) error {
	data, err := EncodeArtifact(a)
	if err != nil {
		return err
	}
	if err := store.Save(ctx, key, data); err != nil {
		return fmt.Errorf("save artifact %s: %w", key, err)
	}
	return nil
}

func LoadArtifact(ctx context.Context, store artifact.Store, key string) (*Artifact, error) {
	data, err := store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", key, err)
	}
	return DecodeArtifact(data)
}

func checkShape(schema FeatureSchema, classes []string, model Classifier) error {
	if schema.Len() == 0 {
		return fmt.Errorf("%w: feature schema is empty", ErrSchemaMismatch)
	}
	if len(classes) == 0 {
		return fmt.Errorf("%w: no class labels", ErrSchemaMismatch)
	}
	if model.Features() != schema.Len() {
		return fmt.Errorf("%w: classifier expects %d features, schema has %d", ErrSchemaMismatch, model.Features(), schema.Len())
	}
	if model.Classes() > len(classes) {
		return fmt.Errorf("%w: classifier has %d classes, artifact lists %d", ErrSchemaMismatch, model.Classes(), len(classes))
	}
	return nil
}
