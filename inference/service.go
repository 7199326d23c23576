package inference

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"crimewatch/artifact"
	"crimewatch/crime"
	"crimewatch/db"
	"crimewatch/ml"
	"crimewatch/monitoring"
)

// PredictionRecorder persists served predictions.
type PredictionRecorder interface {
	SavePrediction(ctx context.Context, p db.PredictionLog) error
}

// EventPublisher receives prediction and reload events for live clients.
type EventPublisher interface {
	SendPrediction(p monitoring.PredictionMessage) error
	SendModelReload(r monitoring.ModelReloadMessage) error
}

type ServiceOptions struct {
	CacheSize int
	Metrics   *monitoring.Metrics
	Recorder  PredictionRecorder
	Events    EventPublisher
	Logger    *zap.Logger
}

// Service serves predictions from the current artifact. Reload swaps in a
// new predictor atomically; in-flight requests finish on the old one.
type Service struct {
	store     artifact.Store
	key       string
	current   atomic.Pointer[Predictor]
	cache     *lru.Cache[string, Prediction]
	metrics   *monitoring.Metrics
	recorder  PredictionRecorder
	events    EventPublisher
	logger    *zap.Logger
	reloads   atomic.Int64
	lastError atomic.Value
}

func NewService(store artifact.Store, key string, opts ServiceOptions) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:    store,
		key:      key,
		metrics:  opts.Metrics,
		recorder: opts.Recorder,
		events:   opts.Events,
		logger:   logger,
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, Prediction](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create prediction cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Reload reads the artifact from the store and makes it current. On failure
// the previously loaded artifact, if any, keeps serving.
func (s *Service) Reload(ctx context.Context) error {
	if s.store == nil {
		return errors.New("no artifact store configured")
	}
	a, err := ml.LoadArtifact(ctx, s.store, s.key)
	if err != nil {
		s.metrics.ModelLoadFailed()
		s.lastError.Store(err.Error())
		s.publishReload(monitoring.ModelReloadMessage{Error: err.Error()})
		return err
	}
	return s.SetArtifact(a)
}

// SetArtifact makes an already decoded artifact current.
func (s *Service) SetArtifact(a *ml.Artifact) error {
	p, err := NewPredictor(a)
	if err != nil {
		s.metrics.ModelLoadFailed()
		s.lastError.Store(err.Error())
		return err
	}
	previous := s.current.Swap(p)
	if s.cache != nil {
		s.cache.Purge()
	}
	s.reloads.Add(1)
	s.lastError.Store("")
	s.metrics.ModelLoaded(a.Version, a.ModelType, a.Schema.Len())

	fields := []zap.Field{
		zap.String("version", a.Version),
		zap.String("model_type", a.ModelType),
		zap.Int("columns", a.Schema.Len()),
		zap.Int("classes", len(a.Classes)),
	}
	if previous != nil {
		fields = append(fields, zap.String("previous_version", previous.Artifact().Version))
	}
	s.logger.Info("model loaded", fields...)

	s.publishReload(monitoring.ModelReloadMessage{
		Version:       a.Version,
		ModelType:     a.ModelType,
		SchemaColumns: a.Schema.Len(),
		Classes:       len(a.Classes),
	})
	return nil
}

func (s *Service) publishReload(msg monitoring.ModelReloadMessage) {
	if s.events == nil {
		return
	}
	if err := s.events.SendModelReload(msg); err != nil && !errors.Is(err, monitoring.ErrMonitorNotRunning) {
		s.logger.Debug("failed to publish reload event", zap.Error(err))
	}
}

// Artifact returns the current artifact or nil.
func (s *Service) Artifact() *ml.Artifact {
	p := s.current.Load()
	if p == nil {
		return nil
	}
	return p.Artifact()
}

func (s *Service) Loaded() bool {
	return s.current.Load() != nil
}

func (s *Service) Reloads() int64 {
	return s.reloads.Load()
}

// LastError is the message of the most recent failed load, or "".
func (s *Service) LastError() string {
	v, _ := s.lastError.Load().(string)
	return v
}

func (s *Service) Predict(ctx context.Context, q crime.Query) (Prediction, error) {
	start := time.Now()
	p := s.current.Load()
	if p == nil {
		s.metrics.PredictionFailed("not_loaded")
		return Prediction{}, ErrModelNotLoaded
	}

	pred, err := s.lookup(p, q)
	if err != nil {
		s.metrics.PredictionFailed(failureReason(err))
		return Prediction{}, err
	}

	s.metrics.ObservePrediction(pred.Label, time.Since(start), pred.UnseenFields())
	if len(pred.Dropped) > 0 {
		s.logger.Debug("query has categories unseen in training",
			zap.String("district", q.District),
			zap.String("day_of_week", q.DayOfWeek),
			zap.Strings("dropped", pred.Dropped))
	}
	s.record(ctx, q, pred)
	return pred, nil
}

// lookup serves from the cache when possible. Hits and misses are both
// recorded by the caller.
func (s *Service) lookup(p *Predictor, q crime.Query) (Prediction, error) {
	if s.cache == nil {
		return p.Predict(q)
	}
	key := cacheKey(p.Artifact().Version, q)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.CacheLookup(true)
		return clonePrediction(cached), nil
	}
	s.metrics.CacheLookup(false)
	pred, err := p.Predict(q)
	if err != nil {
		return Prediction{}, err
	}
	s.cache.Add(key, clonePrediction(pred))
	return pred, nil
}

// record appends to the prediction log and live stream. Both are best effort.
func (s *Service) record(ctx context.Context, q crime.Query, pred Prediction) {
	if s.recorder != nil {
		err := s.recorder.SavePrediction(ctx, db.PredictionLog{
			ModelVersion: pred.ModelVersion,
			District:     q.District,
			DayOfWeek:    q.DayOfWeek,
			Hour:         q.Hour,
			Label:        pred.Label,
			Confidence:   pred.Confidence,
			Dropped:      strings.Join(pred.Dropped, ","),
			Timestamp:    time.Now(),
		})
		if err != nil {
			s.logger.Warn("failed to record prediction", zap.Error(err))
		}
	}
	if s.events != nil {
		err := s.events.SendPrediction(monitoring.PredictionMessage{
			District:     q.District,
			DayOfWeek:    q.DayOfWeek,
			Hour:         q.Hour,
			Label:        pred.Label,
			Confidence:   pred.Confidence,
			ModelVersion: pred.ModelVersion,
			Dropped:      pred.Dropped,
		})
		if err != nil && !errors.Is(err, monitoring.ErrMonitorNotRunning) {
			s.logger.Debug("failed to publish prediction", zap.Error(err))
		}
	}
}

func cacheKey(version string, q crime.Query) string {
	return version + "\x00" + q.District + "\x00" + q.DayOfWeek + "\x00" + strconv.Itoa(q.Hour)
}

func clonePrediction(p Prediction) Prediction {
	p.Probabilities = maps.Clone(p.Probabilities)
	p.Dropped = slices.Clone(p.Dropped)
	return p
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, crime.ErrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, ml.ErrSchemaMismatch):
		return "schema_mismatch"
	default:
		return "internal"
	}
}
