package inference

import (
	"errors"
	"fmt"
	"strings"

	"crimewatch/crime"
	"crimewatch/ml"
)

var ErrModelNotLoaded = errors.New("model not loaded")

// Prediction is the answer to one query.
type Prediction struct {
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	ModelVersion  string             `json:"model_version"`
	// Dropped are indicator columns for categorical values the model never saw.
	Dropped []string `json:"dropped,omitempty"`
}

// UnseenFields maps dropped columns back to their field names.
func (p Prediction) UnseenFields() []string {
	fields := make([]string, 0, len(p.Dropped))
	for _, column := range p.Dropped {
		for _, field := range ml.FeatureFields {
			if strings.HasPrefix(column, field+"_") {
				fields = append(fields, field)
				break
			}
		}
	}
	return fields
}

// Predictor answers queries against one immutable artifact. It is safe for
// concurrent use.
type Predictor struct {
	artifact *ml.Artifact
}

func NewPredictor(a *ml.Artifact) (*Predictor, error) {
	if a == nil {
		return nil, ErrModelNotLoaded
	}
	if a.Schema.Len() == 0 {
		return nil, fmt.Errorf("%w: artifact has no feature schema", ml.ErrSchemaMismatch)
	}
	if a.Classifier() == nil {
		return nil, fmt.Errorf("%w: artifact %s has no decoded classifier", ErrModelNotLoaded, a.Version)
	}
	if got := a.Classifier().Features(); got != a.Schema.Len() {
		return nil, fmt.Errorf("%w: classifier expects %d features, schema has %d", ml.ErrSchemaMismatch, got, a.Schema.Len())
	}
	return &Predictor{artifact: a}, nil
}

func (p *Predictor) Artifact() *ml.Artifact {
	return p.artifact
}

// Encode expands the query and reconciles it against the artifact schema.
func (p *Predictor) Encode(q crime.Query) (ml.Reconciliation, error) {
	if err := q.Validate(); err != nil {
		return ml.Reconciliation{}, err
	}
	return ml.Reconcile(ml.ExpandQuery(q), p.artifact.Schema)
}

func (p *Predictor) Predict(q crime.Query) (Prediction, error) {
	rec, err := p.Encode(q)
	if err != nil {
		return Prediction{}, err
	}

	proba, err := p.artifact.Classifier().PredictProba(rec.Vector)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	best, confidence := ml.Argmax(proba)
	label, err := p.artifact.Label(best)
	if err != nil {
		return Prediction{}, err
	}

	probabilities := make(map[string]float64, len(proba))
	for c, v := range proba {
		if name, err := p.artifact.Label(c); err == nil {
			probabilities[name] = v
		}
	}
	return Prediction{
		Label:         label,
		Confidence:    confidence,
		Probabilities: probabilities,
		ModelVersion:  p.artifact.Version,
		Dropped:       rec.Dropped,
	}, nil
}

// Predict answers a single query against an artifact.
func Predict(a *ml.Artifact, q crime.Query) (string, error) {
	p, err := NewPredictor(a)
	if err != nil {
		return "", err
	}
	pred, err := p.Predict(q)
	if err != nil {
		return "", err
	}
	return pred.Label, nil
}
