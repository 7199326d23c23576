package ml

import (
	"encoding/json"
	"fmt"
)

// NewClassifier builds an untrained classifier of the given type.
func NewClassifier(modelType string, config ForestConfig) (Classifier, error) {
	switch modelType {
	case ModelTypeRandomForest, "":
		return NewRandomForest(config), nil
	case ModelTypeDecisionTree:
		return NewDecisionTree(TreeConfig{
			MaxDepth:        config.MaxDepth,
			MinSamplesSplit: config.MinSamplesSplit,
			MaxFeatures:     config.MaxFeatures,
			Seed:            config.Seed,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

// LoadModel decodes a serialized classifier of the given type.
func LoadModel(modelType string, payload []byte) (Classifier, error) {
	switch modelType {
	case ModelTypeRandomForest:
		model := &RandomForest{}
		if err := json.Unmarshal(payload, model); err != nil {
			return nil, err
		}
		return model, nil
	case ModelTypeDecisionTree:
		model := &DecisionTree{}
		if err := json.Unmarshal(payload, model); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}
