package ml

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 1, 1}

	model := NewDecisionTree(TreeConfig{MaxDepth: 4})
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, confidence, err := model.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected label 0, got %d", label)
	}
	if confidence != 1 {
		t.Fatalf("expected confidence 1, got %f", confidence)
	}
	if model.Depth() != 1 {
		t.Fatalf("expected depth 1, got %d", model.Depth())
	}
	if model.NodeCount() != 3 {
		t.Fatalf("expected 3 nodes, got %d", model.NodeCount())
	}
}

func TestDecisionTreeRejectsWrongWidth(t *testing.T) {
	model := NewDecisionTree(TreeConfig{})
	if err := model.Train([][]float64{{0}, {1}}, []int{0, 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := model.Predict([]float64{0, 1}); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestDecisionTreeValidation(t *testing.T) {
	tests := []struct {
		name     string
		features [][]float64
		labels   []int
	}{
		{name: "empty", features: nil, labels: nil},
		{name: "size mismatch", features: [][]float64{{1}}, labels: []int{0, 1}},
		{name: "ragged rows", features: [][]float64{{1, 2}, {1}}, labels: []int{0, 1}},
		{name: "negative label", features: [][]float64{{1}}, labels: []int{-1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewDecisionTree(TreeConfig{}).Train(tt.features, tt.labels); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDecisionTreeJSONRoundTrip(t *testing.T) {
	model := NewDecisionTree(TreeConfig{})
	features := [][]float64{{0, 1}, {1, 0}, {1, 1}, {0, 0}}
	labels := []int{0, 1, 1, 0}
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := json.Marshal(model)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored DecisionTree
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for i, row := range features {
		got, _, err := restored.Predict(row)
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		if got != labels[i] {
			t.Fatalf("row %d: expected %d, got %d", i, labels[i], got)
		}
	}
}

func TestDecisionTreeUnmarshalRejectsBackwardChild(t *testing.T) {
	data := []byte(`{"num_features":1,"num_classes":2,"nodes":[
		{"feature_idx":0,"threshold":0.5,"left_child":0,"right_child":1},
		{"feature_idx":-1,"is_leaf":true,"distribution":[1,0]}]}`)
	var tree DecisionTree
	if err := json.Unmarshal(data, &tree); err == nil {
		t.Fatalf("expected error for self-referencing child")
	}
}
