package ml

import (
	"reflect"
	"testing"
)

func TestTrainTestSplit(t *testing.T) {
	tests := []struct {
		name      string
		rows      int
		ratio     float64
		wantTrain int
		wantTest  int
	}{
		{name: "eighty twenty", rows: 10, ratio: 0.2, wantTrain: 8, wantTest: 2},
		{name: "rounds test up", rows: 11, ratio: 0.2, wantTrain: 8, wantTest: 3},
		{name: "single row trains", rows: 1, ratio: 0.2, wantTrain: 1, wantTest: 0},
		{name: "invalid ratio uses default", rows: 10, ratio: 1.5, wantTrain: 8, wantTest: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			features := make([][]float64, tt.rows)
			labels := make([]int, tt.rows)
			for i := range features {
				features[i] = []float64{float64(i)}
				labels[i] = i
			}
			s, err := TrainTestSplit(features, labels, tt.ratio, 42)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(s.TrainX) != tt.wantTrain || len(s.TestX) != tt.wantTest {
				t.Fatalf("expected %d/%d, got %d/%d", tt.wantTrain, tt.wantTest, len(s.TrainX), len(s.TestX))
			}
			for i, row := range s.TrainX {
				if int(row[0]) != s.TrainY[i] {
					t.Fatalf("train row %d lost its label", i)
				}
			}
		})
	}
}

func TestTrainTestSplitReproducible(t *testing.T) {
	features := make([][]float64, 50)
	labels := make([]int, 50)
	for i := range features {
		features[i] = []float64{float64(i)}
		labels[i] = i % 3
	}
	a, _ := TrainTestSplit(features, labels, 0.2, 42)
	b, _ := TrainTestSplit(features, labels, 0.2, 42)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed produced different splits")
	}
}
