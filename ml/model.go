package ml

// Classifier is a trained model over fixed-width feature vectors.
type Classifier interface {
	Train(features [][]float64, labels []int) error
	Predict(features []float64) (int, float64, error)
	PredictProba(features []float64) ([]float64, error)
	Features() int
	Classes() int
	FeatureImportances() []float64
}

// Argmax returns the most probable class and its probability. Ties go to the
// lowest class index. An empty distribution yields (0, 0).
func Argmax(proba []float64) (int, float64) {
	if len(proba) == 0 {
		return 0, 0
	}
	best := 0
	for c := range proba {
		if proba[c] > proba[best] {
			best = c
		}
	}
	return best, proba[best]
}

const (
	ModelTypeRandomForest = "random_forest"
	ModelTypeDecisionTree = "decision_tree"
)
