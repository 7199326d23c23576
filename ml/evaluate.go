package ml

import "fmt"

// Metrics summarises held-out performance. Precision and recall are macro
// averages over the classes that occur in the test labels or predictions.
type Metrics struct {
	Accuracy       float64 `json:"accuracy"`
	MacroPrecision float64 `json:"macro_precision"`
	MacroRecall    float64 `json:"macro_recall"`
	TestRows       int     `json:"test_rows"`
	Evaluated      bool    `json:"evaluated"`
}

func Evaluate(model Classifier, testX [][]float64, testY []int) (Metrics, error) {
	if len(testX) != len(testY) {
		return Metrics{}, fmt.Errorf("test features and labels size mismatch: %d != %d", len(testX), len(testY))
	}
	if len(testX) == 0 {
		return Metrics{}, nil
	}

	classes := model.Classes()
	truePositive := make([]int, classes)
	predicted := make([]int, classes)
	actual := make([]int, classes)
	correct := 0
	for i, row := range testX {
		label, _, err := model.Predict(row)
		if err != nil {
			return Metrics{}, fmt.Errorf("predict test row %d: %w", i, err)
		}
		want := testY[i]
		if label == want {
			correct++
			if label < classes {
				truePositive[label]++
			}
		}
		if label < classes {
			predicted[label]++
		}
		if want < classes {
			actual[want]++
		}
	}

	var precision, recall float64
	seen := 0
	for c := 0; c < classes; c++ {
		if predicted[c] == 0 && actual[c] == 0 {
			continue
		}
		seen++
		if predicted[c] > 0 {
			precision += float64(truePositive[c]) / float64(predicted[c])
		}
		if actual[c] > 0 {
			recall += float64(truePositive[c]) / float64(actual[c])
		}
	}
	m := Metrics{
		Accuracy:  float64(correct) / float64(len(testX)),
		TestRows:  len(testX),
		Evaluated: true,
	}
	if seen > 0 {
		m.MacroPrecision = precision / float64(seen)
		m.MacroRecall = recall / float64(seen)
	}
	return m, nil
}
