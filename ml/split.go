package ml

import (
	"fmt"
	"math"
	"math/rand"
)

const DefaultTestRatio = 0.2

type Split struct {
	TrainX [][]float64
	TrainY []int
	TestX  [][]float64
	TestY  []int
}

// TrainTestSplit shuffles rows with a source seeded by seed and holds out
// ceil(n*testRatio) of them, always leaving at least one training row.
func TrainTestSplit(features [][]float64, labels []int, testRatio float64, seed int64) (Split, error) {
	if len(features) != len(labels) {
		return Split{}, fmt.Errorf("features and labels size mismatch: %d != %d", len(features), len(labels))
	}
	if len(features) == 0 {
		return Split{}, fmt.Errorf("%w: nothing to split", ErrDataQuality)
	}
	if testRatio < 0 || testRatio >= 1 {
		testRatio = DefaultTestRatio
	}

	n := len(features)
	nTest := int(math.Ceil(float64(n) * testRatio))
	if nTest > n-1 {
		nTest = n - 1
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	var s Split
	for i, row := range perm {
		if i < nTest {
			s.TestX = append(s.TestX, features[row])
			s.TestY = append(s.TestY, labels[row])
		} else {
			s.TrainX = append(s.TrainX, features[row])
			s.TrainY = append(s.TrainY, labels[row])
		}
	}
	return s, nil
}
