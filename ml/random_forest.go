package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const defaultNumTrees = 100

// ForestConfig controls the bagged tree ensemble. MaxFeatures <= 0 selects
// ceil(sqrt(features)) per split.
type ForestConfig struct {
	NumTrees        int   `json:"num_trees"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MaxFeatures     int   `json:"max_features"`
	Bootstrap       bool  `json:"bootstrap"`
	Seed            int64 `json:"seed"`
	Workers         int   `json:"-"`
}

func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NumTrees:        defaultNumTrees,
		MinSamplesSplit: defaultMinSamplesSplit,
		Bootstrap:       true,
		Seed:            42,
	}
}

type RandomForest struct {
	config      ForestConfig
	trees       []*DecisionTree
	numFeatures int
	numClasses  int
	importances []float64
}

func NewRandomForest(config ForestConfig) *RandomForest {
	if config.NumTrees <= 0 {
		config.NumTrees = defaultNumTrees
	}
	return &RandomForest{config: config}
}

// Train fits every tree on its own bootstrap sample. Tree i draws from a
// source seeded with Seed+i, so the result does not depend on scheduling.
func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	if err := validateTrainingSet(features, labels); err != nil {
		return err
	}
	numClasses := 0
	for _, label := range labels {
		if label+1 > numClasses {
			numClasses = label + 1
		}
	}
	numFeatures := len(features[0])

	maxFeatures := rf.config.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Ceil(math.Sqrt(float64(numFeatures))))
	}
	treeConfig := TreeConfig{
		MaxDepth:        rf.config.MaxDepth,
		MinSamplesSplit: rf.config.MinSamplesSplit,
		MaxFeatures:     maxFeatures,
	}

	workers := rf.config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	trees := make([]*DecisionTree, rf.config.NumTrees)
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			cfg := treeConfig
			cfg.Seed = rf.config.Seed + int64(i)
			rng := rand.New(rand.NewSource(cfg.Seed))
			sample := rf.sample(len(features), rng)
			tree := NewDecisionTree(cfg)
			if err := tree.fit(features, labels, sample, numClasses, rng); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	importances := make([]float64, numFeatures)
	for _, tree := range trees {
		for j, v := range tree.importances {
			importances[j] += v / float64(len(trees))
		}
	}

	rf.trees = trees
	rf.numFeatures = numFeatures
	rf.numClasses = numClasses
	rf.importances = importances
	return nil
}

func (rf *RandomForest) sample(n int, rng *rand.Rand) []int {
	sample := make([]int, n)
	for i := range sample {
		if rf.config.Bootstrap {
			sample[i] = rng.Intn(n)
		} else {
			sample[i] = i
		}
	}
	return sample
}

// PredictProba averages the leaf distributions of all trees.
func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.trees) == 0 {
		return nil, errors.New("model not trained")
	}
	proba := make([]float64, rf.numClasses)
	for i, tree := range rf.trees {
		dist, err := tree.PredictProba(features)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		for c, p := range dist {
			proba[c] += p
		}
	}
	for c := range proba {
		proba[c] /= float64(len(rf.trees))
	}
	return proba, nil
}

// Predict returns the class with the highest averaged probability; ties go
// to the lowest class index.
func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	proba, err := rf.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	best, confidence := Argmax(proba)
	return best, confidence, nil
}

func (rf *RandomForest) Features() int { return rf.numFeatures }

func (rf *RandomForest) Classes() int { return rf.numClasses }

func (rf *RandomForest) Estimators() []*DecisionTree {
	return append([]*DecisionTree(nil), rf.trees...)
}

func (rf *RandomForest) FeatureImportances() []float64 {
	return append([]float64(nil), rf.importances...)
}

type forestWire struct {
	Config      ForestConfig    `json:"config"`
	NumFeatures int             `json:"num_features"`
	NumClasses  int             `json:"num_classes"`
	Importances []float64       `json:"importances"`
	Trees       []*DecisionTree `json:"trees"`
}

func (rf *RandomForest) MarshalJSON() ([]byte, error) {
	if len(rf.trees) == 0 {
		return nil, errors.New("model not trained")
	}
	return json.Marshal(forestWire{
		Config:      rf.config,
		NumFeatures: rf.numFeatures,
		NumClasses:  rf.numClasses,
		Importances: rf.importances,
		Trees:       rf.trees,
	})
}

func (rf *RandomForest) UnmarshalJSON(data []byte) error {
	var wire forestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if len(wire.Trees) == 0 {
		return errors.New("random forest has no trees")
	}
	for i, tree := range wire.Trees {
		if tree == nil {
			return fmt.Errorf("tree %d is null", i)
		}
		if tree.numFeatures != wire.NumFeatures || tree.numClasses != wire.NumClasses {
			return fmt.Errorf("tree %d shape %dx%d does not match forest %dx%d",
				i, tree.numFeatures, tree.numClasses, wire.NumFeatures, wire.NumClasses)
		}
	}
	rf.config = wire.Config
	rf.numFeatures = wire.NumFeatures
	rf.numClasses = wire.NumClasses
	rf.importances = wire.Importances
	rf.trees = wire.Trees
	return nil
}
