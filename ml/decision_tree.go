package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const (
	defaultMaxDepth        = 32
	defaultMinSamplesSplit = 2
)

type TreeConfig struct {
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MaxFeatures     int   `json:"max_features"`
	Seed            int64 `json:"seed"`
}

type DecisionTree struct {
	config      TreeConfig
	nodes       []TreeNode
	numFeatures int
	numClasses  int
	importances []float64
}

type TreeNode struct {
	FeatureIdx   int       `json:"feature_idx"`
	Threshold    float64   `json:"threshold"`
	LeftChild    int       `json:"left_child"`
	RightChild   int       `json:"right_child"`
	ClassLabel   int       `json:"class_label"`
	IsLeaf       bool      `json:"is_leaf"`
	Samples      int       `json:"samples"`
	Distribution []float64 `json:"distribution,omitempty"`
}

func NewDecisionTree(config TreeConfig) *DecisionTree {
	return &DecisionTree{config: config}
}

// Train fits the tree on every row. Labels must be class indices starting at 0.
func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	if err := validateTrainingSet(features, labels); err != nil {
		return err
	}
	numClasses := 0
	for _, label := range labels {
		if label+1 > numClasses {
			numClasses = label + 1
		}
	}
	sample := make([]int, len(features))
	for i := range sample {
		sample[i] = i
	}
	rng := rand.New(rand.NewSource(dt.config.Seed))
	return dt.fit(features, labels, sample, numClasses, rng)
}

// Predict returns the leaf's majority class and its share of the leaf samples.
func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	node, err := dt.leaf(features)
	if err != nil {
		return 0, 0, err
	}
	confidence := 0.0
	if node.ClassLabel < len(node.Distribution) {
		confidence = node.Distribution[node.ClassLabel]
	}
	return node.ClassLabel, confidence, nil
}

// PredictProba returns the class distribution of the leaf the vector lands in.
func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	node, err := dt.leaf(features)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), node.Distribution...), nil
}

func (dt *DecisionTree) Features() int { return dt.numFeatures }

func (dt *DecisionTree) Classes() int { return dt.numClasses }

func (dt *DecisionTree) NodeCount() int { return len(dt.nodes) }

func (dt *DecisionTree) FeatureImportances() []float64 {
	return append([]float64(nil), dt.importances...)
}

// Depth is the number of edges on the longest root-to-leaf path.
func (dt *DecisionTree) Depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return 0
		}
		left, right := walk(node.LeftChild), walk(node.RightChild)
		if left > right {
			return left + 1
		}
		return right + 1
	}
	return walk(0)
}

func (dt *DecisionTree) leaf(features []float64) (TreeNode, error) {
	if len(dt.nodes) == 0 {
		return TreeNode{}, errors.New("model not trained")
	}
	if len(features) != dt.numFeatures {
		return TreeNode{}, fmt.Errorf("%w: vector has %d features, tree expects %d", ErrSchemaMismatch, len(features), dt.numFeatures)
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return TreeNode{}, errors.New("feature index out of range")
		}
		next := node.RightChild
		if features[node.FeatureIdx] <= node.Threshold {
			next = node.LeftChild
		}
		if next <= idx || next >= len(dt.nodes) {
			return TreeNode{}, errors.New("invalid tree state")
		}
		idx = next
	}
}

func (dt *DecisionTree) fit(features [][]float64, labels []int, sample []int, numClasses int, rng *rand.Rand) error {
	if len(sample) == 0 {
		return errors.New("empty training sample")
	}
	dt.numFeatures = len(features[0])
	dt.numClasses = numClasses
	dt.nodes = nil
	dt.importances = make([]float64, dt.numFeatures)

	dt.grow(features, labels, sample, 0, rng)

	total := 0.0
	for _, v := range dt.importances {
		total += v
	}
	if total > 0 {
		for i := range dt.importances {
			dt.importances[i] /= total
		}
	}
	return nil
}

// grow appends the subtree for sample in pre-order and returns its root index.
func (dt *DecisionTree) grow(features [][]float64, labels []int, sample []int, depth int, rng *rand.Rand) int {
	counts := classCounts(labels, sample, dt.numClasses)
	idx := len(dt.nodes)
	dt.nodes = append(dt.nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: majorityLabel(counts),
		Samples:    len(sample),
	})

	if depth >= dt.maxDepth() || len(sample) < dt.minSamplesSplit() || isPure(counts) {
		dt.makeLeaf(idx, counts)
		return idx
	}

	best, ok := dt.findBestSplit(features, labels, sample, counts, rng)
	if !ok {
		dt.makeLeaf(idx, counts)
		return idx
	}

	left, right := splitSample(features, sample, best.feature, best.threshold)
	if len(left) == 0 || len(right) == 0 {
		dt.makeLeaf(idx, counts)
		return idx
	}
	dt.importances[best.feature] += float64(len(sample))*gini(counts, len(sample)) - best.impurity

	leftIdx := dt.grow(features, labels, left, depth+1, rng)
	rightIdx := dt.grow(features, labels, right, depth+1, rng)

	dt.nodes[idx].FeatureIdx = best.feature
	dt.nodes[idx].Threshold = best.threshold
	dt.nodes[idx].LeftChild = leftIdx
	dt.nodes[idx].RightChild = rightIdx
	return idx
}

func (dt *DecisionTree) makeLeaf(idx int, counts []int) {
	total := 0
	for _, c := range counts {
		total += c
	}
	dist := make([]float64, len(counts))
	if total > 0 {
		for i, c := range counts {
			dist[i] = float64(c) / float64(total)
		}
	}
	dt.nodes[idx].IsLeaf = true
	dt.nodes[idx].Distribution = dist
}

func (dt *DecisionTree) maxDepth() int {
	if dt.config.MaxDepth <= 0 {
		return defaultMaxDepth
	}
	return dt.config.MaxDepth
}

func (dt *DecisionTree) minSamplesSplit() int {
	if dt.config.MinSamplesSplit < 2 {
		return defaultMinSamplesSplit
	}
	return dt.config.MinSamplesSplit
}

type splitCandidate struct {
	feature   int
	threshold float64
	// impurity is the sample-weighted gini of both children.
	impurity float64
}

// findBestSplit draws features in random order and keeps drawing past
// MaxFeatures until at least one non-constant feature has been evaluated.
func (dt *DecisionTree) findBestSplit(features [][]float64, labels []int, sample []int, parent []int, rng *rand.Rand) (splitCandidate, bool) {
	maxFeatures := dt.config.MaxFeatures
	if maxFeatures <= 0 || maxFeatures > dt.numFeatures {
		maxFeatures = dt.numFeatures
	}

	order := rng.Perm(dt.numFeatures)
	best := splitCandidate{feature: -1, impurity: math.MaxFloat64}
	evaluated := 0
	for _, featureIdx := range order {
		if evaluated >= maxFeatures && best.feature >= 0 {
			break
		}
		threshold, impurity, varies := bestThreshold(features, labels, sample, featureIdx, parent)
		if !varies {
			continue
		}
		evaluated++
		if impurity < best.impurity {
			best = splitCandidate{feature: featureIdx, threshold: threshold, impurity: impurity}
		}
	}
	if best.feature < 0 {
		return splitCandidate{}, false
	}
	return best, true
}

// bestThreshold sweeps the sorted values of one feature and returns the
// midpoint threshold with the lowest weighted gini.
func bestThreshold(features [][]float64, labels []int, sample []int, featureIdx int, parent []int) (float64, float64, bool) {
	order := append([]int(nil), sample...)
	sort.SliceStable(order, func(a, b int) bool {
		return features[order[a]][featureIdx] < features[order[b]][featureIdx]
	})
	if features[order[0]][featureIdx] == features[order[len(order)-1]][featureIdx] {
		return 0, 0, false
	}

	left := make([]int, len(parent))
	right := append([]int(nil), parent...)
	bestImpurity := math.MaxFloat64
	threshold := 0.0
	for i := 0; i < len(order)-1; i++ {
		row := order[i]
		left[labels[row]]++
		right[labels[row]]--

		value := features[row][featureIdx]
		next := features[order[i+1]][featureIdx]
		if value == next {
			continue
		}
		nLeft := i + 1
		nRight := len(order) - nLeft
		impurity := float64(nLeft)*gini(left, nLeft) + float64(nRight)*gini(right, nRight)
		if impurity < bestImpurity {
			bestImpurity = impurity
			threshold = (value + next) / 2
		}
	}
	return threshold, bestImpurity, true
}

func splitSample(features [][]float64, sample []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(sample)/2)
	right := make([]int, 0, len(sample)/2)
	for _, row := range sample {
		if features[row][featureIdx] <= threshold {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	return left, right
}

func classCounts(labels []int, sample []int, numClasses int) []int {
	counts := make([]int, numClasses)
	for _, row := range sample {
		counts[labels[row]]++
	}
	return counts
}

func gini(counts []int, total int) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(total)
		impurity -= prob * prob
	}
	return impurity
}

// majorityLabel breaks ties toward the lowest class index.
func majorityLabel(counts []int) int {
	bestLabel := 0
	bestCount := -1
	for label, count := range counts {
		if count > bestCount {
			bestCount = count
			bestLabel = label
		}
	}
	return bestLabel
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func validateTrainingSet(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("feature vectors are empty")
	}
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
		}
	}
	for i, label := range labels {
		if label < 0 {
			return fmt.Errorf("row %d has negative label %d", i, label)
		}
	}
	return nil
}

type treeWire struct {
	Config      TreeConfig `json:"config"`
	NumFeatures int        `json:"num_features"`
	NumClasses  int        `json:"num_classes"`
	Importances []float64  `json:"importances"`
	Nodes       []TreeNode `json:"nodes"`
}

func (dt *DecisionTree) MarshalJSON() ([]byte, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	return json.Marshal(treeWire{
		Config:      dt.config,
		NumFeatures: dt.numFeatures,
		NumClasses:  dt.numClasses,
		Importances: dt.importances,
		Nodes:       dt.nodes,
	})
}

func (dt *DecisionTree) UnmarshalJSON(data []byte) error {
	var wire treeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if len(wire.Nodes) == 0 {
		return errors.New("decision tree has no nodes")
	}
	for i, node := range wire.Nodes {
		if node.IsLeaf {
			if len(node.Distribution) != wire.NumClasses {
				return fmt.Errorf("leaf %d has %d class weights, expected %d", i, len(node.Distribution), wire.NumClasses)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= wire.NumFeatures {
			return fmt.Errorf("node %d splits on feature %d outside [0,%d)", i, node.FeatureIdx, wire.NumFeatures)
		}
		if node.LeftChild <= i || node.LeftChild >= len(wire.Nodes) || node.RightChild <= i || node.RightChild >= len(wire.Nodes) {
			return fmt.Errorf("node %d has invalid children %d/%d", i, node.LeftChild, node.RightChild)
		}
	}
	dt.config = wire.Config
	dt.numFeatures = wire.NumFeatures
	dt.numClasses = wire.NumClasses
	dt.importances = wire.Importances
	dt.nodes = wire.Nodes
	return nil
}
