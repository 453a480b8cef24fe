// Package tree implements a CART regression tree with sample weights.
package tree

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/goope/core/model"
	"github.com/YuminosukeSato/goope/pkg/errors"
)

// node is one entry of the flattened tree. Leaves have feature == -1.
type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
	weight    float64
}

// DecisionTreeRegressor grows a binary tree minimising weighted squared error.
type DecisionTreeRegressor struct {
	state *model.StateManager

	// Hyperparameters
	maxDepth        int // <= 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // <= 0 means all features
	randomState     uint64

	nodes []node
	rng   *rand.Rand
}

// Option configures a DecisionTreeRegressor.
type Option func(*DecisionTreeRegressor)

// NewDecisionTreeRegressor creates a regressor with sklearn-like defaults.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{
		state:           model.NewStateManager(),
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// WithMaxDepth sets the maximum depth (<= 0 for unlimited).
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeRegressor) { dt.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of rows needed to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeRegressor) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of rows in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeRegressor) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets the number of features tried at each split.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeRegressor) { dt.maxFeatures = n }
}

// WithRandomState seeds feature subsampling.
func WithRandomState(seed uint64) Option {
	return func(dt *DecisionTreeRegressor) { dt.randomState = seed }
}

// Fit はモデルを訓練データで学習させる
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	return dt.FitWeighted(X, y, nil)
}

// FitWeighted grows the tree using per-sample weights (nil means uniform).
func (dt *DecisionTreeRegressor) FitWeighted(X, y mat.Matrix, sampleWeight []float64) (err error) {
	defer errors.Recover(&err, "DecisionTreeRegressor.FitWeighted")

	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", dt.minSamplesLeaf)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", dt.minSamplesSplit)
	}
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", 1, yCols, 1)
	}
	w := sampleWeight
	if w == nil {
		w = make([]float64, rows)
		floats.AddConst(1, w)
	} else if len(w) != rows {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", rows, len(w), 0)
	}

	b := &builder{
		X:    mat.DenseCopyOf(X),
		y:    mat.Col(nil, 0, y),
		w:    w,
		tree: dt,
	}
	dt.rng = rand.New(rand.NewPCG(dt.randomState, dt.randomState^0x9e3779b97f4a7c15))
	dt.nodes = dt.nodes[:0]

	idx := make([]int, rows)
	for i := range idx {
		idx[i] = i
	}
	b.grow(idx, 0)

	dt.state.MarkFitted(cols, rows)
	return nil
}

type builder struct {
	X    *mat.Dense
	y    []float64
	w    []float64
	tree *DecisionTreeRegressor
}

// grow appends the subtree for idx and returns its node index.
func (b *builder) grow(idx []int, depth int) int {
	dt := b.tree
	sw, swy, swyy := 0.0, 0.0, 0.0
	for _, i := range idx {
		sw += b.w[i]
		swy += b.w[i] * b.y[i]
		swyy += b.w[i] * b.y[i] * b.y[i]
	}
	value := leafValue(idx, b.y, sw, swy)

	id := len(dt.nodes)
	dt.nodes = append(dt.nodes, node{feature: -1, value: value, weight: sw})

	if (dt.maxDepth > 0 && depth >= dt.maxDepth) ||
		len(idx) < dt.minSamplesSplit ||
		len(idx) < 2*dt.minSamplesLeaf {
		return id
	}
	parentSSE := swyy - swy*swy/sw
	if !(parentSSE > 1e-12) {
		return id
	}

	feature, threshold, ok := b.bestSplit(idx, parentSSE)
	if !ok {
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	dt.nodes[id].feature = feature
	dt.nodes[id].threshold = threshold
	dt.nodes[id].left = l
	dt.nodes[id].right = r
	return id
}

func leafValue(idx []int, y []float64, sw, swy float64) float64 {
	if sw != 0 {
		return swy / sw
	}
	// 全重みゼロのノードは単純平均
	s := 0.0
	for _, i := range idx {
		s += y[i]
	}
	return s / float64(len(idx))
}

// bestSplit scans candidate features and returns the split with the largest
// decrease in weighted squared error.
func (b *builder) bestSplit(idx []int, parentSSE float64) (int, float64, bool) {
	dt := b.tree
	_, cols := b.X.Dims()
	features := dt.rng.Perm(cols)
	if dt.maxFeatures > 0 && dt.maxFeatures < cols {
		features = features[:dt.maxFeatures]
	}

	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0
	order := make([]int, len(idx))
	n := len(idx)

	for _, f := range features {
		copy(order, idx)
		sort.SliceStable(order, func(a, c int) bool {
			return b.X.At(order[a], f) < b.X.At(order[c], f)
		})

		var totW, totWY, totWYY float64
		for _, i := range order {
			totW += b.w[i]
			totWY += b.w[i] * b.y[i]
			totWYY += b.w[i] * b.y[i] * b.y[i]
		}

		var lw, lwy, lwyy float64
		for k := 0; k < n-1; k++ {
			i := order[k]
			lw += b.w[i]
			lwy += b.w[i] * b.y[i]
			lwyy += b.w[i] * b.y[i] * b.y[i]

			nLeft := k + 1
			if nLeft < dt.minSamplesLeaf || n-nLeft < dt.minSamplesLeaf {
				continue
			}
			xi, xn := b.X.At(i, f), b.X.At(order[k+1], f)
			if xi == xn {
				continue
			}
			rw, rwy, rwyy := totW-lw, totWY-lwy, totWYY-lwyy
			if lw <= 0 || rw <= 0 {
				continue
			}
			sse := (lwyy - lwy*lwy/lw) + (rwyy - rwy*rwy/rw)
			gain := parentSSE - sse
			if gain > bestGain+1e-12 {
				bestGain = gain
				bestFeature = f
				bestThreshold = xi + (xn-xi)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

// Predict returns the leaf value for each row as an (n, 1) matrix.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("DecisionTreeRegressor", "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := dt.state.CheckFeatures("DecisionTreeRegressor.Predict", cols); err != nil {
		return nil, err
	}
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, dt.predictRow(X, i))
	}
	return out, nil
}

func (dt *DecisionTreeRegressor) predictRow(X mat.Matrix, i int) float64 {
	n := 0
	for dt.nodes[n].feature >= 0 {
		nd := dt.nodes[n]
		if X.At(i, nd.feature) <= nd.threshold {
			n = nd.left
		} else {
			n = nd.right
		}
	}
	return dt.nodes[n].value
}

// Depth returns the depth of the fitted tree (0 for a single leaf).
func (dt *DecisionTreeRegressor) Depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	var walk func(n int) int
	walk = func(n int) int {
		nd := dt.nodes[n]
		if nd.feature < 0 {
			return 0
		}
		return 1 + max(walk(nd.left), walk(nd.right))
	}
	return walk(0)
}

// NLeaves returns the number of leaves.
func (dt *DecisionTreeRegressor) NLeaves() int {
	n := 0
	for _, nd := range dt.nodes {
		if nd.feature < 0 {
			n++
		}
	}
	return n
}

// Clone returns an unfitted copy with the same hyperparameters.
func (dt *DecisionTreeRegressor) Clone() model.Estimator {
	return NewDecisionTreeRegressor(
		WithMaxDepth(dt.maxDepth),
		WithMinSamplesSplit(dt.minSamplesSplit),
		WithMinSamplesLeaf(dt.minSamplesLeaf),
		WithMaxFeatures(dt.maxFeatures),
		WithRandomState(dt.randomState),
	)
}

func (dt *DecisionTreeRegressor) String() string {
	return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d, min_samples_leaf=%d, max_features=%d)",
		dt.maxDepth, dt.minSamplesLeaf, dt.maxFeatures)
}

var (
	_ model.Estimator      = (*DecisionTreeRegressor)(nil)
	_ model.WeightedFitter = (*DecisionTreeRegressor)(nil)
	_ model.Cloner         = (*DecisionTreeRegressor)(nil)
)
