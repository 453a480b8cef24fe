// Package ensemble provides bagged tree ensembles.
package ensemble

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/goope/core/model"
	"github.com/YuminosukeSato/goope/core/parallel"
	"github.com/YuminosukeSato/goope/pkg/errors"
	"github.com/YuminosukeSato/goope/sklearn/tree"
)

// RandomForestRegressor averages regression trees fit on bootstrap samples.
type RandomForestRegressor struct {
	state *model.StateManager

	// Hyperparameters
	nEstimators    int
	maxSamples     float64 // fraction of rows drawn per tree
	maxDepth       int
	minSamplesLeaf int
	maxFeatures    int
	randomState    uint64
	nJobs          int

	trees []*tree.DecisionTreeRegressor
}

// Option configures a RandomForestRegressor.
type Option func(*RandomForestRegressor)

// NewRandomForestRegressor returns a forest with 10 trees, each trained on a
// bootstrap sample of 80% of the rows.
func NewRandomForestRegressor(opts ...Option) *RandomForestRegressor {
	rf := &RandomForestRegressor{
		state:          model.NewStateManager(),
		nEstimators:    10,
		maxSamples:     0.8,
		minSamplesLeaf: 1,
		randomState:    12345,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestRegressor) { rf.nEstimators = n }
}

// WithMaxSamples sets the bootstrap sample size as a fraction of rows.
func WithMaxSamples(frac float64) Option {
	return func(rf *RandomForestRegressor) { rf.maxSamples = frac }
}

// WithMaxDepth limits tree depth (<= 0 for unlimited).
func WithMaxDepth(depth int) Option {
	return func(rf *RandomForestRegressor) { rf.maxDepth = depth }
}

// WithMinSamplesLeaf sets the minimum leaf size of each tree.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestRegressor) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the number of features tried at each split.
func WithMaxFeatures(n int) Option {
	return func(rf *RandomForestRegressor) { rf.maxFeatures = n }
}

// WithRandomState seeds bootstrap sampling and tree construction.
func WithRandomState(seed uint64) Option {
	return func(rf *RandomForestRegressor) { rf.randomState = seed }
}

// WithNJobs sets the number of trees trained concurrently (<= 0 for NumCPU).
func WithNJobs(n int) Option {
	return func(rf *RandomForestRegressor) { rf.nJobs = n }
}

// Fit はモデルを訓練データで学習させる
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) error {
	return rf.FitWeighted(X, y, nil)
}

// FitWeighted trains every tree on a bootstrap sample. Bootstrap counts
// multiply the sample weights, so a row drawn twice counts twice.
func (rf *RandomForestRegressor) FitWeighted(X, y mat.Matrix, sampleWeight []float64) (err error) {
	defer errors.Recover(&err, "RandomForestRegressor.FitWeighted")

	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", rf.nEstimators)
	}
	if !(rf.maxSamples > 0 && rf.maxSamples <= 1) {
		return errors.NewValidationError("max_samples", "must be in (0, 1]", rf.maxSamples)
	}
	rows, cols := X.Dims()
	yRows, _ := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("RandomForestRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return errors.NewDimensionError("RandomForestRegressor.Fit", rows, yRows, 0)
	}
	if sampleWeight != nil && len(sampleWeight) != rows {
		return errors.NewDimensionError("RandomForestRegressor.Fit", rows, len(sampleWeight), 0)
	}

	nDraw := int(math.Max(1, math.Round(rf.maxSamples*float64(rows))))
	Xd := mat.DenseCopyOf(X)
	yd := mat.DenseCopyOf(y)

	// 木ごとのシードを逐次に引いてから並列学習する（実行順に依存しない）
	rng := rand.New(rand.NewPCG(rf.randomState, rf.randomState+1))
	seeds := make([]uint64, rf.nEstimators)
	for t := range seeds {
		seeds[t] = rng.Uint64()
	}

	trees := make([]*tree.DecisionTreeRegressor, rf.nEstimators)
	err = parallel.ForEach(rf.nEstimators, rf.nJobs, func(t int) error {
		treeRng := rand.New(rand.NewPCG(seeds[t], seeds[t]>>1))
		counts := make([]float64, rows)
		for k := 0; k < nDraw; k++ {
			counts[treeRng.IntN(rows)]++
		}

		idx := make([]int, 0, nDraw)
		for i, c := range counts {
			if c > 0 {
				idx = append(idx, i)
			}
		}
		Xt := mat.NewDense(len(idx), cols, nil)
		yt := mat.NewDense(len(idx), 1, nil)
		wt := make([]float64, len(idx))
		for k, i := range idx {
			Xt.SetRow(k, Xd.RawRowView(i))
			yt.Set(k, 0, yd.At(i, 0))
			wt[k] = counts[i]
			if sampleWeight != nil {
				wt[k] *= sampleWeight[i]
			}
		}

		dt := tree.NewDecisionTreeRegressor(
			tree.WithMaxDepth(rf.maxDepth),
			tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
			tree.WithMaxFeatures(rf.maxFeatures),
			tree.WithRandomState(seeds[t]),
		)
		if err := dt.FitWeighted(Xt, yt, wt); err != nil {
			return errors.Wrapf(err, "tree %d", t)
		}
		trees[t] = dt
		return nil
	})
	if err != nil {
		return err
	}

	rf.trees = trees
	rf.state.MarkFitted(cols, rows)
	return nil
}

// Predict returns the mean tree prediction as an (n, 1) matrix.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted("RandomForestRegressor", "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := rf.state.CheckFeatures("RandomForestRegressor.Predict", cols); err != nil {
		return nil, err
	}

	sum := make([]float64, rows)
	for _, dt := range rf.trees {
		p, err := dt.Predict(X)
		if err != nil {
			return nil, err
		}
		floats.Add(sum, mat.Col(nil, 0, p))
	}
	floats.Scale(1/float64(len(rf.trees)), sum)
	return mat.NewDense(rows, 1, sum), nil
}

// NEstimators returns the configured number of trees.
func (rf *RandomForestRegressor) NEstimators() int { return rf.nEstimators }

// Clone returns an unfitted copy with the same hyperparameters.
func (rf *RandomForestRegressor) Clone() model.Estimator {
	return NewRandomForestRegressor(
		WithNEstimators(rf.nEstimators),
		WithMaxSamples(rf.maxSamples),
		WithMaxDepth(rf.maxDepth),
		WithMinSamplesLeaf(rf.minSamplesLeaf),
		WithMaxFeatures(rf.maxFeatures),
		WithRandomState(rf.randomState),
		WithNJobs(rf.nJobs),
	)
}

func (rf *RandomForestRegressor) String() string {
	return fmt.Sprintf("RandomForestRegressor(n_estimators=%d, max_samples=%g, max_depth=%d)",
		rf.nEstimators, rf.maxSamples, rf.maxDepth)
}

var (
	_ model.Estimator      = (*RandomForestRegressor)(nil)
	_ model.WeightedFitter = (*RandomForestRegressor)(nil)
	_ model.Cloner         = (*RandomForestRegressor)(nil)
)
