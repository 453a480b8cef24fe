package linear_model

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/goope/pkg/errors"
)

func linearData(n int, seed uint64) (*mat.Dense, *mat.Dense) {
	src := rand.New(rand.NewPCG(seed, seed))
	noise := distuv.Normal{Mu: 0, Sigma: 0.01, Src: src}
	X := mat.NewDense(n, 3, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x0, x1, x2 := src.Float64(), src.Float64(), src.Float64()
		X.SetRow(i, []float64{x0, x1, x2})
		y.Set(i, 0, 2*x0+3*x1-x2+5+noise.Rand())
	}
	return X, y
}

func TestLinearRegressionRecoversCoefficients(t *testing.T) {
	X, y := linearData(200, 1)
	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))

	coef := lr.Coef()
	assert.InDelta(t, 2.0, coef[0], 0.02)
	assert.InDelta(t, 3.0, coef[1], 0.02)
	assert.InDelta(t, -1.0, coef[2], 0.02)
	assert.InDelta(t, 5.0, lr.Intercept(), 0.02)

	r2, err := lr.Score(X, y)
	require.NoError(t, err)
	assert.Greater(t, r2, 0.99)
}

func TestLinearRegressionWeightsMatchDuplication(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{1, 2, 2, 5})

	weighted := NewLinearRegression()
	require.NoError(t, weighted.FitWeighted(X, y, []float64{2, 1, 1, 1}))

	Xdup := mat.NewDense(5, 1, []float64{0, 0, 1, 2, 3})
	ydup := mat.NewDense(5, 1, []float64{1, 1, 2, 2, 5})
	dup := NewLinearRegression()
	require.NoError(t, dup.Fit(Xdup, ydup))

	assert.InDelta(t, dup.Coef()[0], weighted.Coef()[0], 1e-10)
	assert.InDelta(t, dup.Intercept(), weighted.Intercept(), 1e-10)
}

func TestLinearRegressionRidgeHandlesCollinearity(t *testing.T) {
	// second column duplicates the first
	X := mat.NewDense(4, 2, []float64{0, 0, 1, 1, 2, 2, 3, 3})
	y := mat.NewDense(4, 1, []float64{0, 2, 4, 6})

	ridge := NewLinearRegression(WithAlpha(1e-6))
	require.NoError(t, ridge.Fit(X, y))
	coef := ridge.Coef()
	assert.InDelta(t, 1.0, coef[0], 1e-3)
	assert.InDelta(t, coef[0], coef[1], 1e-9)

	pred, err := ridge.Predict(mat.NewDense(1, 2, []float64{4, 4}))
	require.NoError(t, err)
	assert.InDelta(t, 8.0, pred.At(0, 0), 1e-3)
}

func TestLinearRegressionUnderdetermined(t *testing.T) {
	X := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 7})
	y := mat.NewDense(2, 1, []float64{1, 2})

	err := NewLinearRegression().Fit(X, y)
	assert.True(t, errors.Is(err, errors.ErrSingularMatrix))

	assert.NoError(t, NewLinearRegression(WithAlpha(1)).Fit(X, y))
}

func TestLinearRegressionNonFiniteWeightsPropagate(t *testing.T) {
	X, y := linearData(10, 2)
	w := make([]float64, 10)
	for i := range w {
		w[i] = 1
	}
	w[3] = math.Inf(1)

	lr := NewLinearRegression()
	require.NoError(t, lr.FitWeighted(X, y, w))
	pred, err := lr.Predict(X)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(pred.At(0, 0)))
}

func TestLinearRegressionErrors(t *testing.T) {
	lr := NewLinearRegression()
	_, err := lr.Predict(mat.NewDense(1, 3, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	X, y := linearData(10, 3)
	require.NoError(t, lr.Fit(X, y))
	_, err = lr.Predict(mat.NewDense(1, 2, nil))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	err = NewLinearRegression(WithAlpha(-1)).Fit(X, y)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestLinearRegressionCloneIsUnfitted(t *testing.T) {
	X, y := linearData(20, 4)
	lr := NewLinearRegression(WithAlpha(0.5))
	require.NoError(t, lr.Fit(X, y))

	c := lr.Clone().(*LinearRegression)
	assert.Equal(t, 0.5, c.alpha)
	_, err := c.Predict(X)
	assert.Error(t, err)
}

func TestLogisticRegressionSeparable(t *testing.T) {
	X := mat.NewDense(6, 2, []float64{
		0.5, 0.5,
		1.0, 1.5,
		1.5, 1.0,
		3.0, 2.5,
		2.5, 3.0,
		3.5, 3.5,
	})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})

	lr := NewLogisticRegression(WithLRC(100), WithLRMaxIter(2000))
	require.NoError(t, lr.Fit(X, y))

	pred, err := lr.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		assert.Equal(t, y.At(i, 0), pred.At(i, 0), "sample %d", i)
	}

	proba, err := lr.PredictProba(mat.NewDense(2, 2, []float64{1, 1, 3, 3}))
	require.NoError(t, err)
	r, c := proba.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Less(t, proba.At(0, 1), 0.5)
	assert.Greater(t, proba.At(1, 1), 0.5)
	assert.InDelta(t, 1.0, proba.At(1, 0)+proba.At(1, 1), 1e-12)
}

func TestLogisticRegressionCalibratesBaseRate(t *testing.T) {
	// constant feature: the fitted probability approaches the weighted base rate
	n := 40
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
		w[i] = 1
		if i < 10 {
			y.Set(i, 0, 1)
			w[i] = 2 // weighted rate = 20/50
		}
	}

	lr := NewLogisticRegression(WithLRMaxIter(5000), WithLRTol(1e-12))
	require.NoError(t, lr.FitWeighted(X, y, w))
	proba, err := lr.PredictProba(X)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, proba.At(0, 1), 1e-3)
}

func TestLogisticRegressionRejectsNonBinaryLabels(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 1})
	y := mat.NewDense(2, 1, []float64{0, 2})
	err := NewLogisticRegression().Fit(X, y)
	assert.True(t, errors.IsConfigurationError(err))
}
