package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/goope/pkg/errors"
)

func vec(v ...float64) *mat.VecDense { return mat.NewVecDense(len(v), v) }

func TestRegressionMetrics(t *testing.T) {
	yTrue := vec(1, 2, 3, 4)
	yPred := vec(1.5, 2.5, 2.5, 3.5)

	mse, err := MSE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, mse, 1e-12)

	rmse, err := RMSE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rmse, 1e-12)

	mae, err := MAE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mae, 1e-12)

	// TSS = 5, RSS = 1
	r2, err := R2Score(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, r2, 1e-12)

	perfect, err := R2Score(yTrue, yTrue)
	require.NoError(t, err)
	assert.Equal(t, 1.0, perfect)
}

func TestRegressionMetricsErrors(t *testing.T) {
	short := vec(1, 2)
	long := vec(1, 2, 3)
	empty := &mat.VecDense{}

	for name, fn := range map[string]func(a, b *mat.VecDense) (float64, error){
		"MSE": MSE, "RMSE": RMSE, "MAE": MAE, "R2Score": R2Score,
	} {
		_, err := fn(long, short)
		require.Error(t, err, name)
		var dimErr *errors.DimensionError
		assert.True(t, errors.As(err, &dimErr), name)

		_, err = fn(empty, empty)
		assert.Error(t, err, name)
	}

	_, err := R2Score(vec(2, 2, 2), vec(1, 2, 3))
	assert.Error(t, err, "constant target has no variance")
}

func TestMSEMatrix(t *testing.T) {
	got, err := MSEMatrix(mat.NewDense(3, 1, []float64{10, 20, 30}), mat.NewDense(3, 1, []float64{12, 18, 33}))
	require.NoError(t, err)
	assert.InDelta(t, 17.0/3.0, got, 1e-12)

	_, err = MSEMatrix(mat.NewDense(2, 2, nil), mat.NewDense(2, 2, nil))
	assert.Error(t, err, "only column vectors are accepted")
	_, err = MSEMatrix(mat.NewDense(3, 1, nil), mat.NewDense(2, 1, nil))
	assert.Error(t, err)
}

func TestWeightedMSE(t *testing.T) {
	yTrue := []float64{0, 0, 0}
	yPred := []float64{1, 2, 3}

	got, err := WeightedMSE(yTrue, yPred, nil)
	require.NoError(t, err)
	assert.InDelta(t, 14.0/3.0, got, 1e-12)

	// (1·1 + 0·4 + 3·9) / 4
	got, err = WeightedMSE(yTrue, yPred, []float64{1, 0, 3})
	require.NoError(t, err)
	assert.InDelta(t, 7.0, got, 1e-12)

	_, err = WeightedMSE(yTrue, yPred, []float64{0, 0, 0})
	assert.Error(t, err)
	_, err = WeightedMSE(yTrue, yPred, []float64{1})
	assert.Error(t, err)
	_, err = WeightedMSE(nil, nil, nil)
	assert.Error(t, err)
}

func TestBinaryLogLoss(t *testing.T) {
	got, err := BinaryLogLoss([]float64{1, 0}, []float64{0.8, 0.4}, nil)
	require.NoError(t, err)
	assert.InDelta(t, -(math.Log(0.8)+math.Log(0.6))/2, got, 1e-12)

	got, err = BinaryLogLoss([]float64{1, 0}, []float64{0.8, 0.4}, []float64{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(0.8), got, 1e-12)

	// Probabilities are clipped, so certainty on the wrong label stays finite.
	got, err = BinaryLogLoss([]float64{1}, []float64{0}, nil)
	require.NoError(t, err)
	assert.False(t, math.IsInf(got, 0))

	_, err = BinaryLogLoss([]float64{1, 0}, []float64{0.5}, nil)
	assert.Error(t, err)
	_, err = BinaryLogLoss([]float64{1}, []float64{0.5}, []float64{0})
	assert.Error(t, err)
}
