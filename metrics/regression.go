// Package metrics provides loss and score functions used to monitor base
// model fits.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/goope/pkg/errors"
)

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	return WeightedMSE(vecData(yTrue), vecData(yPred), nil)
}

// WeightedMSE は重み付き平均二乗誤差 Σw(y-ŷ)²/Σw を計算する。
// weights が nil の場合は均等重み。
func WeightedMSE(yTrue, yPred, weights []float64) (float64, error) {
	n := len(yTrue)
	if n == 0 {
		return 0, errors.NewValueError("WeightedMSE", "empty vector")
	}
	if len(yPred) != n {
		return 0, errors.NewDimensionError("WeightedMSE", n, len(yPred), 0)
	}
	if weights != nil && len(weights) != n {
		return 0, errors.NewDimensionError("WeightedMSE", n, len(weights), 0)
	}

	var num, den float64
	for i := 0; i < n; i++ {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		d := yTrue[i] - yPred[i]
		num += w * d * d
		den += w
	}
	if den == 0 {
		return 0, errors.NewValueError("WeightedMSE", "weights sum to zero")
	}
	return num / den, nil
}

// MSEMatrix は (n×1) 行列形式の入力に対してMSEを計算する
func MSEMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	rTrue, cTrue := yTrue.Dims()
	rPred, cPred := yPred.Dims()
	if rTrue == 0 || cTrue == 0 {
		return 0, errors.NewValueError("MSEMatrix", "empty matrix")
	}
	if rTrue != rPred || cTrue != cPred {
		return 0, errors.NewDimensionError("MSEMatrix", rTrue, rPred, 0)
	}
	if cTrue != 1 {
		return 0, errors.NewValueError("MSEMatrix", "must be a column vector (n×1 matrix)")
	}
	return WeightedMSE(mat.Col(nil, 0, yTrue), mat.Col(nil, 0, yPred), nil)
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("MAE", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MAE", n, yPred.Len(), 0)
	}
	diff := make([]float64, n)
	floats.SubTo(diff, vecData(yTrue), vecData(yPred))
	return floats.Norm(diff, 1) / float64(n), nil
}

// R2Score は決定係数（R²）を計算する
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("R2Score", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("R2Score", n, yPred.Len(), 0)
	}

	y := vecData(yTrue)
	mean := stat.Mean(y, nil)
	var tss, rss float64
	for i, v := range y {
		tss += (v - mean) * (v - mean)
		d := v - yPred.AtVec(i)
		rss += d * d
	}
	// 全変動が0の場合（すべてのyTrueが同じ値）
	if tss == 0 {
		return 0, errors.Newf("R2Score: total sum of squares is zero (no variance in yTrue)")
	}
	return 1 - rss/tss, nil
}

func vecData(v *mat.VecDense) []float64 {
	if v.Len() == 0 {
		return nil
	}
	return mat.Col(nil, 0, v)
}
