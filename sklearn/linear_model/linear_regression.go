package linear_model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/goope/core/model"
	"github.com/YuminosukeSato/goope/metrics"
	"github.com/YuminosukeSato/goope/pkg/errors"
)

// LinearRegression is an ordinary least squares (alpha == 0) or ridge
// (alpha > 0) regressor with optional per-sample weights. The intercept is
// never penalised.
type LinearRegression struct {
	state *model.StateManager

	// Hyperparameters
	fitIntercept bool
	alpha        float64

	// Learned parameters
	coef_      []float64
	intercept_ float64
}

// LinearRegressionOption は設定オプション
type LinearRegressionOption func(*LinearRegression)

// NewLinearRegression は新しいLinearRegressionモデルを作成
func NewLinearRegression(options ...LinearRegressionOption) *LinearRegression {
	lr := &LinearRegression{
		state:        model.NewStateManager(),
		fitIntercept: true,
	}
	for _, opt := range options {
		opt(lr)
	}
	return lr
}

// WithLRFitIntercept は切片の学習有無を設定（LinearRegression用）
func WithLRFitIntercept(fit bool) LinearRegressionOption {
	return func(lr *LinearRegression) {
		lr.fitIntercept = fit
	}
}

// WithAlpha はL2正則化の強さを設定する。0 で通常の最小二乗法。
func WithAlpha(alpha float64) LinearRegressionOption {
	return func(lr *LinearRegression) {
		lr.alpha = alpha
	}
}

// Fit はモデルを訓練データで学習
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	return lr.FitWeighted(X, y, nil)
}

// FitWeighted minimises Σ w_i (y_i - x_i·β - b)² + α‖β‖².
// A nil sampleWeight means uniform weights. Non-finite weights are not
// rejected; they yield non-finite coefficients.
func (lr *LinearRegression) FitWeighted(X, y mat.Matrix, sampleWeight []float64) (err error) {
	defer errors.Recover(&err, "LinearRegression.FitWeighted")

	if lr.alpha < 0 {
		return errors.NewValidationError("alpha", "must be non-negative", lr.alpha)
	}
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return errors.NewDimensionError("LinearRegression.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("LinearRegression.Fit", 1, yCols, 1)
	}
	w := sampleWeight
	if w == nil {
		w = make([]float64, rows)
		floats.AddConst(1, w)
	} else if len(w) != rows {
		return errors.NewDimensionError("LinearRegression.Fit", rows, len(w), 0)
	}

	lr.coef_ = make([]float64, cols)
	sw := floats.Sum(w)
	if math.IsNaN(sw) || math.IsInf(sw, 0) {
		for j := range lr.coef_ {
			lr.coef_[j] = math.NaN()
		}
		lr.intercept_ = math.NaN()
		lr.state.MarkFitted(cols, rows)
		return nil
	}
	if sw <= 0 {
		return errors.NewValidationError("sample_weight", "must have a positive sum", sw)
	}

	// 重み付き平均で中心化し、切片を正則化から外す
	xMean := make([]float64, cols)
	var yMean float64
	if lr.fitIntercept {
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				xMean[j] += w[i] * X.At(i, j)
			}
			yMean += w[i] * y.At(i, 0)
		}
		floats.Scale(1/sw, xMean)
		yMean /= sw
	}

	A := mat.NewDense(rows, cols, nil)
	b := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		s := math.Sqrt(w[i])
		for j := 0; j < cols; j++ {
			A.Set(i, j, s*(X.At(i, j)-xMean[j]))
		}
		b.SetVec(i, s*(y.At(i, 0)-yMean))
	}

	beta := mat.NewVecDense(cols, nil)
	if lr.alpha == 0 {
		if rows < cols {
			return errors.NewModelError("LinearRegression.Fit",
				fmt.Sprintf("underdetermined system (%d samples, %d features); set alpha > 0", rows, cols),
				errors.ErrSingularMatrix)
		}
		var qr mat.QR
		qr.Factorize(A)
		if err := qr.SolveVecTo(beta, false, b); err != nil {
			return errors.NewModelError("LinearRegression.Fit", "singular matrix", errors.ErrSingularMatrix)
		}
	} else {
		var gram mat.SymDense
		gram.SymOuterK(1, A.T())
		for j := 0; j < cols; j++ {
			gram.SetSym(j, j, gram.At(j, j)+lr.alpha)
		}
		var rhs mat.VecDense
		rhs.MulVec(A.T(), b)

		var chol mat.Cholesky
		if ok := chol.Factorize(&gram); !ok {
			return errors.NewModelError("LinearRegression.Fit", "gram matrix is not positive definite", errors.ErrSingularMatrix)
		}
		if err := chol.SolveVecTo(beta, &rhs); err != nil {
			return errors.NewModelError("LinearRegression.Fit", "cholesky solve failed", err)
		}
	}

	for j := 0; j < cols; j++ {
		lr.coef_[j] = beta.AtVec(j)
	}
	lr.intercept_ = yMean - floats.Dot(xMean, lr.coef_)

	lr.state.MarkFitted(cols, rows)
	return nil
}

// Predict は入力データに対する予測を行う
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("LinearRegression", "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := lr.state.CheckFeatures("LinearRegression.Predict", cols); err != nil {
		return nil, err
	}

	var pred mat.VecDense
	pred.MulVec(X, mat.NewVecDense(cols, lr.Coef()))
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, pred.AtVec(i)+lr.intercept_)
	}
	return out, nil
}

// Score はモデルの決定係数（R²）を計算
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	pred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	rows, _ := y.Dims()
	return metrics.R2Score(
		mat.NewVecDense(rows, mat.Col(nil, 0, y)),
		mat.NewVecDense(rows, mat.Col(nil, 0, pred)),
	)
}

// Coef は学習された重み係数を返す
func (lr *LinearRegression) Coef() []float64 {
	if lr.coef_ == nil {
		return nil
	}
	return append([]float64(nil), lr.coef_...)
}

// Weights implements model.LinearModel.
func (lr *LinearRegression) Weights() []float64 { return lr.Coef() }

// Intercept は学習された切片を返す
func (lr *LinearRegression) Intercept() float64 {
	return lr.intercept_
}

// Clone はモデルの新しいインスタンスを作成（同じハイパーパラメータ、未学習）
func (lr *LinearRegression) Clone() model.Estimator {
	return NewLinearRegression(WithLRFitIntercept(lr.fitIntercept), WithAlpha(lr.alpha))
}

// String returns the string representation of the model
func (lr *LinearRegression) String() string {
	return fmt.Sprintf("LinearRegression(fit_intercept=%t, alpha=%g)", lr.fitIntercept, lr.alpha)
}

var (
	_ model.Estimator      = (*LinearRegression)(nil)
	_ model.WeightedFitter = (*LinearRegression)(nil)
	_ model.Cloner         = (*LinearRegression)(nil)
	_ model.LinearModel    = (*LinearRegression)(nil)
)
