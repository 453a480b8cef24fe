package linear_model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/goope/core/model"
	"github.com/YuminosukeSato/goope/metrics"
	"github.com/YuminosukeSato/goope/pkg/errors"
	"github.com/YuminosukeSato/goope/preprocessing"
)

// LogisticRegression is an L2-regularised binary classifier trained by
// full-batch gradient descent on standardised features. Labels must be 0 or 1.
// It is used as the base model when rewards are binary.
type LogisticRegression struct {
	state *model.StateManager

	// Hyperparameters
	C            float64 // Inverse regularization strength
	fitIntercept bool
	maxIter      int
	tol          float64
	learningRate float64

	// Model parameters (in standardised feature space)
	coef_      []float64
	intercept_ float64
	nIter_     int
	scaler     *preprocessing.StandardScaler
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		C:            1.0,
		fitIntercept: true,
		maxIter:      500,
		tol:          1e-6,
		learningRate: 0.5,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance on the loss decrease
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRLearningRate sets the gradient descent step size
func WithLRLearningRate(eta float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.learningRate = eta
	}
}

// Fit trains the logistic regression model
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	return lr.FitWeighted(X, y, nil)
}

// FitWeighted trains with per-sample weights (nil means uniform).
func (lr *LogisticRegression) FitWeighted(X, y mat.Matrix, sampleWeight []float64) (err error) {
	defer errors.Recover(&err, "LogisticRegression.FitWeighted")

	if lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	if lr.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", lr.maxIter)
	}
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("LogisticRegression.Fit", 1, yCols, 1)
	}
	labels := mat.Col(nil, 0, y)
	for _, v := range labels {
		if v != 0 && v != 1 {
			return errors.NewValidationError("y", "labels must be 0 or 1", v)
		}
	}
	w := sampleWeight
	if w == nil {
		w = make([]float64, nSamples)
		floats.AddConst(1, w)
	} else if len(w) != nSamples {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, len(w), 0)
	}
	sw := floats.Sum(w)
	if sw <= 0 {
		return errors.NewValidationError("sample_weight", "must have a positive sum", sw)
	}

	lr.scaler = preprocessing.NewStandardScaler()
	Xs, err := lr.scaler.FitTransform(X)
	if err != nil {
		return err
	}

	lr.coef_ = make([]float64, nFeatures)
	lr.intercept_ = 0
	coef := mat.NewVecDense(nFeatures, lr.coef_)
	grad := mat.NewVecDense(nFeatures, nil)
	resid := mat.NewVecDense(nSamples, nil)
	prob := make([]float64, nSamples)

	prevLoss := math.Inf(1)
	converged := false
	for iter := 0; iter < lr.maxIter; iter++ {
		lr.nIter_ = iter + 1
		lr.probabilities(Xs, coef, prob)

		// 重み付き残差 w_i (p_i - y_i) / Σw
		for i := range prob {
			resid.SetVec(i, w[i]*(prob[i]-labels[i])/sw)
		}
		grad.MulVec(Xs.T(), resid)
		grad.AddScaledVec(grad, 1/(lr.C*sw), coef)

		coef.AddScaledVec(coef, -lr.learningRate, grad)
		if lr.fitIntercept {
			lr.intercept_ -= lr.learningRate * mat.Sum(resid)
		}

		loss, err := metrics.BinaryLogLoss(labels, prob, w)
		if err != nil {
			return err
		}
		if math.Abs(prevLoss-loss) < lr.tol {
			converged = true
			break
		}
		prevLoss = loss
	}
	if !converged && !math.IsNaN(prevLoss) {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.nIter_, ""))
	}

	lr.state.MarkFitted(nFeatures, nSamples)
	return nil
}

func (lr *LogisticRegression) probabilities(Xs mat.Matrix, coef *mat.VecDense, out []float64) {
	var z mat.VecDense
	z.MulVec(Xs, coef)
	for i := range out {
		out[i] = sigmoid(z.AtVec(i) + lr.intercept_)
	}
}

// PredictProba returns an (n, 2) matrix of class probabilities [P(0), P(1)].
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "PredictProba"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := lr.state.CheckFeatures("LogisticRegression.PredictProba", cols); err != nil {
		return nil, err
	}
	Xs, err := lr.scaler.Transform(X)
	if err != nil {
		return nil, err
	}

	p := make([]float64, rows)
	lr.probabilities(Xs, mat.NewVecDense(cols, lr.coef_), p)
	out := mat.NewDense(rows, 2, nil)
	for i, v := range p {
		out.Set(i, 0, 1-v)
		out.Set(i, 1, v)
	}
	return out, nil
}

// Predict returns hard 0/1 labels as an (n, 1) matrix.
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		if proba.At(i, 1) >= 0.5 {
			out.Set(i, 0, 1)
		}
	}
	return out, nil
}

// NIter returns the number of gradient steps taken by the last fit.
func (lr *LogisticRegression) NIter() int { return lr.nIter_ }

// Clone returns an unfitted copy with the same hyperparameters.
func (lr *LogisticRegression) Clone() model.Estimator {
	return NewLogisticRegression(
		WithLRC(lr.C),
		WithLogisticFitIntercept(lr.fitIntercept),
		WithLRMaxIter(lr.maxIter),
		WithLRTol(lr.tol),
		WithLRLearningRate(lr.learningRate),
	)
}

func (lr *LogisticRegression) String() string {
	return fmt.Sprintf("LogisticRegression(C=%g, max_iter=%d)", lr.C, lr.maxIter)
}

// sigmoid computes the sigmoid function
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + errors.StabilizeExp(-z))
	}
	e := errors.StabilizeExp(z)
	return e / (1 + e)
}

var (
	_ model.Estimator               = (*LogisticRegression)(nil)
	_ model.WeightedFitter          = (*LogisticRegression)(nil)
	_ model.ProbabilisticClassifier = (*LogisticRegression)(nil)
	_ model.Cloner                  = (*LogisticRegression)(nil)
)
