// Package model defines the contracts that base learners must satisfy to be
// plugged into the reward regressor.
package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる。y は (n, 1)。
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は (n, 1) の予測値を返す
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Estimator は教師あり学習モデルの基本インターフェース
type Estimator interface {
	Fitter
	Predictor
}

// WeightedFitter はサンプル重み付き学習をサポートするモデル
type WeightedFitter interface {
	// FitWeighted は len(sampleWeight) == n の重みで学習する
	FitWeighted(X, y mat.Matrix, sampleWeight []float64) error
}

// ProbabilisticClassifier は二値分類器。PredictProba は (n, 2) を返し、
// 列1が正例の確率。
type ProbabilisticClassifier interface {
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// Cloner は同じハイパーパラメータを持つ未学習のコピーを返す
type Cloner interface {
	Clone() Estimator
}

// LinearModel は線形モデルのインターフェース
type LinearModel interface {
	// Weights は学習された重み（係数）を返す
	Weights() []float64
	// Intercept は学習された切片を返す
	Intercept() float64
}

// Transformer は特徴量の前処理。LogisticRegression の標準化や
// action_context の one-hot 符号化で使う。
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}
