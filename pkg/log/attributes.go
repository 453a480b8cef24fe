// Standard attribute keys for off-policy evaluation logs.
//
// Keys follow a hierarchical naming convention ("ope.estimator",
// "data.samples") so records can be filtered uniformly.

package log

// Operation context
const (
	// ModelNameKey identifies the type of model, e.g. "RandomForestRegressor".
	ModelNameKey = "model.name"

	// OperationKey is the operation being performed: "fit", "predict", "estimate".
	OperationKey = "ml.operation"

	// ComponentKey identifies the package/component emitting the record.
	ComponentKey = "ml.component"
)

// Data shape
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ActionsKey  = "data.n_actions"
	LenListKey  = "data.len_list"
	EmbedDimKey = "data.embed_dim"
)

// Off-policy evaluation context
const (
	// EstimatorNameKey is the display name of an estimator in a battery.
	EstimatorNameKey = "ope.estimator"

	// EstimateKey is an estimated policy value.
	EstimateKey = "ope.estimate"

	// FittingMethodKey is the RewardRegressor fitting method (normal, iw, mrdr).
	FittingMethodKey = "ope.fitting_method"

	// FoldKey is the current cross-fitting fold (0-based).
	FoldKey = "ope.fold"

	// FoldsKey is the total number of cross-fitting folds.
	FoldsKey = "ope.n_folds"

	// PositionKey is the slate slot being processed.
	PositionKey = "ope.position"

	// NonFiniteKey counts NaN/Inf values found in a nuisance quantity.
	NonFiniteKey = "ope.non_finite"

	// SelectedDimsKey lists the embedding dimensions kept by SLOPE.
	SelectedDimsKey = "ope.selected_dims"
)

// Performance and reproducibility
const (
	DurationMsKey = "perf.duration_ms"
	RandomSeedKey = "config.random_seed"
	IterationKey  = "training.iteration"
	LossKey       = "metrics.loss"
)

// Standard attribute values.
const (
	OperationFit        = "fit"
	OperationPredict    = "predict"
	OperationFitPredict = "fit_predict"
	OperationEstimate   = "estimate"
	OperationSelect     = "select"
)
