// Package goope provides off-policy evaluation (OPE) for contextual-bandit
// logs in Go.
//
// Given data logged by a behavior policy and an evaluation policy, goope
// estimates the expected reward the evaluation policy would have earned
// without deploying it. Besides the standard battery (IPS, SNIPS, DM, DR,
// SNDR, Switch-DR, DR-OS, SG-DR and MIPS with SLOPE embedding selection),
// it implements the marginalized doubly robust estimator (MDR), which
// combines a cross-fitted embedding-aware reward model with marginalized
// importance weights over the action-embedding space.
//
// # Packages
//
//   - ope: bandit feedback types, reward regression with cross-fitting,
//     marginalized weights, estimators and the Run entrypoint
//   - sklearn/linear_model, sklearn/tree, sklearn/ensemble: base models for
//     reward regression
//   - preprocessing, metrics: feature encoding and fit diagnostics
//   - pkg/errors, pkg/log: structured errors and logging (zerolog or slog)
//   - cmd/goope: command-line evaluation from YAML config and JSON data
//
// # Quick Start
//
//	feedback := &ope.BanditFeedback{ /* context, action, reward, pi_b, ... */ }
//	base := ensemble.NewRandomForestRegressor(
//		ensemble.WithNEstimators(10),
//		ensemble.WithMaxSamples(0.8),
//	)
//	res, err := ope.Run(feedback, actionDist, base, ope.DefaultRunConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(res.Values["MDR"])
//
// # Error Handling
//
// Configuration problems are reported as *errors.ValidationError,
// *errors.DimensionError or *errors.InputShapeError; use
// errors.IsConfigurationError to test for any of them. Zero propensities
// propagate as Inf/NaN with a warning unless ope.NumericalRaise is set.
package goope
