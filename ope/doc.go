// Package ope implements off-policy evaluation for contextual-bandit logs.
//
// The package has three layers:
//
//   - RegressionModel fits a base learner per slot to estimate q(x,a), or
//     q(x,a,e) when embedding-aware, with normal, importance-weighted or
//     MRDR sample weights and K-fold cross-fitting.
//   - ComputeMarginalWeights turns the behavior and evaluation action
//     distributions into importance weights over an action-embedding space.
//   - OffPolicyEvaluation runs a battery of estimators (IPS, SNIPS, DM, DR,
//     SNDR, Switch-DR, DRos, sub-Gaussian DR, MIPS, MDR) on shared nuisance
//     estimates. Run wires the whole pipeline for one logged dataset.
//
// Basic usage:
//
//	base := ensemble.NewRandomForestRegressor(ensemble.WithRandomState(12345))
//	res, err := ope.Run(feedback, actionDist, base, ope.DefaultRunConfig())
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Values["MDR"])
//
// Zero propensities and zero embedding marginals are not guarded: under
// NumericalPropagate they produce Inf/NaN estimates and a NumericalWarning,
// under NumericalRaise they fail with a NumericalInstabilityError.
package ope
