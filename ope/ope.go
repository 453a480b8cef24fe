package ope

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/goope/pkg/errors"
	"github.com/YuminosukeSato/goope/pkg/log"
)

// PolicyValues maps estimator names to estimated policy values.
type PolicyValues map[string]float64

// Names returns the estimator names in lexical order.
func (v PolicyValues) Names() []string {
	names := make([]string, 0, len(v))
	for k := range v {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Interval is a bootstrap confidence interval of a policy value.
type Interval struct {
	Mean  float64 `json:"mean"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// OffPolicyEvaluation runs an ordered battery of estimators on shared
// nuisance estimates.
type OffPolicyEvaluation struct {
	estimators []Estimator
	logger     log.Logger
}

// NewOffPolicyEvaluation validates that the battery is non-empty and that
// estimator names are unique.
func NewOffPolicyEvaluation(estimators []Estimator, logger log.Logger) (*OffPolicyEvaluation, error) {
	if len(estimators) == 0 {
		return nil, errors.NewValidationError("estimators", "must not be empty", nil)
	}
	seen := make(map[string]struct{}, len(estimators))
	for _, e := range estimators {
		name := e.EstimatorName()
		if _, dup := seen[name]; dup {
			return nil, errors.NewValidationError("estimators", "duplicate estimator name", name)
		}
		seen[name] = struct{}{}
	}
	if logger == nil {
		logger = log.GetLoggerWithName("ope")
	}
	return &OffPolicyEvaluation{estimators: estimators, logger: logger}, nil
}

// Estimators returns the battery in evaluation order.
func (o *OffPolicyEvaluation) Estimators() []Estimator {
	return append([]Estimator(nil), o.estimators...)
}

// EstimatePolicyValues evaluates every estimator. Any failure, including a
// panic inside a custom Estimator, aborts the whole evaluation.
func (o *OffPolicyEvaluation) EstimatePolicyValues(in *EstimationInput) (PolicyValues, error) {
	values := make(PolicyValues, len(o.estimators))
	for _, e := range o.estimators {
		var v float64
		err := errors.SafeExecute("ope."+e.EstimatorName(), func() (err error) {
			v, err = e.EstimatePolicyValue(in)
			return err
		})
		if err != nil {
			return nil, errors.Wrapf(err, "estimator %s", e.EstimatorName())
		}
		values[e.EstimatorName()] = v
		o.logger.Debug("policy value estimated",
			log.OperationKey, log.OperationEstimate,
			log.EstimatorNameKey, e.EstimatorName(),
			log.EstimateKey, v,
		)
	}
	return values, nil
}

// EstimateIntervals bootstraps every estimator's round rewards and returns
// percentile intervals at level 1−alpha.
func (o *OffPolicyEvaluation) EstimateIntervals(in *EstimationInput, alpha float64, nBootstrap int, seed uint64) (map[string]Interval, error) {
	out := make(map[string]Interval, len(o.estimators))
	for _, e := range o.estimators {
		r, err := e.EstimateRoundRewards(in)
		if err != nil {
			return nil, errors.Wrapf(err, "estimator %s", e.EstimatorName())
		}
		iv, err := BootstrapInterval(r, alpha, nBootstrap, seed)
		if err != nil {
			return nil, err
		}
		out[e.EstimatorName()] = iv
	}
	return out, nil
}

// BootstrapInterval resamples rounds with replacement nBootstrap times and
// returns the mean and the alpha/2, 1−alpha/2 quantiles of the resampled
// means.
func BootstrapInterval(roundRewards []float64, alpha float64, nBootstrap int, seed uint64) (Interval, error) {
	if alpha <= 0 || alpha >= 1 {
		return Interval{}, errors.NewValidationError("alpha", "must be in (0, 1)", alpha)
	}
	if nBootstrap < 1 {
		return Interval{}, errors.NewValidationError("n_bootstrap_samples", "must be at least 1", nBootstrap)
	}
	n := len(roundRewards)
	if n == 0 {
		return Interval{}, errors.NewModelError("BootstrapInterval", "empty data", errors.ErrEmptyData)
	}

	r := rand.New(rand.NewPCG(seed, seed))
	means := make([]float64, nBootstrap)
	for b := range means {
		var s float64
		for k := 0; k < n; k++ {
			s += roundRewards[r.IntN(n)]
		}
		means[b] = s / float64(n)
	}
	sort.Float64s(means)
	return Interval{
		Mean:  stat.Mean(means, nil),
		Lower: stat.Quantile(alpha/2, stat.Empirical, means, nil),
		Upper: stat.Quantile(1-alpha/2, stat.Empirical, means, nil),
	}, nil
}
