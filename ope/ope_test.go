package ope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/goope/pkg/errors"
	"github.com/YuminosukeSato/goope/pkg/log"
)

func TestOffPolicyEvaluationRejectsDuplicates(t *testing.T) {
	_, err := NewOffPolicyEvaluation([]Estimator{IPS{}, DR{Name: "IPS"}}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))

	_, err = NewOffPolicyEvaluation(nil, nil)
	assert.Error(t, err)
}

func TestEstimatePolicyValues(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	battery := []Estimator{IPS{}, SNIPS{}, DM{}, DR{}, SNDR{}, MIPS{}, MDR{}}
	o, err := NewOffPolicyEvaluation(battery, logger)
	require.NoError(t, err)

	values, err := o.EstimatePolicyValues(handInput())
	require.NoError(t, err)
	assert.Equal(t, []string{"DM", "DR", "IPS", "MDR", "MIPS", "SNDR", "SNIPS"}, values.Names())
	assert.InDelta(t, 1.4, values["IPS"], 1e-12)
	assert.Equal(t, 7, logger.Count("policy value estimated"))
	assert.True(t, logger.ContainsField(log.EstimatorNameKey, "MDR"))
}

func TestEstimatePolicyValuesAbortsOnError(t *testing.T) {
	o, err := NewOffPolicyEvaluation([]Estimator{IPS{}, DM{}}, nil)
	require.NoError(t, err)
	in := handInput()
	in.EstimatedRewards = nil
	values, err := o.EstimatePolicyValues(in)
	assert.Error(t, err)
	assert.Nil(t, values)
}

// panicEstimator is a custom battery member that panics.
type panicEstimator struct{ IPS }

func (panicEstimator) EstimatorName() string { return "broken" }

func (panicEstimator) EstimatePolicyValue(*EstimationInput) (float64, error) {
	panic("index out of range")
}

func TestEstimatePolicyValuesRecoversPanics(t *testing.T) {
	o, err := NewOffPolicyEvaluation([]Estimator{IPS{}, panicEstimator{}}, nil)
	require.NoError(t, err)
	_, err = o.EstimatePolicyValues(handInput())
	require.Error(t, err)
	var pe *errors.PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "ope.broken", pe.Operation)
}

func TestEstimateIntervals(t *testing.T) {
	in := syntheticWithModels(t)
	o, err := NewOffPolicyEvaluation([]Estimator{IPS{}, DR{}, MIPS{}}, nil)
	require.NoError(t, err)
	values, err := o.EstimatePolicyValues(in)
	require.NoError(t, err)

	intervals, err := o.EstimateIntervals(in, 0.05, 200, 1)
	require.NoError(t, err)
	require.Len(t, intervals, 3)
	for name, iv := range intervals {
		assert.LessOrEqual(t, iv.Lower, iv.Mean, name)
		assert.LessOrEqual(t, iv.Mean, iv.Upper, name)
		assert.InDelta(t, values[name], iv.Mean, iv.Upper-iv.Lower, name)
	}

	again, err := o.EstimateIntervals(in, 0.05, 200, 1)
	require.NoError(t, err)
	assert.Equal(t, intervals, again)
}

func TestBootstrapIntervalErrors(t *testing.T) {
	_, err := BootstrapInterval([]float64{1, 2}, 0, 10, 0)
	assert.Error(t, err)
	_, err = BootstrapInterval([]float64{1, 2}, 0.1, 0, 0)
	assert.Error(t, err)
	_, err = BootstrapInterval(nil, 0.1, 10, 0)
	assert.Error(t, err)

	iv, err := BootstrapInterval([]float64{3, 3, 3}, 0.1, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, Interval{Mean: 3, Lower: 3, Upper: 3}, iv)
}
