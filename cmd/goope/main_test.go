package main

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/goope/pkg/errors"
	"github.com/YuminosukeSato/goope/pkg/log"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	prev := log.SetProvider(log.NewZerologProvider(io.Discard, log.LevelError))
	t.Cleanup(func() { log.SetProvider(prev) })

	var out, errOut bytes.Buffer
	root := buildRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

type decodedOutput struct {
	NRounds   int                           `json:"n_rounds"`
	Values    map[string]float64            `json:"values"`
	Intervals map[string]map[string]float64 `json:"intervals"`
	NonFinite int                           `json:"non_finite"`
}

func TestEvaluateJSON(t *testing.T) {
	out, _, err := execute(t, "evaluate", "--config", "testdata/run.yaml", "--data", "testdata/feedback.json")
	require.NoError(t, err)

	var got decodedOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 24, got.NRounds)
	assert.Zero(t, got.NonFinite)
	for _, name := range []string{"IPS", "DR", "DM", "Switch-DR", "MIPS", "MDR"} {
		v, ok := got.Values[name]
		require.True(t, ok, name)
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), name)
	}
	for _, name := range []string{"MIPS", "MDR"} {
		iv, ok := got.Intervals[name]
		require.True(t, ok, name)
		assert.LessOrEqual(t, iv["lower"], iv["upper"], name)
	}

	fb, dist, err := loadFeedback("testdata/feedback.json")
	require.NoError(t, err)
	pscore, err := fb.PScores()
	require.NoError(t, err)
	var ips float64
	for i, a := range fb.Action {
		ips += fb.Reward[i] * dist.At(i, a, 0) / pscore[i]
	}
	ips /= float64(fb.NRounds)
	assert.InDelta(t, ips, got.Values["IPS"], 1e-9)
}

func TestEvaluateDeterministic(t *testing.T) {
	args := []string{"evaluate", "-c", "testdata/run.yaml", "-d", "testdata/feedback.json"}
	first, _, err := execute(t, args...)
	require.NoError(t, err)
	second, _, err := execute(t, args...)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	reseeded, _, err := execute(t, append(args, "--seed", "99")...)
	require.NoError(t, err)
	var a, b decodedOutput
	require.NoError(t, json.Unmarshal([]byte(first), &a))
	require.NoError(t, json.Unmarshal([]byte(reseeded), &b))
	assert.Equal(t, a.Values["IPS"], b.Values["IPS"], "IPS does not depend on the folds")
}

func TestEvaluateDefaultBattery(t *testing.T) {
	out, _, err := execute(t, "evaluate", "--data", "testdata/feedback.json", "--folds", "1")
	require.NoError(t, err)
	var got decodedOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	for _, name := range []string{"IPS", "DR", "DM", "MIPS", "MDR"} {
		assert.Contains(t, got.Values, name)
	}
	assert.Empty(t, got.Intervals)
}

func TestEvaluateTable(t *testing.T) {
	out, _, err := execute(t, "evaluate", "-c", "testdata/run.yaml", "-d", "testdata/feedback.json", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "ESTIMATOR")
	assert.Contains(t, out, "Switch-DR")
	assert.Contains(t, out, "MDR")
}

func TestEvaluateSlogLogging(t *testing.T) {
	cfgPath := writeFile(t, "slog.yaml", `log_format: slog
log_level: info
base_model:
  type: linear
  alpha: 0.001
`)
	_, errOut, err := execute(t, "evaluate", "-c", cfgPath, "-d", "testdata/feedback.json")
	require.NoError(t, err)
	assert.Contains(t, errOut, `"message":"off-policy evaluation completed"`)
}

func TestEvaluateErrors(t *testing.T) {
	_, _, err := execute(t, "evaluate")
	assert.Error(t, err, "--data is required")

	_, _, err = execute(t, "evaluate", "-d", "testdata/feedback.json", "-o", "xml")
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))

	_, _, err = execute(t, "evaluate", "-d", "testdata/feedback.json", "--fitting-method", "ols")
	assert.Error(t, err)

	_, _, err = execute(t, "evaluate", "-d", "testdata/missing.json")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "goope dev\n", out)
}

func TestOptionsApply(t *testing.T) {
	cfg := defaultConfig()
	evaluateOptions{seed: 3, folds: 5}.apply(&cfg)
	assert.Equal(t, int64(12345), cfg.RandomState, "unset flags leave the config alone")
	assert.Equal(t, 2, cfg.NFolds)

	evaluateOptions{seed: 3, seedSet: true, folds: 5, foldsSet: true, fittingMethod: "iw", logLevel: "debug"}.apply(&cfg)
	assert.Equal(t, int64(3), cfg.RandomState)
	assert.Equal(t, 5, cfg.NFolds)
	assert.Equal(t, "iw", cfg.FittingMethod)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestJSONFloat(t *testing.T) {
	for _, tt := range []struct {
		in   float64
		want string
	}{
		{1.5, "1.5"},
		{math.NaN(), `"NaN"`},
		{math.Inf(1), `"+Inf"`},
		{math.Inf(-1), `"-Inf"`},
	} {
		b, err := json.Marshal(jsonFloat(tt.in))
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(b))
	}
}

func TestLoadFeedback(t *testing.T) {
	fb, dist, err := loadFeedback("testdata/feedback.json")
	require.NoError(t, err)
	require.NoError(t, fb.Validate(1))
	r, c := fb.Context.Dims()
	assert.Equal(t, []int{24, 2}, []int{r, c})
	assert.Equal(t, []int{3, 2, 2}, fb.PEA.Shape())
	assert.Equal(t, []int{24, 3, 1}, fb.PiB.Shape())
	assert.Equal(t, []int{24, 3, 1}, dist.Shape())
	assert.Nil(t, fb.ActionContext)
}

func TestLoadFeedbackRagged(t *testing.T) {
	path := writeFile(t, "ragged.json", `{"n_rounds": 2, "n_actions": 2,
"context": [[1, 2], [3]], "action": [0, 1], "reward": [1, 0],
"action_embed": [[0], [1]], "pi_b": [[[0.5], [0.5]], [[0.5], [0.5]]],
"p_e_a": [[[1], [0]], [[0], [1]]], "action_dist": [[[1], [0]], [[1], [0]]]}`)
	_, _, err := loadFeedback(path)
	require.Error(t, err)
	var shapeErr *errors.InputShapeError
	assert.True(t, errors.As(err, &shapeErr))

	_, _, err = loadFeedback(writeFile(t, "bad.json", "{"))
	assert.Error(t, err)
}
