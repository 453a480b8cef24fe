package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/goope/ope"
	"github.com/YuminosukeSato/goope/pkg/errors"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	require.NoError(t, cfg.validate())

	rc, err := cfg.runConfig()
	require.NoError(t, err)
	assert.Equal(t, ope.FittingNormal, rc.FittingMethod)
	assert.Equal(t, 2, rc.NFolds)
	assert.Equal(t, int64(12345), rc.RandomState)
	assert.Nil(t, rc.Estimators, "the default battery is chosen by ope.Run")
}

func TestLoadConfigOverlaysFile(t *testing.T) {
	cfg, err := loadConfig("testdata/run.yaml")
	require.NoError(t, err)
	require.NoError(t, cfg.validate())

	assert.Equal(t, int64(7), cfg.RandomState)
	assert.Equal(t, "linear", cfg.BaseModel.Type)
	assert.InDelta(t, 0.001, cfg.BaseModel.Alpha, 1e-12)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 10, cfg.BaseModel.NEstimators)
	assert.Equal(t, "zerolog", cfg.LogFormat)

	rc, err := cfg.runConfig()
	require.NoError(t, err)
	names := make([]string, len(rc.Estimators))
	for i, e := range rc.Estimators {
		names[i] = e.EstimatorName()
	}
	assert.Equal(t, []string{"IPS", "DR", "DM", "Switch-DR", "MIPS"}, names)
	assert.Equal(t, ope.IntervalConfig{Alpha: 0.1, NBootstrap: 50}, rc.Intervals)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = loadConfig(writeFile(t, "bad.yaml", "n_folds: [1, 2\n"))
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fitting method", func(c *Config) { c.FittingMethod = "ols" }},
		{"folds", func(c *Config) { c.NFolds = 0 }},
		{"len list", func(c *Config) { c.LenList = 0 }},
		{"numerical policy", func(c *Config) { c.NumericalPolicy = "ignore" }},
		{"log format", func(c *Config) { c.LogFormat = "text" }},
		{"base model", func(c *Config) { c.BaseModel.Type = "svm" }},
		{"max samples", func(c *Config) { c.BaseModel.MaxSamples = 1.5 }},
		{"interval alpha", func(c *Config) { c.Intervals.Alpha = 1 }},
		{"estimator kind", func(c *Config) { c.Estimators = []EstimatorConfig{{Name: "x"}} }},
		{"estimator lambdas", func(c *Config) {
			c.Estimators = []EstimatorConfig{{Kind: "dr-os", Lambdas: []float64{1, -1}}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestRunConfigRejectsUnknownEstimator(t *testing.T) {
	cfg := defaultConfig()
	cfg.Estimators = []EstimatorConfig{{Kind: "magic"}}
	require.NoError(t, cfg.validate())
	_, err := cfg.runConfig()
	assert.Error(t, err)
}

func TestEstimatorConfigGreedyMIPS(t *testing.T) {
	e, err := EstimatorConfig{Kind: "mips", Name: "MIPS (slope)", EmbeddingSelection: "greedy", MinEmbDim: 1}.build()
	require.NoError(t, err)
	m, ok := e.(ope.MIPS)
	require.True(t, ok)
	assert.Equal(t, ope.EmbedSelectGreedy, m.EmbeddingSelection)
	assert.Equal(t, 1, m.MinEmbDim)
	assert.Equal(t, "MIPS (slope)", m.EstimatorName())
}

func TestBaseModelBuild(t *testing.T) {
	for _, typ := range []string{"random_forest", "decision_tree", "linear", "logistic"} {
		b := defaultConfig().BaseModel
		b.Type = typ
		m, err := b.build(1)
		require.NoError(t, err, typ)
		assert.NotNil(t, m, typ)
	}

	_, err := BaseModelConfig{Type: "svm"}.build(1)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}
