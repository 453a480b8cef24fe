package main

import (
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/goope/core/model"
	"github.com/YuminosukeSato/goope/ope"
	"github.com/YuminosukeSato/goope/pkg/errors"
	"github.com/YuminosukeSato/goope/sklearn/ensemble"
	"github.com/YuminosukeSato/goope/sklearn/linear_model"
	"github.com/YuminosukeSato/goope/sklearn/tree"
)

// Config is the YAML run configuration.
type Config struct {
	FittingMethod   string            `yaml:"fitting_method" validate:"oneof=normal iw mrdr"`
	NFolds          int               `yaml:"n_folds" validate:"min=1"`
	RandomState     int64             `yaml:"random_state"`
	EmbedSelection  bool              `yaml:"embed_selection"`
	LenList         int               `yaml:"len_list" validate:"min=1"`
	NumericalPolicy string            `yaml:"numerical_policy" validate:"oneof=propagate raise"`
	FoldWorkers     int               `yaml:"fold_workers" validate:"gte=0"`
	LogLevel        string            `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat       string            `yaml:"log_format" validate:"oneof=zerolog slog"`
	BaseModel       BaseModelConfig   `yaml:"base_model"`
	Estimators      []EstimatorConfig `yaml:"estimators" validate:"omitempty,dive"`
	Intervals       IntervalsConfig   `yaml:"intervals"`
}

// BaseModelConfig selects and parameterizes the reward model learner.
type BaseModelConfig struct {
	Type        string  `yaml:"type" validate:"oneof=random_forest decision_tree linear logistic"`
	NEstimators int     `yaml:"n_estimators" validate:"min=1"`
	MaxSamples  float64 `yaml:"max_samples" validate:"gt=0,lte=1"`
	MaxDepth    int     `yaml:"max_depth" validate:"gte=0"`
	Alpha       float64 `yaml:"alpha" validate:"gte=0"`
	C           float64 `yaml:"c" validate:"gt=0"`
}

// EstimatorConfig describes one battery entry.
type EstimatorConfig struct {
	Kind               string    `yaml:"kind" validate:"required"`
	Name               string    `yaml:"name"`
	Lambda             float64   `yaml:"lambda" validate:"gte=0"`
	Lambdas            []float64 `yaml:"lambdas" validate:"omitempty,dive,gte=0"`
	EmbeddingSelection string    `yaml:"embedding_selection" validate:"omitempty,oneof=none greedy"`
	MinEmbDim          int       `yaml:"min_emb_dim" validate:"gte=0"`
}

// IntervalsConfig enables bootstrap confidence intervals.
type IntervalsConfig struct {
	Alpha      float64 `yaml:"alpha" validate:"gt=0,lt=1"`
	NBootstrap int     `yaml:"n_bootstrap" validate:"gte=0"`
}

// defaultConfig mirrors the reference experiment: a 10-tree forest with
// 80% bootstrap samples and two-fold cross-fitting.
func defaultConfig() Config {
	return Config{
		FittingMethod:   "normal",
		NFolds:          2,
		RandomState:     12345,
		LenList:         1,
		NumericalPolicy: "propagate",
		FoldWorkers:     1,
		LogLevel:        "warn",
		LogFormat:       "zerolog",
		BaseModel: BaseModelConfig{
			Type:        "random_forest",
			NEstimators: 10,
			MaxSamples:  0.8,
			C:           1,
		},
		Intervals: IntervalsConfig{Alpha: 0.05},
	}
}

// loadConfig overlays the YAML file at path on defaultConfig. An empty path
// returns the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

var configValidator = validator.New()

func (c Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// runConfig converts the file configuration into ope.RunConfig.
func (c Config) runConfig() (ope.RunConfig, error) {
	method, err := ope.ParseFittingMethod(c.FittingMethod)
	if err != nil {
		return ope.RunConfig{}, err
	}
	policy, err := ope.ParseNumericalPolicy(c.NumericalPolicy)
	if err != nil {
		return ope.RunConfig{}, err
	}
	rc := ope.RunConfig{
		FittingMethod:   method,
		NFolds:          c.NFolds,
		RandomState:     c.RandomState,
		EmbedSelection:  c.EmbedSelection,
		LenList:         c.LenList,
		NumericalPolicy: policy,
		FoldWorkers:     c.FoldWorkers,
		Intervals:       ope.IntervalConfig{Alpha: c.Intervals.Alpha, NBootstrap: c.Intervals.NBootstrap},
	}
	for _, ec := range c.Estimators {
		e, err := ec.build()
		if err != nil {
			return ope.RunConfig{}, errors.Wrapf(err, "estimator %q", ec.Kind)
		}
		rc.Estimators = append(rc.Estimators, e)
	}
	return rc, nil
}

func (ec EstimatorConfig) build() (ope.Estimator, error) {
	kind, err := ope.ParseEstimatorKind(ec.Kind)
	if err != nil {
		return nil, err
	}
	spec := ope.EstimatorSpec{
		Kind:      kind,
		Name:      ec.Name,
		Lambda:    ec.Lambda,
		Lambdas:   ec.Lambdas,
		MinEmbDim: ec.MinEmbDim,
	}
	if ec.EmbeddingSelection == "greedy" {
		spec.EmbeddingSelection = ope.EmbedSelectGreedy
	}
	return ope.NewEstimator(spec)
}

// build returns an unfitted base learner seeded with seed.
func (b BaseModelConfig) build(seed int64) (model.Estimator, error) {
	switch b.Type {
	case "random_forest":
		return ensemble.NewRandomForestRegressor(
			ensemble.WithNEstimators(b.NEstimators),
			ensemble.WithMaxSamples(b.MaxSamples),
			ensemble.WithMaxDepth(b.MaxDepth),
			ensemble.WithRandomState(uint64(seed)),
		), nil
	case "decision_tree":
		return tree.NewDecisionTreeRegressor(
			tree.WithMaxDepth(b.MaxDepth),
			tree.WithRandomState(uint64(seed)),
		), nil
	case "linear":
		return linear_model.NewLinearRegression(linear_model.WithAlpha(b.Alpha)), nil
	case "logistic":
		return linear_model.NewLogisticRegression(linear_model.WithLRC(b.C)), nil
	}
	return nil, errors.NewValidationError("base_model.type", "unknown base model", b.Type)
}
