package ope

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/goope/core/model"
	"github.com/YuminosukeSato/goope/pkg/errors"
	"github.com/YuminosukeSato/goope/pkg/log"
)

// IntervalConfig enables bootstrap intervals in Run when NBootstrap > 0.
type IntervalConfig struct {
	Alpha      float64
	NBootstrap int
}

// RunConfig parameterizes one evaluation round.
type RunConfig struct {
	FittingMethod   FittingMethod
	NFolds          int
	RandomState     int64
	EmbedSelection  bool
	LenList         int
	NumericalPolicy NumericalPolicy
	// Estimators overrides DefaultBattery(EmbedSelection) when non-nil.
	Estimators []Estimator
	// FoldWorkers > 1 fits cross-fitting folds concurrently; 0 means one per CPU.
	FoldWorkers int
	Intervals   IntervalConfig
	Logger      log.Logger
}

// DefaultRunConfig returns normal fitting with two folds seeded at 12345.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		FittingMethod: FittingNormal,
		NFolds:        2,
		RandomState:   12345,
		LenList:       1,
		FoldWorkers:   1,
	}
}

// RunResult is the outcome of one evaluation round.
type RunResult struct {
	Values    PolicyValues
	Intervals map[string]Interval
	// EstimatedRewards is q̂(x,a); EstimatedRewardsByEmbedding is q̂(x,a,e).
	EstimatedRewards            *Tensor3
	EstimatedRewardsByEmbedding *Tensor3
	MarginalWeights             *MarginalWeights
	Folds                       []Fold
	// NonFinite counts Inf/NaN values among importance, sample and marginal
	// weights.
	NonFinite int
}

// Run evaluates actionDist on feedback. It checks the importance and
// marginal weights against cfg.NumericalPolicy, cross-fits q̂(x,a) and the
// embedding-aware q̂(x,a,e) on the same folds, runs the estimator battery,
// then sets "MIPS" from the marginal weights over all embedding dimensions
// and "MDR" = V_DM + V_MIPS − mean(w·q̂(x,a,e)).
func Run(feedback *BanditFeedback, actionDist *Tensor3, base model.Estimator, cfg RunConfig) (res *RunResult, err error) {
	defer errors.Recover(&err, "ope.Run")
	start := time.Now()

	if cfg.LenList == 0 {
		cfg.LenList = 1
	}
	if cfg.NFolds < 1 {
		return nil, errors.NewValidationError("n_folds", "must be at least 1", cfg.NFolds)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("ope")
	}
	if feedback == nil {
		return nil, errors.NewValidationError("bandit_feedback", "is required", nil)
	}
	if err := feedback.Validate(cfg.LenList); err != nil {
		return nil, err
	}
	n := feedback.NRounds
	if err := CheckActionDist(actionDist, n, feedback.NActions, cfg.LenList); err != nil {
		return nil, err
	}
	if feedback.ActionEmbed == nil || feedback.PEA == nil || feedback.PiB == nil {
		return nil, errors.NewValidationError("bandit_feedback", "action_embed, p_e_a and pi_b are required for MIPS and MDR", nil)
	}
	pscore, err := feedback.PScores()
	if err != nil {
		return nil, err
	}

	in := &EstimationInput{
		Reward:      feedback.Reward,
		Action:      feedback.Action,
		Position:    feedback.Position,
		PScore:      pscore,
		ActionDist:  actionDist,
		PiB:         feedback.PiB,
		ActionEmbed: feedback.ActionEmbed,
		PEA:         feedback.PEA,
	}
	// 重みの非有限値はモデル学習より前に判定する
	badIW, err := cfg.NumericalPolicy.apply("ope.Run.importance_weight", in.importanceWeights())
	if err != nil {
		return nil, err
	}
	mw, err := ComputeMarginalWeights(feedback.PiB, actionDist, feedback.PEA, feedback.ActionEmbed, feedback.Position, nil)
	if err != nil {
		return nil, err
	}
	badW, err := cfg.NumericalPolicy.apply("ope.Run.marginal_weight", mw.W)
	if err != nil {
		return nil, err
	}

	kf, err := NewKFold(cfg.NFolds, cfg.RandomState)
	if err != nil {
		return nil, err
	}
	folds, err := kf.Split(n)
	if err != nil {
		return nil, err
	}

	regIn := &RegressionInput{
		Context:    feedback.Context,
		Action:     feedback.Action,
		Reward:     feedback.Reward,
		Embedding:  feedback.ActionEmbed,
		PScore:     pscore,
		Position:   feedback.Position,
		ActionDist: actionDist,
	}
	opts := []RegressionOption{
		WithFittingMethod(cfg.FittingMethod),
		WithLenList(cfg.LenList),
		WithNumericalPolicy(cfg.NumericalPolicy),
		WithLogger(logger.With(log.ComponentKey, "ope.regression")),
	}
	if feedback.ActionContext != nil {
		opts = append(opts, WithActionContext(feedback.ActionContext))
	}
	if cfg.FoldWorkers != 1 {
		opts = append(opts, WithParallelFolds(cfg.FoldWorkers))
	}

	// Both models share the folds and are in place before any estimator
	// of the battery reads them.
	rm, err := NewRegressionModel(base, feedback.NActions, opts...)
	if err != nil {
		return nil, err
	}
	qHat, err := rm.CrossFit(regIn, folds)
	if err != nil {
		return nil, errors.Wrap(err, "reward regression")
	}
	rmE, err := NewRegressionModel(base, feedback.NActions, append(opts, WithEmbedding(true))...)
	if err != nil {
		return nil, err
	}
	qHatE, err := rmE.CrossFit(regIn, folds)
	if err != nil {
		return nil, errors.Wrap(err, "embedding-aware reward regression")
	}
	in.EstimatedRewards = qHat
	in.EstimatedRewardsByEmbedding = qHatE

	battery := cfg.Estimators
	if battery == nil {
		battery = DefaultBattery(cfg.EmbedSelection)
	}
	evaluator, err := NewOffPolicyEvaluation(battery, logger)
	if err != nil {
		return nil, err
	}
	values, err := evaluator.EstimatePolicyValues(in)
	if err != nil {
		return nil, err
	}

	wr := make([]float64, n)
	for i, w := range mw.W {
		wr[i] = w * feedback.Reward[i]
	}
	vMIPS := stat.Mean(wr, nil)
	values["MIPS"] = vMIPS

	vDM, err := DM{}.EstimatePolicyValue(in)
	if err != nil {
		return nil, err
	}
	qObs := in.qHatFactual(qHatE)
	values["MDR"] = MDRValue(vDM, vMIPS, mw.W, qObs)

	res = &RunResult{
		Values:                      values,
		EstimatedRewards:            qHat,
		EstimatedRewardsByEmbedding: qHatE,
		MarginalWeights:             mw,
		Folds:                       folds,
		NonFinite:                   badIW + badW + rm.NonFiniteWeights() + rmE.NonFiniteWeights(),
	}
	if res.NonFinite > 0 {
		total := 2 * n
		if cfg.FittingMethod != FittingNormal {
			total += 2 * n
		}
		errors.Warn(errors.NewNumericalWarning("ope.Run", res.NonFinite, total))
	}

	if cfg.Intervals.NBootstrap > 0 {
		res.Intervals, err = runIntervals(evaluator, in, cfg, wr, mw.W, qObs)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("off-policy evaluation completed",
		log.SamplesKey, n,
		log.ActionsKey, feedback.NActions,
		log.FoldsKey, cfg.NFolds,
		log.FittingMethodKey, cfg.FittingMethod.String(),
		log.RandomSeedKey, cfg.RandomState,
		log.NonFiniteKey, res.NonFinite,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, nil
}

func runIntervals(evaluator *OffPolicyEvaluation, in *EstimationInput, cfg RunConfig, wr, w, qObs []float64) (map[string]Interval, error) {
	seed := uint64(cfg.RandomState)
	out, err := evaluator.EstimateIntervals(in, cfg.Intervals.Alpha, cfg.Intervals.NBootstrap, seed)
	if err != nil {
		return nil, err
	}
	if out["MIPS"], err = BootstrapInterval(wr, cfg.Intervals.Alpha, cfg.Intervals.NBootstrap, seed); err != nil {
		return nil, err
	}
	qPi := in.qHatPolicy()
	mdr := make([]float64, len(wr))
	for i := range mdr {
		mdr[i] = qPi[i] + wr[i] - w[i]*qObs[i]
	}
	if out["MDR"], err = BootstrapInterval(mdr, cfg.Intervals.Alpha, cfg.Intervals.NBootstrap, seed); err != nil {
		return nil, err
	}
	return out, nil
}
