package ope

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/goope/pkg/errors"
)

// EstimationInput carries the logged data and nuisance estimates shared by
// every estimator in a battery.
type EstimationInput struct {
	Reward []float64
	Action []int
	// Position defaults to slot 0.
	Position []int
	// PScore is π_b(a_i|x_i). Required by importance-weighted estimators.
	PScore []float64
	// ActionDist is π_e with shape (n_rounds, n_actions, len_list).
	ActionDist *Tensor3
	// EstimatedRewards is q̂(x,a), required by model-based estimators.
	EstimatedRewards *Tensor3
	// EstimatedRewardsByEmbedding is q̂(x,a,e) predicted at the observed
	// embedding, required by MDR.
	EstimatedRewardsByEmbedding *Tensor3

	// PiB, ActionEmbed and PEA are required by marginalized estimators.
	PiB         *Tensor3
	ActionEmbed *mat.Dense
	PEA         *Tensor3
}

// Estimator is one entry of an estimator battery.
type Estimator interface {
	Kind() EstimatorKind
	EstimatorName() string
	// EstimateRoundRewards returns per-round contributions whose mean is
	// the policy value.
	EstimateRoundRewards(in *EstimationInput) ([]float64, error)
	EstimatePolicyValue(in *EstimationInput) (float64, error)
}

func (in *EstimationInput) n() int { return len(in.Reward) }

func (in *EstimationInput) check(needPScore, needQHat bool) error {
	n := in.n()
	if n == 0 {
		return errors.NewModelError("Estimate", "empty data", errors.ErrEmptyData)
	}
	if len(in.Action) != n {
		return errors.NewDimensionError("EstimationInput.action", n, len(in.Action), 0)
	}
	if in.ActionDist == nil {
		return errors.NewValidationError("action_dist", "is required", nil)
	}
	d0, nA, lenList := in.ActionDist.Dims()
	if d0 != n {
		return errors.NewDimensionError("EstimationInput.action_dist", n, d0, 0)
	}
	for i, a := range in.Action {
		if a < 0 || a >= nA {
			return errors.NewValidationError("action", "must be in [0, n_actions)", map[string]int{"round": i, "action": a})
		}
	}
	if _, err := CheckPositions(in.Position, n, lenList); err != nil {
		return err
	}
	if needPScore && len(in.PScore) != n {
		return errors.NewDimensionError("EstimationInput.pscore", n, len(in.PScore), 0)
	}
	if needQHat {
		if in.EstimatedRewards == nil {
			return errors.NewValidationError("estimated_rewards_by_reg_model", "is required", nil)
		}
		if q0, q1, q2 := in.EstimatedRewards.Dims(); q0 != n || q1 != nA || q2 != lenList {
			return errors.NewInputShapeError("estimate", "estimated_rewards_by_reg_model", in.ActionDist.Shape(), in.EstimatedRewards.Shape())
		}
	}
	return nil
}

func (in *EstimationInput) positions() []int { return positionsOrZero(in.Position, in.n()) }

// importanceWeights returns π_e(a_i|x_i, pos_i) / π_b(a_i|x_i).
func (in *EstimationInput) importanceWeights() []float64 {
	pos := in.positions()
	iw := make([]float64, in.n())
	for i, a := range in.Action {
		iw[i] = in.ActionDist.At(i, a, pos[i]) / in.PScore[i]
	}
	return iw
}

// qHatFactual returns q̂(x_i, a_i) at each round's slot.
func (in *EstimationInput) qHatFactual(q *Tensor3) []float64 {
	pos := in.positions()
	out := make([]float64, in.n())
	for i, a := range in.Action {
		out[i] = q.At(i, a, pos[i])
	}
	return out
}

// qHatPolicy returns Σ_a π_e(a|x_i, pos_i) q̂(x_i, a).
func (in *EstimationInput) qHatPolicy() []float64 {
	pos := in.positions()
	_, nA, _ := in.ActionDist.Dims()
	out := make([]float64, in.n())
	for i := range out {
		var s float64
		for a := 0; a < nA; a++ {
			s += in.ActionDist.At(i, a, pos[i]) * in.EstimatedRewards.At(i, a, pos[i])
		}
		out[i] = s
	}
	return out
}

func policyValue(e Estimator, in *EstimationInput) (float64, error) {
	r, err := e.EstimateRoundRewards(in)
	if err != nil {
		return 0, err
	}
	return stat.Mean(r, nil), nil
}

func nameOr(name, def string) string {
	if name == "" {
		return def
	}
	return name
}

// lambdaOrInf maps the zero value of a shrinkage hyperparameter to +Inf.
func lambdaOrInf(l float64) float64 {
	if l == 0 {
		return math.Inf(1)
	}
	return l
}

// IPS is inverse propensity scoring, mean(r·min(iw, Clip)). A zero Clip
// disables clipping.
type IPS struct {
	Name string
	Clip float64
}

func (e IPS) Kind() EstimatorKind   { return KindIPS }
func (e IPS) EstimatorName() string { return nameOr(e.Name, "IPS") }

func (e IPS) EstimateRoundRewards(in *EstimationInput) ([]float64, error) {
	if err := in.check(true, false); err != nil {
		return nil, err
	}
	clip := lambdaOrInf(e.Clip)
	iw := in.importanceWeights()
	for i := range iw {
		iw[i] = math.Min(iw[i], clip) * in.Reward[i]
	}
	return iw, nil
}

func (e IPS) EstimatePolicyValue(in *EstimationInput) (float64, error) { return policyValue(e, in) }

// SNIPS is self-normalized IPS.
type SNIPS struct {
	Name string
}

func (e SNIPS) Kind() EstimatorKind   { return KindSNIPS }
func (e SNIPS) EstimatorName() string { return nameOr(e.Name, "SNIPS") }

func (e SNIPS) EstimateRoundRewards(in *EstimationInput) ([]float64, error) {
	if err := in.check(true, false); err != nil {
		return nil, err
	}
	iw := in.importanceWeights()
	mean := stat.Mean(iw, nil)
	out := make([]float64, len(iw))
	for i := range iw {
		out[i] = in.Reward[i] * iw[i] / mean
	}
	return out, nil
}

func (e SNIPS) EstimatePolicyValue(in *EstimationInput) (float64, error) { return policyValue(e, in) }

// DM is the direct method, mean(Σ_a π_e(a|x) q̂(x,a)).
type DM struct {
	Name string
}

func (e DM) Kind() EstimatorKind   { return KindDM }
func (e DM) EstimatorName() string { return nameOr(e.Name, "DM") }

func (e DM) EstimateRoundRewards(in *EstimationInput) ([]float64, error) {
	if err := in.check(false, true); err != nil {
		return nil, err
	}
	return in.qHatPolicy(), nil
}

func (e DM) EstimatePolicyValue(in *EstimationInput) (float64, error) { return policyValue(e, in) }

// shrinkage maps importance weights to the weights used in the correction
// term of a doubly robust estimator.
type shrinkage func(iw []float64) []float64

func doublyRobust(in *EstimationInput, shrink shrinkage) ([]float64, error) {
	if err := in.check(true, true); err != nil {
		return nil, err
	}
	w := shrink(in.importanceWeights())
	qPi := in.qHatPolicy()
	qF := in.qHatFactual(in.EstimatedRewards)
	out := make([]float64, len(w))
	for i := range out {
		out[i] = qPi[i] + w[i]*(in.Reward[i]-qF[i])
	}
	return out, nil
}

func clipShrinkage(lambda float64) shrinkage {
	return func(iw []float64) []float64 {
		for i := range iw {
			iw[i] = math.Min(iw[i], lambda)
		}
		return iw
	}
}

// DR is the doubly robust estimator with optional weight clipping.
type DR struct {
	Name string
	Clip float64
}

func (e DR) Kind() EstimatorKind   { return KindDR }
func (e DR) EstimatorName() string { return nameOr(e.Name, "DR") }

func (e DR) EstimateRoundRewards(in *EstimationInput) ([]float64, error) {
	return doublyRobust(in, clipShrinkage(lambdaOrInf(e.Clip)))
}

func (e DR) EstimatePolicyValue(in *EstimationInput) (float64, error) { return policyValue(e, in) }

// SNDR is the self-normalized doubly robust estimator.
type SNDR struct {
	Name string
}

func (e SNDR) Kind() EstimatorKind   { return KindSNDR }
func (e SNDR) EstimatorName() string { return nameOr(e.Name, "SNDR") }

func (e SNDR) EstimateRoundRewards(in *EstimationInput) ([]float64, error) {
	return doublyRobust(in, func(iw []float64) []float64 {
		mean := stat.Mean(iw, nil)
		for i := range iw {
			iw[i] /= mean
		}
		return iw
	})
}

func (e SNDR) EstimatePolicyValue(in *EstimationInput) (float64, error) { return policyValue(e, in) }

// SwitchDR keeps the correction only for rounds with iw <= Lambda. A zero
// Lambda means +Inf. When Lambdas is set the value is tuned by SLOPE.
type SwitchDR struct {
	Name    string
	Lambda  float64
	Lambdas []float64
}

func (e SwitchDR) Kind() EstimatorKind   { return KindSwitchDR }
func (e SwitchDR) EstimatorName() string { return nameOr(e.Name, "switch-dr") }

func (e SwitchDR) roundRewards(in *EstimationInput, lambda float64) ([]float64, error) {
	return doublyRobust(in, func(iw []float64) []float64 {
		for i := range iw {
			if iw[i] > lambda {
				iw[i] = 0
			}
		}
		return iw
	})
}

func (e SwitchDR) EstimateRoundRewards(in *EstimationInput) ([]float64, error) {
	return tuneLambda(in, lambdaOrInf(e.Lambda), e.Lambdas, e.roundRewards)
}

func (e SwitchDR) EstimatePolicyValue(in *EstimationInput) (float64, error) { return policyValue(e, in) }

// DRos is doubly robust with optimistic shrinkage λ·iw/(iw²+λ). A zero
// Lambda means +Inf, which reduces to DR.
type DRos struct {
	Name    string
	Lambda  float64
	Lambdas []float64
}

func (e DRos) Kind() EstimatorKind   { return KindDRos }
func (e DRos) EstimatorName() string { return nameOr(e.Name, "dr-os") }

func (e DRos) roundRewards(in *EstimationInput, lambda float64) ([]float64, error) {
	return doublyRobust(in, func(iw []float64) []float64 {
		if math.IsInf(lambda, 1) {
			return iw
		}
		for i := range iw {
			iw[i] = lambda * iw[i] / (iw[i]*iw[i] + lambda)
		}
		return iw
	})
}

func (e DRos) EstimateRoundRewards(in *EstimationInput) ([]float64, error) {
	return tuneLambda(in, lambdaOrInf(e.Lambda), e.Lambdas, e.roundRewards)
}

func (e DRos) EstimatePolicyValue(in *EstimationInput) (float64, error) { return policyValue(e, in) }

// SubGaussianDR uses power-mean weights iw/(1−λ+λ·iw) with λ in [0, 1].
type SubGaussianDR struct {
	Name    string
	Lambda  float64
	Lambdas []float64
}

func (e SubGaussianDR) Kind() EstimatorKind   { return KindSubGaussianDR }
func (e SubGaussianDR) EstimatorName() string { return nameOr(e.Name, "sg-dr") }

func (e SubGaussianDR) roundRewards(in *EstimationInput, lambda float64) ([]float64, error) {
	if lambda < 0 || lambda > 1 {
		return nil, errors.NewValidationError("lambda", "must be in [0, 1] for sg-dr", lambda)
	}
	return doublyRobust(in, func(iw []float64) []float64 {
		for i := range iw {
			iw[i] = iw[i] / (1 - lambda + lambda*iw[i])
		}
		return iw
	})
}

func (e SubGaussianDR) EstimateRoundRewards(in *EstimationInput) ([]float64, error) {
	return tuneLambda(in, e.Lambda, e.Lambdas, e.roundRewards)
}

func (e SubGaussianDR) EstimatePolicyValue(in *EstimationInput) (float64, error) { return policyValue(e, in) }

// EmbeddingSelection chooses how MIPS picks embedding dimensions.
type EmbeddingSelection int

const (
	// EmbedSelectNone uses every dimension (or MIPS.Dims).
	EmbedSelectNone EmbeddingSelection = iota
	// EmbedSelectGreedy prunes dimensions with SLOPE.
	EmbedSelectGreedy
)

// MIPS is the marginalized inverse propensity score estimator, mean(w·r)
// with w the marginal embedding weight.
type MIPS struct {
	Name               string
	EmbeddingSelection EmbeddingSelection
	// MinEmbDim is the smallest subset greedy selection may reach (default 1).
	MinEmbDim int
	// Dims fixes the embedding dimensions used. nil means all.
	Dims []int
}

func (e MIPS) Kind() EstimatorKind   { return KindMIPS }
func (e MIPS) EstimatorName() string { return nameOr(e.Name, "MIPS") }

func (e MIPS) checkInput(in *EstimationInput) error {
	if err := in.check(false, false); err != nil {
		return err
	}
	if in.PiB == nil || in.ActionEmbed == nil || in.PEA == nil {
		return errors.NewValidationError("MIPS", "pi_b, action_embed and p_e_a are required", nil)
	}
	return nil
}

// roundRewardsWithDims returns w·r using the given embedding dimensions.
func (e MIPS) roundRewardsWithDims(in *EstimationInput, dims []int) ([]float64, []float64, error) {
	mw, err := ComputeMarginalWeights(in.PiB, in.ActionDist, in.PEA, in.ActionEmbed, in.Position, dims)
	if err != nil {
		return nil, nil, err
	}
	out := make([]float64, len(mw.W))
	for i, w := range mw.W {
		out[i] = w * in.Reward[i]
	}
	return out, mw.W, nil
}

// SelectDims returns the embedding dimensions this estimator uses.
func (e MIPS) SelectDims(in *EstimationInput) ([]int, error) {
	if err := e.checkInput(in); err != nil {
		return nil, err
	}
	if e.EmbeddingSelection == EmbedSelectGreedy {
		_, dims, err := e.greedy(in)
		return dims, err
	}
	if e.Dims != nil {
		return append([]int(nil), e.Dims...), nil
	}
	_, dE := in.ActionEmbed.Dims()
	return allDims(dE), nil
}

func (e MIPS) EstimateRoundRewards(in *EstimationInput) ([]float64, error) {
	if err := e.checkInput(in); err != nil {
		return nil, err
	}
	if e.EmbeddingSelection == EmbedSelectGreedy {
		r, _, err := e.greedy(in)
		return r, err
	}
	r, _, err := e.roundRewardsWithDims(in, e.Dims)
	return r, err
}

func (e MIPS) EstimatePolicyValue(in *EstimationInput) (float64, error) { return policyValue(e, in) }

// MDR is the marginalized doubly robust estimator,
// V_DM + V_MIPS − mean(w·q̂(x,a,e)).
type MDR struct {
	Name string
	MIPS MIPS
}

func (e MDR) Kind() EstimatorKind   { return KindMDR }
func (e MDR) EstimatorName() string { return nameOr(e.Name, "MDR") }

func (e MDR) components(in *EstimationInput) (qPi, wr, wq []float64, err error) {
	if err := in.check(false, true); err != nil {
		return nil, nil, nil, err
	}
	if in.EstimatedRewardsByEmbedding == nil {
		return nil, nil, nil, errors.NewValidationError("estimated_rewards_by_embedding", "is required by MDR", nil)
	}
	if err := e.MIPS.checkInput(in); err != nil {
		return nil, nil, nil, err
	}
	dims, err := e.MIPS.SelectDims(in)
	if err != nil {
		return nil, nil, nil, err
	}
	wr, w, err := e.MIPS.roundRewardsWithDims(in, dims)
	if err != nil {
		return nil, nil, nil, err
	}
	qE := in.qHatFactual(in.EstimatedRewardsByEmbedding)
	wq = make([]float64, len(w))
	for i := range w {
		wq[i] = w[i] * qE[i]
	}
	return in.qHatPolicy(), wr, wq, nil
}

func (e MDR) EstimateRoundRewards(in *EstimationInput) ([]float64, error) {
	qPi, wr, wq, err := e.components(in)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(qPi))
	for i := range out {
		out[i] = qPi[i] + wr[i] - wq[i]
	}
	return out, nil
}

// EstimatePolicyValue evaluates the three means separately so the result
// equals MDRValue(V_DM, V_MIPS, w, q̂) exactly.
func (e MDR) EstimatePolicyValue(in *EstimationInput) (float64, error) {
	qPi, wr, wq, err := e.components(in)
	if err != nil {
		return 0, err
	}
	return stat.Mean(qPi, nil) + stat.Mean(wr, nil) - stat.Mean(wq, nil), nil
}

// MDRValue combines already computed DM and MIPS values with the
// embedding-aware correction term.
func MDRValue(vDM, vMIPS float64, w, qHatObserved []float64) float64 {
	wq := make([]float64, len(w))
	for i := range w {
		wq[i] = w[i] * qHatObserved[i]
	}
	return vDM + vMIPS - stat.Mean(wq, nil)
}

func allDims(d int) []int {
	dims := make([]int, d)
	for i := range dims {
		dims[i] = i
	}
	return dims
}
