package ope

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/goope/pkg/errors"
)

// ProbTolerance is the absolute/relative tolerance used when checking that
// probability vectors sum to one.
const ProbTolerance = 1e-8

// BanditFeedback is a logged contextual-bandit dataset. It is treated as
// read-only once constructed.
type BanditFeedback struct {
	NRounds  int
	NActions int

	// Context is (n_rounds, dim_context).
	Context *mat.Dense
	// Action holds the logged action id per round.
	Action []int
	// Reward holds the observed reward per round.
	Reward []float64
	// Position holds the slot per round. nil means slot 0 everywhere.
	Position []int
	// PScore is π_b(a_i|x_i). nil means it is derived from PiB.
	PScore []float64
	// ActionEmbed is (n_rounds, d_e) with categorical values per dimension.
	ActionEmbed *mat.Dense
	// PiB is the behavior-policy action distribution (n_rounds, n_actions, len_list).
	PiB *Tensor3
	// PEA is the transition kernel P(e_d|a) with shape (n_actions, n_values, d_e).
	PEA *Tensor3
	// ActionContext is (n_actions, dim_action_context). nil means one-hot.
	ActionContext *mat.Dense
}

// Validate checks shapes and probability contracts against lenList slots.
func (f *BanditFeedback) Validate(lenList int) error {
	if f.NRounds < 1 {
		return errors.NewValidationError("n_rounds", "must be at least 1", f.NRounds)
	}
	if f.NActions < 2 {
		return errors.NewValidationError("n_actions", "must be at least 2", f.NActions)
	}
	if lenList < 1 {
		return errors.NewValidationError("len_list", "must be at least 1", lenList)
	}
	n := f.NRounds
	if f.Context == nil {
		return errors.NewValidationError("context", "is required", nil)
	}
	if r, _ := f.Context.Dims(); r != n {
		return errors.NewDimensionError("BanditFeedback.context", n, r, 0)
	}
	if len(f.Action) != n {
		return errors.NewDimensionError("BanditFeedback.action", n, len(f.Action), 0)
	}
	for i, a := range f.Action {
		if a < 0 || a >= f.NActions {
			return errors.NewValidationError("action", "must be in [0, n_actions)", map[string]int{"round": i, "action": a})
		}
	}
	if len(f.Reward) != n {
		return errors.NewDimensionError("BanditFeedback.reward", n, len(f.Reward), 0)
	}
	if _, err := CheckPositions(f.Position, n, lenList); err != nil {
		return err
	}
	if f.PScore != nil && len(f.PScore) != n {
		return errors.NewDimensionError("BanditFeedback.pscore", n, len(f.PScore), 0)
	}
	if f.PiB != nil {
		if err := CheckActionDist(f.PiB, n, f.NActions, lenList); err != nil {
			return errors.Wrap(err, "pi_b")
		}
	}
	if f.ActionContext != nil {
		if r, _ := f.ActionContext.Dims(); r != f.NActions {
			return errors.NewDimensionError("BanditFeedback.action_context", f.NActions, r, 0)
		}
	}
	if f.PEA != nil {
		if err := f.validateKernel(); err != nil {
			return err
		}
	}
	if f.ActionEmbed != nil {
		if err := f.validateEmbedding(); err != nil {
			return err
		}
	}
	return nil
}

func (f *BanditFeedback) validateKernel() error {
	nA, nV, dE := f.PEA.Dims()
	if nA != f.NActions || nV < 1 || dE < 1 {
		return errors.NewInputShapeError("validate", "p_e_a", []int{f.NActions, nV, dE}, f.PEA.Shape())
	}
	col := make([]float64, nV)
	for a := 0; a < nA; a++ {
		for d := 0; d < dE; d++ {
			f.PEA.Fiber(col, a, d)
			if err := checkDistribution("p_e_a", col); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *BanditFeedback) validateEmbedding() error {
	r, dE := f.ActionEmbed.Dims()
	if r != f.NRounds {
		return errors.NewDimensionError("BanditFeedback.action_embed", f.NRounds, r, 0)
	}
	nValues := math.MaxInt
	if f.PEA != nil {
		_, nV, kd := f.PEA.Dims()
		if kd != dE {
			return errors.NewDimensionError("BanditFeedback.action_embed", kd, dE, 1)
		}
		nValues = nV
	}
	for i := 0; i < r; i++ {
		for d := 0; d < dE; d++ {
			v := f.ActionEmbed.At(i, d)
			if v != math.Trunc(v) || v < 0 || v >= float64(nValues) {
				return errors.NewValidationError("action_embed", "values must be integer categories within the kernel range",
					map[string]interface{}{"round": i, "dim": d, "value": v})
			}
		}
	}
	return nil
}

// PScores returns π_b(a_i|x_i, pos_i) per round: a copy of PScore when
// set, otherwise the entries of PiB at the logged action and slot.
func (f *BanditFeedback) PScores() ([]float64, error) {
	if f.PScore != nil {
		return append([]float64(nil), f.PScore...), nil
	}
	if f.PiB == nil {
		return nil, errors.NewValidationError("pscore", "either pscore or pi_b is required", nil)
	}
	pos := positionsOrZero(f.Position, f.NRounds)
	out := make([]float64, f.NRounds)
	for i, a := range f.Action {
		out[i] = f.PiB.At(i, a, pos[i])
	}
	return out, nil
}

// Positions returns the slot per round, defaulting to 0.
func (f *BanditFeedback) Positions() []int {
	return positionsOrZero(f.Position, f.NRounds)
}

// Subset returns the rounds at idx (repeats allowed) as a new feedback.
// PEA and ActionContext are shared with f.
func (f *BanditFeedback) Subset(idx []int) (*BanditFeedback, error) {
	for _, i := range idx {
		if i < 0 || i >= f.NRounds {
			return nil, errors.NewValidationError("idx", "must be in [0, n_rounds)", i)
		}
	}
	out := &BanditFeedback{
		NRounds:       len(idx),
		NActions:      f.NActions,
		PEA:           f.PEA,
		ActionContext: f.ActionContext,
		Action:        make([]int, len(idx)),
		Reward:        make([]float64, len(idx)),
	}
	for r, i := range idx {
		out.Action[r] = f.Action[i]
		out.Reward[r] = f.Reward[i]
	}
	if f.Position != nil {
		out.Position = make([]int, len(idx))
		for r, i := range idx {
			out.Position[r] = f.Position[i]
		}
	}
	if f.PScore != nil {
		out.PScore = make([]float64, len(idx))
		for r, i := range idx {
			out.PScore[r] = f.PScore[i]
		}
	}
	out.Context = selectDenseRows(f.Context, idx)
	out.ActionEmbed = selectDenseRows(f.ActionEmbed, idx)
	if f.PiB != nil {
		out.PiB = f.PiB.SelectRows(idx)
	}
	return out, nil
}

func selectDenseRows(m *mat.Dense, idx []int) *mat.Dense {
	if m == nil || len(idx) == 0 {
		return nil
	}
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for r, i := range idx {
		out.SetRow(r, m.RawRowView(i))
	}
	return out
}

// CheckActionDist verifies that dist has shape (n, nActions, lenList), has
// only finite non-negative entries, and sums to one over actions for every
// round and slot.
func CheckActionDist(dist *Tensor3, n, nActions, lenList int) error {
	if dist == nil {
		return errors.NewValidationError("action_dist", "is required", nil)
	}
	d0, d1, d2 := dist.Dims()
	if d0 != n || d1 != nActions || d2 != lenList {
		return errors.NewInputShapeError("validate", "action_dist", []int{n, nActions, lenList}, dist.Shape())
	}
	col := make([]float64, nActions)
	for i := 0; i < n; i++ {
		for k := 0; k < lenList; k++ {
			dist.Fiber(col, i, k)
			if err := checkDistribution("action_dist", col); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkDistribution(param string, p []float64) error {
	for _, v := range p {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewValidationError(param, "probabilities must be finite and non-negative", v)
		}
	}
	if s := floats.Sum(p); !scalar.EqualWithinAbsOrRel(s, 1, ProbTolerance, ProbTolerance) {
		return errors.NewValidationError(param, "must sum to 1 over the distribution axis", s)
	}
	return nil
}

// CheckPositions validates position values against lenList and returns the
// effective slot per round.
func CheckPositions(position []int, n, lenList int) ([]int, error) {
	if position == nil {
		return positionsOrZero(nil, n), nil
	}
	if len(position) != n {
		return nil, errors.NewDimensionError("position", n, len(position), 0)
	}
	for i, p := range position {
		if p < 0 || p >= lenList {
			return nil, errors.NewValidationError("position", "must be in [0, len_list)",
				map[string]int{"round": i, "position": p, "len_list": lenList})
		}
	}
	return position, nil
}

func positionsOrZero(position []int, n int) []int {
	if position != nil {
		return position
	}
	return make([]int, n)
}
