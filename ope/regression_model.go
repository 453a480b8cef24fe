package ope

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/goope/core/model"
	"github.com/YuminosukeSato/goope/core/parallel"
	"github.com/YuminosukeSato/goope/pkg/errors"
	"github.com/YuminosukeSato/goope/pkg/log"
	"github.com/YuminosukeSato/goope/preprocessing"
)

// RegressionInput is the logged data a RegressionModel is trained on.
type RegressionInput struct {
	Context *mat.Dense
	Action  []int
	Reward  []float64
	// Embedding is required by embedding-aware models and ignored otherwise.
	Embedding *mat.Dense
	// PScore defaults to 1/n_actions.
	PScore []float64
	// Position defaults to slot 0.
	Position []int
	// ActionDist is the evaluation policy, required for iw and mrdr.
	ActionDist *Tensor3
}

// RegressionModel estimates q(x,a), or q(x,a,e) when embedding-aware, with
// one base model per slot.
type RegressionModel struct {
	base          model.Estimator
	nActions      int
	lenList       int
	method        FittingMethod
	actionContext *mat.Dense
	useEmbedding  bool
	foldWorkers   int
	policy        NumericalPolicy
	logger        log.Logger

	state     *model.StateManager
	models    []model.Estimator
	nonFinite int
}

// RegressionOption configures a RegressionModel.
type RegressionOption func(*RegressionModel)

// WithFittingMethod sets the sample weighting strategy.
func WithFittingMethod(m FittingMethod) RegressionOption {
	return func(rm *RegressionModel) { rm.method = m }
}

// WithLenList sets the number of slots.
func WithLenList(l int) RegressionOption {
	return func(rm *RegressionModel) { rm.lenList = l }
}

// WithActionContext sets the (n_actions, dim) action feature matrix.
func WithActionContext(ac *mat.Dense) RegressionOption {
	return func(rm *RegressionModel) { rm.actionContext = ac }
}

// WithEmbedding makes the model condition on the action embedding.
func WithEmbedding(on bool) RegressionOption {
	return func(rm *RegressionModel) { rm.useEmbedding = on }
}

// WithParallelFolds fits cross-fitting folds on up to workers goroutines
// (0 means one per CPU).
func WithParallelFolds(workers int) RegressionOption {
	return func(rm *RegressionModel) {
		if workers == 0 {
			workers = -1
		}
		rm.foldWorkers = workers
	}
}

// WithNumericalPolicy sets how non-finite sample weights are handled.
func WithNumericalPolicy(p NumericalPolicy) RegressionOption {
	return func(rm *RegressionModel) { rm.policy = p }
}

// WithLogger overrides the component logger.
func WithLogger(l log.Logger) RegressionOption {
	return func(rm *RegressionModel) { rm.logger = l }
}

// NewRegressionModel creates a reward regressor around base. base is cloned
// for every slot and fold and is never fit itself.
//
//	rm, err := ope.NewRegressionModel(ensemble.NewRandomForestRegressor(), nActions,
//	    ope.WithFittingMethod(ope.FittingIW))
//	qHat, err := rm.FitPredict(in, 2, 12345)
func NewRegressionModel(base model.Estimator, nActions int, opts ...RegressionOption) (*RegressionModel, error) {
	rm := &RegressionModel{
		base:        base,
		nActions:    nActions,
		lenList:     1,
		method:      FittingNormal,
		foldWorkers: 1,
		state:       model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(rm)
	}
	if rm.logger == nil {
		rm.logger = log.GetLoggerWithName("ope.regression")
	}

	if base == nil {
		return nil, errors.NewValidationError("base_model", "is required", nil)
	}
	if _, ok := base.(model.Cloner); !ok {
		return nil, errors.NewValidationError("base_model", "must implement Clone", base)
	}
	if !rm.method.valid() {
		return nil, errors.NewValidationError("fitting_method", "must be one of normal, iw, mrdr", int(rm.method))
	}
	if rm.method != FittingNormal {
		if _, ok := base.(model.WeightedFitter); !ok {
			return nil, errors.NewValidationError("base_model", "must support sample weights for "+rm.method.String(), base)
		}
	}
	if nActions < 2 {
		return nil, errors.NewValidationError("n_actions", "must be at least 2", nActions)
	}
	if rm.lenList < 1 {
		return nil, errors.NewValidationError("len_list", "must be at least 1", rm.lenList)
	}
	if rm.actionContext == nil {
		rm.actionContext = preprocessing.IdentityActionContext(nActions)
	} else if r, _ := rm.actionContext.Dims(); r != nActions {
		return nil, errors.NewDimensionError("RegressionModel.action_context", nActions, r, 0)
	}
	return rm, nil
}

// NonFiniteWeights is the number of non-finite sample weights seen by the
// last Fit, FitPredict or CrossFit call.
func (rm *RegressionModel) NonFiniteWeights() int { return rm.nonFinite }

// IsFitted reports whether Fit has completed.
func (rm *RegressionModel) IsFitted() bool { return rm.state.IsFitted() }

type preparedInput struct {
	in       *RegressionInput
	position []int
	weights  []float64
}

func (rm *RegressionModel) prepare(in *RegressionInput) (*preparedInput, error) {
	if in == nil || in.Context == nil {
		return nil, errors.NewValidationError("context", "is required", nil)
	}
	n, _ := in.Context.Dims()
	if n == 0 {
		return nil, errors.NewModelError("RegressionModel.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(in.Action) != n {
		return nil, errors.NewDimensionError("RegressionModel.action", n, len(in.Action), 0)
	}
	for i, a := range in.Action {
		if a < 0 || a >= rm.nActions {
			return nil, errors.NewValidationError("action", "must be in [0, n_actions)", map[string]int{"round": i, "action": a})
		}
	}
	if len(in.Reward) != n {
		return nil, errors.NewDimensionError("RegressionModel.reward", n, len(in.Reward), 0)
	}
	if err := rm.checkEmbedding(in.Embedding, n); err != nil {
		return nil, err
	}
	pos, err := CheckPositions(in.Position, n, rm.lenList)
	if err != nil {
		return nil, err
	}

	p := &preparedInput{in: in, position: pos}
	rm.nonFinite = 0
	if rm.method == FittingNormal {
		return p, nil
	}

	if in.ActionDist == nil {
		return nil, errors.NewValidationError("action_dist", "is required when fitting_method is "+rm.method.String(), nil)
	}
	if err := CheckActionDist(in.ActionDist, n, rm.nActions, rm.lenList); err != nil {
		return nil, err
	}
	pscore := in.PScore
	if pscore == nil {
		pscore = make([]float64, n)
		for i := range pscore {
			pscore[i] = 1 / float64(rm.nActions)
		}
	} else if len(pscore) != n {
		return nil, errors.NewDimensionError("RegressionModel.pscore", n, len(pscore), 0)
	}
	piE := make([]float64, n)
	for i, a := range in.Action {
		piE[i] = in.ActionDist.At(i, a, pos[i])
	}
	w, err := SampleWeights(rm.method, piE, pscore)
	if err != nil {
		return nil, err
	}
	bad, err := rm.policy.apply("RegressionModel.sample_weight", w)
	if err != nil {
		return nil, err
	}
	if bad > 0 {
		rm.nonFinite = bad
		rm.logger.Warn("non-finite sample weights",
			log.FittingMethodKey, rm.method.String(),
			log.NonFiniteKey, bad,
			log.SamplesKey, n,
		)
	}
	p.weights = w
	return p, nil
}

func (rm *RegressionModel) checkEmbedding(embedding *mat.Dense, n int) error {
	if !rm.useEmbedding {
		return nil
	}
	if embedding == nil {
		return errors.NewValidationError("action_embed", "is required by an embedding-aware model", nil)
	}
	if r, _ := embedding.Dims(); r != n {
		return errors.NewDimensionError("RegressionModel.action_embed", n, r, 0)
	}
	return nil
}

// Fit trains one fresh clone of the base model per slot on all rounds.
func (rm *RegressionModel) Fit(in *RegressionInput) (err error) {
	defer errors.Recover(&err, "RegressionModel.Fit")
	rm.reset()

	p, err := rm.prepare(in)
	if err != nil {
		return err
	}
	all := make([]int, len(in.Action))
	for i := range all {
		all[i] = i
	}
	models, err := rm.fitRows(p, all)
	if err != nil {
		return err
	}
	rm.models = models
	rm.state.MarkFitted(rm.nFeatures(in.Context, in.Embedding), len(all))
	return nil
}

func (rm *RegressionModel) reset() {
	rm.models = nil
	rm.state.Reset()
}

// Predict returns q̂ with shape (n_rounds, n_actions, len_list), querying
// every action at every slot.
func (rm *RegressionModel) Predict(context, embedding *mat.Dense) (*Tensor3, error) {
	if err := rm.state.RequireFitted("RegressionModel", "Predict"); err != nil {
		return nil, err
	}
	if context == nil {
		return nil, errors.NewValidationError("context", "is required", nil)
	}
	n, _ := context.Dims()
	if err := rm.checkEmbedding(embedding, n); err != nil {
		return nil, err
	}
	if err := rm.state.CheckFeatures("RegressionModel.Predict", rm.nFeatures(context, embedding)); err != nil {
		return nil, err
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	out := NewTensor3(n, rm.nActions, rm.lenList, nil)
	if err := rm.predictRows(rm.models, context, embedding, rows, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FitPredict returns q̂ for every round. With nFolds == 1 the model is fit
// on all rounds and predicts in-sample; otherwise rounds are split by KFold
// and each fold is predicted by models that never saw it.
func (rm *RegressionModel) FitPredict(in *RegressionInput, nFolds int, randomState int64) (*Tensor3, error) {
	if nFolds < 1 {
		return nil, errors.NewValidationError("n_folds", "must be at least 1", nFolds)
	}
	if nFolds == 1 {
		if err := rm.Fit(in); err != nil {
			return nil, err
		}
		return rm.Predict(in.Context, in.Embedding)
	}
	if in == nil || in.Context == nil {
		return nil, errors.NewValidationError("context", "is required", nil)
	}
	kf, err := NewKFold(nFolds, randomState)
	if err != nil {
		return nil, err
	}
	n, _ := in.Context.Dims()
	folds, err := kf.Split(n)
	if err != nil {
		return nil, err
	}
	return rm.CrossFit(in, folds)
}

// CrossFit fits fresh models on each fold's training rounds and writes
// their predictions for the fold's test rounds. The test indices of folds
// must partition the rounds. Models from an earlier Fit are discarded, so
// Predict fails until the next Fit.
func (rm *RegressionModel) CrossFit(in *RegressionInput, folds []Fold) (out *Tensor3, err error) {
	defer errors.Recover(&err, "RegressionModel.CrossFit")
	rm.reset()

	p, err := rm.prepare(in)
	if err != nil {
		return nil, err
	}
	n := len(in.Action)
	if err := checkPartition(folds, n); err != nil {
		return nil, err
	}

	start := time.Now()
	out = NewTensor3(n, rm.nActions, rm.lenList, nil)
	err = parallel.ForEach(len(folds), rm.foldWorkers, func(k int) (ferr error) {
		defer errors.Recover(&ferr, "RegressionModel.CrossFit.fold")
		models, ferr := rm.fitRows(p, folds[k].TrainIndices)
		if ferr != nil {
			return errors.Wrapf(ferr, "fold %d", k)
		}
		rm.logger.Debug("fold fitted",
			log.FoldKey, k,
			log.FoldsKey, len(folds),
			log.SamplesKey, len(folds[k].TrainIndices),
		)
		return rm.predictRows(models, in.Context, in.Embedding, folds[k].TestIndices, out)
	})
	if err != nil {
		return nil, err
	}
	rm.logger.Debug("cross-fitting completed",
		log.OperationKey, log.OperationFitPredict,
		log.FoldsKey, len(folds),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return out, nil
}

func checkPartition(folds []Fold, n int) error {
	if len(folds) == 0 {
		return errors.NewValidationError("folds", "must not be empty", nil)
	}
	seen := make([]bool, n)
	count := 0
	for _, f := range folds {
		for _, i := range f.TestIndices {
			if i < 0 || i >= n || seen[i] {
				return errors.NewValidationError("folds", "test indices must partition the rounds", i)
			}
			seen[i] = true
			count++
		}
	}
	if count != n {
		return errors.NewValidationError("folds", "test indices must cover every round", count)
	}
	return nil
}

// fitRows trains one clone per slot on the given rounds.
func (rm *RegressionModel) fitRows(p *preparedInput, rows []int) ([]model.Estimator, error) {
	in := p.in
	bySlot := make([][]int, rm.lenList)
	for _, i := range rows {
		bySlot[p.position[i]] = append(bySlot[p.position[i]], i)
	}

	models := make([]model.Estimator, rm.lenList)
	for slot, idx := range bySlot {
		if len(idx) == 0 {
			return nil, errors.NewValidationError("position", "slot has no training examples", slot)
		}
		actions := make([]int, len(idx))
		y := mat.NewDense(len(idx), 1, nil)
		for r, i := range idx {
			actions[r] = in.Action[i]
			y.Set(r, 0, in.Reward[i])
		}
		X := rm.features(in.Context, in.Embedding, idx, actions)

		m := rm.base.(model.Cloner).Clone()
		var err error
		if p.weights == nil {
			err = m.Fit(X, y)
		} else {
			w := make([]float64, len(idx))
			for r, i := range idx {
				w[r] = p.weights[i]
			}
			wf, ok := m.(model.WeightedFitter)
			if !ok {
				return nil, errors.NewValidationError("base_model", "clone does not support sample weights", m)
			}
			err = wf.FitWeighted(X, y, w)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "fit slot %d", slot)
		}
		models[slot] = m
		rm.logger.Debug("slot model fitted",
			log.OperationKey, log.OperationFit,
			log.PositionKey, slot,
			log.SamplesKey, len(idx),
			log.FittingMethodKey, rm.method.String(),
		)
	}
	return models, nil
}

// predictRows fills out[i, :, :] for every i in rows.
func (rm *RegressionModel) predictRows(models []model.Estimator, context, embedding *mat.Dense, rows []int, out *Tensor3) error {
	if len(rows) == 0 {
		return nil
	}
	// row r*nActions+a of X is round rows[r] with action a
	rep := make([]int, 0, len(rows)*rm.nActions)
	actions := make([]int, 0, len(rows)*rm.nActions)
	for _, i := range rows {
		for a := 0; a < rm.nActions; a++ {
			rep = append(rep, i)
			actions = append(actions, a)
		}
	}
	X := rm.features(context, embedding, rep, actions)

	for slot, m := range models {
		pred, err := predictScalar(m, X)
		if err != nil {
			return errors.Wrapf(err, "predict slot %d", slot)
		}
		for r, i := range rows {
			for a := 0; a < rm.nActions; a++ {
				out.Set(i, a, slot, pred[r*rm.nActions+a])
			}
		}
	}
	return nil
}

// predictScalar uses the positive-class probability for classifiers and
// the raw prediction otherwise.
func predictScalar(m model.Estimator, X mat.Matrix) ([]float64, error) {
	if pc, ok := m.(model.ProbabilisticClassifier); ok {
		proba, err := pc.PredictProba(X)
		if err != nil {
			return nil, err
		}
		return mat.Col(nil, 1, proba), nil
	}
	pred, err := m.Predict(X)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, 0, pred), nil
}

func (rm *RegressionModel) nFeatures(context, embedding *mat.Dense) int {
	_, c := context.Dims()
	if rm.useEmbedding && embedding != nil {
		_, e := embedding.Dims()
		c += e
	}
	_, ac := rm.actionContext.Dims()
	return c + ac
}

// features builds [context | embedding | action_context[action]] for each
// (rows[r], actions[r]) pair.
func (rm *RegressionModel) features(context, embedding *mat.Dense, rows, actions []int) *mat.Dense {
	_, dc := context.Dims()
	de := 0
	if rm.useEmbedding {
		_, de = embedding.Dims()
	}
	_, da := rm.actionContext.Dims()

	X := mat.NewDense(len(rows), dc+de+da, nil)
	for r, i := range rows {
		row := X.RawRowView(r)
		mat.Row(row[:dc], i, context)
		if de > 0 {
			mat.Row(row[dc:dc+de], i, embedding)
		}
		mat.Row(row[dc+de:], actions[r], rm.actionContext)
	}
	return X
}
