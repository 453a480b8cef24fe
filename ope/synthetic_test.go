package ope

import (
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// synthetic is a logged dataset drawn from a known reward model
// q(x,a) = mu[a] + 0.5·x0 + 0.1·E[Σ_d e_d | a].
type synthetic struct {
	feedback   *BanditFeedback
	actionDist *Tensor3
	q          func(i, a int) float64
}

type syntheticConfig struct {
	n        int
	nActions int
	dE       int
	nValues  int
	target   int
	// eps mixes the one-hot evaluation policy with the uniform policy.
	eps  float64
	seed uint64
}

func newSynthetic(t testing.TB, cfg syntheticConfig) *synthetic {
	t.Helper()
	src := rand.New(rand.NewPCG(cfg.seed, cfg.seed+7))
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	noise := distuv.Normal{Mu: 0, Sigma: 0.1, Src: src}

	n, nA := cfg.n, cfg.nActions
	context := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		context.Set(i, 0, normal.Rand())
		context.Set(i, 1, normal.Rand())
	}

	kernel := NewTensor3(nA, cfg.nValues, cfg.dE, nil)
	p := make([]float64, cfg.nValues)
	for a := 0; a < nA; a++ {
		for d := 0; d < cfg.dE; d++ {
			for v := range p {
				p[v] = 0.2 + src.Float64()
			}
			p[(a+d)%cfg.nValues] += 3
			floats.Scale(1/floats.Sum(p), p)
			for v, pv := range p {
				kernel.Set(a, v, d, pv)
			}
		}
	}

	mu := make([]float64, nA)
	embedMean := make([]float64, nA)
	for a := range mu {
		mu[a] = 1 - 0.15*float64(a)
		for d := 0; d < cfg.dE; d++ {
			for v := 0; v < cfg.nValues; v++ {
				embedMean[a] += float64(v) * kernel.At(a, v, d)
			}
		}
	}
	q := func(i, a int) float64 {
		return mu[a] + 0.5*context.At(i, 0) + 0.1*embedMean[a]
	}

	piB := NewTensor3(n, nA, 1, nil)
	piE := NewTensor3(n, nA, 1, nil)
	uniform := make([]float64, nA)
	for a := range uniform {
		uniform[a] = 1 / float64(nA)
	}
	behavior := distuv.NewCategorical(uniform, src)

	action := make([]int, n)
	reward := make([]float64, n)
	embed := mat.NewDense(n, cfg.dE, nil)
	col := make([]float64, cfg.nValues)
	for i := 0; i < n; i++ {
		for a := 0; a < nA; a++ {
			piB.Set(i, a, 0, uniform[a])
			e := cfg.eps / float64(nA)
			if a == cfg.target {
				e += 1 - cfg.eps
			}
			piE.Set(i, a, 0, e)
		}
		a := int(behavior.Rand())
		action[i] = a
		var esum float64
		for d := 0; d < cfg.dE; d++ {
			kernel.Fiber(col, a, d)
			e := distuv.NewCategorical(col, src).Rand()
			embed.Set(i, d, e)
			esum += e
		}
		reward[i] = mu[a] + 0.5*context.At(i, 0) + 0.1*esum + noise.Rand()
	}

	return &synthetic{
		feedback: &BanditFeedback{
			NRounds:     n,
			NActions:    nA,
			Context:     context,
			Action:      action,
			Reward:      reward,
			ActionEmbed: embed,
			PiB:         piB,
			PEA:         kernel,
		},
		actionDist: piE,
		q:          q,
	}
}

func defaultSynthetic(t testing.TB) *synthetic {
	return newSynthetic(t, syntheticConfig{n: 300, nActions: 4, dE: 3, nValues: 4, eps: 0.3, seed: 1})
}

// trueValue is Σ_i Σ_a π_e(a|x_i) q(x_i,a) / n.
func (s *synthetic) trueValue() float64 {
	n, nA, _ := s.actionDist.Dims()
	var v float64
	for i := 0; i < n; i++ {
		for a := 0; a < nA; a++ {
			v += s.actionDist.At(i, a, 0) * s.q(i, a)
		}
	}
	return v / float64(n)
}

func (s *synthetic) regressionInput() *RegressionInput {
	f := s.feedback
	pscore, _ := f.PScores()
	return &RegressionInput{
		Context:    f.Context,
		Action:     f.Action,
		Reward:     f.Reward,
		Embedding:  f.ActionEmbed,
		PScore:     pscore,
		ActionDist: s.actionDist,
	}
}

func (s *synthetic) estimationInput(qHat *Tensor3) *EstimationInput {
	f := s.feedback
	pscore, _ := f.PScores()
	return &EstimationInput{
		Reward:           f.Reward,
		Action:           f.Action,
		PScore:           pscore,
		ActionDist:       s.actionDist,
		EstimatedRewards: qHat,
		PiB:              f.PiB,
		ActionEmbed:      f.ActionEmbed,
		PEA:              f.PEA,
	}
}

// oracleQ fills a tensor with the true q(x,a).
func (s *synthetic) oracleQ() *Tensor3 {
	n, nA, _ := s.actionDist.Dims()
	q := NewTensor3(n, nA, 1, nil)
	for i := 0; i < n; i++ {
		for a := 0; a < nA; a++ {
			q.Set(i, a, 0, s.q(i, a))
		}
	}
	return q
}
