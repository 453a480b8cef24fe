package ope

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/goope/core/parallel"
	"github.com/YuminosukeSato/goope/pkg/errors"
)

// marginalParallelThreshold is the round count above which rows are
// marginalized concurrently.
const marginalParallelThreshold = 2000

// MarginalWeights holds the per-round marginal embedding probabilities
// under both policies and their ratio.
type MarginalWeights struct {
	// W is P(e_i|x_i, π_e) / P(e_i|x_i, π_b).
	W []float64
	// PEPiB is P(e_i|x_i, π_b).
	PEPiB []float64
	// PEPiE is P(e_i|x_i, π_e).
	PEPiE []float64
}

// ComputeMarginalWeights marginalizes both action distributions through the
// transition kernel P(e_d|a) at the observed embedding of every round.
//
// Embedding dimensions are treated as conditionally independent given the
// action, so the joint probability is the product over dims. dims selects
// a subset of embedding dimensions; nil means all of them. Each round uses
// the action distribution of its own slot (slot 0 when position is nil).
//
// A zero marginal under π_b yields an Inf or NaN weight; callers apply
// their NumericalPolicy.
func ComputeMarginalWeights(piB, piE, kernel *Tensor3, embed *mat.Dense, position []int, dims []int) (*MarginalWeights, error) {
	if piB == nil || piE == nil || kernel == nil || embed == nil {
		return nil, errors.NewValidationError("marginal_weights", "pi_b, action_dist, p_e_a and action_embed are required", nil)
	}
	n, nA, lenList := piB.Dims()
	if e0, e1, e2 := piE.Dims(); e0 != n || e1 != nA || e2 != lenList {
		return nil, errors.NewInputShapeError("estimate", "action_dist", piB.Shape(), piE.Shape())
	}
	kA, nValues, dE := kernel.Dims()
	if kA != nA {
		return nil, errors.NewDimensionError("ComputeMarginalWeights.p_e_a", nA, kA, 0)
	}
	er, ec := embed.Dims()
	if er != n {
		return nil, errors.NewDimensionError("ComputeMarginalWeights.action_embed", n, er, 0)
	}
	if ec != dE {
		return nil, errors.NewDimensionError("ComputeMarginalWeights.action_embed", dE, ec, 1)
	}
	pos, err := CheckPositions(position, n, lenList)
	if err != nil {
		return nil, err
	}
	if dims == nil {
		dims = make([]int, dE)
		for d := range dims {
			dims[d] = d
		}
	}
	for _, d := range dims {
		if d < 0 || d >= dE {
			return nil, errors.NewValidationError("dims", "embedding dimension out of range", d)
		}
	}
	// e[i*len(dims)+k] is the category of round i in dims[k].
	e := make([]int, n*len(dims))
	for i := 0; i < n; i++ {
		for k, d := range dims {
			v := embed.At(i, d)
			c := int(v)
			if c < 0 || c >= nValues || float64(c) != v {
				return nil, errors.NewValidationError("action_embed", "values must be integer categories within the kernel range",
					map[string]interface{}{"round": i, "dim": d, "value": v})
			}
			e[i*len(dims)+k] = c
		}
	}
	if !isIdentity(dims, dE) {
		kernel = kernel.SelectLast(dims)
	}

	mw := &MarginalWeights{
		W:     make([]float64, n),
		PEPiB: make([]float64, n),
		PEPiE: make([]float64, n),
	}
	parallel.ParallelizeWithThreshold(n, marginalParallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			pb, pe := 1.0, 1.0
			for k := range dims {
				c := e[i*len(dims)+k]
				var sb, se float64
				for a := 0; a < nA; a++ {
					kv := kernel.At(a, c, k)
					sb += piB.At(i, a, pos[i]) * kv
					se += piE.At(i, a, pos[i]) * kv
				}
				pb *= sb
				pe *= se
			}
			mw.PEPiB[i] = pb
			mw.PEPiE[i] = pe
			mw.W[i] = pe / pb
		}
	})
	return mw, nil
}

func isIdentity(dims []int, n int) bool {
	if len(dims) != n {
		return false
	}
	for i, d := range dims {
		if d != i {
			return false
		}
	}
	return true
}
