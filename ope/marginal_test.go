package ope

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// permutationKernel maps action a to embedding value perm[a] with
// probability one in a single dimension.
func permutationKernel(perm []int) *Tensor3 {
	k := NewTensor3(len(perm), len(perm), 1, nil)
	for a, v := range perm {
		k.Set(a, v, 0, 1)
	}
	return k
}

func TestMarginalWeightsReduceToIPS(t *testing.T) {
	s := newSynthetic(t, syntheticConfig{n: 200, nActions: 4, dE: 1, nValues: 4, eps: 0.4, seed: 3})
	for _, perm := range [][]int{{0, 1, 2, 3}, {2, 0, 3, 1}} {
		embed := mat.NewDense(200, 1, nil)
		for i, a := range s.feedback.Action {
			embed.Set(i, 0, float64(perm[a]))
		}
		in := s.estimationInput(nil)
		in.PEA = permutationKernel(perm)
		in.ActionEmbed = embed

		mw, err := ComputeMarginalWeights(in.PiB, in.ActionDist, in.PEA, embed, nil, nil)
		require.NoError(t, err)
		iw := in.importanceWeights()
		assert.InDeltaSlice(t, iw, mw.W, 1e-12)

		mips, err := MIPS{}.EstimatePolicyValue(in)
		require.NoError(t, err)
		ips, err := IPS{}.EstimatePolicyValue(in)
		require.NoError(t, err)
		assert.InDelta(t, ips, mips, 1e-12)
	}
}

func TestMarginalWeightsProductOverDims(t *testing.T) {
	// two actions, two binary embedding dimensions
	kernel := NewTensor3(2, 2, 2, []float64{
		// a=0: P(e=0|d=0)=0.9 P(e=0|d=1)=0.3
		0.9, 0.3,
		0.1, 0.7,
		// a=1
		0.2, 0.6,
		0.8, 0.4,
	})
	piB := NewTensor3(1, 2, 1, []float64{0.5, 0.5})
	piE := NewTensor3(1, 2, 1, []float64{0.25, 0.75})
	embed := mat.NewDense(1, 2, []float64{1, 0})

	mw, err := ComputeMarginalWeights(piB, piE, kernel, embed, nil, nil)
	require.NoError(t, err)

	pb := (0.5*0.1 + 0.5*0.8) * (0.5*0.3 + 0.5*0.6)
	pe := (0.25*0.1 + 0.75*0.8) * (0.25*0.3 + 0.75*0.6)
	assert.InDelta(t, pb, mw.PEPiB[0], 1e-12)
	assert.InDelta(t, pe, mw.PEPiE[0], 1e-12)
	assert.InDelta(t, pe/pb, mw.W[0], 1e-12)

	only1, err := ComputeMarginalWeights(piB, piE, kernel, embed, nil, []int{1})
	require.NoError(t, err)
	assert.InDelta(t, (0.25*0.3+0.75*0.6)/(0.5*0.3+0.5*0.6), only1.W[0], 1e-12)
}

func TestMarginalWeightsUseRoundSlot(t *testing.T) {
	kernel := permutationKernel([]int{0, 1})
	piB := NewTensor3(1, 2, 2, []float64{0.5, 0.2, 0.5, 0.8})
	piE := NewTensor3(1, 2, 2, []float64{0.5, 0.6, 0.5, 0.4})
	embed := mat.NewDense(1, 1, []float64{0})

	slot0, err := ComputeMarginalWeights(piB, piE, kernel, embed, []int{0}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, slot0.W[0], 1e-12)

	slot1, err := ComputeMarginalWeights(piB, piE, kernel, embed, []int{1}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, slot1.W[0], 1e-12)
}

func TestMarginalWeightsZeroBehaviorMarginal(t *testing.T) {
	kernel := permutationKernel([]int{0, 1})
	piB := NewTensor3(2, 2, 1, []float64{1, 0, 1, 0})
	piE := NewTensor3(2, 2, 1, []float64{0.5, 0.5, 1, 0})
	embed := mat.NewDense(2, 1, []float64{1, 1})

	mw, err := ComputeMarginalWeights(piB, piE, kernel, embed, nil, nil)
	require.NoError(t, err)
	assert.True(t, math.IsInf(mw.W[0], 1))
	assert.True(t, math.IsNaN(mw.W[1]))
}

func TestMarginalWeightsErrors(t *testing.T) {
	kernel := permutationKernel([]int{0, 1})
	piB := uniformDist(2, 2, 1)
	embed := mat.NewDense(2, 1, []float64{0, 1})

	_, err := ComputeMarginalWeights(piB, uniformDist(3, 2, 1), kernel, embed, nil, nil)
	assert.Error(t, err)
	_, err = ComputeMarginalWeights(piB, piB, kernel, mat.NewDense(2, 1, []float64{0, 2}), nil, nil)
	assert.Error(t, err)
	_, err = ComputeMarginalWeights(piB, piB, kernel, embed, nil, []int{1})
	assert.Error(t, err)
	_, err = ComputeMarginalWeights(piB, piB, kernel, embed, []int{0, 1}, nil)
	assert.Error(t, err)
	_, err = ComputeMarginalWeights(nil, piB, kernel, embed, nil, nil)
	assert.Error(t, err)
}

// rowwiseMarginal computes Π_d Σ_a π(a|x_i)·P(e_id|a) for one round.
func rowwiseMarginal(pi, kernel *Tensor3, embed *mat.Dense, i int, dims []int) float64 {
	_, nA, _ := pi.Dims()
	p := 1.0
	for _, d := range dims {
		e := int(embed.At(i, d))
		var s float64
		for a := 0; a < nA; a++ {
			s += pi.At(i, a, 0) * kernel.At(a, e, d)
		}
		p *= s
	}
	return p
}

func TestMarginalWeightsLargeSampleSubsetDims(t *testing.T) {
	n := marginalParallelThreshold + 500
	s := newSynthetic(t, syntheticConfig{n: n, nActions: 3, dE: 3, nValues: 4, eps: 0.2, seed: 11})
	f := s.feedback

	for _, dims := range [][]int{{0, 1, 2}, {2, 1, 0}, {2, 0}, {1}} {
		mw, err := ComputeMarginalWeights(f.PiB, s.actionDist, f.PEA, f.ActionEmbed, nil, dims)
		require.NoError(t, err)
		require.Len(t, mw.W, n)
		for _, i := range []int{0, 1, n / 2, n - 1} {
			pb := rowwiseMarginal(f.PiB, f.PEA, f.ActionEmbed, i, dims)
			pe := rowwiseMarginal(s.actionDist, f.PEA, f.ActionEmbed, i, dims)
			assert.InDelta(t, pb, mw.PEPiB[i], 1e-12, "dims %v round %d", dims, i)
			assert.InDelta(t, pe/pb, mw.W[i], 1e-9, "dims %v round %d", dims, i)
		}
	}
}
