package ope

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// slopeC is the constant of the SLOPE consistency test.
var slopeC = math.Sqrt(6) - 1

// slopeWidth returns the mean of r and the width sqrt(Var(r)/(n−1)) using
// the population variance.
func slopeWidth(r []float64) (theta, cnf float64) {
	mean, variance := stat.PopMeanVariance(r, nil)
	return mean, math.Sqrt(variance / float64(len(r)-1))
}

// slopeConsistent reports whether candidate (theta, cnf) lies within the
// intervals of every previously accepted estimate.
func slopeConsistent(theta, cnf float64, thetas, cnfs []float64) bool {
	for j := range thetas {
		if math.Abs(thetas[j]-theta) > cnf+slopeC*cnfs[j] {
			return false
		}
	}
	return true
}

// byWidthDesc returns candidate indices ordered by decreasing width.
func byWidthDesc(cnfs []float64) []int {
	idx := make([]int, len(cnfs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return cnfs[idx[a]] < cnfs[idx[b]] })
	for i, j := 0, len(idx)-1; i < j; i, j = i+1, j-1 {
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}

// tuneLambda evaluates fn at every candidate in lambdas and keeps the
// narrowest candidate that stays consistent with all wider ones. With no
// candidates it evaluates fn at lambda.
func tuneLambda(in *EstimationInput, lambda float64, lambdas []float64,
	fn func(*EstimationInput, float64) ([]float64, error)) ([]float64, error) {
	if len(lambdas) == 0 {
		return fn(in, lambda)
	}
	rewards := make([][]float64, len(lambdas))
	thetas := make([]float64, len(lambdas))
	cnfs := make([]float64, len(lambdas))
	for k, l := range lambdas {
		r, err := fn(in, l)
		if err != nil {
			return nil, err
		}
		rewards[k] = r
		thetas[k], cnfs[k] = slopeWidth(r)
	}

	order := byWidthDesc(cnfs)
	best := order[0]
	var accT, accC []float64
	for _, k := range order {
		if !slopeConsistent(thetas[k], cnfs[k], accT, accC) {
			break
		}
		accT = append(accT, thetas[k])
		accC = append(accC, cnfs[k])
		best = k
	}
	return rewards[best], nil
}

// greedy prunes embedding dimensions one at a time. At each step every
// single-dimension removal is scored; candidates are visited from widest
// to narrowest and accepted while consistent with all accepted estimates.
// The narrowest visited candidate's dimension is then dropped.
func (e MIPS) greedy(in *EstimationInput) ([]float64, []int, error) {
	minDim := e.MinEmbDim
	if minDim < 1 {
		minDim = 1
	}
	current := e.Dims
	if current == nil {
		_, dE := in.ActionEmbed.Dims()
		current = allDims(dE)
	}

	r, _, err := e.roundRewardsWithDims(in, current)
	if err != nil {
		return nil, nil, err
	}
	theta, cnf := slopeWidth(r)
	thetas, cnfs := []float64{theta}, []float64{cnf}
	bestR, bestDims := r, append([]int(nil), current...)

	for len(current) > minDim {
		candR := make([][]float64, len(current))
		candDims := make([][]int, len(current))
		candT := make([]float64, len(current))
		candC := make([]float64, len(current))
		for k := range current {
			dims := make([]int, 0, len(current)-1)
			dims = append(dims, current[:k]...)
			dims = append(dims, current[k+1:]...)
			rk, _, err := e.roundRewardsWithDims(in, dims)
			if err != nil {
				return nil, nil, err
			}
			candR[k], candDims[k] = rk, dims
			candT[k], candC[k] = slopeWidth(rk)
		}

		last := -1
		for _, k := range byWidthDesc(candC) {
			if !slopeConsistent(candT[k], candC[k], thetas, cnfs) {
				return bestR, bestDims, nil
			}
			thetas = append(thetas, candT[k])
			cnfs = append(cnfs, candC[k])
			bestR, bestDims = candR[k], candDims[k]
			last = k
		}
		current = candDims[last]
	}
	return bestR, bestDims, nil
}
