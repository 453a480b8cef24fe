package ope

import (
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/goope/pkg/errors"
)

// Fold is one train/test partition of round indices.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold splits rounds into NSplits disjoint shuffled test folds.
type KFold struct {
	NSplits    int
	RandomSeed int64
}

// NewKFold creates a splitter. nSplits must be at least 1.
func NewKFold(nSplits int, randomSeed int64) (*KFold, error) {
	if nSplits < 1 {
		return nil, errors.NewValidationError("n_folds", "must be at least 1", nSplits)
	}
	return &KFold{NSplits: nSplits, RandomSeed: randomSeed}, nil
}

// Split partitions [0, n) into folds. Each index appears in exactly one
// TestIndices slice. With a single split the fold trains and tests on all
// rounds.
func (kf *KFold) Split(n int) ([]Fold, error) {
	if n < kf.NSplits {
		return nil, errors.NewValidationError("n_folds", "cannot exceed the number of rounds",
			map[string]int{"n_folds": kf.NSplits, "n_rounds": n})
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if kf.NSplits == 1 {
		return []Fold{{TrainIndices: indices, TestIndices: append([]int(nil), indices...)}}, nil
	}

	seed := uint64(kf.RandomSeed)
	r := rand.New(rand.NewPCG(seed, seed))
	r.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	folds := make([]Fold, kf.NSplits)
	foldSize := n / kf.NSplits
	remainder := n % kf.NSplits
	inTest := make([]bool, n)

	current := 0
	for k := 0; k < kf.NSplits; k++ {
		testSize := foldSize
		if k < remainder {
			testSize++
		}
		test := append([]int(nil), indices[current:current+testSize]...)
		sort.Ints(test)

		for i := range inTest {
			inTest[i] = false
		}
		for _, i := range test {
			inTest[i] = true
		}
		train := make([]int, 0, n-testSize)
		for i := 0; i < n; i++ {
			if !inTest[i] {
				train = append(train, i)
			}
		}

		folds[k] = Fold{TrainIndices: train, TestIndices: test}
		current += testSize
	}
	return folds, nil
}
