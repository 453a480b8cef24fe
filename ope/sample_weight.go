package ope

import (
	"strings"

	"github.com/YuminosukeSato/goope/pkg/errors"
)

// FittingMethod selects how a RegressionModel weights training examples.
type FittingMethod int

const (
	// FittingNormal fits with uniform sample weights.
	FittingNormal FittingMethod = iota
	// FittingIW weights each example by π_e(a_i|x_i) / π_b(a_i|x_i).
	FittingIW
	// FittingMRDR weights each example by π_e(a_i|x_i)·(1−π_b(a_i|x_i)) / π_b(a_i|x_i)².
	FittingMRDR
)

func (m FittingMethod) String() string {
	switch m {
	case FittingNormal:
		return "normal"
	case FittingIW:
		return "iw"
	case FittingMRDR:
		return "mrdr"
	default:
		return "unknown"
	}
}

// ParseFittingMethod maps "normal", "iw" and "mrdr" to a FittingMethod.
func ParseFittingMethod(s string) (FittingMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return FittingNormal, nil
	case "iw":
		return FittingIW, nil
	case "mrdr":
		return FittingMRDR, nil
	}
	return 0, errors.NewValidationError("fitting_method", "must be one of normal, iw, mrdr", s)
}

func (m FittingMethod) valid() bool {
	return m >= FittingNormal && m <= FittingMRDR
}

// SampleWeights computes one training weight per round. piE holds
// π_e(a_i|x_i, pos_i) and pscore holds π_b(a_i|x_i); both are ignored for
// FittingNormal. A zero pscore yields a non-finite weight that is returned
// as is.
func SampleWeights(method FittingMethod, piE, pscore []float64) ([]float64, error) {
	n := len(pscore)
	if method == FittingNormal {
		w := make([]float64, n)
		for i := range w {
			w[i] = 1
		}
		return w, nil
	}
	if len(piE) != n {
		return nil, errors.NewDimensionError("SampleWeights", n, len(piE), 0)
	}

	w := make([]float64, n)
	switch method {
	case FittingIW:
		for i := range w {
			w[i] = piE[i] / pscore[i]
		}
	case FittingMRDR:
		for i := range w {
			w[i] = piE[i] * (1 - pscore[i]) / (pscore[i] * pscore[i])
		}
	default:
		return nil, errors.NewValidationError("fitting_method", "must be one of normal, iw, mrdr", int(method))
	}
	return w, nil
}
