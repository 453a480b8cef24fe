package ope

import (
	"strings"

	"github.com/YuminosukeSato/goope/pkg/errors"
)

// NumericalPolicy decides what happens when a zero propensity or a zero
// marginal probability produces a non-finite weight.
type NumericalPolicy int

const (
	// NumericalPropagate lets Inf/NaN flow into the estimates and emits a
	// NumericalWarning.
	NumericalPropagate NumericalPolicy = iota
	// NumericalRaise fails with a NumericalInstabilityError.
	NumericalRaise
)

func (p NumericalPolicy) String() string {
	if p == NumericalRaise {
		return "raise"
	}
	return "propagate"
}

// ParseNumericalPolicy maps "propagate" and "raise" to a policy.
func ParseNumericalPolicy(s string) (NumericalPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "propagate":
		return NumericalPropagate, nil
	case "raise":
		return NumericalRaise, nil
	}
	return 0, errors.NewValidationError("numerical_policy", "must be propagate or raise", s)
}

// apply returns the number of non-finite values, or an error under
// NumericalRaise when there is at least one.
func (p NumericalPolicy) apply(op string, values []float64) (int, error) {
	n := errors.CountNonFinite(values)
	if n > 0 && p == NumericalRaise {
		return n, errors.CheckNumericalStability(op, values)
	}
	return n, nil
}
