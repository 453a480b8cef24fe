package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/rs/zerolog"
)

var (
	warnMu sync.Mutex
	// handler receives warnings when no structured sink is installed.
	handler = func(w error) { log.Printf("goope: warning: %v", w) }
	// sink is installed by pkg/log at init; kept as a func to avoid an import cycle.
	sink func(w error)
)

// SetWarningHandler replaces the warning handler and detaches the
// structured sink. A nil handler discards warnings.
func SetWarningHandler(h func(w error)) {
	warnMu.Lock()
	defer warnMu.Unlock()
	handler = h
	sink = nil
}

// SetZerologWarnFunc installs the structured warning sink.
func SetZerologWarnFunc(fn func(w error)) {
	warnMu.Lock()
	defer warnMu.Unlock()
	sink = fn
}

// Warn reports a non-fatal condition. Warnings never change control flow.
func Warn(w error) {
	warnMu.Lock()
	defer warnMu.Unlock()
	switch {
	case sink != nil:
		sink(w)
	case handler != nil:
		handler(w)
	}
}

// ConvergenceWarning: 反復最適化が max_iter 内に収束しなかった
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	msg := w.Message
	if msg == "" {
		msg = "increase max_iter or relax tol"
	}
	return fmt.Sprintf("%s did not converge in %d iterations: %s", w.Algorithm, w.Iterations, msg)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "ConvergenceWarning").
		Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations)
}

// NewConvergenceWarning returns a ConvergenceWarning.
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// NumericalWarning: Inf/NaN の重みが推定値まで伝播した。
// 傾向スコアや周辺確率がゼロのときに出る。
type NumericalWarning struct {
	Operation string
	Count     int
	Total     int
}

func (w *NumericalWarning) Error() string {
	return fmt.Sprintf("%s produced %d non-finite values out of %d; they propagate to the estimate", w.Operation, w.Count, w.Total)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (w *NumericalWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", "NumericalWarning").
		Str("operation", w.Operation).
		Int("count", w.Count).
		Int("total", w.Total)
}

// NewNumericalWarning returns a NumericalWarning.
func NewNumericalWarning(operation string, count, total int) *NumericalWarning {
	return &NumericalWarning{Operation: operation, Count: count, Total: total}
}
