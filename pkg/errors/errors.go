// Package errors defines the structured error taxonomy and the warning
// channel shared by every goope package. Constructors attach a stack trace
// through cockroachdb/errors.
package errors

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

var (
	ErrEmptyData      = errors.New("empty data")
	ErrSingularMatrix = errors.New("singular matrix")
)

// NotFittedError: Fit 前に Predict などが呼ばれた
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("goope: %s.%s called before Fit", e.ModelName, e.Method)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *NotFittedError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "NotFittedError").Str("model_name", e.ModelName).Str("method", e.Method)
}

func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は行数 (Axis 0) または特徴量数 (Axis 1) の不一致。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("goope: %s: expected %d on axis %d (%s), got %d", e.Op, e.Expected, e.Axis, e.axisName(), e.Got)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *DimensionError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "DimensionError").
		Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Str("axis", e.axisName())
}

func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError is a rejected parameter or input contract: fitting_method,
// n_actions, len_list, action_dist, position and the like.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("goope: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *ValidationError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", "ValidationError").
		Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value)
}

func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// InputShapeError reports a tensor or matrix whose shape differs from the
// one implied by n_rounds, n_actions and len_list.
type InputShapeError struct {
	Phase    string
	Feature  string
	Expected []int
	Got      []int
}

func (e *InputShapeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "goope: input shape mismatch during %s", e.Phase)
	if e.Feature != "" {
		fmt.Fprintf(&b, " for '%s'", e.Feature)
	}
	fmt.Fprintf(&b, ": expected %v, got %v", e.Expected, e.Got)
	return b.String()
}

func NewInputShapeError(phase, feature string, expected, got []int) error {
	return errors.WithStack(&InputShapeError{Phase: phase, Feature: feature, Expected: expected, Got: got})
}

// ValueError is a bad argument value outside the configuration surface.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string { return fmt.Sprintf("goope: %s: %s", e.Op, e.Message) }

func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError wraps a failure inside a base model or estimator.
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("goope: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("goope: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// NumericalInstabilityError: Raise ポリシー下で Inf/NaN を検出した。
// Index は最初の非有限値の位置。
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Index     int
}

func (e *NumericalInstabilityError) Error() string {
	shown := e.Values
	suffix := ""
	if len(shown) > 5 {
		shown, suffix = shown[:5], " ..."
	}
	parts := make([]string, len(shown))
	for i, v := range shown {
		parts[i] = fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("goope: non-finite values in %s starting at index %d: [%s%s]",
		e.Operation, e.Index, strings.Join(parts, ", "), suffix)
}

func NewNumericalInstabilityError(operation string, values []float64, index int) error {
	return errors.WithStack(&NumericalInstabilityError{Operation: operation, Values: values, Index: index})
}

// IsConfigurationError reports whether err stems from a caller contract
// violation rather than a failure during fitting or estimation.
func IsConfigurationError(err error) bool {
	var ve *ValidationError
	var de *DimensionError
	var se *InputShapeError
	return errors.As(err, &ve) || errors.As(err, &de) || errors.As(err, &se)
}

// Thin re-exports so callers import a single errors package.

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

func New(msg string) error {
	return errors.New(msg)
}

func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

func WithStack(err error) error {
	return errors.WithStack(err)
}
