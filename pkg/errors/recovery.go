package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
)

// PanicError is a panic recovered at a Fit/Predict/Run boundary, so a
// misbehaving base model fails one evaluation instead of the process.
type PanicError struct {
	Operation  string
	PanicValue interface{}
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// Unwrap returns the panic value when it is an error, e.g. mat.ErrShape.
func (e *PanicError) Unwrap() error {
	err, _ := e.PanicValue.(error)
	return err
}

// String includes the captured stack.
func (e *PanicError) String() string {
	return e.Error() + "\n" + e.StackTrace
}

func NewPanicError(operation string, value interface{}) *PanicError {
	return &PanicError{Operation: operation, PanicValue: value, StackTrace: string(debug.Stack())}
}

// Recover turns a panic into *err. Call it deferred with a named result:
//
//	func (m *RegressionModel) Fit(in *RegressionInput) (err error) {
//		defer errors.Recover(&err, "RegressionModel.Fit")
//
// An error already set on *err is kept and the panic attached as secondary.
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	p := NewPanicError(operation, r)
	if *err != nil {
		*err = errors.WithSecondaryError(*err, p)
		return
	}
	*err = p
}

// SafeExecute runs fn, converting a panic into an error.
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
