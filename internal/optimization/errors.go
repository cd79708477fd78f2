package optimization

import (
	"errors"
	"fmt"
)

// Error kinds reported by algorithms and problems. Every *Error produced by this
// module wraps exactly one of them, so callers can branch with errors.Is.
var (
	// ErrInvalidConfiguration reports bad algorithm parameters.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrInvalidProblem reports a problem that cannot be searched, such as one with no dimensions.
	ErrInvalidProblem = errors.New("invalid problem")
	// ErrInsufficientBudget reports an evaluation budget too small for one full cooling step.
	ErrInsufficientBudget = errors.New("insufficient evaluation budget")
	// ErrDimensionMismatch reports a decision vector whose length disagrees with the problem.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// Error represents an optimization error with context
// that can be wrapped with additional information.
type Error struct {
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	if e.Component != "" && e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	} else if e.Component != "" {
		prefix = e.Component
	} else if e.Op != "" {
		prefix = e.Op
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WrapErrorf wraps an existing error with additional formatted context.
// If err is nil, WrapErrorf returns nil.
func WrapErrorf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsOptimizationError checks if an error chain contains an *Error.
// If it does, it returns the outermost one and true.
func IsOptimizationError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsInputError reports whether err is one of the kinds caused by caller input
// rather than by an objective evaluation or the runtime.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrInvalidProblem) ||
		errors.Is(err, ErrInsufficientBudget) ||
		errors.Is(err, ErrDimensionMismatch)
}
