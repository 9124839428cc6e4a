package eval

import (
	"errors"
	"fmt"
)

// ErrEvaluation is matched by every error returned from Eval.
var ErrEvaluation = errors.New("evaluation failed")

// Error is a runtime evaluation failure.
type Error struct {
	Message string
	Offset  int   // Byte offset of the failing node in the expression source
	Err     error // Underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (column %d): %v", e.Message, e.Offset+1, e.Err)
	}
	return fmt.Sprintf("%s (column %d)", e.Message, e.Offset+1)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports ErrEvaluation as a match so callers can test with errors.Is.
func (e *Error) Is(target error) bool {
	return target == ErrEvaluation
}

// IsEvalError reports whether err is an evaluation failure.
func IsEvalError(err error) bool {
	var evalErr *Error
	return errors.As(err, &evalErr)
}

func errorf(offset int, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Offset: offset}
}

func wrapError(offset int, err error, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Offset: offset, Err: err}
}
