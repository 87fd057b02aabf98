// Package errs defines the error kinds shared across the detection and
// tracking pipeline.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a pipeline error. Per-point numerical failures
// (NoConvergence) are recorded, not fatal; every other kind aborts the
// containing pipeline stage.
type Kind int

const (
	// InvalidInput covers bad parameters or incompatible dimensions.
	InvalidInput Kind = iota
	// IOError covers data-store or cluster-file read/write failure.
	IOError
	// NumericInstability covers a non-finite result surfaced after checks.
	NumericInstability
	// NoConvergence is per-point and non-fatal; the point is excluded from
	// clustering.
	NoConvergence
	// Cancelled is returned when a cancellation signal is observed between
	// pipeline stages.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid input"
	case IOError:
		return "io error"
	case NumericInstability:
		return "numeric instability"
	case NoConvergence:
		return "no convergence"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown error kind"
	}
}

// Error is a typed pipeline error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Context string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Context)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with a formatted context message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Context: fmt.Sprintf(format, args...)}
}

// Wrap annotates cause with a Kind and context, in the style of
// github.com/pkg/errors.Wrapf used for the data-store and cluster-file I/O
// paths.
func Wrap(cause error, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Context: fmt.Sprintf(format, args...), Cause: errors.WithStack(cause)}
}

// Is reports whether err (or any error in its chain) carries the given Kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
