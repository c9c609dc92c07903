// Package types defines the shared vocabulary of stagekit: the error
// taxonomy, the version-root layout names and the permission contract.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrNotFound indicates a missing root or input directory.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a name already occupied by something we refuse
	// to replace (a regular file where a link belongs, a metadata key that
	// was already set).
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates malformed input (bad date tag, wrong metadata
	// file name, a version path that is not absolute).
	ErrValidation = errors.New("validation failed")

	// ErrLookup indicates a search that found nothing (no earlier run, no
	// production tag).
	ErrLookup = errors.New("lookup failed")
)

// Error wraps an underlying error with a classification.
// It preserves the original error in the chain for inspection via errors.As.
type Error struct {
	// Kind is the sentinel used for classification (e.g. ErrConflict).
	Kind error
	// Op is the operation that failed (e.g. "allocate", "mark").
	Op string
	// Path is the filesystem path involved, if any.
	Path string
	// Err is the underlying error. May be nil when Kind says it all.
	Err error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewError creates a classified error.
func NewError(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf creates a classified error whose detail is a formatted message.
func Errorf(kind error, op, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}
