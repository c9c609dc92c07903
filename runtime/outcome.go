// Package runtime wraps a stage's main work: it records how the work ended
// into the run metadata, promotes the run directory, and turns the result
// back into an error and a process exit code.
package runtime

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes for a monitored stage.
const (
	ExitCodeSuccess   = 0
	ExitCodeFailure   = 1
	ExitCodeInterrupt = 130 // 128 + SIGINT
)

// ErrInterrupted is the materialized error of an interrupted run.
var ErrInterrupted = errors.New("interrupted by user")

// interruptMessage is stored as error_info for an interrupted run.
const interruptMessage = "User interrupt."

// OutcomeStatus classifies how the monitored work ended.
type OutcomeStatus string

const (
	OutcomeSuccess     OutcomeStatus = "success"
	OutcomeInterrupted OutcomeStatus = "interrupted"
	OutcomeFailed      OutcomeStatus = "failed"
)

// Outcome is the tagged result of Monitor. It is recorded into run
// metadata by Monitor and materialized back into an error by Err.
type Outcome struct {
	Status OutcomeStatus
	// Cause is the error returned (or the panic recovered) from the work.
	// Nil on success.
	Cause error
	// Stack is the goroutine stack at the point of a recovered panic, or
	// the error chain for a returned error.
	Stack []string
}

// Success reports whether the work completed.
func (o *Outcome) Success() bool {
	return o != nil && o.Status == OutcomeSuccess
}

// Err materializes the outcome: nil on success, ErrInterrupted after an
// interrupt, and the original error otherwise.
func (o *Outcome) Err() error {
	if o == nil {
		return nil
	}
	switch o.Status {
	case OutcomeSuccess:
		return nil
	case OutcomeInterrupted:
		if o.Cause != nil && !errors.Is(o.Cause, ErrInterrupted) {
			return errors.Join(ErrInterrupted, o.Cause)
		}
		return ErrInterrupted
	default:
		if o.Cause == nil {
			return errors.New("stage failed")
		}
		return o.Cause
	}
}

// ExitCode maps the outcome to a process exit code.
func (o *Outcome) ExitCode() int {
	if o == nil {
		return ExitCodeSuccess
	}
	switch o.Status {
	case OutcomeSuccess:
		return ExitCodeSuccess
	case OutcomeInterrupted:
		return ExitCodeInterrupt
	default:
		return ExitCodeFailure
	}
}

// ErrorInfo is the value stored under error_info. Interrupts store a fixed
// message; failures store the error type, its message and the stack.
// Returns nil on success.
func (o *Outcome) ErrorInfo() any {
	if o == nil {
		return nil
	}
	switch o.Status {
	case OutcomeSuccess:
		return nil
	case OutcomeInterrupted:
		return interruptMessage
	}
	info := map[string]any{
		"exception_type":  "error",
		"exception_value": "",
		"exc_traceback":   o.Stack,
	}
	if o.Cause != nil {
		info["exception_type"] = errorType(o.Cause)
		info["exception_value"] = o.Cause.Error()
	}
	if o.Stack == nil {
		info["exc_traceback"] = []string{}
	}
	return info
}

// errorType names the innermost error with a concrete type beyond the
// generic wrappers, so "open x: no such file" reports *fs.PathError.
func errorType(err error) string {
	name := fmt.Sprintf("%T", err)
	for e := err; e != nil; e = errors.Unwrap(e) {
		t := fmt.Sprintf("%T", e)
		if t != "*fmt.wrapError" && t != "*errors.errorString" && t != "*errors.joinError" {
			return t
		}
		name = t
	}
	return name
}

// errorChain lists err and every error it wraps, outermost first.
func errorChain(err error) []string {
	var out []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		out = append(out, fmt.Sprintf("%T: %s", e, e.Error()))
	}
	return out
}

// ExitCodeForError maps a materialized error back to an exit code.
func ExitCodeForError(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, ErrInterrupted):
		return ExitCodeInterrupt
	default:
		return ExitCodeFailure
	}
}

// stackLines splits a debug.Stack dump into trimmed lines.
func stackLines(stack []byte) []string {
	var out []string
	for line := range strings.SplitSeq(strings.TrimSpace(string(stack)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
