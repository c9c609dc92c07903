package runtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/mattn/go-isatty"

	"github.com/pithecene-io/stagekit/log"
	"github.com/pithecene-io/stagekit/metadata"
)

// App is the main work of a stage. It may record its own keys into md.
type App func(ctx context.Context, md *metadata.RunMetadata) error

// MonitorOptions configures Monitor.
type MonitorOptions struct {
	Logger *log.Logger
	// Name identifies the stage in log lines.
	Name string
	// WithDebugger prints the failure and its stack to Stderr and, when
	// Stdin is a terminal, waits for Enter before returning.
	WithDebugger bool
	// Stdin and Stderr default to the process streams.
	Stdin  io.Reader
	Stderr io.Writer
}

// isTerminal reports whether r is an interactive terminal.
var isTerminal = func(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Monitor runs app and records how it ended into md: success is always
// set, error_info is set for interrupts and failures. Panics are recovered
// and treated as failures. Monitor never returns an error; call Err on the
// outcome (or Finish) to surface it.
func Monitor(ctx context.Context, md *metadata.RunMetadata, app App, opts MonitorOptions) *Outcome {
	logger := log.OrNop(opts.Logger)
	name := opts.Name
	if name == "" {
		name = "stage"
	}

	outcome := run(ctx, md, app)

	if err := md.Set(metadata.KeySuccess, outcome.Success()); err != nil {
		logger.Warn("could not record success", map[string]any{"error": err.Error()})
	}
	if info := outcome.ErrorInfo(); info != nil {
		if err := md.Set(metadata.KeyErrorInfo, info); err != nil {
			logger.Warn("could not record error info", map[string]any{"error": err.Error()})
		}
	}

	switch outcome.Status {
	case OutcomeSuccess:
		logger.Info("stage completed", map[string]any{"stage": name})
	case OutcomeInterrupted:
		logger.Warn("stage interrupted", map[string]any{"stage": name})
	default:
		logger.Error("stage failed", map[string]any{
			"stage": name,
			"error": outcome.Cause.Error(),
		})
		if opts.WithDebugger {
			postMortem(outcome, opts)
		}
	}
	return outcome
}

func run(ctx context.Context, md *metadata.RunMetadata, app App) (outcome *Outcome) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		var cause error
		if err, ok := r.(error); ok {
			cause = fmt.Errorf("panic: %w", err)
		} else {
			cause = fmt.Errorf("panic: %v", r)
		}
		outcome = &Outcome{Status: OutcomeFailed, Cause: cause, Stack: stackLines(debug.Stack())}
	}()

	err := app(ctx, md)
	switch {
	case err == nil:
		return &Outcome{Status: OutcomeSuccess}
	case errors.Is(err, context.Canceled), errors.Is(err, ErrInterrupted):
		return &Outcome{Status: OutcomeInterrupted, Cause: err}
	default:
		return &Outcome{Status: OutcomeFailed, Cause: err, Stack: errorChain(err)}
	}
}

func postMortem(outcome *Outcome, opts MonitorOptions) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}

	_, _ = fmt.Fprintf(stderr, "\n=== Stage Failure ===\n%v\n", outcome.Cause)
	for _, line := range outcome.Stack {
		_, _ = fmt.Fprintf(stderr, "  %s\n", line)
	}
	if !isTerminal(stdin) {
		return
	}
	_, _ = fmt.Fprint(stderr, "\nPress Enter to continue...")
	_, _ = bufio.NewReader(stdin).ReadString('\n')
}
