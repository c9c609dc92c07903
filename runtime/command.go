package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pithecene-io/stagekit/log"
	"github.com/pithecene-io/stagekit/metadata"
	"github.com/pithecene-io/stagekit/shell"
)

// Environment variables set for a wrapped command.
const (
	EnvRunDirectory = "STAGEKIT_RUN_DIRECTORY"
	EnvVersionRoot  = "STAGEKIT_VERSION_ROOT"
)

// stderrTail bounds how much child stderr is kept for the error report.
const stderrTail = 4096

// Command describes an external program run as a stage's main work.
type Command struct {
	Path string
	Args []string
	// Env is appended to the inherited environment; later entries win.
	Env []string
	Dir string
	// Stdout and Stderr receive the child's output. Default to the
	// process streams.
	Stdout io.Writer
	Stderr io.Writer
	// GracePeriod is how long the child gets to exit after SIGINT before
	// it is killed. Defaults to 10s.
	GracePeriod time.Duration
}

// CommandApp adapts an external command into an App. Cancelling the
// context sends SIGINT to the child; a child that exits after an interrupt
// (or with status 130) yields ErrInterrupted. Any other non-zero exit is a
// *shell.CommandError carrying the tail of the child's stderr.
func CommandApp(c Command, logger *log.Logger) App {
	return func(ctx context.Context, md *metadata.RunMetadata) error {
		logger := log.OrNop(logger)

		cmd := exec.CommandContext(ctx, c.Path, c.Args...)
		cmd.Dir = c.Dir
		cmd.Env = deduplicateEnv(append(os.Environ(), c.Env...))
		cmd.Cancel = func() error {
			return cmd.Process.Signal(os.Interrupt)
		}
		cmd.WaitDelay = c.GracePeriod
		if cmd.WaitDelay <= 0 {
			cmd.WaitDelay = 10 * time.Second
		}

		stdout := c.Stdout
		if stdout == nil {
			stdout = os.Stdout
		}
		stderr := c.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		tail := &tailBuffer{max: stderrTail}
		cmd.Stdout = stdout
		cmd.Stderr = io.MultiWriter(stderr, tail)

		argv := append([]string{c.Path}, c.Args...)
		logger.Debug("starting command", map[string]any{"command": strings.Join(argv, " "), "dir": c.Dir})

		err := cmd.Run()
		if err == nil {
			return nil
		}

		cerr := &shell.CommandError{Command: argv, ExitCode: -1, Stderr: tail.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cerr.ExitCode = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() && status.Signal() == syscall.SIGINT {
				return fmt.Errorf("%w: %w", ErrInterrupted, cerr)
			}
		}
		if ctx.Err() != nil || cerr.ExitCode == ExitCodeInterrupt {
			return fmt.Errorf("%w: %w", ErrInterrupted, cerr)
		}
		return cerr
	}
}

// deduplicateEnv keeps the last occurrence of each env var key, so
// entries appended after os.Environ() win over inherited ones.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
