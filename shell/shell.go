// Package shell wraps the external commands pipeline stages shell out to.
// A non-zero exit is a hard failure and is never retried.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CommandError reports a command that could not start or exited non-zero.
type CommandError struct {
	Command  []string
	ExitCode int // -1 when the process did not run to completion
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q", strings.Join(e.Command, " "))
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" exited with status %d", e.ExitCode)
	} else {
		msg += fmt.Sprintf(" failed: %v", e.Err)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Run executes name with args and waits for it. Stdout is returned;
// stderr is captured into the CommandError on failure.
func Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cerr := &CommandError{
			Command:  append([]string{name}, args...),
			ExitCode: -1,
			Stderr:   stderr.String(),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			cerr.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			cerr.Err = errors.Join(err, ctx.Err())
		}
		return stdout.Bytes(), cerr
	}
	return stdout.Bytes(), nil
}

// Wget downloads url to outputPath.
func Wget(ctx context.Context, url, outputPath string) error {
	_, err := Run(ctx, "wget", "-O", outputPath, url)
	return err
}

// UnzipAndDeleteArchive extracts archivePath into outputDir and removes
// the archive once extraction succeeded.
func UnzipAndDeleteArchive(ctx context.Context, archivePath, outputDir string) error {
	if _, err := Run(ctx, "unzip", archivePath, "-d", outputDir); err != nil {
		return err
	}
	return os.Remove(archivePath)
}
