// Package main provides the stagekit CLI entrypoint.
//
// Usage:
//
//	stagekit <command> [subcommand] [options]
//
// Exit codes for `run`:
//   - 0: the wrapped command succeeded
//   - 1: it failed, or stagekit could not set up the run
//   - 130: it was interrupted
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stagekit/cli/cmd"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := cmd.NewApp(commit)
	app.ExitErrHandler = exitErrHandler

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit so the wrapped
// command's outcome reaches the caller.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code := report(os.Stderr, err)
	os.Exit(code)
}

// report prints err to w unless it carries no message and returns the
// exit code to use.
func report(w io.Writer, err error) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		// cli.Exit("", N) reports "exit status N"; nothing to show.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(w, msg)
		}
		return code
	}

	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
