package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stagekit/cli/render"
	"github.com/pithecene-io/stagekit/rundir"
	"github.com/pithecene-io/stagekit/types"
)

// SetupCommand returns the setup command.
func SetupCommand() *cli.Command {
	return &cli.Command{
		Name:      "setup",
		Usage:     "Create a version root with best/latest placeholders",
		ArgsUsage: "<root>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "production", Usage: "Also create production-runs/"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("root required", 1)
			}
			root := c.Args().First()
			if err := rundir.SetupVersionRoot(root, c.Bool("production")); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Fprintln(c.App.Writer, root)
			return nil
		},
	}
}

// AllocateCommand returns the allocate command. It prints the next run
// directory for today and, with --create, creates it.
func AllocateCommand() *cli.Command {
	return &cli.Command{
		Name:      "allocate",
		Usage:     "Print (and optionally create) the next run directory under a version root",
		ArgsUsage: "<root>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "create", Usage: "Create the directory"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("root required", 1)
			}
			next := rundir.Next
			if c.Bool("create") {
				next = rundir.Make
			}
			dir, err := next(c.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Fprintln(c.App.Writer, dir)
			return nil
		},
	}
}

// MarkCommand returns the mark command with one subcommand per link.
func MarkCommand() *cli.Command {
	rootFlag := &cli.StringFlag{
		Name:  "root",
		Usage: "Version root holding the link (default: the run directory's parent)",
	}
	return &cli.Command{
		Name:  "mark",
		Usage: "Point a promotion link at a run directory",
		Subcommands: []*cli.Command{
			{
				Name:      types.LatestLink,
				Usage:     "Mark a run as latest",
				ArgsUsage: "<run-dir>",
				Flags:     []cli.Flag{rootFlag},
				Action:    markAction(rundir.MarkLatest, rundir.MarkLatestExplicit),
			},
			{
				Name:      types.BestLink,
				Usage:     "Mark a run as best",
				ArgsUsage: "<run-dir>",
				Flags:     []cli.Flag{rootFlag},
				Action:    markAction(rundir.MarkBest, rundir.MarkBestExplicit),
			},
			{
				Name:      "production",
				Usage:     "Tag a run as the production run for a date",
				ArgsUsage: "<run-dir>",
				Flags: []cli.Flag{
					rootFlag,
					&cli.StringFlag{Name: "date", Usage: "Production date YYYY_MM_DD (default: today)"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("run directory required", 1)
					}
					runDir, date := c.Args().First(), c.String("date")
					var err error
					if root := c.String("root"); root != "" {
						err = rundir.MarkProductionExplicit(runDir, filepath.Join(root, types.ProductionRuns), date)
					} else {
						err = rundir.MarkProduction(runDir, date)
					}
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					return nil
				},
			},
		},
	}
}

func markAction(mark func(string) error, explicit func(string, string) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("run directory required", 1)
		}
		var err error
		if root := c.String("root"); root != "" {
			err = explicit(c.Args().First(), root)
		} else {
			err = mark(c.Args().First())
		}
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		return nil
	}
}

// VersionPair is the response for the previous command.
type VersionPair struct {
	Current  string `json:"current" yaml:"current"`
	Previous string `json:"previous" yaml:"previous"`
}

// PreviousCommand returns the previous command.
func PreviousCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{Name: "previous", Usage: "Use this previous version instead of searching"},
		&cli.BoolFlag{Name: "literal", Usage: "Report the current name as given instead of resolving links"},
	}, ReadOnlyFlags()...)
	return &cli.Command{
		Name:      "previous",
		Usage:     "Show the current run name and the run before it",
		ArgsUsage: "<run-dir>",
		Flags:     flags,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("run directory required", 1)
			}
			if c.Bool(flagTUI) {
				return cli.Exit("--tui is not supported for previous command", 1)
			}
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			cur, prev, err := rundir.CurrentAndPreviousVersion(c.Args().First(), c.String("previous"), !c.Bool("literal"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return r.Render(VersionPair{Current: cur, Previous: prev})
		},
	}
}

// ProductionRun is the response for the production command.
type ProductionRun struct {
	Tag string `json:"tag" yaml:"tag"`
	Run string `json:"run" yaml:"run"`
}

// ProductionCommand returns the production command, which reports the
// newest production tag of a version root and the run it points at.
func ProductionCommand() *cli.Command {
	return &cli.Command{
		Name:      "production",
		Usage:     "Show the latest production run of a version root",
		ArgsUsage: "<root>",
		Flags:     ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("root required", 1)
			}
			if c.Bool(flagTUI) {
				return cli.Exit("--tui is not supported for production command", 1)
			}
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			tag, run, err := rundir.LatestProduction(c.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return r.Render(ProductionRun{Tag: tag, Run: run})
		},
	}
}
