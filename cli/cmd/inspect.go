package cmd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stagekit/cli/render"
	"github.com/pithecene-io/stagekit/cli/tui"
	"github.com/pithecene-io/stagekit/metadata"
	"github.com/pithecene-io/stagekit/rundir"
	"github.com/pithecene-io/stagekit/types"
)

// InspectCommand returns the inspect command.
// Inspect is a read-only view of a version root: its runs, their outcomes
// and which links point where.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect a version root",
		ArgsUsage: "<root>",
		Flags:     ReadOnlyFlags(),
		Action:    inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("root required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	summary, err := rundir.Inspect(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if c.Bool(flagTUI) {
		return r.RenderTUI(tui.ViewInspectVersionRoot, summary)
	}
	return r.Render(summary)
}

// MetadataCommand returns the metadata command.
// It prints the metadata.yaml of a run directory, or of the run a link
// such as best resolves to.
func MetadataCommand() *cli.Command {
	return &cli.Command{
		Name:      "metadata",
		Usage:     "Show the recorded metadata of a run",
		ArgsUsage: "<run-dir>",
		Flags:     ReadOnlyFlags(),
		Action:    metadataAction,
	}
}

func metadataAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("run directory required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	md, err := loadRunMetadata(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if c.Bool(flagTUI) {
		return r.RenderTUI(tui.ViewInspectRun, md)
	}
	return r.Render(md)
}

// loadRunMetadata reads <runDir>/metadata.yaml. A directory without one is
// reported as not found rather than as an empty record.
func loadRunMetadata(runDir string) (map[string]any, error) {
	info, err := os.Stat(runDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, types.NewError(types.ErrNotFound, "metadata", runDir, err)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, types.Errorf(types.ErrValidation, "metadata", runDir, "not a run directory")
	}
	return metadata.Load(filepath.Join(runDir, types.MetadataFileName))
}
