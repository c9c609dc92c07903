package cmd

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stagekit/cli/render"
	"github.com/pithecene-io/stagekit/cli/tui"
	"github.com/pithecene-io/stagekit/metadata"
	"github.com/pithecene-io/stagekit/rundir"
	"github.com/pithecene-io/stagekit/types"
)

// StatsCommand returns the stats command.
// Given a version root it aggregates run outcomes; given a run directory
// it shows the counters that run recorded.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show run statistics for a version root or counters for a run",
		ArgsUsage: "<root|run-dir>",
		Flags:     ReadOnlyFlags(),
		Action:    statsAction,
	}
}

func statsAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("root or run directory required", 1)
	}
	target := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if isRunDirectory(target) {
		md, err := loadRunMetadata(target)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		counters, _ := md[metadata.KeyCounters].(map[string]any)
		if counters == nil {
			counters = map[string]any{}
		}
		if c.Bool(flagTUI) {
			return r.RenderTUI(tui.ViewStatsRun, counters)
		}
		return r.Render(counters)
	}

	summary, err := rundir.Inspect(target)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	stats := summary.Stats()
	if c.Bool(flagTUI) {
		return r.RenderTUI(tui.ViewStatsVersionRoot, stats)
	}
	return r.Render(stats)
}

// isRunDirectory reports whether path holds a metadata.yaml, which only
// finished runs have.
func isRunDirectory(path string) bool {
	_, err := os.Stat(filepath.Join(path, types.MetadataFileName))
	return err == nil
}
