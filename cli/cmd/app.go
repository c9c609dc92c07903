package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stagekit/types"
)

// NewApp assembles the stagekit command tree.
func NewApp(commit string) *cli.App {
	return &cli.App{
		Name:                   "stagekit",
		Usage:                  "Versioned run directories, run metadata and promotion links for pipeline stages",
		Version:                fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		UseShortOptionHandling: true,
		Commands: []*cli.Command{
			RunCommand(),
			SetupCommand(),
			AllocateCommand(),
			MarkCommand(),
			PreviousCommand(),
			ProductionCommand(),
			InspectCommand(),
			MetadataCommand(),
			StatsCommand(),
			ArchiveCommand(),
			EventsCommand(),
			FetchCommand(),
			WorkflowCommand(),
			VersionCommand(commit),
		},
	}
}
