package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stagekit/cli/render"
)

// ArchiveCommand returns the archive command, which reads run records back
// out of the metadata archive.
func ArchiveCommand() *cli.Command {
	flags := append([]cli.Flag{
		ConfigFlag,
		&cli.StringFlag{Name: "archive-path", Usage: "Archive location (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "archive-backend", Usage: "Archive backend: fs or s3"},
		&cli.StringFlag{Name: "stage", Usage: "Only records of this stage"},
		&cli.StringFlag{Name: "run-id", Usage: "Only the record of this run (YYYY_MM_DD.VV)"},
	}, ReadOnlyFlags()...)
	return &cli.Command{
		Name:  "archive",
		Usage: "Query the metadata archive",
		Subcommands: []*cli.Command{
			{
				Name:   "latest",
				Usage:  "Show the most recently archived run record",
				Flags:  flags,
				Action: archiveLatestAction,
			},
		},
	}
}

func archiveLatestAction(c *cli.Context) error {
	if c.Bool(flagTUI) {
		return cli.Exit("--tui is not supported for archive command", 1)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if p := c.String("archive-path"); p != "" {
		cfg.Archive.Path = p
	}
	if b := c.String("archive-backend"); b != "" {
		cfg.Archive.Backend = b
	}
	if !cfg.Archive.Enabled() {
		return cli.Exit("--archive-path required (flag or archive.path in the config file)", 1)
	}

	archive, err := buildArchive(c.Context, cfg.Archive)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() { _ = archive.Close() }()

	record, err := archive.Latest(c.Context, c.String("stage"), c.String("run-id"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(record)
}
