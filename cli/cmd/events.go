package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stagekit/adapter/redis"
	"github.com/pithecene-io/stagekit/cli/render"
)

// EventsCommand returns the events command. Only the redis adapter keeps
// events around after publishing, so it is the only backend it reads.
func EventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Read published stage completion events",
		Subcommands: []*cli.Command{
			{
				Name:      "last",
				Usage:     "Show the last completion event published for a stage",
				ArgsUsage: "<stage>",
				Flags: append([]cli.Flag{
					ConfigFlag,
					&cli.StringFlag{Name: "adapter-url", Usage: "Redis URL (default: adapter.url from the config file)"},
					&cli.StringFlag{Name: "adapter-channel", Usage: "Redis channel the events were published on"},
				}, ReadOnlyFlags()...),
				Action: eventsLastAction,
			},
		},
	}
}

func eventsLastAction(c *cli.Context) error {
	if c.Bool(flagTUI) {
		return cli.Exit("--tui is not supported for events command", 1)
	}
	if c.NArg() != 1 {
		return cli.Exit("stage name required", 1)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	rc := redis.Config{URL: cfg.Adapter.URL, Channel: cfg.Adapter.Channel, Timeout: cfg.Adapter.Timeout.Duration}
	if cfg.Adapter.Type != "" && cfg.Adapter.Type != adapterRedis {
		rc.URL = ""
	}
	if u := c.String("adapter-url"); u != "" {
		rc.URL = u
	}
	if ch := c.String("adapter-channel"); ch != "" {
		rc.Channel = ch
	}
	if rc.URL == "" {
		return cli.Exit("--adapter-url required (flag or a redis adapter in the config file)", 1)
	}

	a, err := redis.New(rc)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() { _ = a.Close() }()

	stage := c.Args().First()
	event, err := a.Last(c.Context, stage)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if event == nil {
		return cli.Exit("no event published for stage "+stage, 1)
	}
	return r.Render(event)
}
