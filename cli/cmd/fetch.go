package cmd

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stagekit/iox"
	"github.com/pithecene-io/stagekit/parallel"
	"github.com/pithecene-io/stagekit/shell"
)

// FetchCommand returns the fetch command. It downloads each URL into a
// directory with wget, optionally unpacking zip archives, using a bounded
// number of concurrent downloads.
func FetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download URLs into a directory",
		ArgsUsage: "<url>...",
		Flags: append(LoggingFlags(),
			ConfigFlag,
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Value: ".", Usage: "Destination directory"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "Concurrent downloads (default: parallel.workers from the config file, else 1)"},
			&cli.BoolFlag{Name: "unzip", Usage: "Extract .zip downloads and delete the archive"},
			&cli.BoolFlag{Name: "progress", Usage: "Show a progress bar"},
		),
		UseShortOptionHandling: true,
		Action:                 fetchAction,
	}
}

func fetchAction(c *cli.Context) error {
	urls := c.Args().Slice()
	if len(urls) == 0 {
		return cli.Exit("at least one URL required", 1)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	workers := c.Int("workers")
	if workers == 0 {
		workers = cfg.Parallel.Workers
	}

	dir := c.String("dir")
	if err := iox.MakeDirTree(dir); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	logger := terminalLogger(c)
	defer func() { _ = logger.Close() }()
	unzip := c.Bool("unzip")

	fetch := func(ctx context.Context, raw string) (string, error) {
		name, err := downloadName(raw)
		if err != nil {
			return "", err
		}
		out := filepath.Join(dir, name)
		logger.Debug("downloading", map[string]any{"url": raw, "path": out})
		if err := shell.Wget(ctx, raw, out); err != nil {
			return "", err
		}
		if unzip && strings.EqualFold(filepath.Ext(name), ".zip") {
			if err := shell.UnzipAndDeleteArchive(ctx, out, dir); err != nil {
				return "", err
			}
			return dir, nil
		}
		return out, nil
	}

	paths, err := parallel.Map(c.Context, urls, fetch, parallel.Options{
		Workers:  workers,
		Progress: c.Bool("progress"),
		Out:      c.App.ErrWriter,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("fetch: %v", err), 1)
	}
	for _, p := range paths {
		fmt.Fprintln(c.App.Writer, p)
	}
	return nil
}

// downloadName is the last path element of a URL.
func downloadName(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("cannot derive a file name from %q", raw)
	}
	return name, nil
}
