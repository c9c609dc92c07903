package cmd

import (
	goruntime "runtime"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stagekit/cli/render"
	"github.com/pithecene-io/stagekit/types"
)

// BuildInfo is what `stagekit version` reports. ContractVersion is the
// version stamped on archive records and completion events.
type BuildInfo struct {
	Version         string `json:"version" yaml:"version"`
	ContractVersion string `json:"contract_version" yaml:"contract_version"`
	Commit          string `json:"commit" yaml:"commit"`
	Go              string `json:"go" yaml:"go"`
	Platform        string `json:"platform" yaml:"platform"`
}

func buildInfo(commit string) BuildInfo {
	return BuildInfo{
		Version:         types.Version,
		ContractVersion: types.ContractVersion,
		Commit:          commit,
		Go:              goruntime.Version(),
		Platform:        goruntime.GOOS + "/" + goruntime.GOARCH,
	}
}

// VersionCommand returns the version command.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Flags: ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			if c.Bool(flagTUI) {
				return cli.Exit("--tui is not supported for version command", 1)
			}
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(buildInfo(commit))
		},
	}
}
