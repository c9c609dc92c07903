// Package cmd provides the commands of the stagekit binary and the shared
// flags downstream stage tools mount on their own commands.
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stagekit/cli/config"
	"github.com/pithecene-io/stagekit/log"
	"github.com/pithecene-io/stagekit/rundir"
	"github.com/pithecene-io/stagekit/types"
)

// Flag names shared across commands.
const (
	flagVerbose       = "verbose"
	flagPDB           = "pdb"
	flagOutputRoot    = "output-root"
	flagMarkBest      = "mark-best"
	flagProductionTag = "production-tag"
	flagConfig        = "config"
	flagFormat        = "format"
	flagNoColor       = "no-color"
	flagTUI           = "tui"
)

// VerboseFlag counts -v occurrences: none logs warnings, -v info, -vv
// debug, -vvv trace.
func VerboseFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:    flagVerbose,
		Aliases: []string{"v"},
		Usage:   "Configure logging verbosity (repeat for more)",
		Count:   new(int),
	}
}

// LoggingFlags returns -v and --pdb.
func LoggingFlags() []cli.Flag {
	return []cli.Flag{
		VerboseFlag(),
		&cli.BoolFlag{
			Name:  flagPDB,
			Usage: "Print the failure and wait for Enter before exiting",
		},
	}
}

// OutputFlags returns the flags of a command that produces a run: the
// version root plus the promotion requests.
func OutputFlags(defaultOutputRoot string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagOutputRoot,
			Aliases: []string{"o"},
			Value:   defaultOutputRoot,
			Usage:   "Version root; the run goes to <root>/YYYY_MM_DD.VV for today and the next free version",
		},
		&cli.BoolFlag{
			Name:    flagMarkBest,
			Aliases: []string{"b"},
			Usage:   `Mark this run as "best"`,
		},
		&cli.StringFlag{
			Name:    flagProductionTag,
			Aliases: []string{"p"},
			Usage:   "Tag this run as a production run for YYYY_MM_DD",
		},
	}
}

// DependencyFlag declares --<source>-version. An empty defaultVersion makes
// the flag required; otherwise it defaults to the given link, usually best.
func DependencyFlag(source, defaultVersion string) *cli.StringFlag {
	name := strings.ReplaceAll(source, " ", "-") + "-version"
	label := strings.ReplaceAll(source, "-", " ")
	f := &cli.StringFlag{Name: name}
	if defaultVersion == "" {
		f.Required = true
		f.Usage = fmt.Sprintf("Version of the %s to use. Required.", label)
		return f
	}
	f.Value = defaultVersion
	f.Usage = fmt.Sprintf("Version of the %s to use. Defaults to %q", label, defaultVersion)
	return f
}

// BestDependencyFlag is DependencyFlag defaulting to the best link.
func BestDependencyFlag(source string) *cli.StringFlag {
	return DependencyFlag(source, types.BestLink)
}

// ConfigFlag points at a stagekit.yaml.
var ConfigFlag = &cli.StringFlag{
	Name:  flagConfig,
	Usage: "Path to " + config.FileName + " (default: ./" + config.FileName + " when present)",
}

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    flagFormat,
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  flagNoColor,
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for inspect and stats.
	TUIFlag = &cli.BoolFlag{
		Name:  flagTUI,
		Usage: "Enable interactive TUI mode (inspect, stats only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// --tui is included everywhere so unsupported commands can reject it with
// a clear message instead of a generic "flag not defined".
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// LinkOptionsFromFlags reads --mark-best and --production-tag and checks
// them before any work starts. A production tag only takes effect together
// with --mark-best. A malformed tag is dropped with a warning so the run
// still goes ahead without a production link.
func LinkOptionsFromFlags(c *cli.Context, incomplete bool, logger *log.Logger) (rundir.LinkOptions, error) {
	opts := rundir.LinkOptions{
		MarkBest:      c.Bool(flagMarkBest),
		ProductionTag: c.String(flagProductionTag),
		Incomplete:    incomplete,
	}
	if err := rundir.ValidateBestAndProductionTags(opts); err != nil {
		return opts, err
	}
	if opts.ProductionTag != "" {
		if err := rundir.ValidateProductionTag(opts.ProductionTag); err != nil {
			logger.Warn("ignoring production tag", map[string]any{
				"production_tag": opts.ProductionTag,
				"error":          err.Error(),
			})
			opts.ProductionTag = ""
		}
	}
	return opts, nil
}

// terminalLogger builds the console logger for the -v count of c.
func terminalLogger(c *cli.Context) *log.Logger {
	var w io.Writer = c.App.ErrWriter
	if w == nil {
		w = c.App.Writer
	}
	return log.NewTerminal(c.Count(flagVerbose), w)
}

// loadConfig reads --config or ./stagekit.yaml.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadDefault(c.String(flagConfig))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("config: %v", err), 1)
	}
	return cfg, nil
}
