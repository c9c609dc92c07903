package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/stagekit/metadata"
	"github.com/pithecene-io/stagekit/metrics"
	"github.com/pithecene-io/stagekit/rundir"
	"github.com/pithecene-io/stagekit/runtime"
	"github.com/pithecene-io/stagekit/types"
)

// AppMetadataFileName is read from the run directory after the wrapped
// command exits and recorded under app_metadata.
const AppMetadataFileName = "app_metadata.yaml"

// RunCommand returns the run command.
// It is the only command that executes work.
func RunCommand() *cli.Command {
	flags := append(LoggingFlags(), OutputFlags("")...)
	flags = append(flags,
		ConfigFlag,
		&cli.StringFlag{
			Name:  "stage",
			Usage: "Stage name for archive records and notifications (default: version root base name)",
		},
		&cli.BoolFlag{
			Name:  "production",
			Usage: "Create production-runs/ when setting up the version root",
		},
		&cli.BoolFlag{
			Name:  "incomplete",
			Usage: "Mark this as a partial run; it is never promoted",
		},
		&cli.StringSliceFlag{
			Name:  "depends-on",
			Usage: "Upstream stage run as name=DIR or name=ROOT@VERSION (VERSION may be best or latest); its metadata.yaml is merged into this run's (repeatable)",
		},
		&cli.StringFlag{
			Name:  "archive-path",
			Usage: "Metadata archive location (fs: directory, s3: bucket/prefix); overrides the config file",
		},
		&cli.StringFlag{
			Name:  "archive-backend",
			Usage: "Metadata archive backend: fs or s3; overrides the config file",
		},
	)
	return &cli.Command{
		Name:                   "run",
		Usage:                  "Run a command inside a fresh run directory and record how it ended",
		ArgsUsage:              "-- <command> [args...]",
		UseShortOptionHandling: true,
		Flags:                  flags,
		Action:                 runAction,
	}
}

// dependency is one --depends-on entry resolved to a run directory.
type dependency struct {
	name string
	dir  string
}

// parseDependencies resolves name=DIR and name=ROOT@VERSION entries. DIR
// is taken relative to the working directory. VERSION is resolved against
// the version root ROOT, so it may be a link name such as best or latest.
func parseDependencies(values []string) ([]dependency, error) {
	deps := make([]dependency, 0, len(values))
	for _, v := range values {
		name, target, ok := strings.Cut(v, "=")
		if !ok || name == "" || target == "" {
			return nil, types.Errorf(types.ErrValidation, "depends-on", v, "expected name=DIR or name=ROOT@VERSION")
		}
		dir, err := dependencyDir(target)
		if err != nil {
			return nil, fmt.Errorf("dependency %s: %w", name, err)
		}
		deps = append(deps, dependency{name: name, dir: dir})
	}
	return deps, nil
}

func dependencyDir(target string) (string, error) {
	root, version, ok := strings.Cut(target, "@")
	if !ok {
		return filepath.Abs(target)
	}
	if root == "" || version == "" {
		return "", types.Errorf(types.ErrValidation, "depends-on", target, "expected ROOT@VERSION")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	return rundir.LastStageDirectory(version, absRoot)
}

func runAction(c *cli.Context) error {
	argv := c.Args().Slice()
	if len(argv) == 0 {
		return cli.Exit("command required after --", runtime.ExitCodeFailure)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	root := c.String(flagOutputRoot)
	if root == "" {
		root = cfg.OutputRoot
	}
	if root == "" {
		return cli.Exit("--output-root required (flag or output_root in the config file)", runtime.ExitCodeFailure)
	}

	logger := terminalLogger(c)
	defer func() { _ = logger.Close() }()

	linkOpts, err := LinkOptionsFromFlags(c, c.Bool("incomplete"), logger)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeFailure)
	}
	deps, err := parseDependencies(c.StringSlice("depends-on"))
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeFailure)
	}

	// Upstream metadata is read before the version root is touched, so a
	// missing metadata.yaml leaves no run directory behind.
	md := metadata.New(logger)
	md.Console = c.App.Writer
	if err := recordInvocation(md, c, argv, root, deps); err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeFailure)
	}

	if p := c.String("archive-path"); p != "" {
		cfg.Archive.Path = p
	}
	if b := c.String("archive-backend"); b != "" {
		cfg.Archive.Backend = b
	}

	stage := c.String("stage")
	if stage == "" {
		stage = cfg.Stage
	}
	if stage == "" {
		stage = filepath.Base(filepath.Clean(root))
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var archiver runtime.Archiver
	archive, err := buildArchive(ctx, cfg.Archive)
	if err != nil {
		return cli.Exit(fmt.Sprintf("archive: %v", err), runtime.ExitCodeFailure)
	}
	if archive != nil {
		defer func() { _ = archive.Close() }()
		archiver = archive
	}
	notifier, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("adapter: %v", err), runtime.ExitCodeFailure)
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
	}

	collector := metrics.NewCollector(stage, archiveBackendName(cfg.Archive), cfg.Adapter.Type)
	collector.IncRunStarted()

	if err := rundir.SetupVersionRoot(root, c.Bool("production") || cfg.Production); err != nil {
		return cli.Exit(fmt.Sprintf("setup version root: %v", err), runtime.ExitCodeFailure)
	}
	runDir, err := rundir.Make(root)
	if err != nil {
		return cli.Exit(fmt.Sprintf("allocate run directory: %v", err), runtime.ExitCodeFailure)
	}
	collector.IncDirAllocated()
	if err := logger.AttachRunDirectory(runDir); err != nil {
		logger.Warn("could not attach run directory logs", map[string]any{"error": err.Error()})
	}
	logger.Info("run directory allocated", map[string]any{"run_directory": runDir, "stage": stage})


	app := runtime.CommandApp(runtime.Command{
		Path: argv[0],
		Args: argv[1:],
		Env: []string{
			runtime.EnvRunDirectory + "=" + runDir,
			runtime.EnvVersionRoot + "=" + filepath.Dir(runDir),
		},
		Stdout: c.App.Writer,
		Stderr: c.App.ErrWriter,
	}, logger)

	outcome := runtime.Monitor(ctx, md, app, runtime.MonitorOptions{
		Logger:       logger,
		Name:         stage,
		WithDebugger: c.Bool(flagPDB),
		Stderr:       c.App.ErrWriter,
	})

	appMetadata, err := readAppMetadata(runDir)
	if err != nil {
		logger.Warn("ignoring unreadable app metadata", map[string]any{"error": err.Error()})
	}

	// Finish must still record and announce an interrupted run.
	finishCtx := context.WithoutCancel(ctx)
	err = runtime.Finish(finishCtx, runtime.FinishConfig{
		Metadata:    md,
		Outcome:     outcome,
		RunDir:      runDir,
		Stage:       stage,
		Links:       linkOpts,
		AppMetadata: appMetadata,
		Archive:     archiver,
		Notifier:    notifier,
		Collector:   collector,
		Logger:      logger,
	})
	if err == nil {
		return nil
	}
	code := runtime.ExitCodeForError(err)
	if errors.Is(err, runtime.ErrInterrupted) {
		return cli.Exit("", code)
	}
	return cli.Exit(fmt.Sprintf("stage %s failed: %v", stage, err), code)
}

// recordInvocation stores tool_name, run_arguments and the metadata of
// every upstream dependency.
func recordInvocation(md *metadata.RunMetadata, c *cli.Context, argv []string, root string, deps []dependency) error {
	if err := md.Set(metadata.KeyToolName, "stagekit run "+argv[0]); err != nil {
		return err
	}
	names := []string{"command", "output_root", "mark_best", "production_tag"}
	values := []any{strings.Join(argv, " "), root, c.Bool(flagMarkBest), c.String(flagProductionTag)}
	for _, d := range deps {
		names = append(names, d.name+"_version")
		values = append(values, d.dir)
	}
	if err := md.Set(metadata.KeyRunArguments, metadata.ArgumentMapping(names, values)); err != nil {
		return err
	}
	for _, d := range deps {
		if err := metadata.UpdateWithPrevious(md, d.dir); err != nil {
			return fmt.Errorf("dependency %s: %w", d.name, err)
		}
	}
	return nil
}

// readAppMetadata loads the optional app_metadata.yaml the wrapped command
// may leave in its run directory. A missing file is not an error.
func readAppMetadata(runDir string) (map[string]any, error) {
	path := filepath.Join(runDir, AppMetadataFileName)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return metadata.Load(path)
}
