package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/stagekit/cli/config"
	"github.com/pithecene-io/stagekit/cli/render"
	"github.com/pithecene-io/stagekit/log"
	"github.com/pithecene-io/stagekit/types"
	"github.com/pithecene-io/stagekit/workflow"
)

// WorkflowFile is the YAML form of a workflow for the workflow command.
//
//	name: "features-{{.Version}}"
//	project: proj_covid
//	queue: d.q
//	task_types:
//	  build:
//	    name: "build_{{.location}}"
//	    command: "make-features --location {{.location}}"
//	    defaults: {max_runtime_seconds: 3600, m_mem_free: 4G, num_cores: 1}
//	    options: {num_cores: 2}
//	tasks:
//	  - type: build
//	    args: {location: north}
type WorkflowFile struct {
	Name      string                      `yaml:"name"`
	Project   string                      `yaml:"project"`
	Queue     string                      `yaml:"queue"`
	TaskTypes map[string]WorkflowTaskType `yaml:"task_types"`
	Tasks     []WorkflowTask              `yaml:"tasks"`
}

// WorkflowTaskType declares one task type: its templates, its default
// resources and the options that override them.
type WorkflowTaskType struct {
	Name     string         `yaml:"name"`
	Command  string         `yaml:"command"`
	Defaults TaskDefaults   `yaml:"defaults"`
	Options  map[string]any `yaml:"options"`
}

// TaskDefaults is the YAML form of workflow.TaskDefaults.
type TaskDefaults struct {
	MaxRuntimeSeconds int    `yaml:"max_runtime_seconds"`
	MemFree           string `yaml:"m_mem_free"`
	NumCores          int    `yaml:"num_cores"`
}

// WorkflowTask is one task instance. Upstream names tasks listed earlier.
type WorkflowTask struct {
	Type     string         `yaml:"type"`
	Args     map[string]any `yaml:"args"`
	Upstream []string       `yaml:"upstream"`
}

// LoadWorkflowFile reads a workflow file.
func LoadWorkflowFile(path string) (*WorkflowFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	var wf WorkflowFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, types.NewError(types.ErrValidation, "load workflow", path, err)
	}
	if wf.Name == "" {
		wf.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if len(wf.TaskTypes) == 0 {
		return nil, types.Errorf(types.ErrValidation, "load workflow", path, "no task_types declared")
	}
	return &wf, nil
}

// Build resolves the specification, renders every task and attaches it to
// a template for version. Log directories are created under version.
func (wf *WorkflowFile) Build(version string, cfg config.WorkflowConfig, dial workflow.Dialer, logger *log.Logger) (*workflow.WorkflowTemplate, error) {
	defaults := make(map[string]workflow.TaskDefaults, len(wf.TaskTypes))
	options := make(map[string]map[string]any, len(wf.TaskTypes))
	commands := make(map[string]workflow.TaskCommands, len(wf.TaskTypes))
	for name, tt := range wf.TaskTypes {
		defaults[name] = workflow.TaskDefaults(tt.Defaults)
		options[name] = tt.Options
		commands[name] = workflow.TaskCommands{Name: tt.Name, Command: tt.Command}
	}

	spec, err := workflow.NewWorkflowSpecification(wf.Name, defaults, workflow.WorkflowOptions{
		Project: wf.Project,
		Queue:   wf.Queue,
		Tasks:   options,
	}, logger)
	if err != nil {
		return nil, err
	}

	tool := workflow.ToolInfo{Name: cfg.Tool, Version: cfg.ToolVersion}
	if tool.Name == "" {
		tool.Name = "stagekit"
	}
	if tool.Version == "" {
		tool.Version = types.Version
	}
	factory, err := workflow.NewClientFactory(tool, dial)
	if err != nil {
		return nil, err
	}

	tmpl, err := workflow.NewWorkflowTemplate(workflow.WorkflowConfig{
		Version:      version,
		NameTemplate: wf.Name,
		Spec:         spec,
		Commands:     commands,
		Factory:      factory,
		Cluster:      cfg.Cluster,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	for i, t := range wf.Tasks {
		if _, err := tmpl.AddTask(t.Type, t.Args, t.Upstream...); err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
	}
	return tmpl, nil
}

// WorkflowCommand returns the workflow command. Workflows run on the local
// engine, which executes each task with sh on this machine.
func WorkflowCommand() *cli.Command {
	common := []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:     "version-dir",
			Aliases:  []string{"d"},
			Required: true,
			Usage:    "Output version directory; task logs go under <dir>/logs",
		},
	}
	return &cli.Command{
		Name:  "workflow",
		Usage: "Build and run task workflows",
		Subcommands: []*cli.Command{
			{
				Name:      "render",
				Usage:     "Show the task graph a workflow file builds",
				ArgsUsage: "<workflow.yaml>",
				Flags:     append(append(LoggingFlags(), common...), ReadOnlyFlags()...),
				Action:    workflowRenderAction,
			},
			{
				Name:      "run",
				Usage:     "Run a workflow file on the local engine",
				ArgsUsage: "<workflow.yaml>",
				Flags: append(append(LoggingFlags(), common...),
					&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "Concurrent tasks (default: parallel.workers from the config file, else 1)"},
					&cli.BoolFlag{Name: "keep-going", Usage: "Keep running independent tasks after a failure"},
					FormatFlag,
				),
				UseShortOptionHandling: true,
				Action:                 workflowRunAction,
			},
		},
	}
}

func buildWorkflow(c *cli.Context, logger *log.Logger, workers int) (*workflow.WorkflowTemplate, error) {
	if c.NArg() != 1 {
		return nil, cli.Exit("workflow file required", 1)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if workers == 0 {
		workers = cfg.Parallel.Workers
	}
	wf, err := LoadWorkflowFile(c.Args().First())
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	tmpl, err := wf.Build(c.String("version-dir"), cfg.Workflow, workflow.DialLocal(workers, logger), logger)
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	return tmpl, nil
}

func workflowRenderAction(c *cli.Context) error {
	if c.Bool(flagTUI) {
		return cli.Exit("--tui is not supported for workflow command", 1)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	logger := terminalLogger(c)
	defer func() { _ = logger.Close() }()

	tmpl, err := buildWorkflow(c, logger, 0)
	if err != nil {
		return err
	}
	return r.Render(tmpl.Definition())
}

func workflowRunAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	logger := terminalLogger(c)
	defer func() { _ = logger.Close() }()

	tmpl, err := buildWorkflow(c, logger, c.Int("workers"))
	if err != nil {
		return err
	}
	tmpl.FailFast = !c.Bool("keep-going")

	res, err := tmpl.Run(c.Context)
	if rerr := r.Render(res); rerr != nil {
		logger.Warn("could not render workflow result", map[string]any{"error": rerr.Error()})
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}
