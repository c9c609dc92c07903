package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/pithecene-io/stagekit/iox"
	"github.com/pithecene-io/stagekit/log"
	"github.com/pithecene-io/stagekit/types"
)

// DefaultRunTimeoutSeconds bounds a whole workflow run.
const DefaultRunTimeoutSeconds = 60 * 60 * 24

// ErrWorkflowFailed is returned by WorkflowTemplate.Run when the engine
// reports anything but done.
var ErrWorkflowFailed = errors.New("workflow failed")

// MakeLogDirs creates <logDir>/output and <logDir>/error and returns them.
func MakeLogDirs(logDir string) (stdout, stderr string, err error) {
	stdout = filepath.Join(logDir, "output")
	stderr = filepath.Join(logDir, "error")
	for _, dir := range []string{stdout, stderr} {
		if err := iox.MakeDirTree(dir); err != nil {
			return "", "", err
		}
	}
	return stdout, stderr, nil
}

// TaskCommands are the text/template sources for one task type. Both are
// executed against the task arguments, e.g. "stage_{{.location}}".
type TaskCommands struct {
	Name    string
	Command string
}

// TaskTemplate turns task arguments into engine tasks for one task type.
type TaskTemplate struct {
	Type      string
	name      *template.Template
	command   *template.Template
	resources map[string]any
}

// NewTaskTemplate parses cmds. A missing argument at execution time is an
// error rather than "<no value>".
func NewTaskTemplate(taskType string, cmds TaskCommands, spec *TaskSpecification) (*TaskTemplate, error) {
	name, err := template.New(taskType + ".name").Option("missingkey=error").Parse(cmds.Name)
	if err != nil {
		return nil, types.NewError(types.ErrValidation, "parse task name template", taskType, err)
	}
	command, err := template.New(taskType + ".command").Option("missingkey=error").Parse(cmds.Command)
	if err != nil {
		return nil, types.NewError(types.ErrValidation, "parse task command template", taskType, err)
	}
	return &TaskTemplate{
		Type:      taskType,
		name:      name,
		command:   command,
		resources: spec.Resources(),
	}, nil
}

// Task renders a task. Tasks run at most once; retries are the caller's
// decision.
func (t *TaskTemplate) Task(args map[string]any, upstream ...string) (Task, error) {
	name, err := render(t.name, args)
	if err != nil {
		return Task{}, fmt.Errorf("task %s name: %w", t.Type, err)
	}
	command, err := render(t.command, args)
	if err != nil {
		return Task{}, fmt.Errorf("task %s command: %w", t.Type, err)
	}
	return Task{
		Name:        name,
		Command:     command,
		Resources:   maps.Clone(t.resources),
		Upstream:    slices.Clone(upstream),
		MaxAttempts: 1,
	}, nil
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// WorkflowConfig configures NewWorkflowTemplate.
type WorkflowConfig struct {
	// Version is the output version directory; logs go under <Version>/logs.
	Version string
	// NameTemplate renders the workflow name from {{.Version}}.
	NameTemplate string
	Spec         *WorkflowSpecification
	// Commands must have exactly the task types of Spec.
	Commands map[string]TaskCommands
	Factory  *ClientFactory
	Cluster  string
	Logger   *log.Logger
}

// WorkflowTemplate builds a workflow for one output version and runs it.
type WorkflowTemplate struct {
	Version string
	// FailFast stops the run at the first failed task. Defaults to true.
	FailFast bool

	def     WorkflowDefinition
	tasks   map[string]*TaskTemplate
	factory *ClientFactory
	logger  *log.Logger
}

// NewWorkflowTemplate checks that cfg.Commands covers exactly the
// specified task types, creates the log directories and prepares the
// workflow definition. The engine is not contacted.
func NewWorkflowTemplate(cfg WorkflowConfig) (*WorkflowTemplate, error) {
	if cfg.Spec == nil || cfg.Factory == nil {
		return nil, errors.New("workflow specification and client factory are required")
	}
	specTypes := cfg.Spec.TaskNames()
	cmdTypes := slices.Sorted(maps.Keys(cfg.Commands))
	if !slices.Equal(specTypes, cmdTypes) {
		return nil, types.Errorf(types.ErrValidation, "workflow template", cfg.Version,
			"task types %v do not match specification %v", cmdTypes, specTypes)
	}

	tasks := make(map[string]*TaskTemplate, len(cmdTypes))
	for _, taskType := range cmdTypes {
		tt, err := NewTaskTemplate(taskType, cfg.Commands[taskType], cfg.Spec.Tasks[taskType])
		if err != nil {
			return nil, err
		}
		tasks[taskType] = tt
	}

	nameTmpl, err := template.New("workflow").Option("missingkey=error").Parse(cfg.NameTemplate)
	if err != nil {
		return nil, types.NewError(types.ErrValidation, "parse workflow name template", cfg.Version, err)
	}
	name, err := render(nameTmpl, map[string]string{"Version": cfg.Version})
	if err != nil {
		return nil, err
	}

	stdout, stderr, err := MakeLogDirs(filepath.Join(cfg.Version, types.LogDir))
	if err != nil {
		return nil, fmt.Errorf("make log dirs: %w", err)
	}

	return &WorkflowTemplate{
		Version:  cfg.Version,
		FailFast: true,
		def: WorkflowDefinition{
			Name:    name,
			Cluster: cfg.Cluster,
			Resources: ComputeResources{
				Stdout:  stdout,
				Stderr:  stderr,
				Project: cfg.Spec.Project,
			},
		},
		tasks:   tasks,
		factory: cfg.Factory,
		logger:  log.OrNop(cfg.Logger),
	}, nil
}

// Name returns the rendered workflow name.
func (w *WorkflowTemplate) Name() string {
	return w.def.Name
}

// Definition returns a copy of the workflow built so far.
func (w *WorkflowTemplate) Definition() WorkflowDefinition {
	def := w.def
	def.Tasks = slices.Clone(w.def.Tasks)
	return def
}

// AddTask renders a task of taskType and attaches it. Upstream tasks must
// already be attached.
func (w *WorkflowTemplate) AddTask(taskType string, args map[string]any, upstream ...string) (Task, error) {
	tt, ok := w.tasks[taskType]
	if !ok {
		return Task{}, types.Errorf(types.ErrNotFound, "add task", "", "unknown task type %q", taskType)
	}
	for _, up := range upstream {
		if !slices.ContainsFunc(w.def.Tasks, func(t Task) bool { return t.Name == up }) {
			return Task{}, types.Errorf(types.ErrNotFound, "add task", "", "upstream task %q is not attached", up)
		}
	}
	task, err := tt.Task(args, upstream...)
	if err != nil {
		return Task{}, err
	}
	if slices.ContainsFunc(w.def.Tasks, func(t Task) bool { return t.Name == task.Name }) {
		return Task{}, types.Errorf(types.ErrConflict, "add task", "", "task %q already attached", task.Name)
	}
	w.def.Tasks = append(w.def.Tasks, task)
	return task, nil
}

// Run submits the workflow and waits for it. Any status other than done,
// including an engine error, fails with ErrWorkflowFailed and names the
// workflow run id so the run can be found in the engine.
func (w *WorkflowTemplate) Run(ctx context.Context) (RunResult, error) {
	client, err := w.factory.Client(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("connect to workflow engine: %w", err)
	}
	id, err := client.CreateWorkflow(ctx, w.Definition())
	if err != nil {
		return RunResult{}, fmt.Errorf("create workflow %s: %w", w.def.Name, err)
	}
	w.logger.Info("workflow created", map[string]any{"workflow": w.def.Name, "workflow_id": id, "tasks": len(w.def.Tasks)})

	res, runErr := client.Run(ctx, id, RunOptions{FailFast: w.FailFast, TimeoutSeconds: DefaultRunTimeoutSeconds})
	if runErr != nil {
		res.Status = RunStatusError
	}
	if res.Status != RunStatusDone {
		err := fmt.Errorf("%w with status %s, workflow run id: %s", ErrWorkflowFailed, res.Status, res.RunID)
		if runErr != nil {
			err = errors.Join(err, runErr)
		}
		return res, err
	}
	w.logger.Info("workflow done", map[string]any{"workflow": w.def.Name, "workflow_run_id": res.RunID})
	return res, nil
}
