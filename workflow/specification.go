// Package workflow builds task graphs for an external workflow engine.
//
// Specifications describe per-task compute resources and are checked
// against cluster limits before anything is submitted. Templates turn a
// specification plus model arguments into concrete tasks. The engine
// itself sits behind the Orchestrator interface.
package workflow

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/stagekit/log"
	"github.com/pithecene-io/stagekit/types"
)

// Defaults for WorkflowSpecification.
const (
	DefaultProject = "proj_covid"
	DefaultQueue   = "d.q"
)

// Cluster limits.
const (
	MinRuntimeSeconds = 100
	MaxRuntimeSeconds = 60 * 60 * 24
	MinMemoryGB       = 1
	MaxMemoryGB       = 1000
	MinCores          = 1
	MaxCores          = 79
)

var (
	// AllowedProjects lists the projects workflows may run under.
	AllowedProjects = []string{"proj_dq", "proj_covid", "proj_covid_prod"}
	// AllowedQueues lists the queues tasks may be scheduled on.
	AllowedQueues = []string{"d.q", "all.q", "long.q"}
)

var memPattern = regexp.MustCompile(`^(\d+)G$`)

// ErrInvalidSpecification is the kind of every specification error.
var ErrInvalidSpecification = fmt.Errorf("invalid specification: %w", types.ErrValidation)

// TaskDefaults are the resources a task type gets when its specification
// leaves them out.
type TaskDefaults struct {
	MaxRuntimeSeconds int
	MemFree           string
	NumCores          int
}

// Validate checks the defaults against the cluster limits.
func (d TaskDefaults) Validate(name string) error {
	return checkResources(name, "default", d.MaxRuntimeSeconds, d.MemFree, d.NumCores)
}

// TaskSpecification holds resolved compute resources for one task type.
type TaskSpecification struct {
	Name              string `yaml:"-" json:"-"`
	MaxRuntimeSeconds int    `yaml:"max_runtime_seconds" json:"max_runtime_seconds"`
	MemFree           string `yaml:"m_mem_free" json:"m_mem_free"`
	NumCores          int    `yaml:"num_cores" json:"num_cores"`
	Queue             string `yaml:"queue" json:"queue"`
}

// NewTaskSpecification resolves options over defaults. Unknown options are
// logged and ignored. The result is not validated; call Validate.
func NewTaskSpecification(name string, defaults TaskDefaults, queue string, options map[string]any, logger *log.Logger) (*TaskSpecification, error) {
	if err := defaults.Validate(name); err != nil {
		return nil, err
	}
	opts := maps.Clone(options)
	spec := &TaskSpecification{
		Name:              name,
		MaxRuntimeSeconds: defaults.MaxRuntimeSeconds,
		MemFree:           defaults.MemFree,
		NumCores:          defaults.NumCores,
		Queue:             queue,
	}

	var err error
	if v, ok := opts["max_runtime_seconds"]; ok {
		delete(opts, "max_runtime_seconds")
		if spec.MaxRuntimeSeconds, err = toInt(v); err != nil {
			return nil, types.NewError(ErrInvalidSpecification, name, "", fmt.Errorf("max_runtime_seconds: %w", err))
		}
	}
	if v, ok := opts["m_mem_free"]; ok {
		delete(opts, "m_mem_free")
		spec.MemFree = fmt.Sprint(v)
	}
	if v, ok := opts["num_cores"]; ok {
		delete(opts, "num_cores")
		if spec.NumCores, err = toInt(v); err != nil {
			return nil, types.NewError(ErrInvalidSpecification, name, "", fmt.Errorf("num_cores: %w", err))
		}
	}
	// The queue always comes from the workflow.
	delete(opts, "queue")

	if len(opts) > 0 {
		log.OrNop(logger).Warn("unknown task options ignored", map[string]any{
			"task":    name,
			"options": slices.Sorted(maps.Keys(opts)),
		})
	}
	return spec, nil
}

// Validate checks the resolved resources against the cluster limits.
func (s *TaskSpecification) Validate() error {
	return checkResources(s.Name, "", s.MaxRuntimeSeconds, s.MemFree, s.NumCores)
}

// Resources renders the specification as engine compute resources.
func (s *TaskSpecification) Resources() map[string]any {
	return map[string]any{
		"max_runtime_seconds": s.MaxRuntimeSeconds,
		"m_mem_free":          s.MemFree,
		"num_cores":           s.NumCores,
		"queue":               s.Queue,
	}
}

func (s *TaskSpecification) String() string {
	return fmt.Sprintf("%s(max_runtime_seconds=%d, m_mem_free=%s, num_cores=%d, queue=%s)",
		s.Name, s.MaxRuntimeSeconds, s.MemFree, s.NumCores, s.Queue)
}

func checkResources(name, which string, runtime int, mem string, cores int) error {
	label := "max runtime"
	if which != "" {
		label = which + " " + label
	}
	if runtime < MinRuntimeSeconds || runtime > MaxRuntimeSeconds {
		return types.Errorf(ErrInvalidSpecification, name, "",
			"%s %d must be in the range [%d, %d]", label, runtime, MinRuntimeSeconds, MaxRuntimeSeconds)
	}
	m := memPattern.FindStringSubmatch(mem)
	if m == nil {
		return types.Errorf(ErrInvalidSpecification, name, "",
			"memory request %q must look like \"XG\" where X is an integer", mem)
	}
	gb, _ := strconv.Atoi(m[1])
	if gb < MinMemoryGB || gb > MaxMemoryGB {
		return types.Errorf(ErrInvalidSpecification, name, "",
			"memory %s must be in the range [%dG, %dG]", mem, MinMemoryGB, MaxMemoryGB)
	}
	if cores < MinCores || cores > MaxCores {
		return types.Errorf(ErrInvalidSpecification, name, "",
			"num cores %d must be in the range [%d, %d]", cores, MinCores, MaxCores)
	}
	return nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

// WorkflowOptions is the user-facing form of a workflow specification, as
// written in a specification file.
type WorkflowOptions struct {
	Project string                    `yaml:"project"`
	Queue   string                    `yaml:"queue"`
	Tasks   map[string]map[string]any `yaml:"tasks"`
}

// WorkflowSpecification holds a validated project, queue and the resolved
// specification of every known task type.
type WorkflowSpecification struct {
	Name    string                        `yaml:"-"`
	Project string                        `yaml:"project"`
	Queue   string                        `yaml:"queue"`
	Tasks   map[string]*TaskSpecification `yaml:"tasks"`
}

// NewWorkflowSpecification validates opts and resolves a specification for
// every task type in taskTypes. Options for task types not in taskTypes are
// logged and ignored.
func NewWorkflowSpecification(name string, taskTypes map[string]TaskDefaults, opts WorkflowOptions, logger *log.Logger) (*WorkflowSpecification, error) {
	spec := &WorkflowSpecification{
		Name:    name,
		Project: opts.Project,
		Queue:   opts.Queue,
		Tasks:   make(map[string]*TaskSpecification, len(taskTypes)),
	}
	if spec.Project == "" {
		spec.Project = DefaultProject
	}
	if spec.Queue == "" {
		spec.Queue = DefaultQueue
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var errs []error
	for _, taskName := range slices.Sorted(maps.Keys(taskTypes)) {
		ts, err := NewTaskSpecification(taskName, taskTypes[taskName], spec.Queue, opts.Tasks[taskName], logger)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := ts.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		spec.Tasks[taskName] = ts
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	var unknown []string
	for taskName := range opts.Tasks {
		if _, ok := taskTypes[taskName]; !ok {
			unknown = append(unknown, taskName)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		log.OrNop(logger).Warn("specifications for unknown tasks ignored", map[string]any{
			"workflow": name,
			"tasks":    unknown,
		})
	}
	return spec, nil
}

// Validate checks the project and queue against the allowed values.
func (s *WorkflowSpecification) Validate() error {
	if !slices.Contains(AllowedProjects, s.Project) {
		return types.Errorf(ErrInvalidSpecification, s.Name, "",
			"project %q must be one of %v", s.Project, AllowedProjects)
	}
	if !slices.Contains(AllowedQueues, s.Queue) {
		return types.Errorf(ErrInvalidSpecification, s.Name, "",
			"queue %q must be one of %v", s.Queue, AllowedQueues)
	}
	return nil
}

// TaskNames returns the task type names in sorted order.
func (s *WorkflowSpecification) TaskNames() []string {
	return slices.Sorted(maps.Keys(s.Tasks))
}

// LoadWorkflowSpecification reads WorkflowOptions from a YAML file and
// resolves them against taskTypes.
func LoadWorkflowSpecification(path, name string, taskTypes map[string]TaskDefaults, logger *log.Logger) (*WorkflowSpecification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow specification: %w", err)
	}
	var opts WorkflowOptions
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, types.NewError(ErrInvalidSpecification, "load", path, err)
	}
	return NewWorkflowSpecification(name, taskTypes, opts, logger)
}
