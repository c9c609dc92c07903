package workflow

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pithecene-io/stagekit/log"
	"github.com/pithecene-io/stagekit/types"
)

var testTaskTypes = map[string]TaskDefaults{
	"regression": {MaxRuntimeSeconds: 3600, MemFree: "5G", NumCores: 1},
	"forecast":   {MaxRuntimeSeconds: 7200, MemFree: "10G", NumCores: 3},
}

func TestTaskDefaults_Validate(t *testing.T) {
	tests := []struct {
		name     string
		defaults TaskDefaults
		wantErr  bool
	}{
		{"valid", TaskDefaults{3600, "5G", 1}, false},
		{"runtime low", TaskDefaults{99, "5G", 1}, true},
		{"runtime high", TaskDefaults{86401, "5G", 1}, true},
		{"runtime bounds inclusive", TaskDefaults{86400, "1000G", 79}, false},
		{"memory unit", TaskDefaults{3600, "5M", 1}, true},
		{"memory not integer", TaskDefaults{3600, "1.5G", 1}, true},
		{"memory zero", TaskDefaults{3600, "0G", 1}, true},
		{"memory high", TaskDefaults{3600, "1001G", 1}, true},
		{"cores zero", TaskDefaults{3600, "5G", 0}, true},
		{"cores high", TaskDefaults{3600, "5G", 80}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.defaults.Validate("task")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, types.ErrValidation) {
				t.Errorf("error should be a validation error: %v", err)
			}
		})
	}
}

func TestNewTaskSpecification_Overrides(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLoggerWithWriter(&buf)

	spec, err := NewTaskSpecification("forecast", testTaskTypes["forecast"], "all.q", map[string]any{
		"max_runtime_seconds": 200,
		"m_mem_free":          "20G",
		"num_cores":           "4",
		"queue":               "long.q",
		"priority":            "high",
	}, logger)
	if err != nil {
		t.Fatalf("NewTaskSpecification failed: %v", err)
	}
	if spec.MaxRuntimeSeconds != 200 || spec.MemFree != "20G" || spec.NumCores != 4 {
		t.Errorf("spec = %s", spec)
	}
	if spec.Queue != "all.q" {
		t.Errorf("Queue = %q, the workflow queue should win", spec.Queue)
	}
	if err := spec.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	if !strings.Contains(buf.String(), "unknown task options ignored") || !strings.Contains(buf.String(), "priority") {
		t.Errorf("expected a warning naming the unknown option, got %q", buf.String())
	}
}

func TestNewTaskSpecification_Defaults(t *testing.T) {
	spec, err := NewTaskSpecification("regression", testTaskTypes["regression"], "d.q", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"max_runtime_seconds": 3600, "m_mem_free": "5G", "num_cores": 1, "queue": "d.q"}
	got := spec.Resources()
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Resources()[%s] = %v, want %v", k, got[k], v)
		}
	}
}

func TestNewTaskSpecification_BadOption(t *testing.T) {
	_, err := NewTaskSpecification("forecast", testTaskTypes["forecast"], "d.q", map[string]any{"num_cores": "many"}, nil)
	if !errors.Is(err, ErrInvalidSpecification) {
		t.Fatalf("expected ErrInvalidSpecification, got %v", err)
	}
}

func TestNewTaskSpecification_OutOfBoundsOverride(t *testing.T) {
	spec, err := NewTaskSpecification("forecast", testTaskTypes["forecast"], "d.q", map[string]any{"m_mem_free": "2000G"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := spec.Validate(); !errors.Is(err, types.ErrValidation) {
		t.Errorf("Validate() = %v, want validation error", err)
	}
}

func TestNewWorkflowSpecification(t *testing.T) {
	var buf bytes.Buffer
	spec, err := NewWorkflowSpecification("forecast_workflow", testTaskTypes, WorkflowOptions{
		Tasks: map[string]map[string]any{
			"forecast": {"num_cores": 10},
			"plotting": {"num_cores": 1},
		},
	}, log.NewLoggerWithWriter(&buf))
	if err != nil {
		t.Fatalf("NewWorkflowSpecification failed: %v", err)
	}
	if spec.Project != DefaultProject || spec.Queue != DefaultQueue {
		t.Errorf("project/queue = %s/%s, want defaults", spec.Project, spec.Queue)
	}
	if got := spec.TaskNames(); len(got) != 2 || got[0] != "forecast" || got[1] != "regression" {
		t.Errorf("TaskNames() = %v", got)
	}
	if spec.Tasks["forecast"].NumCores != 10 || spec.Tasks["regression"].NumCores != 1 {
		t.Errorf("tasks = %v", spec.Tasks)
	}
	for _, ts := range spec.Tasks {
		if ts.Queue != DefaultQueue {
			t.Errorf("%s queue = %s", ts.Name, ts.Queue)
		}
	}
	if !strings.Contains(buf.String(), "plotting") {
		t.Errorf("unknown task should be warned about, got %q", buf.String())
	}
}

func TestNewWorkflowSpecification_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts WorkflowOptions
	}{
		{"project", WorkflowOptions{Project: "proj_other"}},
		{"queue", WorkflowOptions{Queue: "fast.q"}},
		{"task", WorkflowOptions{Tasks: map[string]map[string]any{"forecast": {"num_cores": 100}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWorkflowSpecification("wf", testTaskTypes, tt.opts, nil)
			if !errors.Is(err, ErrInvalidSpecification) {
				t.Errorf("expected ErrInvalidSpecification, got %v", err)
			}
		})
	}
}

func TestLoadWorkflowSpecification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.yaml")
	content := `project: proj_covid_prod
queue: long.q
tasks:
  regression:
    max_runtime_seconds: 5000
    m_mem_free: 50G
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	spec, err := LoadWorkflowSpecification(path, "wf", testTaskTypes, nil)
	if err != nil {
		t.Fatalf("LoadWorkflowSpecification failed: %v", err)
	}
	if spec.Project != "proj_covid_prod" || spec.Queue != "long.q" {
		t.Errorf("project/queue = %s/%s", spec.Project, spec.Queue)
	}
	r := spec.Tasks["regression"]
	if r.MaxRuntimeSeconds != 5000 || r.MemFree != "50G" || r.Queue != "long.q" {
		t.Errorf("regression = %s", r)
	}
}

func TestLoadWorkflowSpecification_Errors(t *testing.T) {
	if _, err := LoadWorkflowSpecification(filepath.Join(t.TempDir(), "missing.yaml"), "wf", testTaskTypes, nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: got %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("tasks: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadWorkflowSpecification(path, "wf", testTaskTypes, nil); !errors.Is(err, ErrInvalidSpecification) {
		t.Errorf("bad yaml: got %v", err)
	}
}
