package workflow

import (
	"context"
	"errors"
	"sync"
)

// RunStatus is the terminal state the engine reports for a workflow run.
type RunStatus string

const (
	RunStatusDone    RunStatus = "D"
	RunStatusError   RunStatus = "E"
	RunStatusStopped RunStatus = "S"
)

// Task is one node of a workflow graph as handed to the engine.
type Task struct {
	Name    string `json:"name" yaml:"name"`
	Command string `json:"command" yaml:"command"`
	// Resources are the engine compute resources, usually
	// TaskSpecification.Resources.
	Resources map[string]any `json:"resources" yaml:"resources"`
	// Upstream names tasks that must finish first.
	Upstream    []string `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	MaxAttempts int      `json:"max_attempts" yaml:"max_attempts"`
}

// ComputeResources are the workflow-wide defaults every task inherits.
type ComputeResources struct {
	Stdout  string `json:"stdout" yaml:"stdout"`
	Stderr  string `json:"stderr" yaml:"stderr"`
	Project string `json:"project" yaml:"project"`
}

// WorkflowDefinition is everything the engine needs to create a workflow.
type WorkflowDefinition struct {
	Name      string           `json:"name" yaml:"name"`
	Cluster   string           `json:"cluster,omitempty" yaml:"cluster,omitempty"`
	Resources ComputeResources `json:"resources" yaml:"resources"`
	Tasks     []Task           `json:"tasks" yaml:"tasks"`
}

// RunOptions control a workflow run.
type RunOptions struct {
	FailFast       bool
	TimeoutSeconds int
}

// RunResult is what a workflow run ended with. RunID is set whenever the
// engine got far enough to create a run, including on failure.
type RunResult struct {
	Status RunStatus `json:"status" yaml:"status"`
	RunID  string    `json:"run_id" yaml:"run_id"`
}

// Orchestrator is the external workflow engine.
type Orchestrator interface {
	// CreateWorkflow registers def and returns the engine's workflow id.
	CreateWorkflow(ctx context.Context, def WorkflowDefinition) (string, error)
	// Run executes a created workflow and blocks until it ends.
	Run(ctx context.Context, workflowID string, opts RunOptions) (RunResult, error)
}

// ToolInfo identifies the calling tool to the engine.
type ToolInfo struct {
	Name    string
	Version string
}

// Dialer connects to the engine.
type Dialer func(ctx context.Context, tool ToolInfo) (Orchestrator, error)

// ErrNoToolVersion is returned for a tool without an engine version id.
var ErrNoToolVersion = errors.New("tool must define an engine version")

// ClientFactory holds what is needed to reach the engine and only dials
// on the first call to Client. The dial result, including an error, is
// shared by every later call.
type ClientFactory struct {
	tool ToolInfo
	dial Dialer

	once   sync.Once
	client Orchestrator
	err    error
}

// NewClientFactory validates tool without contacting the engine.
func NewClientFactory(tool ToolInfo, dial Dialer) (*ClientFactory, error) {
	if tool.Version == "" {
		return nil, ErrNoToolVersion
	}
	if dial == nil {
		return nil, errors.New("dialer is required")
	}
	return &ClientFactory{tool: tool, dial: dial}, nil
}

// Tool returns the identity the factory dials with.
func (f *ClientFactory) Tool() ToolInfo {
	return f.tool
}

// Client returns the engine client, dialing on first use.
func (f *ClientFactory) Client(ctx context.Context) (Orchestrator, error) {
	f.once.Do(func() {
		f.client, f.err = f.dial(ctx, f.tool)
	})
	return f.client, f.err
}
