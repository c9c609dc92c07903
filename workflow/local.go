package workflow

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/stagekit/iox"
	"github.com/pithecene-io/stagekit/log"
	"github.com/pithecene-io/stagekit/types"
)

// Local is an Orchestrator that runs tasks as shell commands on this
// machine, in dependency order. It stands in for the cluster engine on a
// workstation and in tests.
type Local struct {
	// Workers bounds how many ready tasks run at once.
	Workers int
	// Shell runs each task command with "-c". Defaults to "sh".
	Shell string

	logger *log.Logger
	// chatter carries per-task progress under the orchestrator logger
	// name, so it only reaches trace-level sinks.
	chatter *zap.Logger

	mu        sync.Mutex
	workflows map[string]WorkflowDefinition
}

// NewLocal creates a local engine.
func NewLocal(workers int, logger *log.Logger) *Local {
	logger = log.OrNop(logger)
	return &Local{
		Workers:   max(workers, 1),
		Shell:     "sh",
		logger:    logger,
		chatter:   logger.Named("orchestrator.local"),
		workflows: make(map[string]WorkflowDefinition),
	}
}

// DialLocal returns a Dialer for a fresh local engine.
func DialLocal(workers int, logger *log.Logger) Dialer {
	return func(_ context.Context, tool ToolInfo) (Orchestrator, error) {
		l := NewLocal(workers, logger)
		l.chatter.Info("local workflow engine ready", zap.String("tool", tool.Name), zap.String("version", tool.Version))
		return l, nil
	}
}

// CreateWorkflow checks that the task graph is acyclic with unique names
// and known upstreams.
func (l *Local) CreateWorkflow(_ context.Context, def WorkflowDefinition) (string, error) {
	if _, err := order(def.Tasks); err != nil {
		return "", err
	}
	id := uuid.NewString()
	l.mu.Lock()
	l.workflows[id] = def
	l.mu.Unlock()
	return id, nil
}

// order returns tasks grouped in waves: every task's upstreams are in an
// earlier wave.
func order(tasks []Task) ([][]Task, error) {
	byName := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		if _, dup := byName[t.Name]; dup {
			return nil, types.Errorf(types.ErrConflict, "create workflow", "", "duplicate task %q", t.Name)
		}
		byName[t.Name] = t
	}
	pending := make(map[string]int, len(tasks))
	for _, t := range tasks {
		for _, up := range t.Upstream {
			if _, ok := byName[up]; !ok {
				return nil, types.Errorf(types.ErrValidation, "create workflow", "", "task %q depends on unknown task %q", t.Name, up)
			}
		}
		pending[t.Name] = len(t.Upstream)
	}

	var waves [][]Task
	done := 0
	for done < len(tasks) {
		var wave []Task
		for _, t := range tasks {
			if n, ok := pending[t.Name]; ok && n == 0 {
				wave = append(wave, t)
			}
		}
		if len(wave) == 0 {
			return nil, types.Errorf(types.ErrValidation, "create workflow", "", "task graph has a cycle")
		}
		for _, t := range wave {
			delete(pending, t.Name)
		}
		for _, t := range tasks {
			if _, ok := pending[t.Name]; !ok {
				continue
			}
			for _, up := range t.Upstream {
				for _, w := range wave {
					if w.Name == up {
						pending[t.Name]--
					}
				}
			}
		}
		waves = append(waves, wave)
		done += len(wave)
	}
	return waves, nil
}

// Run executes the workflow wave by wave. With FailFast the first failed
// task stops the run; otherwise tasks downstream of a failure are skipped
// and the rest keep going.
func (l *Local) Run(ctx context.Context, workflowID string, opts RunOptions) (RunResult, error) {
	l.mu.Lock()
	def, ok := l.workflows[workflowID]
	l.mu.Unlock()
	if !ok {
		return RunResult{}, types.Errorf(types.ErrNotFound, "run workflow", "", "unknown workflow %q", workflowID)
	}
	waves, err := order(def.Tasks)
	if err != nil {
		return RunResult{}, err
	}

	res := RunResult{RunID: uuid.NewString(), Status: RunStatusDone}
	if opts.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	var mu sync.Mutex
	failed := make(map[string]bool)
	for _, wave := range waves {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.Workers)
		for _, task := range wave {
			mu.Lock()
			skip := false
			for _, up := range task.Upstream {
				skip = skip || failed[up]
			}
			if skip {
				failed[task.Name] = true
			}
			mu.Unlock()
			if skip {
				l.logger.Warn("task skipped, upstream failed", map[string]any{"task": task.Name})
				continue
			}
			g.Go(func() error {
				err := l.runTask(gctx, def.Resources, res.RunID, task)
				if err == nil {
					return nil
				}
				mu.Lock()
				failed[task.Name] = true
				mu.Unlock()
				l.logger.Error("task failed", map[string]any{"task": task.Name, "error": err.Error()})
				if opts.FailFast {
					return err
				}
				return nil
			})
		}
		waitErr := g.Wait()
		if ctx.Err() != nil {
			res.Status = RunStatusStopped
			return res, ctx.Err()
		}
		if waitErr != nil {
			res.Status = RunStatusError
			return res, nil
		}
	}
	if len(failed) > 0 {
		res.Status = RunStatusError
	}
	return res, nil
}

func (l *Local) runTask(ctx context.Context, cr ComputeResources, runID string, task Task) error {
	stdout, err := openTaskLog(cr.Stdout, task.Name, runID, "o")
	if err != nil {
		return err
	}
	defer iox.DiscardClose(stdout)
	stderr, err := openTaskLog(cr.Stderr, task.Name, runID, "e")
	if err != nil {
		return err
	}
	defer iox.DiscardClose(stderr)

	attempts := max(task.MaxAttempts, 1)
	var runErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		cmd := exec.CommandContext(ctx, l.Shell, "-c", task.Command)
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		l.chatter.Info("task started", zap.String("task", task.Name), zap.Int("attempt", attempt))
		if runErr = cmd.Run(); runErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("task %s: %w", task.Name, runErr)
}

// openTaskLog opens <dir>/<task>.<kind><run id>, the engine's naming for
// per-task output files. An empty dir discards the stream.
func openTaskLog(dir, task, runID, kind string) (*os.File, error) {
	if dir == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.%s%s", task, kind, runID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, types.FilePerm)
	if err != nil {
		return nil, fmt.Errorf("open task log %s: %w", path, err)
	}
	return f, nil
}
