// Package metrics provides per-invocation counters for a stage run.
//
// The Collector accumulates counters during a single invocation. It is a
// leaf package with no internal dependencies. A snapshot is recorded into
// the run metadata under "counters" when the stage finishes.
package metrics

import (
	"maps"
	"sync"
)

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted     int64 `yaml:"runs_started" json:"runs_started"`
	RunsCompleted   int64 `yaml:"runs_completed" json:"runs_completed"`
	RunsFailed      int64 `yaml:"runs_failed" json:"runs_failed"`
	RunsInterrupted int64 `yaml:"runs_interrupted" json:"runs_interrupted"`

	// Run directories
	DirsAllocated int64            `yaml:"dirs_allocated" json:"dirs_allocated"`
	LinksMoved    map[string]int64 `yaml:"links_moved" json:"links_moved"`

	// Parallel fan-out
	JobsSucceeded int64 `yaml:"jobs_succeeded" json:"jobs_succeeded"`
	JobsFailed    int64 `yaml:"jobs_failed" json:"jobs_failed"`

	// Archive / notification
	ArchiveWriteSuccess int64 `yaml:"archive_write_success" json:"archive_write_success"`
	ArchiveWriteFailure int64 `yaml:"archive_write_failure" json:"archive_write_failure"`
	NotifySuccess       int64 `yaml:"notify_success" json:"notify_success"`
	NotifyFailure       int64 `yaml:"notify_failure" json:"notify_failure"`

	// Dimensions (informational, set at construction)
	Stage          string `yaml:"stage" json:"stage"`
	ArchiveBackend string `yaml:"archive_backend,omitempty" json:"archive_backend,omitempty"`
	Adapter        string `yaml:"adapter,omitempty" json:"adapter,omitempty"`
}

// Collector accumulates counters during a single invocation.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	runsStarted     int64
	runsCompleted   int64
	runsFailed      int64
	runsInterrupted int64

	dirsAllocated int64
	linksMoved    map[string]int64

	jobsSucceeded int64
	jobsFailed    int64

	archiveWriteSuccess int64
	archiveWriteFailure int64
	notifySuccess       int64
	notifyFailure       int64

	stage          string
	archiveBackend string
	adapter        string
}

// NewCollector creates a Collector with dimension labels.
// archiveBackend and adapter are empty when the feature is off.
func NewCollector(stage, archiveBackend, adapter string) *Collector {
	return &Collector{
		linksMoved:     make(map[string]int64),
		stage:          stage,
		archiveBackend: archiveBackend,
		adapter:        adapter,
	}
}

func (c *Collector) add(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.add(&c.runsStarted)
}

// IncRunCompleted records a successful run.
func (c *Collector) IncRunCompleted() {
	if c == nil {
		return
	}
	c.add(&c.runsCompleted)
}

// IncRunFailed records a failed run.
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.add(&c.runsFailed)
}

// IncRunInterrupted records a run stopped by the user.
func (c *Collector) IncRunInterrupted() {
	if c == nil {
		return
	}
	c.add(&c.runsInterrupted)
}

// --- Run directories ---

// IncDirAllocated records a created run directory.
func (c *Collector) IncDirAllocated() {
	if c == nil {
		return
	}
	c.add(&c.dirsAllocated)
}

// IncLinkMoved records a promotion link pointed at a run.
// Production tags are counted under "production".
func (c *Collector) IncLinkMoved(link string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.linksMoved[link]++
	c.mu.Unlock()
}

// --- Parallel ---

// AddJobs records the outcome of a parallel fan-out.
func (c *Collector) AddJobs(succeeded, failed int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.jobsSucceeded += succeeded
	c.jobsFailed += failed
	c.mu.Unlock()
}

// --- Archive / notification ---

// IncArchiveWriteSuccess records a successful archive write.
func (c *Collector) IncArchiveWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.archiveWriteSuccess)
}

// IncArchiveWriteFailure records a failed archive write.
func (c *Collector) IncArchiveWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.archiveWriteFailure)
}

// IncNotifySuccess records a delivered completion notification.
func (c *Collector) IncNotifySuccess() {
	if c == nil {
		return
	}
	c.add(&c.notifySuccess)
}

// IncNotifyFailure records a notification that could not be delivered.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.add(&c.notifyFailure)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{LinksMoved: map[string]int64{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		RunsStarted:     c.runsStarted,
		RunsCompleted:   c.runsCompleted,
		RunsFailed:      c.runsFailed,
		RunsInterrupted: c.runsInterrupted,

		DirsAllocated: c.dirsAllocated,
		LinksMoved:    maps.Clone(c.linksMoved),

		JobsSucceeded: c.jobsSucceeded,
		JobsFailed:    c.jobsFailed,

		ArchiveWriteSuccess: c.archiveWriteSuccess,
		ArchiveWriteFailure: c.archiveWriteFailure,
		NotifySuccess:       c.notifySuccess,
		NotifyFailure:       c.notifyFailure,

		Stage:          c.stage,
		ArchiveBackend: c.archiveBackend,
		Adapter:        c.adapter,
	}
}

// Map flattens the snapshot for the run metadata "counters" key and the
// archive record. Empty dimensions are omitted.
func (s Snapshot) Map() map[string]any {
	links := make(map[string]any, len(s.LinksMoved))
	for k, v := range s.LinksMoved {
		links[k] = v
	}
	m := map[string]any{
		"runs_started":          s.RunsStarted,
		"runs_completed":        s.RunsCompleted,
		"runs_failed":           s.RunsFailed,
		"runs_interrupted":      s.RunsInterrupted,
		"dirs_allocated":        s.DirsAllocated,
		"links_moved":           links,
		"jobs_succeeded":        s.JobsSucceeded,
		"jobs_failed":           s.JobsFailed,
		"archive_write_success": s.ArchiveWriteSuccess,
		"archive_write_failure": s.ArchiveWriteFailure,
		"notify_success":        s.NotifySuccess,
		"notify_failure":        s.NotifyFailure,
		"stage":                 s.Stage,
	}
	if s.ArchiveBackend != "" {
		m["archive_backend"] = s.ArchiveBackend
	}
	if s.Adapter != "" {
		m["adapter"] = s.Adapter
	}
	return m
}
