package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("model-inputs", "fs", "redis")

	c.IncRunStarted()
	c.IncRunCompleted()
	c.IncRunFailed()
	c.IncRunFailed()
	c.IncRunInterrupted()
	c.IncDirAllocated()
	c.IncLinkMoved("latest")
	c.IncLinkMoved("latest")
	c.IncLinkMoved("best")
	c.AddJobs(5, 1)
	c.AddJobs(2, 0)
	c.IncArchiveWriteSuccess()
	c.IncArchiveWriteSuccess()
	c.IncArchiveWriteFailure()
	c.IncNotifySuccess()
	c.IncNotifyFailure()
	c.IncNotifyFailure()

	s := c.Snapshot()

	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"RunsStarted", s.RunsStarted, 1},
		{"RunsCompleted", s.RunsCompleted, 1},
		{"RunsFailed", s.RunsFailed, 2},
		{"RunsInterrupted", s.RunsInterrupted, 1},
		{"DirsAllocated", s.DirsAllocated, 1},
		{"LinksMoved[latest]", s.LinksMoved["latest"], 2},
		{"LinksMoved[best]", s.LinksMoved["best"], 1},
		{"JobsSucceeded", s.JobsSucceeded, 7},
		{"JobsFailed", s.JobsFailed, 1},
		{"ArchiveWriteSuccess", s.ArchiveWriteSuccess, 2},
		{"ArchiveWriteFailure", s.ArchiveWriteFailure, 1},
		{"NotifySuccess", s.NotifySuccess, 1},
		{"NotifyFailure", s.NotifyFailure, 2},
	}
	for _, ch := range checks {
		if ch.got != ch.want {
			t.Errorf("%s = %d, want %d", ch.name, ch.got, ch.want)
		}
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("snapshot", "s3", "webhook")
	s := c.Snapshot()

	if s.Stage != "snapshot" {
		t.Errorf("Stage = %q, want %q", s.Stage, "snapshot")
	}
	if s.ArchiveBackend != "s3" {
		t.Errorf("ArchiveBackend = %q, want %q", s.ArchiveBackend, "s3")
	}
	if s.Adapter != "webhook" {
		t.Errorf("Adapter = %q, want %q", s.Adapter, "webhook")
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	// None of these should panic
	c.IncRunStarted()
	c.IncRunCompleted()
	c.IncRunFailed()
	c.IncRunInterrupted()
	c.IncDirAllocated()
	c.IncLinkMoved("best")
	c.AddJobs(1, 1)
	c.IncArchiveWriteSuccess()
	c.IncArchiveWriteFailure()
	c.IncNotifySuccess()
	c.IncNotifyFailure()

	s := c.Snapshot()
	if s.RunsStarted != 0 {
		t.Errorf("nil collector snapshot should be zero, got RunsStarted=%d", s.RunsStarted)
	}
	if s.LinksMoved == nil {
		t.Error("nil collector snapshot should have a non-nil LinksMoved map")
	}
}

func TestCollector_SnapshotIsolation(t *testing.T) {
	c := NewCollector("stage", "", "")
	c.IncLinkMoved("latest")

	s := c.Snapshot()
	s.LinksMoved["latest"] = 99
	c.IncLinkMoved("latest")

	if got := c.Snapshot().LinksMoved["latest"]; got != 2 {
		t.Errorf("LinksMoved[latest] = %d, want 2 (snapshot mutation leaked)", got)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("stage", "fs", "")

	const goroutines = 50
	const iterations = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.IncRunStarted()
				c.IncLinkMoved("latest")
				c.AddJobs(1, 0)
				_ = c.Snapshot()
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)
	if s.RunsStarted != want {
		t.Errorf("RunsStarted = %d, want %d", s.RunsStarted, want)
	}
	if s.LinksMoved["latest"] != want {
		t.Errorf("LinksMoved[latest] = %d, want %d", s.LinksMoved["latest"], want)
	}
	if s.JobsSucceeded != want {
		t.Errorf("JobsSucceeded = %d, want %d", s.JobsSucceeded, want)
	}
}

func TestSnapshot_Map(t *testing.T) {
	c := NewCollector("ingest", "fs", "")
	c.IncRunStarted()
	c.IncLinkMoved("latest")
	c.AddJobs(3, 1)

	m := c.Snapshot().Map()
	if m["runs_started"] != int64(1) {
		t.Errorf("runs_started = %v, want 1", m["runs_started"])
	}
	if m["jobs_succeeded"] != int64(3) || m["jobs_failed"] != int64(1) {
		t.Errorf("jobs = %v/%v, want 3/1", m["jobs_succeeded"], m["jobs_failed"])
	}
	links, ok := m["links_moved"].(map[string]any)
	if !ok || links["latest"] != int64(1) {
		t.Errorf("links_moved = %v", m["links_moved"])
	}
	if m["archive_backend"] != "fs" {
		t.Errorf("archive_backend = %v, want fs", m["archive_backend"])
	}
	if _, ok := m["adapter"]; ok {
		t.Error("empty adapter dimension should be omitted")
	}
}
