// Package adapter defines the notification boundary for finished stages.
//
// Adapters publish a stage completion event to downstream systems (a
// pipeline dashboard, the next stage's trigger). The runtime owns adapter
// lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventTypeStageCompleted is the only event type published.
const EventTypeStageCompleted = "stage_completed"

// StageCompletedEvent is the payload published when a stage run finishes.
type StageCompletedEvent struct {
	ContractVersion string   `json:"contract_version"`
	EventID         string   `json:"event_id"`
	EventType       string   `json:"event_type"` // always "stage_completed"
	Stage           string   `json:"stage"`
	RunDirectory    string   `json:"run_directory"`
	Version         string   `json:"version"` // run directory name, YYYY_MM_DD.NN
	Day             string   `json:"day"`
	Outcome         string   `json:"outcome"` // success, interrupted, failed
	Links           []string `json:"links,omitempty"`
	Timestamp       string   `json:"timestamp"` // RFC 3339
	DurationMs      int64    `json:"duration_ms"`
	ErrorMessage    string   `json:"error_message,omitempty"`
}

// NewStageCompletedEvent fills the identifying fields of an event.
func NewStageCompletedEvent(contractVersion string, now time.Time) *StageCompletedEvent {
	return &StageCompletedEvent{
		ContractVersion: contractVersion,
		EventID:         uuid.NewString(),
		EventType:       EventTypeStageCompleted,
		Timestamp:       now.UTC().Format(time.RFC3339),
	}
}

// Adapter publishes stage completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a stage completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *StageCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
