package lode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"
)

// RecordKindRunMetadata discriminates archived run records.
const RecordKindRunMetadata = "run_metadata"

// DefaultDataset is the dataset name used when none is configured.
const DefaultDataset = "stagekit"

// Partition keys, in layout order.
var partitionKeys = []string{"stage", "day", "run_id"}

// ErrNoRecordFound is returned when no archived record matches a query.
var ErrNoRecordFound = errors.New("no archived run record found")

// Record is one finished stage run as stored in the archive.
type Record struct {
	Stage        string
	Day          string
	RunID        string
	RunDirectory string
	Outcome      string
	Links        []string
	CompletedAt  time.Time
	Metadata     map[string]any
	Counters     map[string]any
}

func (r Record) toMap() map[string]any {
	links := r.Links
	if links == nil {
		links = []string{}
	}
	return map[string]any{
		"record_kind":   RecordKindRunMetadata,
		"stage":         r.Stage,
		"day":           r.Day,
		"run_id":        r.RunID,
		"run_directory": r.RunDirectory,
		"outcome":       r.Outcome,
		"links":         links,
		"completed_at":  r.CompletedAt.UTC().Format(time.RFC3339Nano),
		"metadata":      r.Metadata,
		"counters":      r.Counters,
	}
}

// Archive writes run records into a Hive-partitioned Lode dataset laid out
// as stage=<stage>/day=<day>/run_id=<run id>.
type Archive struct {
	dataset lode.Dataset
	name    string
}

// NewArchive opens the dataset through factory.
// Use lode.NewMemoryFactory() for testing.
func NewArchive(dataset string, factory lode.StoreFactory) (*Archive, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, wrap("init", dataset, err)
	}
	return &Archive{dataset: ds, name: dataset}, nil
}

// NewFSArchive opens a dataset stored under root on the local filesystem.
func NewFSArchive(dataset, root string) (*Archive, error) {
	return NewArchive(dataset, lode.NewFSFactory(root))
}

// NewS3Archive opens a dataset stored in S3.
func NewS3Archive(ctx context.Context, dataset string, s3cfg S3Config) (*Archive, error) {
	factory, err := S3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewArchive(dataset, factory)
}

// Write stores one record.
func (a *Archive) Write(ctx context.Context, r Record) error {
	if r.Stage == "" || r.Day == "" || r.RunID == "" {
		return fmt.Errorf("archive write: stage, day and run id are required")
	}
	_, err := a.dataset.Write(ctx, []any{r.toMap()}, lode.Metadata{})
	return wrap("write", a.partitionPath(r), err)
}

func (a *Archive) partitionPath(r Record) string {
	return fmt.Sprintf("%s/stage=%s/day=%s/run_id=%s", a.name, r.Stage, r.Day, r.RunID)
}

// Latest returns the most recently written record, optionally filtered by
// stage and run id. Returns ErrNoRecordFound when nothing matches.
func (a *Archive) Latest(ctx context.Context, stage, runID string) (map[string]any, error) {
	snapshots, err := a.dataset.Snapshots(ctx)
	if err != nil {
		return nil, wrap("read", a.name+"/snapshots", err)
	}

	// Snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatches(snap, "stage", stage) || !snapshotMatches(snap, "run_id", runID) {
			continue
		}

		data, err := a.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrap("read", fmt.Sprintf("%s/snapshot/%s", a.name, snap.ID), err)
		}
		// Manifest paths are a coarse pre-filter; record fields decide.
		for j := len(data) - 1; j >= 0; j-- {
			record, ok := data[j].(map[string]any)
			if !ok || record["record_kind"] != RecordKindRunMetadata {
				continue
			}
			if stage != "" && toString(record["stage"]) != stage {
				continue
			}
			if runID != "" && toString(record["run_id"]) != runID {
				continue
			}
			return record, nil
		}
	}
	return nil, ErrNoRecordFound
}

// Close releases archive resources.
func (a *Archive) Close() error {
	return nil
}

func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue reports whether a Hive path has an exact key=value
// segment, so run_id=a matches neither run_id=ab nor xrun_id=a.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for part := range strings.SplitSeq(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
