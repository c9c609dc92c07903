package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/stagekit/iox"
	"github.com/pithecene-io/stagekit/log"
	"github.com/pithecene-io/stagekit/types"
)

// Well-known keys.
const (
	KeyStartTime    = "start_time"
	KeyRunTime      = "run_time"
	KeySuccess      = "success"
	KeyErrorInfo    = "error_info"
	KeyToolName     = "tool_name"
	KeyRunArguments = "run_arguments"
	KeyAppMetadata  = "app_metadata"
	KeyPromotion    = "promotion"
	KeyCounters     = "counters"
)

// ErrAlreadyDumped is returned by a second Dump.
var ErrAlreadyDumped = errors.New("run metadata already dumped")

// Clock returns the current time. Tests replace it.
var Clock = time.Now

// RunMetadata is the per-invocation recorder. start_time is recorded at
// construction and run_time is injected by Dump.
type RunMetadata struct {
	*Metadata

	// Console receives the YAML when the output directory is missing.
	Console io.Writer

	start  time.Time
	logger *log.Logger

	mu     sync.Mutex
	dumped bool
}

// New starts a recorder. logger may be nil.
func New(logger *log.Logger) *RunMetadata {
	start := Clock()
	r := &RunMetadata{
		Metadata: NewMetadata(),
		Console:  os.Stdout,
		start:    start,
		logger:   log.OrNop(logger),
	}
	r.put(KeyStartTime, start.Format(types.TimestampLayout))
	return r
}

// Start returns the construction time.
func (r *RunMetadata) Start() time.Time {
	return r.start
}

// Elapsed returns the time since construction.
func (r *RunMetadata) Elapsed() time.Duration {
	return Clock().Sub(r.start)
}

// FormatRunTime renders a duration the way run_time is stored.
func FormatRunTime(d time.Duration) string {
	return fmt.Sprintf("%.2f seconds", max(d.Seconds(), 0))
}

// Dump injects run_time and writes the record as YAML to path. When the
// parent directory does not exist the record is printed to Console
// instead, so a broken output root does not hide the error being reported.
// A recorder can be dumped once.
func (r *RunMetadata) Dump(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dumped {
		return ErrAlreadyDumped
	}
	r.dumped = true

	r.put(KeyRunTime, FormatRunTime(r.Elapsed()))
	data, err := yaml.Marshal(r.ToMap())
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := iox.WriteFile(path, data); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("write metadata: %w", err)
		}
		r.logger.Warn("output directory does not exist, dumping metadata to console", map[string]any{
			"path": path,
		})
		_, werr := r.Console.Write(data)
		return werr
	}
	return nil
}

// UpdateFromFile parses a metadata file and nests it whole under key.
func (r *RunMetadata) UpdateFromFile(key string, in io.Reader) error {
	var prior any
	dec := yaml.NewDecoder(in)
	if err := dec.Decode(&prior); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode metadata: %w", err)
	}
	return r.Set(key, prior)
}

// UpdateFromPath is UpdateFromFile for a metadata.yaml on disk. Any other
// file name fails with types.ErrValidation.
func (r *RunMetadata) UpdateFromPath(key, path string) error {
	if filepath.Base(path) != types.MetadataFileName {
		return types.Errorf(types.ErrValidation, "update metadata", path,
			"can only update from %s files", types.MetadataFileName)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(f)
	return r.UpdateFromFile(key, f)
}

// PreviousKey is the key a prior stage's metadata is stored under: the
// lowercased absolute input root with spaces and dashes turned into
// underscores, plus "_metadata".
func PreviousKey(inputRoot string) (string, error) {
	abs, err := filepath.Abs(inputRoot)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	key := strings.NewReplacer(" ", "_", "-", "_").Replace(abs)
	return strings.ToLower(key) + "_metadata", nil
}

// UpdateWithPrevious merges the metadata.yaml of an upstream stage's run
// directory into r under PreviousKey(inputRoot).
func UpdateWithPrevious(r *RunMetadata, inputRoot string) error {
	key, err := PreviousKey(inputRoot)
	if err != nil {
		return err
	}
	return r.UpdateFromPath(key, filepath.Join(inputRoot, types.MetadataFileName))
}

// Load reads a metadata.yaml into a generic map.
func Load(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewError(types.ErrNotFound, "load metadata", path, err)
		}
		return nil, err
	}
	var out map[string]any
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
