// Package metadata records provenance for a single stage invocation.
//
// Keys are write-once: a second Set of the same key fails with
// ErrKeyConflict and leaves the first value in place. A RunMetadata lives
// for exactly one process invocation and is dumped once, to the run
// directory's metadata.yaml, when the stage finishes.
package metadata

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/pithecene-io/stagekit/types"
)

// ErrKeyConflict is returned when a key is set twice.
var ErrKeyConflict = fmt.Errorf("metadata key already set: %w", types.ErrConflict)

// Metadata is a write-once string-keyed mapping.
// It is safe for concurrent use.
type Metadata struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMetadata returns an empty Metadata.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]any)}
}

// Set records value under key. Setting a key twice fails with
// ErrKeyConflict and keeps the original value.
func (m *Metadata) Set(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return types.NewError(ErrKeyConflict, "set", "", fmt.Errorf("key %q", key))
	}
	m.values[key] = value
	return nil
}

// Get returns the value stored under key.
func (m *Metadata) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key has been set.
func (m *Metadata) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Update sets every entry of values in key order. It stops at the first
// conflict; entries applied before it stay applied.
func (m *Metadata) Update(values map[string]any) error {
	for _, k := range slices.Sorted(maps.Keys(values)) {
		if err := m.Set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// ToMap returns a shallow copy of the recorded entries.
func (m *Metadata) ToMap() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values)
}

// Keys returns the recorded keys in sorted order.
func (m *Metadata) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.values))
}

// put stores value without the write-once check. Only fields computed by
// the recorder itself go through here.
func (m *Metadata) put(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// ArgumentMapping pairs argument names with their values, stringified, for
// the run_arguments entry. Values without a name are dropped.
func ArgumentMapping(names []string, values []any) map[string]string {
	args := make(map[string]string, len(names))
	for i, name := range names {
		if i >= len(values) {
			break
		}
		args[name] = fmt.Sprint(values[i])
	}
	return args
}
