// Package prefs provides the preference store backends used by the settings
// bridge: an in-memory store, a flat JSON file store, and a SQLite store.
// All stores hold JSON-compatible values (string, float64, bool, nil, maps,
// slices) keyed by string.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is the key-value contract every backend implements.
//
// A missing key is not an error: Get returns ok=false. Set with a nil value
// deletes the key, matching typical preference-store semantics where clearing
// equals deletion. Delete of a missing key succeeds. Concurrent writers to
// the same key follow last-write-wins; the store does not arbitrate.
type Store interface {
	// Get returns the value for key, or ok=false if the key is absent.
	Get(key string) (value any, ok bool, err error)
	// Set writes value under key. A nil value removes the key.
	Set(key string, value any) error
	// Delete removes key. Removing an absent key is a no-op.
	Delete(key string) error
	// All returns a copy of every stored key-value pair.
	All() (map[string]any, error)
	// Close releases any resources held by the store.
	Close() error
}

// Event describes a single key change observed in a store.
type Event struct {
	Key     string `json:"key"`
	Value   any    `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Watcher is implemented by stores that can observe changes made by other
// writers (for example another process editing the backing file). The
// returned channel is closed when ctx is cancelled or the store is closed.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Event, error)
}

// Clone deep-copies a JSON-compatible value so callers cannot alias store
// internals through shared maps or slices.
func Clone(v any) any {
	switch val := v.(type) {
	case nil, string, float64, bool, int, int64:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Clone(item)
		}
		return out
	default:
		// Fall back to a JSON round trip for anything exotic.
		data, err := json.Marshal(val)
		if err != nil {
			return val
		}
		var copied any
		if err := json.Unmarshal(data, &copied); err != nil {
			return val
		}
		return copied
	}
}

// CloneMap deep-copies a settings map.
func CloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}

// Normalize converts a value into its JSON-decoded shape (ints become
// float64, structs become maps) so equality holds regardless of which
// backend stored the value.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-compatible: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalizing value: %w", err)
	}
	return out, nil
}
