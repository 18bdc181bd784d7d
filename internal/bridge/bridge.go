// Package bridge implements the settings accessor and the name-based module
// registry that host surfaces (HTTP, MCP, CLI) dispatch into. The accessor
// is a thin facade over an injected prefs.Store: it owns no persistent data
// of its own beyond a constants snapshot captured at construction.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/prefd/prefd/internal/prefs"
)

// ErrNilStore is returned by New when no preference store is supplied.
// The store dependency is mandatory; there is no default construction path.
var ErrNilStore = errors.New("bridge: preference store must not be nil")

// Accessor translates settings operations into reads and writes against the
// injected preference store. It performs no locking of its own: store
// thread-safety is the store's contract, and every operation is a
// self-contained read or write with last-write-wins semantics.
//
// Accessors sharing a store (and a Notifier) observe each other's writes;
// an accessor never receives change events for its own writes.
type Accessor struct {
	store     prefs.Store
	notifier  *Notifier
	source    string
	constants map[string]any
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithNotifier makes the accessor publish and subscribe on a shared change
// hub instead of a private one. Accessors over the same store should share
// one Notifier so writes fan out across instances.
func WithNotifier(n *Notifier) Option {
	return func(a *Accessor) { a.notifier = n }
}

// New constructs an Accessor over store. The store is required; a nil store
// is a lifecycle error, not a runtime condition, and is rejected here rather
// than checked per call. Construction captures the constants snapshot: a
// point-in-time copy of the full store contents, frozen thereafter.
func New(store prefs.Store, opts ...Option) (*Accessor, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	a := &Accessor{store: store}
	for _, opt := range opts {
		opt(a)
	}
	if a.notifier == nil {
		a.notifier = NewNotifier()
	}
	a.source = a.notifier.newSource()

	snapshot, err := store.All()
	if err != nil {
		return nil, fmt.Errorf("capturing constants snapshot: %w", err)
	}
	a.constants = snapshot

	return a, nil
}

// GetValue looks up key in the store. A missing key is a normal outcome,
// reported as ok=false with a nil error.
func (a *Accessor) GetValue(key string) (any, bool, error) {
	return a.store.Get(key)
}

// SetValue writes value under key. A nil value removes the key. The write is
// visible to every other reader of the shared store.
func (a *Accessor) SetValue(key string, value any) error {
	if value == nil {
		return a.deleteOne(key)
	}

	normalized, err := prefs.Normalize(value)
	if err != nil {
		return err
	}
	if err := a.store.Set(key, normalized); err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}

	a.notifier.publish(a.source, prefs.Event{Key: key, Value: normalized})
	return nil
}

// SetValues applies a batch of writes. Nil entries delete their keys.
func (a *Accessor) SetValues(values map[string]any) error {
	for key, value := range values {
		if err := a.SetValue(key, value); err != nil {
			return err
		}
	}
	return nil
}

// DeleteValues removes the given keys. Deleting an absent key succeeds.
func (a *Accessor) DeleteValues(keys ...string) error {
	for _, key := range keys {
		if err := a.deleteOne(key); err != nil {
			return err
		}
	}
	return nil
}

func (a *Accessor) deleteOne(key string) error {
	if err := a.store.Delete(key); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	a.notifier.publish(a.source, prefs.Event{Key: key, Deleted: true})
	return nil
}

// Values returns the current contents of the store. Unlike Constants this
// is a live read reflecting every write so far.
func (a *Accessor) Values() (map[string]any, error) {
	return a.store.All()
}

// Constants returns the store snapshot captured when the accessor was
// constructed. It is a point-in-time read for initial hydration and never
// reflects later writes. The caller receives a copy.
func (a *Accessor) Constants() map[string]any {
	return prefs.CloneMap(a.constants)
}

// Watch subscribes to change events: writes made by other accessors sharing
// this accessor's Notifier, plus external store changes forwarded into the
// hub. The accessor's own writes are not echoed back. The channel closes
// when ctx is cancelled.
func (a *Accessor) Watch(ctx context.Context) <-chan prefs.Event {
	return a.notifier.subscribe(ctx, a.source)
}

// Notifier returns the change hub this accessor publishes on, so callers can
// attach external store watchers or additional accessors.
func (a *Accessor) Notifier() *Notifier {
	return a.notifier
}
