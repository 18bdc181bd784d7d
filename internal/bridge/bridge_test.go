package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prefd/prefd/internal/prefs"
)

func newTestAccessor(t *testing.T) (*Accessor, *prefs.MemoryStore) {
	t.Helper()
	store := prefs.NewMemoryStore()
	a, err := New(store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, store
}

func TestNew_NilStoreRejected(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNilStore) {
		t.Errorf("New(nil) = %v, want ErrNilStore", err)
	}
}

// TestAccessor_ThemeScenario walks the full settings lifecycle: constants
// over an empty store, write, read back, delete via null, absent read.
func TestAccessor_ThemeScenario(t *testing.T) {
	a, _ := newTestAccessor(t)

	constants := a.Constants()
	if len(constants) != 0 {
		t.Errorf("Constants over empty store = %v, want empty", constants)
	}

	if err := a.SetValue("theme", "dark"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	v, ok, err := a.GetValue("theme")
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if !ok || v != "dark" {
		t.Errorf("GetValue = (%v, %v), want (dark, true)", v, ok)
	}

	if err := a.SetValue("theme", nil); err != nil {
		t.Fatalf("SetValue(nil): %v", err)
	}
	_, ok, err = a.GetValue("theme")
	if err != nil {
		t.Fatalf("GetValue after delete: %v", err)
	}
	if ok {
		t.Error("key still present after SetValue(nil)")
	}

	// The snapshot is unaffected by everything above.
	if len(a.Constants()) != 0 {
		t.Errorf("Constants changed after writes: %v", a.Constants())
	}
}

// TestAccessor_ConstantsSnapshotFrozen verifies the snapshot reflects the
// store at construction and nothing after.
func TestAccessor_ConstantsSnapshotFrozen(t *testing.T) {
	store := prefs.NewMemoryStore()
	if err := store.Set("lang", "en"); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	a, err := New(store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.SetValue("lang", "fr"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	constants := a.Constants()
	if constants["lang"] != "en" {
		t.Errorf("Constants[lang] = %v, want construction-time value en", constants["lang"])
	}

	// Mutating the returned map must not corrupt the snapshot.
	constants["lang"] = "de"
	if a.Constants()["lang"] != "en" {
		t.Error("snapshot mutated through returned map")
	}
}

func TestAccessor_SetValues_NilEntriesDelete(t *testing.T) {
	a, _ := newTestAccessor(t)

	if err := a.SetValue("theme", "dark"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	err := a.SetValues(map[string]any{
		"theme":     nil,
		"font.size": 14,
	})
	if err != nil {
		t.Fatalf("SetValues: %v", err)
	}

	if _, ok, _ := a.GetValue("theme"); ok {
		t.Error("nil entry did not delete key")
	}
	v, ok, _ := a.GetValue("font.size")
	if !ok || v != float64(14) {
		t.Errorf("GetValue(font.size) = (%v, %v), want (14, true)", v, ok)
	}
}

func TestAccessor_DeleteValues(t *testing.T) {
	a, _ := newTestAccessor(t)

	if err := a.SetValues(map[string]any{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("SetValues: %v", err)
	}

	// Includes a key that never existed; that is still a success.
	if err := a.DeleteValues("a", "b", "never-there"); err != nil {
		t.Fatalf("DeleteValues: %v", err)
	}

	values, err := a.Values()
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("Values = %v, want empty", values)
	}
}

// TestAccessor_SetIdempotent verifies writing the same value twice leaves
// the store in the same state as writing it once.
func TestAccessor_SetIdempotent(t *testing.T) {
	a, store := newTestAccessor(t)

	if err := a.SetValue("theme", "dark"); err != nil {
		t.Fatalf("first SetValue: %v", err)
	}
	if err := a.SetValue("theme", "dark"); err != nil {
		t.Fatalf("second SetValue: %v", err)
	}

	all, err := store.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 || all["theme"] != "dark" {
		t.Errorf("store = %v, want map[theme:dark]", all)
	}
}

func waitEvent(t *testing.T, ch <-chan prefs.Event) prefs.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return prefs.Event{}
}

// TestAccessor_WatchSeesPeerWrites verifies two accessors sharing a store
// and notifier observe each other's writes but never their own.
func TestAccessor_WatchSeesPeerWrites(t *testing.T) {
	store := prefs.NewMemoryStore()
	notifier := NewNotifier()

	a1, err := New(store, WithNotifier(notifier))
	if err != nil {
		t.Fatalf("New a1: %v", err)
	}
	a2, err := New(store, WithNotifier(notifier))
	if err != nil {
		t.Fatalf("New a2: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watch1 := a1.Watch(ctx)
	watch2 := a2.Watch(ctx)

	if err := a1.SetValue("theme", "dark"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	ev := waitEvent(t, watch2)
	if ev.Key != "theme" || ev.Value != "dark" || ev.Deleted {
		t.Errorf("peer event = %+v, want theme=dark", ev)
	}

	// The writer must not hear its own write. Make a peer write and check
	// it is the first (and only) event on the writer's channel.
	if err := a2.SetValue("lang", "en"); err != nil {
		t.Fatalf("peer SetValue: %v", err)
	}
	ev = waitEvent(t, watch1)
	if ev.Key != "lang" {
		t.Errorf("writer saw event %+v, want only the peer's lang write", ev)
	}
}

func TestAccessor_WatchSeesDeletes(t *testing.T) {
	store := prefs.NewMemoryStore()
	notifier := NewNotifier()

	a1, err := New(store, WithNotifier(notifier))
	if err != nil {
		t.Fatalf("New a1: %v", err)
	}
	a2, err := New(store, WithNotifier(notifier))
	if err != nil {
		t.Fatalf("New a2: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watch := a2.Watch(ctx)

	if err := a1.SetValue("theme", "dark"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	waitEvent(t, watch)

	if err := a1.DeleteValues("theme"); err != nil {
		t.Fatalf("DeleteValues: %v", err)
	}
	ev := waitEvent(t, watch)
	if ev.Key != "theme" || !ev.Deleted {
		t.Errorf("event = %+v, want theme deleted", ev)
	}
}

// TestAccessor_LastWriteWinsAcrossInstances verifies racing writers on one
// store settle on the final value for every reader.
func TestAccessor_LastWriteWinsAcrossInstances(t *testing.T) {
	store := prefs.NewMemoryStore()

	a1, err := New(store)
	if err != nil {
		t.Fatalf("New a1: %v", err)
	}
	a2, err := New(store)
	if err != nil {
		t.Fatalf("New a2: %v", err)
	}

	if err := a1.SetValue("theme", "dark"); err != nil {
		t.Fatalf("a1 SetValue: %v", err)
	}
	if err := a2.SetValue("theme", "light"); err != nil {
		t.Fatalf("a2 SetValue: %v", err)
	}

	v, _, err := a1.GetValue("theme")
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if v != "light" {
		t.Errorf("GetValue = %v, want light (last write wins)", v)
	}
}

// TestNotifier_ExternalForward verifies events published with no source
// reach every subscriber, including all accessors.
func TestNotifier_ExternalForward(t *testing.T) {
	store := prefs.NewMemoryStore()
	notifier := NewNotifier()

	a, err := New(store, WithNotifier(notifier))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watch := a.Watch(ctx)
	observer := notifier.Subscribe(ctx)

	notifier.publish("", prefs.Event{Key: "theme", Value: "light"})

	if ev := waitEvent(t, watch); ev.Key != "theme" {
		t.Errorf("accessor missed external event: %+v", ev)
	}
	if ev := waitEvent(t, observer); ev.Key != "theme" {
		t.Errorf("observer missed external event: %+v", ev)
	}
}
