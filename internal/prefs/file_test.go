package prefs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	return NewFileStore(path), path
}

// TestFileStore_MissingFileReadsEmpty verifies a store over a nonexistent
// file behaves as an empty store.
func TestFileStore_MissingFileReadsEmpty(t *testing.T) {
	s, _ := newTestFileStore(t)

	all, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("All = %v, want empty", all)
	}
}

// TestFileStore_PersistsAcrossHandles verifies a second handle over the same
// path sees earlier writes, the durability property of the preference store.
func TestFileStore_PersistsAcrossHandles(t *testing.T) {
	s1, path := newTestFileStore(t)
	if err := s1.Set("theme", "dark"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	s2 := NewFileStore(path)
	v, ok, err := s2.Get("theme")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || v != "dark" {
		t.Errorf("Get via second handle = (%v, %v), want (dark, true)", v, ok)
	}
}

// TestFileStore_ExternalEdit verifies edits made directly to the file (as
// another process would) are visible on the next read.
func TestFileStore_ExternalEdit(t *testing.T) {
	s, path := newTestFileStore(t)
	if err := s.Set("theme", "dark"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, _ := json.Marshal(map[string]any{"theme": "light"})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	v, _, err := s.Get("theme")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "light" {
		t.Errorf("Get = %v, want light", v)
	}
}

func collectEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

// TestFileStore_WatchExternalChange verifies an external rewrite of the
// backing file produces change events.
func TestFileStore_WatchExternalChange(t *testing.T) {
	s, path := newTestFileStore(t)
	if err := s.Set("theme", "dark"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	data, _ := json.Marshal(map[string]any{"theme": "light"})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	ev := collectEvent(t, events)
	if ev.Key != "theme" || ev.Value != "light" || ev.Deleted {
		t.Errorf("event = %+v, want theme=light", ev)
	}
}

// TestFileStore_WatchReportsExternalDelete verifies a key removed by an
// external writer is reported as deleted.
func TestFileStore_WatchReportsExternalDelete(t *testing.T) {
	s, path := newTestFileStore(t)
	if err := s.Set("theme", "dark"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	ev := collectEvent(t, events)
	if ev.Key != "theme" || !ev.Deleted {
		t.Errorf("event = %+v, want theme deleted", ev)
	}
}

// TestFileStore_WatchRemovedFileReportsDeletes verifies that deleting the
// backing file outright (an external writer clearing all settings) emits a
// deletion event per key.
func TestFileStore_WatchRemovedFileReportsDeletes(t *testing.T) {
	s, path := newTestFileStore(t)
	if err := s.Set("theme", "dark"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("removing file: %v", err)
	}

	ev := collectEvent(t, events)
	if ev.Key != "theme" || !ev.Deleted {
		t.Errorf("event = %+v, want theme deleted", ev)
	}
}

// TestFileStore_WatchSuppressesOwnWrites verifies writes through the store
// itself are not re-reported as external changes, no matter how quickly the
// watcher reacts: the snapshot is updated before each write's rename lands.
func TestFileStore_WatchSuppressesOwnWrites(t *testing.T) {
	s, path := newTestFileStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	for i := 0; i < 20; i++ {
		if err := s.Set("counter", float64(i)); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := s.Delete("counter"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	data, _ := json.Marshal(map[string]any{"lang": "en"})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	ev := collectEvent(t, events)
	if ev.Key != "lang" || ev.Value != "en" {
		t.Errorf("first event = %+v, want lang=en (own writes must be suppressed)", ev)
	}
}

// TestFileStore_SecondWatchRejected verifies only one watcher may be active.
func TestFileStore_SecondWatchRejected(t *testing.T) {
	s, _ := newTestFileStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := s.Watch(ctx); err != nil {
		t.Fatalf("first Watch: %v", err)
	}
	if _, err := s.Watch(ctx); err != ErrWatchActive {
		t.Errorf("second Watch = %v, want ErrWatchActive", err)
	}
}
