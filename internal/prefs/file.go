package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrWatchActive is returned by Watch when a watcher is already running.
var ErrWatchActive = errors.New("watch already active")

// FileStore persists settings as a flat JSON object in a single file.
// Every operation reads the file fresh, so external edits are always
// visible; writes rewrite the file atomically via a temp-file rename.
type FileStore struct {
	path string
	mu   sync.Mutex

	// watchState mirrors the file contents while a watcher is active.
	// save updates it under watchMu before the rename lands, so the
	// fsnotify goroutine only reports changes made by external writers.
	watchMu    sync.Mutex
	watchState map[string]any
}

// NewFileStore creates a FileStore over path. The file does not need to
// exist; a missing file reads as an empty store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) load() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]any), nil
		}
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	out := make(map[string]any)
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing settings file %s: %w", s.path, err)
	}
	return out, nil
}

func (s *FileStore) save(data map[string]any) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("creating temp settings file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// The snapshot must reflect the new contents before the rename lands:
	// fsnotify can deliver the rename event immediately, and the diff must
	// not mistake this write for an external one. Holding watchMu across
	// the rename keeps the diff from observing a new file with the old
	// snapshot.
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	prev := s.watchState
	if s.watchState != nil {
		s.watchState = CloneMap(data)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		s.watchState = prev
		os.Remove(tmpPath)
		return fmt.Errorf("replacing settings file: %w", err)
	}
	return nil
}

func (s *FileStore) Get(key string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, false, err
	}
	v, ok := data[key]
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

func (s *FileStore) Set(key string, value any) error {
	if value == nil {
		return s.Delete(key)
	}

	normalized, err := Normalize(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	data[key] = normalized
	return s.save(data)
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return s.save(data)
}

func (s *FileStore) All() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) Close() error { return nil }

// Watch reports changes made to the backing file by external writers.
// Changes made through this FileStore's own Set/Delete are suppressed.
// At most one watcher may be active at a time; the channel closes when
// ctx is cancelled.
func (s *FileStore) Watch(ctx context.Context) (<-chan Event, error) {
	// Lock order is always mu before watchMu (Set and Delete hold mu when
	// they touch the watch snapshot).
	s.mu.Lock()
	snapshot, err := s.load()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.watchMu.Lock()
	if s.watchState != nil {
		s.watchMu.Unlock()
		s.mu.Unlock()
		return nil, ErrWatchActive
	}
	s.watchState = snapshot
	s.watchMu.Unlock()
	s.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.clearWatchState()
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	// Watch the directory, not the file: atomic renames replace the inode
	// and a direct file watch would go stale after the first write.
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		watcher.Close()
		s.clearWatchState()
		return nil, fmt.Errorf("creating settings dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		s.clearWatchState()
		return nil, fmt.Errorf("watching settings dir: %w", err)
	}

	events := make(chan Event)
	go s.watchLoop(ctx, watcher, events)
	return events, nil
}

func (s *FileStore) clearWatchState() {
	s.watchMu.Lock()
	s.watchState = nil
	s.watchMu.Unlock()
}

func (s *FileStore) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, events chan<- Event) {
	defer close(events)
	defer watcher.Close()
	defer s.clearWatchState()

	name := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			// Remove matters too: deleting the backing file clears
			// every setting, and load() reads a missing file as empty.
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			for _, change := range s.diffAgainstFile() {
				select {
				case events <- change:
				case <-ctx.Done():
					return
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("settings file watch error", "path", s.path, "error", err)
		}
	}
}

// diffAgainstFile reloads the file and returns one Event per key whose value
// differs from the watcher snapshot, updating the snapshot as it goes. The
// reload happens under watchMu so it cannot interleave with a local save,
// which updates the snapshot under the same lock.
func (s *FileStore) diffAgainstFile() []Event {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	current, err := s.load()
	if err != nil {
		slog.Warn("reloading settings file after change", "path", s.path, "error", err)
		return nil
	}

	if s.watchState == nil {
		return nil
	}

	var changes []Event
	for k, v := range current {
		old, ok := s.watchState[k]
		if !ok || !reflect.DeepEqual(old, v) {
			changes = append(changes, Event{Key: k, Value: Clone(v)})
		}
	}
	for k := range s.watchState {
		if _, ok := current[k]; !ok {
			changes = append(changes, Event{Key: k, Deleted: true})
		}
	}
	s.watchState = current
	return changes
}
