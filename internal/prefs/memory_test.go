package prefs

import (
	"reflect"
	"testing"
)

// storeFactory lets the core store contract run against every backend.
type storeFactory func(t *testing.T) Store

func backends(t *testing.T) map[string]storeFactory {
	t.Helper()
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"file": func(t *testing.T) Store {
			return NewFileStore(t.TempDir() + "/settings.json")
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(":memory:", "test")
			if err != nil {
				t.Fatalf("OpenSQLite(:memory:) failed: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

// TestStoreContract runs the shared key-value semantics against every store
// implementation.
func TestStoreContract(t *testing.T) {
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			// Never-written key is absent, not an error.
			v, ok, err := s.Get("missing")
			if err != nil {
				t.Fatalf("Get(missing): %v", err)
			}
			if ok || v != nil {
				t.Errorf("Get(missing) = (%v, %v), want (nil, false)", v, ok)
			}

			// Set then get returns the value.
			if err := s.Set("theme", "dark"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			v, ok, err = s.Get("theme")
			if err != nil {
				t.Fatalf("Get(theme): %v", err)
			}
			if !ok || v != "dark" {
				t.Errorf("Get(theme) = (%v, %v), want (dark, true)", v, ok)
			}

			// Setting twice leaves the same state as setting once.
			if err := s.Set("theme", "dark"); err != nil {
				t.Fatalf("second Set: %v", err)
			}
			all, err := s.All()
			if err != nil {
				t.Fatalf("All: %v", err)
			}
			if len(all) != 1 || all["theme"] != "dark" {
				t.Errorf("All = %v, want map[theme:dark]", all)
			}

			// Nil value deletes.
			if err := s.Set("theme", nil); err != nil {
				t.Fatalf("Set(nil): %v", err)
			}
			_, ok, err = s.Get("theme")
			if err != nil {
				t.Fatalf("Get after delete: %v", err)
			}
			if ok {
				t.Error("key still present after Set(nil)")
			}

			// Deleting an absent key succeeds.
			if err := s.Delete("never-existed"); err != nil {
				t.Errorf("Delete(absent) = %v, want nil", err)
			}
		})
	}
}

// TestStoreContract_StructuredValues verifies nested values round-trip into
// their JSON-decoded shapes on every backend.
func TestStoreContract_StructuredValues(t *testing.T) {
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			in := map[string]any{
				"sound": true,
				"badge": false,
				"quiet": []any{"22:00", "07:00"},
				"level": float64(3),
			}
			if err := s.Set("notifications", in); err != nil {
				t.Fatalf("Set: %v", err)
			}

			v, ok, err := s.Get("notifications")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !ok {
				t.Fatal("key absent after Set")
			}
			if !reflect.DeepEqual(v, in) {
				t.Errorf("Get = %#v, want %#v", v, in)
			}
		})
	}
}

// TestMemoryStore_NoAliasing verifies callers cannot mutate stored values
// through the maps Get and All return.
func TestMemoryStore_NoAliasing(t *testing.T) {
	s := NewMemoryStore()

	if err := s.Set("opts", map[string]any{"a": float64(1)}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, _, err := s.Get("opts")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	v.(map[string]any)["a"] = float64(99)

	v2, _, err := s.Get("opts")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if v2.(map[string]any)["a"] != float64(1) {
		t.Errorf("stored value mutated through returned map: %v", v2)
	}

	all, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	delete(all, "opts")

	if _, ok, _ := s.Get("opts"); !ok {
		t.Error("stored key removed through All result")
	}
}

func TestNormalize_IntBecomesFloat(t *testing.T) {
	v, err := Normalize(14)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if v != float64(14) {
		t.Errorf("Normalize(14) = %v (%T), want float64(14)", v, v)
	}
}

func TestNormalize_RejectsNonJSON(t *testing.T) {
	if _, err := Normalize(make(chan int)); err == nil {
		t.Error("expected error for non-JSON value")
	}
}
