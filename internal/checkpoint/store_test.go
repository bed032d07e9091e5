package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	c := New("abc123", TaskConfig{Template: "paper-analysis", Documents: docs("a", "b")})
	c.MarkCompleted("a")
	c.MarkFailed("b", "backend timeout")

	if err := s.Save(c); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := s.Load("abc123")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.TaskID != "abc123" || loaded.Status != StatusRunning {
		t.Errorf("loaded = %+v", loaded)
	}
	if len(loaded.Completed) != 1 || loaded.Completed[0] != "a" {
		t.Errorf("Completed = %v", loaded.Completed)
	}
	if loaded.Failed["b"] != "backend timeout" {
		t.Errorf("Failed = %v", loaded.Failed)
	}
	if len(loaded.Config.Documents) != 2 {
		t.Errorf("Config.Documents = %v", loaded.Config.Documents)
	}
}

func TestLoadNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(missing) error = %v, want ErrNotFound", err)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.path("bad"), []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load("bad")
	var corrupt *CorruptionError
	if !errors.As(err, &corrupt) {
		t.Fatalf("Load(bad) error = %v, want *CorruptionError", err)
	}
}

// A crash between "write temp" and "rename" must never corrupt the
// previously committed checkpoint: stray temp garbage is invisible to Load.
func TestCrashMidSaveKeepsPriorState(t *testing.T) {
	s := newTestStore(t)
	c := New("task9", TaskConfig{Template: "t", Documents: docs("a")})
	if err := s.Save(c); err != nil {
		t.Fatal(err)
	}

	// Simulate the crash: a half-written temp file next to the committed one.
	stray := filepath.Join(s.dir, "task9-crash.tmp")
	if err := os.WriteFile(stray, []byte(`{"taskId":"task9","status":"compl`), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load("task9")
	if err != nil {
		t.Fatalf("Load() after simulated crash: %v", err)
	}
	if loaded.Status != StatusRunning || len(loaded.Completed) != 0 {
		t.Errorf("prior committed state lost: %+v", loaded)
	}

	// Temp files are not listed as tasks either.
	ids, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "task9" {
		t.Errorf("List() = %v", ids)
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	s := newTestStore(t)
	c := New("task10", TaskConfig{Template: "t", Documents: docs("a", "b")})
	if err := s.Save(c); err != nil {
		t.Fatal(err)
	}

	c.MarkCompleted("a")
	c.SetStatus(StatusPaused)
	if err := s.Save(c); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load("task10")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != StatusPaused || len(loaded.Completed) != 1 {
		t.Errorf("second save not visible: %+v", loaded)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	c := New("gone", TaskConfig{Template: "t"})
	if err := s.Save(c); err != nil {
		t.Fatal(err)
	}

	existed, err := s.Delete("gone")
	if err != nil || !existed {
		t.Fatalf("Delete() = %v, %v", existed, err)
	}
	existed, err = s.Delete("gone")
	if err != nil || existed {
		t.Fatalf("second Delete() = %v, %v, want false", existed, err)
	}
}

func TestCleanupRemovesOnlyStaleTerminalTasks(t *testing.T) {
	s := newTestStore(t)

	old := New("old-done", TaskConfig{Template: "t"})
	old.Status = StatusCompleted
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	if err := s.Save(old); err != nil {
		t.Fatal(err)
	}

	oldRunning := New("old-running", TaskConfig{Template: "t"})
	oldRunning.UpdatedAt = time.Now().Add(-48 * time.Hour)
	if err := s.Save(oldRunning); err != nil {
		t.Fatal(err)
	}

	fresh := New("fresh-done", TaskConfig{Template: "t"})
	fresh.Status = StatusCompleted
	if err := s.Save(fresh); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Cleanup(24 * time.Hour)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if len(removed) != 1 || removed[0] != "old-done" {
		t.Errorf("removed = %v, want [old-done]", removed)
	}

	ids, _ := s.List()
	if len(ids) != 2 {
		t.Errorf("List() after cleanup = %v", ids)
	}
}
