package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned by Load for a task with no checkpoint on disk.
var ErrNotFound = errors.New("checkpoint not found")

// CorruptionError signals a checkpoint file that exists but cannot be
// deserialized. It is never auto-resolved: the caller must explicitly
// decide between starting fresh and aborting.
type CorruptionError struct {
	Path string
	Err  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("checkpoint %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// FileStore persists one JSON checkpoint file per task under a directory.
// Each task's file is single-writer: only the orchestrator instance that
// owns the task saves it.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(taskID string) string {
	return filepath.Join(s.dir, taskID+".json")
}

// Save atomically persists a full checkpoint snapshot: write to a
// temporary file, fsync, then rename into place. A crash mid-write never
// corrupts the previously committed checkpoint.
func (s *FileStore) Save(c *Checkpoint) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint %s: %w", c.TaskID, err)
	}

	tmp, err := os.CreateTemp(s.dir, c.TaskID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp checkpoint: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(c.TaskID)); err != nil {
		return fmt.Errorf("commit checkpoint %s: %w", c.TaskID, err)
	}
	return nil
}

// Load reads a task's checkpoint. Returns ErrNotFound when no file
// exists and *CorruptionError when the file will not deserialize.
func (s *FileStore) Load(taskID string) (*Checkpoint, error) {
	path := s.path(taskID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read checkpoint %s: %w", taskID, err)
	}

	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, &CorruptionError{Path: path, Err: err}
	}
	if c.TaskID == "" {
		return nil, &CorruptionError{Path: path, Err: errors.New("record has no task id")}
	}
	if c.Failed == nil {
		c.Failed = map[string]string{}
	}
	if c.Completed == nil {
		c.Completed = []string{}
	}
	if c.Skipped == nil {
		c.Skipped = []string{}
	}
	return &c, nil
}

// Delete removes a task's checkpoint, reporting whether one existed.
func (s *FileStore) Delete(taskID string) (bool, error) {
	err := os.Remove(s.path(taskID))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete checkpoint %s: %w", taskID, err)
	}
	return true, nil
}

// List returns all task ids with a checkpoint on disk, sorted.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Cleanup deletes terminal checkpoints whose last update is older than
// maxAge. Running and paused tasks are never touched. Returns the ids
// removed.
func (s *FileStore) Cleanup(maxAge time.Duration) ([]string, error) {
	ids, err := s.List()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed []string
	for _, id := range ids {
		c, err := s.Load(id)
		if err != nil {
			// Corrupt or unreadable checkpoints require an operator
			// decision; cleanup does not make it.
			continue
		}
		if !c.Status.Terminal() || c.UpdatedAt.After(cutoff) {
			continue
		}
		if _, err := s.Delete(id); err != nil {
			return removed, err
		}
		removed = append(removed, id)
	}
	return removed, nil
}
