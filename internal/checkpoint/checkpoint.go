// Package checkpoint persists batch-task progress durably, one JSON
// record per task, with atomic saves.
package checkpoint

import (
	"fmt"
	"time"

	"paperlens/internal/models"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further item processing
// without an explicit resume.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TaskConfig snapshots the parameters a task was started with, including
// the full document list. The checkpoint is the single source of truth
// for what remains; the list is never reconstructed by re-querying the
// library, which may have changed between runs.
type TaskConfig struct {
	Source    string                  `json:"source,omitempty"`
	Template  string                  `json:"template"`
	Backend   string                  `json:"backend,omitempty"` // empty means auto-select per item
	Force     bool                    `json:"force,omitempty"`
	Images    bool                    `json:"images"`
	Tables    bool                    `json:"tables"`
	Documents []models.SourceDocument `json:"documents"`
}

// Checkpoint is the durable progress record for one task. The completed,
// failed and skipped partitions are pairwise disjoint; pending is implicit:
// every document not in one of the three.
type Checkpoint struct {
	TaskID     string            `json:"taskId"`
	StartedAt  time.Time         `json:"startedAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	Status     Status            `json:"status"`
	TotalItems int               `json:"totalItems"`
	Completed  []string          `json:"completed"`
	Failed     map[string]string `json:"failed"`
	Skipped    []string          `json:"skipped"`
	Config     TaskConfig        `json:"config"`
}

// New creates a running checkpoint for the given task configuration.
func New(taskID string, cfg TaskConfig) *Checkpoint {
	now := time.Now().UTC()
	return &Checkpoint{
		TaskID:     taskID,
		StartedAt:  now,
		UpdatedAt:  now,
		Status:     StatusRunning,
		TotalItems: len(cfg.Documents),
		Completed:  []string{},
		Failed:     map[string]string{},
		Skipped:    []string{},
		Config:     cfg,
	}
}

// Pending recomputes the documents that still need processing:
// all items minus completed, failed and skipped.
func (c *Checkpoint) Pending() []models.SourceDocument {
	done := make(map[string]struct{}, len(c.Completed)+len(c.Failed)+len(c.Skipped))
	for _, id := range c.Completed {
		done[id] = struct{}{}
	}
	for id := range c.Failed {
		done[id] = struct{}{}
	}
	for _, id := range c.Skipped {
		done[id] = struct{}{}
	}

	var pending []models.SourceDocument
	for _, doc := range c.Config.Documents {
		if _, ok := done[doc.ID]; !ok {
			pending = append(pending, doc)
		}
	}
	return pending
}

// MarkCompleted moves an item into the completed partition.
func (c *Checkpoint) MarkCompleted(id string) {
	c.remove(id)
	c.Completed = append(c.Completed, id)
	c.UpdatedAt = time.Now().UTC()
}

// MarkFailed moves an item into the failed partition, recording the
// last error's description.
func (c *Checkpoint) MarkFailed(id, reason string) {
	c.remove(id)
	c.Failed[id] = reason
	c.UpdatedAt = time.Now().UTC()
}

// MarkSkipped moves an item into the skipped partition.
func (c *Checkpoint) MarkSkipped(id string) {
	c.remove(id)
	c.Skipped = append(c.Skipped, id)
	c.UpdatedAt = time.Now().UTC()
}

// ResetFailed moves every failed item back to pending, for an explicit
// retry-failed pass. Returns the number of items reset.
func (c *Checkpoint) ResetFailed() int {
	n := len(c.Failed)
	c.Failed = map[string]string{}
	c.UpdatedAt = time.Now().UTC()
	return n
}

// SetStatus transitions the task status.
func (c *Checkpoint) SetStatus(s Status) {
	c.Status = s
	c.UpdatedAt = time.Now().UTC()
}

// remove drops the id from every partition, keeping them disjoint.
func (c *Checkpoint) remove(id string) {
	c.Completed = removeID(c.Completed, id)
	c.Skipped = removeID(c.Skipped, id)
	delete(c.Failed, id)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Validate checks the partition invariant: completed, failed and skipped
// are pairwise disjoint, contain only known items, and together with
// pending cover the original item list.
func (c *Checkpoint) Validate() error {
	known := make(map[string]struct{}, len(c.Config.Documents))
	for _, doc := range c.Config.Documents {
		known[doc.ID] = struct{}{}
	}

	seen := make(map[string]string)
	check := func(id, partition string) error {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("checkpoint %s: %s contains unknown item %q", c.TaskID, partition, id)
		}
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("checkpoint %s: item %q in both %s and %s", c.TaskID, id, prev, partition)
		}
		seen[id] = partition
		return nil
	}

	for _, id := range c.Completed {
		if err := check(id, "completed"); err != nil {
			return err
		}
	}
	for id := range c.Failed {
		if err := check(id, "failed"); err != nil {
			return err
		}
	}
	for _, id := range c.Skipped {
		if err := check(id, "skipped"); err != nil {
			return err
		}
	}
	if got := len(seen) + len(c.Pending()); got != len(c.Config.Documents) {
		return fmt.Errorf("checkpoint %s: partitions cover %d items, want %d", c.TaskID, got, len(c.Config.Documents))
	}
	return nil
}

// Clone returns a deep copy safe to serialize while the original keeps
// changing. Saves always persist a full snapshot, never partial deltas.
func (c *Checkpoint) Clone() *Checkpoint {
	cp := *c
	cp.Completed = append([]string{}, c.Completed...)
	cp.Skipped = append([]string{}, c.Skipped...)
	cp.Failed = make(map[string]string, len(c.Failed))
	for k, v := range c.Failed {
		cp.Failed[k] = v
	}
	cp.Config.Documents = append([]models.SourceDocument{}, c.Config.Documents...)
	return &cp
}
