// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Pipeline stage names for the collector.
const (
	OpFetch     = "fetch"
	OpExtract   = "extract"
	OpDispatch  = "dispatch"
	OpWriteBack = "writeback"
)

// StageMetrics holds aggregated timings for one pipeline stage.
type StageMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// StageSnapshot provides computed stats from raw stage metrics.
type StageSnapshot struct {
	Count     int64
	AvgTimeMs float64
	MinTimeMs int64
	MaxTimeMs int64
}

// Collector aggregates per-stage timings for one task run.
// All methods are thread-safe; workers record concurrently.
type Collector struct {
	mu     sync.RWMutex
	stages map[string]*StageMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{stages: make(map[string]*StageMetrics)}
}

// RecordTiming records one stage execution.
func (c *Collector) RecordTiming(stage string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.stages[stage]
	if !ok {
		m = &StageMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.stages[stage] = m
	}
	m.Count++
	m.TotalTime += duration
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// Snapshot returns a point-in-time view of all recorded stages. Stages
// with no samples are absent.
func (c *Collector) Snapshot() map[string]StageSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]StageSnapshot, len(c.stages))
	for stage, m := range c.stages {
		if m.Count == 0 {
			continue
		}
		out[stage] = StageSnapshot{
			Count:     m.Count,
			AvgTimeMs: float64(m.TotalTime.Milliseconds()) / float64(m.Count),
			MinTimeMs: m.MinTime.Milliseconds(),
			MaxTimeMs: m.MaxTime.Milliseconds(),
		}
	}
	return out
}
