package models

import "time"

// AnalysisResult is the structured outcome for one successfully analyzed
// document. Produced exactly once per completed item; never mutated.
type AnalysisResult struct {
	DocumentID  string        `json:"document_id"`
	Summary     string        `json:"summary"`
	KeyPoints   []string      `json:"key_points"`
	Methodology string        `json:"methodology"`
	Conclusions string        `json:"conclusions"`
	Formatted   string        `json:"formatted"` // display form, falls back to RawOutput
	RawOutput   string        `json:"raw_output"`
	Backend     string        `json:"backend"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Structured reports whether output parsing populated any structured field.
func (r *AnalysisResult) Structured() bool {
	return r.Summary != "" || len(r.KeyPoints) > 0 || r.Methodology != "" || r.Conclusions != ""
}
