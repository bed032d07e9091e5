// Package models defines data structures shared across the paperlens pipeline.
package models

// SourceDocument describes one document listed for an analysis task.
// The binary payload is not embedded; PayloadRef points at the library
// attachment and is fetched lazily when the item is processed.
// Immutable once listed for a task.
type SourceDocument struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors,omitempty"`
	Year        int      `json:"year,omitempty"`
	Publication string   `json:"publication,omitempty"`
	PayloadRef  string   `json:"payload_ref"`
}

// Annotation is a note or highlight attached to a document in the
// reference library.
type Annotation struct {
	ID   string   `json:"id"`
	Type string   `json:"type"` // "note" or "highlight"
	Text string   `json:"text,omitempty"`
	Tags []string `json:"tags,omitempty"`
}

// HasTag reports whether the annotation carries the given tag.
func (a Annotation) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
