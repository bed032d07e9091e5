// Package backend routes analysis requests to LLM backends according to
// their declared capabilities.
package backend

import (
	"fmt"
	"log/slog"
)

// Capability declares what one backend can consume. Static: loaded at
// process start and never mutated.
type Capability struct {
	ID              string
	SupportsText    bool
	SupportsImages  bool
	MaxInputTokens  int
	MaxOutputTokens int
}

// Multimodal reports whether the backend consumes both text and images.
func (c Capability) Multimodal() bool {
	return c.SupportsText && c.SupportsImages
}

// UnknownBackendError signals a lookup for an unregistered backend
// identifier. This is a configuration bug, not a transient condition.
type UnknownBackendError struct {
	ID string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown backend %q", e.ID)
}

// Registry is an immutable lookup table from backend identifier to
// capability. It is passed explicitly into the dispatcher rather than
// held as package state, so tests can swap in fakes.
type Registry struct {
	order []string
	caps  map[string]Capability
}

// NewRegistry builds a registry preserving registration order. When more
// than one multimodal backend is registered there is no documented
// ranking; the first registered wins and the rest are called out as a
// configuration gap.
func NewRegistry(log *slog.Logger, caps ...Capability) (*Registry, error) {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{caps: make(map[string]Capability, len(caps))}

	var firstMultimodal string
	for _, c := range caps {
		if c.ID == "" {
			return nil, fmt.Errorf("backend capability with empty identifier")
		}
		if _, dup := r.caps[c.ID]; dup {
			return nil, fmt.Errorf("backend %q registered twice", c.ID)
		}
		r.caps[c.ID] = c
		r.order = append(r.order, c.ID)

		if c.Multimodal() {
			if firstMultimodal == "" {
				firstMultimodal = c.ID
			} else {
				log.Warn("multiple multimodal backends registered with no priority order; first registered wins",
					"selected", firstMultimodal, "ignored", c.ID)
			}
		}
	}
	return r, nil
}

// Lookup resolves a backend identifier to its capability.
func (r *Registry) Lookup(id string) (Capability, error) {
	c, ok := r.caps[id]
	if !ok {
		return Capability{}, &UnknownBackendError{ID: id}
	}
	return c, nil
}

// IsMultimodal reports whether the backend supports text and images.
// Unregistered identifiers report false.
func (r *Registry) IsMultimodal(id string) bool {
	c, ok := r.caps[id]
	return ok && c.Multimodal()
}

// IDs returns the backend identifiers in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// FirstMultimodal returns the first registered multimodal backend.
func (r *Registry) FirstMultimodal() (string, bool) {
	for _, id := range r.order {
		if r.caps[id].Multimodal() {
			return id, true
		}
	}
	return "", false
}

// FirstTextOnly returns the first registered text-only backend.
func (r *Registry) FirstTextOnly() (string, bool) {
	for _, id := range r.order {
		if c := r.caps[id]; c.SupportsText && !c.SupportsImages {
			return id, true
		}
	}
	return "", false
}
