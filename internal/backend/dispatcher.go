package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"paperlens/internal/models"
)

// ErrNoBackends signals auto-selection over an empty registry. Like an
// unknown backend identifier, this is a configuration bug rather than a
// transient condition: no retry can make backends appear.
var ErrNoBackends = errors.New("no backends registered")

// BackendCallError signals a timeout, transport failure or malformed
// response from a model backend. Always retryable; retry policy belongs
// to the orchestrator, not here.
type BackendCallError struct {
	Backend string
	Err     error
}

func (e *BackendCallError) Error() string {
	return fmt.Sprintf("backend %s call: %v", e.Backend, e.Err)
}

func (e *BackendCallError) Unwrap() error { return e.Err }

// Prompt is a rendered prompt pair ready for dispatch.
type Prompt struct {
	System string
	User   string
}

// Dispatcher shapes requests to fit a backend's declared capability and
// performs the call. It is stateless: every piece of state it needs
// arrives as an argument or was fixed at construction.
type Dispatcher struct {
	registry      *Registry
	clients       map[string]Client
	maxImageParts int
	callTimeout   time.Duration
	log           *slog.Logger
}

// NewDispatcher wires a dispatcher to an immutable registry and a client
// per registered backend.
func NewDispatcher(registry *Registry, clients map[string]Client, maxImageParts int, callTimeout time.Duration, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if maxImageParts <= 0 {
		maxImageParts = 8
	}
	return &Dispatcher{
		registry:      registry,
		clients:       clients,
		maxImageParts: maxImageParts,
		callTimeout:   callTimeout,
		log:           log,
	}
}

// AutoSelect picks a backend for the bundle: the first registered
// multimodal backend when figures are present, else the first registered
// text-only backend. Image-free documents stay on the cheaper text path.
func (d *Dispatcher) AutoSelect(bundle *models.ContentBundle) (string, error) {
	if bundle.HasImages() {
		if id, ok := d.registry.FirstMultimodal(); ok {
			return id, nil
		}
		// No vision coverage available; the text placeholder path in
		// Dispatch keeps the gap visible to the model.
		if id, ok := d.registry.FirstTextOnly(); ok {
			return id, nil
		}
		return "", ErrNoBackends
	}
	if id, ok := d.registry.FirstTextOnly(); ok {
		return id, nil
	}
	if id, ok := d.registry.FirstMultimodal(); ok {
		return id, nil
	}
	return "", ErrNoBackends
}

// Dispatch builds a capability-appropriate request for the bundle and
// returns the backend's raw output. Images a backend cannot consume are
// never dropped silently: they are described in a text placeholder so the
// model acknowledges the gap instead of inventing figure content.
func (d *Dispatcher) Dispatch(ctx context.Context, bundle *models.ContentBundle, backendID string, prompt Prompt) (string, error) {
	capability, err := d.registry.Lookup(backendID)
	if err != nil {
		return "", err
	}
	client, ok := d.clients[backendID]
	if !ok {
		return "", &UnknownBackendError{ID: backendID}
	}

	req := Request{
		SystemPrompt:    prompt.System,
		UserPrompt:      prompt.User,
		MaxOutputTokens: capability.MaxOutputTokens,
	}

	switch {
	case !bundle.HasImages():
		// Nothing to shape.
	case !capability.SupportsImages:
		req.UserPrompt = prompt.User + "\n\n" + unsupportedImagesPlaceholder(bundle)
	default:
		attached := bundle.Images
		if len(attached) > d.maxImageParts {
			// Keep within the backend's payload-size limits: attach the
			// first maxImageParts in page order, summarize the rest.
			overflow := attached[d.maxImageParts:]
			attached = attached[:d.maxImageParts]
			req.UserPrompt = prompt.User + "\n\n" + overflowPlaceholder(overflow)
			d.log.Debug("image parts capped", "backend", backendID,
				"attached", len(attached), "summarized", len(overflow))
		}
		for _, img := range attached {
			req.ImageParts = append(req.ImageParts, ImagePart{
				MIMEType: img.MIMEType(),
				Data:     img.Data,
			})
		}
	}

	callCtx := ctx
	if d.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := client.Generate(callCtx, req)
	if err != nil {
		return "", &BackendCallError{Backend: backendID, Err: err}
	}
	d.log.Debug("backend call completed", "backend", backendID,
		"images", len(req.ImageParts), "elapsed", time.Since(start))
	return out, nil
}

// unsupportedImagesPlaceholder describes figures a text-only backend will
// never see, so its output can acknowledge the gap.
func unsupportedImagesPlaceholder(bundle *models.ContentBundle) string {
	return fmt.Sprintf(
		"[Note: this document contains %d image(s) on page(s) %s that could not be included because the selected backend accepts text only. Do not speculate about their content; state that figures were not analyzed.]",
		len(bundle.Images), joinPages(bundle.ImagePages()))
}

// overflowPlaceholder summarizes images beyond the attachment cap.
func overflowPlaceholder(overflow []models.ImageBlock) string {
	pages := make(map[int]struct{})
	ordered := make([]int, 0, len(overflow))
	for _, img := range overflow {
		if _, ok := pages[img.Page]; !ok {
			pages[img.Page] = struct{}{}
			ordered = append(ordered, img.Page)
		}
	}
	return fmt.Sprintf(
		"[Note: %d additional image(s) on page(s) %s were omitted to respect request size limits.]",
		len(overflow), joinPages(ordered))
}

func joinPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, ", ")
}
