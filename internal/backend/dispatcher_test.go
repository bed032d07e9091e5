package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"paperlens/internal/models"
)

// fakeClient records the last request and returns a canned response.
type fakeClient struct {
	id       string
	lastReq  *Request
	response string
	err      error
	calls    int
}

func (f *fakeClient) ID() string { return f.id }

func (f *fakeClient) Generate(_ context.Context, req Request) (string, error) {
	f.calls++
	f.lastReq = &req
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func testDispatcher(t *testing.T, maxParts int) (*Dispatcher, map[string]*fakeClient) {
	t.Helper()
	r, err := NewRegistry(nil, testCaps()...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	fakes := map[string]*fakeClient{
		"text-a":   {id: "text-a", response: "text analysis"},
		"vision-a": {id: "vision-a", response: "vision analysis"},
		"vision-b": {id: "vision-b", response: "vision analysis"},
	}
	clients := make(map[string]Client, len(fakes))
	for id, f := range fakes {
		clients[id] = f
	}
	return NewDispatcher(r, clients, maxParts, time.Minute, nil), fakes
}

func bundleWithImages(n int) *models.ContentBundle {
	b := models.NewContentBundle()
	b.TextBlocks = append(b.TextBlocks, models.TextBlock{Page: 1, Text: "hello"})
	for i := 0; i < n; i++ {
		b.Images = append(b.Images, models.ImageBlock{
			Page:   i + 2,
			Data:   []byte{0x89, 0x50},
			Format: "png",
		})
	}
	return b
}

func TestDispatchTextOnlyBackendGetsPlaceholder(t *testing.T) {
	d, fakes := testDispatcher(t, 8)
	bundle := bundleWithImages(3)

	out, err := d.Dispatch(context.Background(), bundle, "text-a", Prompt{System: "sys", User: "analyze this"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if out != "text analysis" {
		t.Errorf("out = %q", out)
	}

	req := fakes["text-a"].lastReq
	if len(req.ImageParts) != 0 {
		t.Fatalf("text-only request carries %d image parts, want 0", len(req.ImageParts))
	}
	if !strings.Contains(req.UserPrompt, "3 image(s)") {
		t.Errorf("placeholder missing image count: %q", req.UserPrompt)
	}
	if !strings.Contains(req.UserPrompt, "2, 3, 4") {
		t.Errorf("placeholder missing page locations: %q", req.UserPrompt)
	}
}

func TestDispatchMultimodalAttachesParts(t *testing.T) {
	d, fakes := testDispatcher(t, 8)
	bundle := bundleWithImages(2)

	_, err := d.Dispatch(context.Background(), bundle, "vision-a", Prompt{System: "sys", User: "analyze"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	req := fakes["vision-a"].lastReq
	if len(req.ImageParts) != 2 {
		t.Fatalf("got %d image parts, want 2", len(req.ImageParts))
	}
	if req.ImageParts[0].MIMEType != "image/png" {
		t.Errorf("MIME type = %q", req.ImageParts[0].MIMEType)
	}
	if req.MaxOutputTokens != 8192 {
		t.Errorf("MaxOutputTokens = %d, want capability ceiling 8192", req.MaxOutputTokens)
	}
}

func TestDispatchCapsImageParts(t *testing.T) {
	d, fakes := testDispatcher(t, 2)
	bundle := bundleWithImages(5)

	_, err := d.Dispatch(context.Background(), bundle, "vision-a", Prompt{User: "analyze"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	req := fakes["vision-a"].lastReq
	if len(req.ImageParts) != 2 {
		t.Fatalf("got %d image parts, want cap of 2", len(req.ImageParts))
	}
	if !strings.Contains(req.UserPrompt, "3 additional image(s)") {
		t.Errorf("overflow placeholder missing: %q", req.UserPrompt)
	}
}

func TestDispatchUnknownBackend(t *testing.T) {
	d, _ := testDispatcher(t, 8)

	_, err := d.Dispatch(context.Background(), models.NewContentBundle(), "nope", Prompt{User: "x"})
	var unknown *UnknownBackendError
	if !errors.As(err, &unknown) {
		t.Fatalf("error = %v, want *UnknownBackendError", err)
	}
}

func TestDispatchWrapsTransportFailure(t *testing.T) {
	d, fakes := testDispatcher(t, 8)
	fakes["text-a"].err = fmt.Errorf("connection refused")

	_, err := d.Dispatch(context.Background(), models.NewContentBundle(), "text-a", Prompt{User: "x"})
	var callErr *BackendCallError
	if !errors.As(err, &callErr) {
		t.Fatalf("error = %v, want *BackendCallError", err)
	}
	if callErr.Backend != "text-a" {
		t.Errorf("callErr.Backend = %q", callErr.Backend)
	}
	// One attempt only: retry policy belongs to the orchestrator.
	if fakes["text-a"].calls != 1 {
		t.Errorf("client called %d times, want 1", fakes["text-a"].calls)
	}
}

func TestAutoSelect(t *testing.T) {
	d, _ := testDispatcher(t, 8)

	tests := []struct {
		name   string
		bundle *models.ContentBundle
		want   string
	}{
		{"images pick first multimodal", bundleWithImages(1), "vision-a"},
		{"no images pick first text-only", bundleWithImages(0), "text-a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.AutoSelect(tt.bundle)
			if err != nil {
				t.Fatalf("AutoSelect() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("AutoSelect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAutoSelectEmptyRegistry(t *testing.T) {
	r, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	d := NewDispatcher(r, map[string]Client{}, 8, time.Minute, nil)

	for _, bundle := range []*models.ContentBundle{bundleWithImages(0), bundleWithImages(1)} {
		if _, err := d.AutoSelect(bundle); !errors.Is(err, ErrNoBackends) {
			t.Errorf("AutoSelect() error = %v, want ErrNoBackends", err)
		}
	}
}
