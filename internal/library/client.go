// Package library is an HTTP client for the reference-library service
// that stores documents, metadata and notes. The pipeline treats every
// failure from this service as a retryable transport error.
package library

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"paperlens/internal/models"
)

// AnalysisTag marks notes written by this tool, so the skip pre-check can
// recognize documents that were already analyzed.
const AnalysisTag = "paperlens-analysis"

// Client talks to the reference-library HTTP API.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a library client for the given endpoint.
func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListDocuments returns documents from a collection, newest first. An
// empty collection name lists the whole library; limit <= 0 means no limit.
func (c *Client) ListDocuments(ctx context.Context, collection string, limit int) ([]models.SourceDocument, error) {
	q := url.Values{}
	if collection != "" {
		q.Set("collection", collection)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var docs []models.SourceDocument
	if err := c.getJSON(ctx, "/documents", q, &docs); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// FetchPayload downloads a document's binary payload.
func (c *Client) FetchPayload(ctx context.Context, documentID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"/documents/"+url.PathEscape(documentID)+"/payload", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch payload %s: %w", documentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch payload %s: http %d", documentID, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read payload %s: %w", documentID, err)
	}
	return data, nil
}

// FetchAnnotations lists a document's annotations and notes.
func (c *Client) FetchAnnotations(ctx context.Context, documentID string) ([]models.Annotation, error) {
	var anns []models.Annotation
	path := "/documents/" + url.PathEscape(documentID) + "/annotations"
	if err := c.getJSON(ctx, path, nil, &anns); err != nil {
		return nil, fmt.Errorf("fetch annotations %s: %w", documentID, err)
	}
	return anns, nil
}

// createNoteRequest is the write-back payload.
type createNoteRequest struct {
	HTML string   `json:"html"`
	Tags []string `json:"tags"`
}

type createNoteResponse struct {
	ID string `json:"id"`
}

// CreateNote attaches an HTML note to a document and returns the note id.
func (c *Client) CreateNote(ctx context.Context, parentDocumentID, htmlContent string, tags []string) (string, error) {
	body, err := json.Marshal(createNoteRequest{HTML: htmlContent, Tags: tags})
	if err != nil {
		return "", fmt.Errorf("marshal note: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/documents/"+url.PathEscape(parentDocumentID)+"/notes", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create note on %s: %w", parentDocumentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("create note on %s: http %d: %s", parentDocumentID, resp.StatusCode, snippet)
	}

	var created createNoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode note response: %w", err)
	}
	return created.ID, nil
}

// HasAnalysisNote reports whether the document already carries a note
// tagged as a paperlens analysis.
func HasAnalysisNote(anns []models.Annotation) bool {
	for _, a := range anns {
		if a.Type == "note" && a.HasTag(AnalysisTag) {
			return true
		}
	}
	return false
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, result any) error {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %d: %s", resp.StatusCode, snippet)
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
