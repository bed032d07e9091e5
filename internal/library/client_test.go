package library

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperlens/internal/models"
)

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second)
}

func TestListDocuments(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/documents", r.URL.Path)
		require.Equal(t, "inbox", r.URL.Query().Get("collection"))
		require.Equal(t, "5", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode([]models.SourceDocument{
			{ID: "doc1", Title: "Attention Is All You Need", PayloadRef: "att1"},
		})
	})

	docs, err := c.ListDocuments(context.Background(), "inbox", 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc1", docs[0].ID)
}

func TestFetchPayload(t *testing.T) {
	payload := []byte("%PDF-1.7 fake")
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/documents/doc1/payload", r.URL.Path)
		w.Write(payload)
	})

	data, err := c.FetchPayload(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestFetchPayloadHTTPError(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	})

	_, err := c.FetchPayload(context.Background(), "doc1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 404")
}

func TestCreateNote(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/documents/doc1/notes", r.URL.Path)

		var req createNoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.HTML, "<h2>")
		assert.Contains(t, req.Tags, AnalysisTag)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(createNoteResponse{ID: "note42"})
	})

	id, err := c.CreateNote(context.Background(), "doc1", "<h2>Summary</h2>", []string{AnalysisTag})
	require.NoError(t, err)
	assert.Equal(t, "note42", id)
}

func TestHasAnalysisNote(t *testing.T) {
	tests := []struct {
		name string
		anns []models.Annotation
		want bool
	}{
		{"tagged note", []models.Annotation{{Type: "note", Tags: []string{AnalysisTag}}}, true},
		{"tagged highlight does not count", []models.Annotation{{Type: "highlight", Tags: []string{AnalysisTag}}}, false},
		{"untagged note", []models.Annotation{{Type: "note", Tags: []string{"todo"}}}, false},
		{"no annotations", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasAnalysisNote(tt.anns))
		})
	}
}
