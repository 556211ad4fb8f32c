package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T, url string, timeout time.Duration) *OllamaGenerator {
	t.Helper()
	g, err := NewOllamaGenerator(NewOllamaConfig().
		WithURL(url).
		WithModelName("test-model").
		WithTimeout(timeout).
		WithLogger(log.New(io.Discard)))
	require.NoError(t, err)
	return g
}

func TestOllamaGenerate(t *testing.T) {
	var got ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"response": `{"query_type": "search"}`, "done": true})
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL+"/api/generate", time.Second)
	text, err := g.Generate(context.Background(), "parse this")
	require.NoError(t, err)
	assert.Equal(t, `{"query_type": "search"}`, text)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, "parse this", got.Prompt)
	assert.False(t, got.Stream)
}

func TestOllamaGenerateNonOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestGenerator(t, server.URL, time.Second).Generate(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOllamaGenerateTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	_, err := newTestGenerator(t, server.URL, 50*time.Millisecond).Generate(context.Background(), "x")
	assert.Error(t, err)
}

func TestOllamaConfigValidate(t *testing.T) {
	assert.Error(t, NewOllamaConfig().Validate(), "logger is required")
	assert.Error(t, NewOllamaConfig().WithLogger(log.New(io.Discard)).WithURL("").Validate())
	assert.Error(t, NewOllamaConfig().WithLogger(log.New(io.Discard)).WithModelName("").Validate())
	assert.NoError(t, NewOllamaConfig().WithLogger(log.New(io.Discard)).Validate())
}
