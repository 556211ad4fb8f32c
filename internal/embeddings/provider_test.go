package embeddings

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	assert.Equal(t, Hash("hello"), Hash("hello"))
	assert.NotEqual(t, Hash("hello"), Hash("hello "))
	assert.Len(t, Hash(""), 64)
}

func TestLlamaCppEmbed(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embedding", r.URL.Path)
		var req struct {
			Content string `json:"content"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "quarterly report", req.Content)

		// first attempt fails so the retry path is exercised
		if calls.Add(1) == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"index": 0, "embedding": [][]float32{{0.1, 0.2, 0.3}}},
		})
	}))
	defer server.Close()

	p, err := NewLlamaCppProvider(NewLlamaCppConfig().
		WithURL(server.URL).
		WithModelName("nomic").
		WithTimeout(time.Second).
		WithLogger(log.New(io.Discard)))
	require.NoError(t, err)

	vec, err := p.Embed(context.Background(), "quarterly report")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "nomic", p.ModelName())
	assert.NoError(t, Close(p))
}

func TestLlamaCppEmbedEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	p, err := NewLlamaCppProvider(NewLlamaCppConfig().
		WithURL(server.URL).
		WithModelName("nomic").
		WithRetryAttempts(1).
		WithLogger(log.New(io.Discard)))
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestOpenAIEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
		})
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(NewOpenAIConfig().
		WithAPIKey("k").
		WithEndpoint(server.URL + "/v1").
		WithModelName("text-embedding-3-small").
		WithLogger(log.New(io.Discard)))
	require.NoError(t, err)

	vec, err := p.Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
}

func TestConfigValidate(t *testing.T) {
	logger := log.New(io.Discard)

	assert.Error(t, NewLlamaCppConfig().WithLogger(logger).Validate(), "model name is required")
	assert.Error(t, NewLlamaCppConfig().WithModelName("m").Validate(), "logger is required")
	assert.Error(t, NewLlamaCppConfig().WithModelName("m").WithLogger(logger).WithURL("").Validate())
	assert.NoError(t, NewLlamaCppConfig().WithModelName("m").WithLogger(logger).Validate())

	assert.Error(t, NewGeminiConfig().WithLogger(logger).Validate(), "api key is required")
	assert.NoError(t, NewGeminiConfig().WithAPIKey("k").WithLogger(logger).Validate())

	assert.Error(t, NewOpenAIConfig().WithModelName("m").WithLogger(logger).Validate())
	assert.Error(t, NewOpenAIConfig().WithAPIKey("k").WithModelName("m").WithRetryAttempts(0).WithLogger(logger).Validate())
}

func TestPrefixesFor(t *testing.T) {
	tests := []struct {
		model string
		want  Prefixes
	}{
		{"nomic-embed-text", Prefixes{Document: "search_document: ", Query: "search_query: "}},
		{"text-embedding-nomic-embed-text-v1.5", Prefixes{Document: "search_document: ", Query: "search_query: "}},
		{"mxbai-embed-large", Prefixes{Query: "Represent this sentence for searching relevant passages: "}},
		{"multilingual-e5-large", Prefixes{Document: "passage: ", Query: "query: "}},
		{"text-embedding-3-small", Prefixes{}},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, PrefixesFor(tt.model))
		})
	}
}

func TestOpenAIEmbedSeparatesDocumentsAndQueries(t *testing.T) {
	var inputs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		inputs = append(inputs, req.Input...)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": []float32{1, 0}}},
		})
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(NewOpenAIConfig().
		WithAPIKey("ollama").
		WithEndpoint(server.URL + "/v1").
		WithModelName("nomic-embed-text").
		WithPrefixes(PrefixesFor("nomic-embed-text")).
		WithLogger(log.New(io.Discard)))
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "Lunch on Friday")
	require.NoError(t, err)
	_, err = p.EmbedQuery(context.Background(), "lunch plans")
	require.NoError(t, err)
	assert.Equal(t, []string{"search_document: Lunch on Friday", "search_query: lunch plans"}, inputs)
}

func TestLlamaCppQueryPrefixAndLegacyResponse(t *testing.T) {
	var content string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content string `json:"content"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		content = req.Content
		_, _ = w.Write([]byte(`{"embedding": [0.5, 0.25]}`))
	}))
	defer server.Close()

	p, err := NewLlamaCppProvider(NewLlamaCppConfig().
		WithURL(server.URL).
		WithModelName("e5").
		WithPrefixes(Prefixes{Document: "passage: ", Query: "query: "}).
		WithLogger(log.New(io.Discard)))
	require.NoError(t, err)

	vec, err := p.EmbedQuery(context.Background(), "invoice from Aviel")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)
	assert.Equal(t, "query: invoice from Aviel", content)

	_, err = p.Embed(context.Background(), "Invoice attached")
	require.NoError(t, err)
	assert.Equal(t, "passage: Invoice attached", content)
}

func TestDecodeLlamaCppEmbedding(t *testing.T) {
	vec, err := decodeLlamaCppEmbedding([]byte(`[{"index":0,"embedding":[[1,2]]}]`))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)

	vec, err = decodeLlamaCppEmbedding([]byte(" {\"embedding\":[3]}\n"))
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, vec)

	_, err = decodeLlamaCppEmbedding([]byte(`{"embedding":[]}`))
	assert.Error(t, err)
	_, err = decodeLlamaCppEmbedding([]byte(`[{"index":0,"embedding":[]}]`))
	assert.Error(t, err)
	_, err = decodeLlamaCppEmbedding([]byte(`<html>`))
	assert.Error(t, err)
}

func TestGeminiTaskTypes(t *testing.T) {
	p, err := NewGeminiProvider(context.Background(), NewGeminiConfig().
		WithAPIKey("test-key").
		WithLogger(log.New(io.Discard)))
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, genai.TaskTypeRetrievalDocument, p.document.TaskType)
	assert.Equal(t, genai.TaskTypeRetrievalQuery, p.query.TaskType)
	assert.Equal(t, DefaultGeminiModel, p.ModelName())
}
