package intent

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/lox/email-vector-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockGenerator struct {
	response string
	err      error
	prompts  []string
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.response, m.err
}

// blockingGenerator waits for its context, like a backend that never answers
type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type panickingGenerator struct{}

func (panickingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	panic("backend exploded")
}

func newTestParser(g Generator) *LLMParser {
	return NewLLMParser(g, log.New(io.Discard))
}

func TestLLMParserSuccess(t *testing.T) {
	gen := &mockGenerator{response: `Sure! Here is the JSON:
{
  "is_count_query": true,
  "subject_filter": null,
  "sender_filter": "Aviel", // the sender
  "folder_filter": null,
  "body_filter": null,
  "date_filter": null,
  "language_detection": "en",
  "query_type": "count",
}
Let me know if you need anything else.`}

	got := newTestParser(gen).Parse(context.Background(), "how many emails from Aviel")
	assert.Equal(t, SourceLLM, got.Source)
	assert.Equal(t, FallbackNone, got.Fallback)
	assert.True(t, got.Intent.IsCountQuery)
	assert.Equal(t, types.QueryTypeCount, got.Intent.QueryType)
	require.NotNil(t, got.Intent.SenderFilter)
	assert.Equal(t, "Aviel", *got.Intent.SenderFilter)
	assert.Nil(t, got.Intent.SubjectFilter)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], `"how many emails from Aviel"`)
	assert.Contains(t, gen.prompts[0], "Do NOT include comments")
}

func TestLLMParserMissingKeysUseDefaults(t *testing.T) {
	gen := &mockGenerator{response: `{"query_type": "search", "body_filter": "UAE"}`}

	got := newTestParser(gen).Parse(context.Background(), "emails mentioning UAE")
	assert.Equal(t, SourceLLM, got.Source)
	assert.False(t, got.Intent.IsCountQuery)
	assert.Equal(t, "en", got.Intent.LanguageDetection)
	assert.Equal(t, types.QueryTypeSearch, got.Intent.QueryType)
	require.NotNil(t, got.Intent.BodyFilter)
	assert.Equal(t, "UAE", *got.Intent.BodyFilter)
}

func TestLLMParserFallbacks(t *testing.T) {
	const query = "how many emails from Aviel"
	want := NewRegexParser().Parse(query)

	tests := []struct {
		name   string
		gen    Generator
		reason FallbackReason
	}{
		{"generator_error", &mockGenerator{err: errors.New("connection refused")}, FallbackGeneratorErr},
		{"empty_response", &mockGenerator{response: ""}, FallbackEmpty},
		{"no_json", &mockGenerator{response: "I cannot help with that."}, FallbackNoJSON},
		{"invalid_json", &mockGenerator{response: `{"is_count_query": tru}`}, FallbackInvalidJSON},
		{"panic", panickingGenerator{}, FallbackGeneratorErr},
		{"nil_generator", nil, FallbackUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := newTestParser(tc.gen).Parse(context.Background(), query)
			assert.Equal(t, SourceRegex, got.Source)
			assert.Equal(t, tc.reason, got.Fallback)
			assert.Equal(t, want, got.Intent)
		})
	}
}

func TestLLMParserTimeoutFallsBackToRegex(t *testing.T) {
	const query = "show pricing emails"
	parser := newTestParser(blockingGenerator{}).WithTimeout(20 * time.Millisecond)

	got := parser.Parse(context.Background(), query)
	assert.Equal(t, SourceRegex, got.Source)
	assert.Equal(t, NewRegexParser().Parse(query), got.Intent)
}

func TestExtractJSONPrefersSpecificPatterns(t *testing.T) {
	text := `{"note": "x"} then {"is_count_query": false, "query_type": "search"}`
	span, ok := ExtractJSON(text)
	require.True(t, ok)
	assert.Equal(t, `{"is_count_query": false, "query_type": "search"}`, span)

	span, ok = ExtractJSON(`prefix {"query_type": "count"} suffix`)
	require.True(t, ok)
	assert.Equal(t, `{"query_type": "count"}`, span)

	span, ok = ExtractJSON(`answer: {"a": 1}`)
	require.True(t, ok)
	assert.Equal(t, `{"a": 1}`, span)

	_, ok = ExtractJSON("no braces here")
	assert.False(t, ok)
}

func TestIntentFromMap(t *testing.T) {
	got := IntentFromMap(map[string]any{
		"is_count_query":     "true",
		"subject_filter":     "  ",
		"sender_filter":      "null",
		"folder_filter":      42.0,
		"body_filter":        "contract",
		"language_detection": "es",
		"query_type":         "COUNT",
	})
	assert.True(t, got.IsCountQuery)
	assert.Nil(t, got.SubjectFilter)
	assert.Nil(t, got.SenderFilter)
	assert.Nil(t, got.FolderFilter)
	require.NotNil(t, got.BodyFilter)
	assert.Equal(t, "contract", *got.BodyFilter)
	assert.Equal(t, "es", got.LanguageDetection)
	assert.Equal(t, types.QueryTypeCount, got.QueryType)

	empty := IntentFromMap(nil)
	assert.False(t, empty.IsCountQuery)
	assert.Equal(t, "en", empty.LanguageDetection)
	assert.Equal(t, types.QueryTypeSearch, empty.QueryType)
}

func TestRegexOnly(t *testing.T) {
	got := NewRegexOnly().Parse(context.Background(), "pricing")
	assert.Equal(t, SourceRegex, got.Source)
	assert.Equal(t, FallbackDisabled, got.Fallback)
	require.NotNil(t, got.Intent.BodyFilter)
	assert.Equal(t, "pricing", *got.Intent.BodyFilter)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 200))
	assert.Equal(t, "ñá...", truncate("ñáé", 2))
	got := truncate("€€€€", 3)
	assert.Equal(t, "€€€...", got)
	assert.True(t, utf8.ValidString(got))
}
