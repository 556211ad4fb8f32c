package index

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordProvider embeds text onto three fixed axes so queries are predictable
type keywordProvider struct{}

func (keywordProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.ToLower(text)
	vec := []float32{0.01, 0.01, 0.01}
	if strings.Contains(text, "budget") {
		vec[0] = 1
	}
	if strings.Contains(text, "meeting") {
		vec[1] = 1
	}
	if strings.Contains(text, "holiday") {
		vec[2] = 1
	}
	return vec, nil
}

func (p keywordProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.Embed(ctx, text)
}

func (keywordProvider) ModelName() string { return "keyword" }

// countingProvider records which side of the model each call used
type countingProvider struct {
	keywordProvider
	documents atomic.Int32
	queries   atomic.Int32
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.documents.Add(1)
	return p.keywordProvider.Embed(ctx, text)
}

func (p *countingProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	p.queries.Add(1)
	return p.keywordProvider.EmbedQuery(ctx, text)
}

func seed(t *testing.T, s *Store, collection string) {
	t.Helper()
	p := keywordProvider{}
	var docs []Document
	for i, body := range []string{"budget review", "team meeting notes", "holiday plans"} {
		vec, err := p.Embed(context.Background(), body)
		require.NoError(t, err)
		docs = append(docs, Document{
			ID:        "email_" + string(rune('0'+i)),
			Embedding: vec,
			Metadata:  map[string]string{"body": body},
			Content:   body,
		})
	}
	require.NoError(t, s.Upsert(context.Background(), collection, docs))
}

func TestOpenRequiresExistingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), keywordProvider{}, log.New(io.Discard))
	assert.Error(t, err)
}

func TestQueryOrdersByDistance(t *testing.T) {
	s, err := Open(t.TempDir(), keywordProvider{}, log.New(io.Discard))
	require.NoError(t, err)
	seed(t, s, "outlook_emails")

	resp, err := s.Query(context.Background(), "outlook_emails", "budget", 2)
	require.NoError(t, err)
	require.Len(t, resp.IDs, 1)
	require.Len(t, resp.IDs[0], 2)
	assert.Equal(t, "email_0", resp.IDs[0][0])
	assert.Equal(t, "budget review", resp.Documents[0][0])
	assert.Equal(t, "budget review", resp.Metadatas[0][0]["body"])
	assert.LessOrEqual(t, resp.Distances[0][0], resp.Distances[0][1])
	assert.InDelta(t, 0, resp.Distances[0][0], 0.01)
}

func TestQueryEmbedsAsSearchQuery(t *testing.T) {
	p := &countingProvider{}
	s, err := Open(t.TempDir(), p, log.New(io.Discard))
	require.NoError(t, err)
	seed(t, s, "outlook_emails")

	resp, err := s.Query(context.Background(), "outlook_emails", "holiday", 1)
	require.NoError(t, err)
	assert.Equal(t, "holiday plans", resp.Documents[0][0])
	assert.EqualValues(t, 1, p.queries.Load())
	assert.EqualValues(t, 0, p.documents.Load())
}

func TestQueryClampsToCollectionSize(t *testing.T) {
	s, err := Open(t.TempDir(), keywordProvider{}, log.New(io.Discard))
	require.NoError(t, err)
	seed(t, s, "outlook_emails")

	resp, err := s.Query(context.Background(), "outlook_emails", "meeting", 20)
	require.NoError(t, err)
	assert.Len(t, resp.IDs[0], 3)
	assert.Len(t, resp.Distances[0], 3)
}

func TestQueryMissingCollection(t *testing.T) {
	s, err := Open(t.TempDir(), keywordProvider{}, log.New(io.Discard))
	require.NoError(t, err)

	_, err = s.Query(context.Background(), "nope", "budget", 5)
	assert.True(t, errors.Is(err, ErrCollectionNotFound))

	_, err = s.Count("nope")
	assert.True(t, errors.Is(err, ErrCollectionNotFound))
}

func TestUpsertPersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, keywordProvider{}, log.New(io.Discard))
	require.NoError(t, err)
	seed(t, s, "b_emails")
	seed(t, s, "a_emails")
	// re-adding the same ids replaces rather than duplicates
	seed(t, s, "a_emails")

	reopened, err := Open(dir, keywordProvider{}, log.New(io.Discard))
	require.NoError(t, err)
	assert.Equal(t, []string{"a_emails", "b_emails"}, reopened.ListCollections())

	n, err := reopened.Count("a_emails")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
