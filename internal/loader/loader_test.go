package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/lox/email-vector-engine/internal/db"
	"github.com/lox/email-vector-engine/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lengthProvider struct {
	failOn string
}

func (p lengthProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.failOn != "" && strings.Contains(text, p.failOn) {
		return nil, errors.New("embedding server unavailable")
	}
	return []float32{float32(len(text)), 1, 0.5}, nil
}

func (p lengthProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.Embed(ctx, text)
}

func (lengthProvider) ModelName() string { return "length" }

// memoryStore records upserts and can fail selected calls
type memoryStore struct {
	mu      sync.Mutex
	calls   int
	failOn  map[int]bool
	batches [][]index.Document
}

func (s *memoryStore) Upsert(ctx context.Context, collection string, docs []index.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failOn[s.calls] {
		return errors.New("disk full")
	}
	s.batches = append(s.batches, docs)
	return nil
}

func writeJSONL(t *testing.T, n int) string {
	t.Helper()
	var bodies []string
	for i := 0; i < n; i++ {
		bodies = append(bodies, fmt.Sprintf("Subject %d|Body number %d", i, i))
	}
	return writeEmails(t, bodies...)
}

// writeEmails writes one email per "subject|body" pair
func writeEmails(t *testing.T, pairs ...string) string {
	t.Helper()
	var sb strings.Builder
	for _, pair := range pairs {
		subject, body, _ := strings.Cut(pair, "|")
		fmt.Fprintf(&sb, `{"type":"Message","subject":%q,"sender_name":"Sender","folder_path":"Inbox","body":%q}`+"\n", subject, body)
	}
	path := filepath.Join(t.TempDir(), "emails.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0644))
	return path
}

func newLedger(t *testing.T) *db.DB {
	t.Helper()
	ledger, err := db.New(context.Background(), t.TempDir(), log.New(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func TestLoadIntoIndexAndSkipOnReload(t *testing.T) {
	logger := log.New(io.Discard)
	ledger := newLedger(t)
	store, err := index.Create(filepath.Join(t.TempDir(), "chroma_db"), lengthProvider{}, logger)
	require.NoError(t, err)

	path := writeJSONL(t, 7)
	l := New(logger, lengthProvider{}, store, ledger)
	config := Config{Collection: "outlook_emails", Concurrency: 3, BatchSize: 3}

	report, err := l.Load(context.Background(), path, config)
	require.NoError(t, err)
	assert.Equal(t, Report{Read: 7, Stored: 7}, report)

	n, err := store.Count("outlook_emails")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	resp, err := store.Query(context.Background(), "outlook_emails", "Body number 3", 1)
	require.NoError(t, err)
	require.Len(t, resp.Metadatas[0], 1)
	assert.Equal(t, "Inbox", resp.Metadatas[0][0]["folder_path"])

	report, err = l.Load(context.Background(), path, config)
	require.NoError(t, err)
	assert.Equal(t, Report{Read: 7, Skipped: 7}, report)

	stats, err := ledger.Stats(context.Background(), "outlook_emails")
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Total)
}

func TestLoadSecondFileKeepsEarlierEmails(t *testing.T) {
	logger := log.New(io.Discard)
	ledger := newLedger(t)
	store, err := index.Create(filepath.Join(t.TempDir(), "chroma_db"), lengthProvider{}, logger)
	require.NoError(t, err)
	l := New(logger, lengthProvider{}, store, ledger)
	config := Config{Collection: "c"}
	ctx := context.Background()

	first := writeEmails(t, "A0|alpha zero", "A1|alpha one")
	second := writeEmails(t, "B0|bravo zero")

	report, err := l.Load(ctx, first, config)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Stored)

	report, err = l.Load(ctx, second, config)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stored)

	report, err = l.Load(ctx, first, config)
	require.NoError(t, err)
	assert.Equal(t, Report{Read: 2, Skipped: 2}, report)

	n, err := store.Count("c")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	resp, err := store.Query(ctx, "c", "x", 10)
	require.NoError(t, err)
	var subjects []string
	for _, m := range resp.Metadatas[0] {
		subjects = append(subjects, m["subject"])
	}
	assert.ElementsMatch(t, []string{"A0", "A1", "B0"}, subjects)

	stats, err := ledger.Stats(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, n, stats.Total)
}

func TestLoadInsertedLineDoesNotOverwrite(t *testing.T) {
	logger := log.New(io.Discard)
	ledger := newLedger(t)
	store, err := index.Create(filepath.Join(t.TempDir(), "chroma_db"), lengthProvider{}, logger)
	require.NoError(t, err)
	l := New(logger, lengthProvider{}, store, ledger)
	ctx := context.Background()

	_, err = l.Load(ctx, writeEmails(t, "A0|alpha zero", "A1|alpha one"), Config{Collection: "c"})
	require.NoError(t, err)

	report, err := l.Load(ctx, writeEmails(t, "NEW|inserted first", "A0|alpha zero", "A1|alpha one"), Config{Collection: "c"})
	require.NoError(t, err)
	assert.Equal(t, Report{Read: 3, Skipped: 2, Stored: 1}, report)

	n, err := store.Count("c")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLoadSkipsRepeatedEmailInFile(t *testing.T) {
	store := &memoryStore{}
	l := New(log.New(io.Discard), lengthProvider{}, store, newLedger(t))

	report, err := l.Load(context.Background(), writeEmails(t, "Hi|same", "Hi|same", "Bye|other"), Config{Collection: "c"})
	require.NoError(t, err)
	assert.Equal(t, Report{Read: 3, Skipped: 1, Stored: 2}, report)
	require.Len(t, store.batches, 1)
	assert.NotEqual(t, store.batches[0][0].ID, store.batches[0][1].ID)
}

func TestLoadSkipsFailedBatch(t *testing.T) {
	store := &memoryStore{failOn: map[int]bool{2: true}}
	ledger := newLedger(t)
	l := New(log.New(io.Discard), lengthProvider{}, store, ledger)

	report, err := l.Load(context.Background(), writeJSONL(t, 5), Config{Collection: "c", BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Read)
	assert.Equal(t, 3, report.Stored)
	assert.Equal(t, 1, report.FailedBatches)
	require.Len(t, store.batches, 2)
	assert.Equal(t, "Subject 0", store.batches[0][0].Metadata["subject"])
	assert.Equal(t, "Subject 4", store.batches[1][0].Metadata["subject"])

	// the failed batch is not in the ledger so a reload retries it
	stats, err := ledger.Stats(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
}

func TestLoadSkipsFailedEmbedding(t *testing.T) {
	store := &memoryStore{}
	l := New(log.New(io.Discard), lengthProvider{failOn: "number 1"}, store, newLedger(t))

	report, err := l.Load(context.Background(), writeJSONL(t, 3), Config{Collection: "c"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.FailedEmbeds)
	assert.Equal(t, 2, report.Stored)
}

func TestLoadNoDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("garbage\n\n"), 0644))

	l := New(log.New(io.Discard), lengthProvider{}, &memoryStore{}, newLedger(t))
	_, err := l.Load(context.Background(), path, Config{Collection: "c"})
	assert.True(t, errors.Is(err, ErrNoDocuments))

	_, err = l.Load(context.Background(), filepath.Join(t.TempDir(), "missing.jsonl"), Config{Collection: "c"})
	assert.Error(t, err)
}
