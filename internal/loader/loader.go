// Package loader ingests JSONL email exports into the vector index.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/email-vector-engine/internal/db"
	"github.com/lox/email-vector-engine/internal/embeddings"
	"github.com/lox/email-vector-engine/internal/index"
	"github.com/lox/email-vector-engine/internal/types"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize   = 100
	DefaultConcurrency = 4
)

// ErrNoDocuments is returned when an input file holds no valid email records
var ErrNoDocuments = errors.New("no valid email records found")

// Store is the write side of the vector index
type Store interface {
	Upsert(ctx context.Context, collection string, docs []index.Document) error
}

// Ledger remembers which content has already been ingested
type Ledger interface {
	FilterExisting(ctx context.Context, records []db.Record) ([]db.Record, error)
	Store(ctx context.Context, records []db.Record) error
}

type Config struct {
	Collection  string
	Concurrency int
	BatchSize   int
	Progress    bool
}

// Report summarises a load
type Report struct {
	Read          int `json:"read" yaml:"read"`
	Skipped       int `json:"skipped" yaml:"skipped"`
	Stored        int `json:"stored" yaml:"stored"`
	FailedEmbeds  int `json:"failed_embeddings" yaml:"failed_embeddings"`
	FailedBatches int `json:"failed_batches" yaml:"failed_batches"`
}

type Loader struct {
	logger   *log.Logger
	provider embeddings.Provider
	store    Store
	ledger   Ledger
}

func New(logger *log.Logger, provider embeddings.Provider, store Store, ledger Ledger) *Loader {
	return &Loader{
		logger:   logger,
		provider: provider,
		store:    store,
		ledger:   ledger,
	}
}

// pending is an email waiting for its embedding
type pending struct {
	email     types.Email
	record    db.Record
	text      string
	embedding []float32
}

// Load reads the JSONL file at path, embeds every email not already in the
// ledger and upserts them into the collection in batches
func (l *Loader) Load(ctx context.Context, path string, config Config) (Report, error) {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	start := time.Now()
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer f.Close()

	emails, err := ReadDocuments(f, l.logger)
	if err != nil {
		return Report{}, err
	}
	if len(emails) == 0 {
		return Report{}, fmt.Errorf("%w in %s", ErrNoDocuments, path)
	}
	report := Report{Read: len(emails)}
	l.logger.Info("Read emails", "path", path, "count", len(emails))

	todo, err := l.filterExisting(ctx, emails, config.Collection)
	if err != nil {
		return report, err
	}
	report.Skipped = len(emails) - len(todo)
	l.logger.Debug("Filtered already ingested emails", "remaining", len(todo), "skipped", report.Skipped)

	embedded, failed, err := l.embed(ctx, todo, config)
	if err != nil {
		return report, err
	}
	report.FailedEmbeds = failed

	for i := 0; i < len(embedded); i += config.BatchSize {
		batch := embedded[i:min(i+config.BatchSize, len(embedded))]
		if err := l.storeBatch(ctx, config.Collection, batch); err != nil {
			if errors.Is(err, context.Canceled) {
				return report, err
			}
			l.logger.Error("Failed to store batch", "offset", i, "size", len(batch), "error", err)
			report.FailedBatches++
			continue
		}
		report.Stored += len(batch)
	}

	l.logger.Info("Finished loading emails",
		"collection", config.Collection,
		"read", report.Read,
		"skipped", report.Skipped,
		"stored", report.Stored,
		"failed_embeddings", report.FailedEmbeds,
		"failed_batches", report.FailedBatches,
		"duration", time.Since(start))
	return report, nil
}

// filterExisting drops emails the ledger already holds for collection, along
// with repeats of the same content within the file
func (l *Loader) filterExisting(ctx context.Context, emails []types.Email, collection string) ([]*pending, error) {
	records := make([]db.Record, 0, len(emails))
	byID := make(map[string]types.Email, len(emails))
	for _, e := range emails {
		if _, seen := byID[e.ID]; seen {
			l.logger.Debug("Skipping repeated email", "id", e.ID, "subject", e.Subject)
			continue
		}
		records = append(records, recordFor(e, collection))
		byID[e.ID] = e
	}

	fresh, err := l.ledger.FilterExisting(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("failed to filter existing emails: %w", err)
	}

	todo := make([]*pending, 0, len(fresh))
	for _, r := range fresh {
		e := byID[r.ID]
		todo = append(todo, &pending{email: e, record: r, text: EmbeddingText(e)})
	}
	return todo, nil
}

// embed computes embeddings with bounded concurrency. Emails that fail to embed
// are logged and left out.
func (l *Loader) embed(ctx context.Context, todo []*pending, config Config) ([]*pending, int, error) {
	progress := newProgress(config.Progress, len(todo))
	defer progress.Close()

	var failed atomic.Int32
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(config.Concurrency)

	for _, p := range todo {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			if p.text == "" {
				l.logger.Warn("Skipping email with no text to embed", "id", p.email.ID)
				failed.Add(1)
				return progress.Add(1)
			}
			vec, err := l.provider.Embed(gCtx, p.text)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				l.logger.Error("Failed to embed email", "id", p.email.ID, "error", err)
				failed.Add(1)
				return progress.Add(1)
			}
			p.embedding = vec
			return progress.Add(1)
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			l.logger.Info("Loading interrupted by user")
		}
		return nil, 0, fmt.Errorf("error embedding emails: %w", err)
	}

	embedded := make([]*pending, 0, len(todo))
	for _, p := range todo {
		if p.embedding != nil {
			embedded = append(embedded, p)
		}
	}
	return embedded, int(failed.Load()), nil
}

func (l *Loader) storeBatch(ctx context.Context, collection string, batch []*pending) error {
	docs := make([]index.Document, 0, len(batch))
	records := make([]db.Record, 0, len(batch))
	for _, p := range batch {
		docs = append(docs, index.Document{
			ID:        p.email.ID,
			Embedding: p.embedding,
			Metadata:  p.email.Metadata(),
			Content:   p.text,
		})
		records = append(records, p.record)
	}

	if err := l.store.Upsert(ctx, collection, docs); err != nil {
		return err
	}
	if err := l.ledger.Store(ctx, records); err != nil {
		return fmt.Errorf("failed to record batch in ledger: %w", err)
	}
	return nil
}

func recordFor(e types.Email, collection string) db.Record {
	return db.Record{
		ID:          e.ID,
		Collection:  collection,
		ContentHash: ContentHash(e),
		Type:        e.Type,
		Subject:     e.Subject,
		SenderName:  e.SenderName,
		FolderPath:  e.FolderPath,
	}
}
