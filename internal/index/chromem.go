// Package index wraps the persistent chromem-go vector database holding email embeddings.
package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/lox/email-vector-engine/internal/embeddings"
	"github.com/philippgille/chromem-go"
)

// ErrCollectionNotFound is returned when a named collection does not exist in the index
var ErrCollectionNotFound = errors.New("collection not found")

// Document is a single embedded email ready to be stored
type Document struct {
	ID        string
	Embedding []float32
	Metadata  map[string]string
	Content   string
}

// QueryResponse mirrors the nested, per-query layout of the index's query API.
// Every slice has one entry per query text; only a single query is ever issued.
type QueryResponse struct {
	IDs       [][]string
	Documents [][]string
	Metadatas [][]map[string]string
	Distances [][]float64
}

// Store is a persistent chromem-go database addressed by directory
type Store struct {
	db       *chromem.DB
	path     string
	provider embeddings.Provider
	logger   *log.Logger
}

// Open opens the index persisted at path. The directory must already exist.
func Open(path string, provider embeddings.Provider, logger *log.Logger) (*Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index at %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("index path %s is not a directory", path)
	}
	return Create(path, provider, logger)
}

// Create opens the index at path, creating the directory if needed
func Create(path string, provider embeddings.Provider, logger *log.Logger) (*Store, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create chromem database: %w", err)
	}
	s := &Store{
		db:       db,
		path:     path,
		provider: provider,
		logger:   logger,
	}
	logger.Info("Opened chromem vector database", "path", path, "collections", len(db.ListCollections()))
	return s, nil
}

// documentFunc lets chromem embed documents added without a vector; queries never go through it
func (s *Store) documentFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.provider.Embed(ctx, text)
	}
}

// Query embeds text as a search query and returns up to k nearest documents in collection, closest first.
// Distances are cosine distances (1 - similarity).
func (s *Store) Query(ctx context.Context, collection string, text string, k int) (QueryResponse, error) {
	c := s.db.GetCollection(collection, s.documentFunc())
	if c == nil {
		return QueryResponse{}, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	resp := QueryResponse{
		IDs:       [][]string{{}},
		Documents: [][]string{{}},
		Metadatas: [][]map[string]string{{}},
		Distances: [][]float64{{}},
	}

	// chromem refuses nResults larger than the collection
	n := min(k, c.Count())
	if n <= 0 {
		return resp, nil
	}

	vec, err := s.provider.EmbedQuery(ctx, text)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := c.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}
	for _, r := range results {
		resp.IDs[0] = append(resp.IDs[0], r.ID)
		resp.Documents[0] = append(resp.Documents[0], r.Content)
		resp.Metadatas[0] = append(resp.Metadatas[0], r.Metadata)
		resp.Distances[0] = append(resp.Distances[0], 1-float64(r.Similarity))
	}

	s.logger.Debug("Queried collection", "collection", collection, "requested", k, "returned", len(results))
	return resp, nil
}

// Upsert adds documents to collection, creating the collection if it does not exist.
// Documents with an existing ID replace the stored one.
func (s *Store) Upsert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	c, err := s.db.GetOrCreateCollection(collection, nil, s.documentFunc())
	if err != nil {
		return fmt.Errorf("failed to get or create collection %s: %w", collection, err)
	}

	chromemDocs := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		chromemDocs = append(chromemDocs, chromem.Document{
			ID:        d.ID,
			Metadata:  d.Metadata,
			Embedding: d.Embedding,
			Content:   d.Content,
		})
	}
	if err := c.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("failed to add documents to collection %s: %w", collection, err)
	}

	s.logger.Debug("Upserted documents", "collection", collection, "count", len(docs))
	return nil
}

// ListCollections returns collection names in sorted order
func (s *Store) ListCollections() []string {
	cols := s.db.ListCollections()
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of documents in collection
func (s *Store) Count(collection string) (int, error) {
	c := s.db.GetCollection(collection, s.documentFunc())
	if c == nil {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	return c.Count(), nil
}

// Path returns the directory the index is persisted in
func (s *Store) Path() string {
	return s.path
}

// Close is a no-op; chromem persists on every write
func (s *Store) Close() error {
	return nil
}
