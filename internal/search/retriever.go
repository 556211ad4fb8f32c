package search

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/lox/email-vector-engine/internal/index"
	"github.com/lox/email-vector-engine/internal/types"
)

// VectorIndex is the query side of the vector store
type VectorIndex interface {
	Query(ctx context.Context, collection string, text string, k int) (index.QueryResponse, error)
}

// Connector opens a vector index at target (a directory for chromem-go)
type Connector func(ctx context.Context, target string) (VectorIndex, error)

// Retrieve runs a similarity query and unpacks the single-query batch into matches,
// preserving the order the index returned them in
func Retrieve(ctx context.Context, logger *log.Logger, connect Connector, target, collection, query string, k int) ([]types.Match, error) {
	idx, err := connect(ctx, target)
	if err != nil {
		logger.Error("Vector index connection failed", "target", target, "error", err)
		return nil, &ConnectionError{Target: target, Err: err}
	}

	logger.Info("Querying collection", "collection", collection, "query", query, "k", k)
	resp, err := idx.Query(ctx, collection, query, k)
	if err != nil {
		logger.Error("Semantic search failed", "collection", collection, "error", err)
		return nil, &RetrievalError{Collection: collection, Err: err}
	}

	matches := unpack(resp)
	logger.Info("Retrieved matches", "collection", collection, "count", len(matches))
	return matches, nil
}

func unpack(resp index.QueryResponse) []types.Match {
	if len(resp.IDs) == 0 {
		return []types.Match{}
	}
	ids := resp.IDs[0]

	var metadatas []map[string]string
	if len(resp.Metadatas) > 0 {
		metadatas = resp.Metadatas[0]
	}
	var distances []float64
	if len(resp.Distances) > 0 {
		distances = resp.Distances[0]
	}

	matches := make([]types.Match, 0, len(ids))
	for i, id := range ids {
		m := types.Match{ID: id, Metadata: map[string]string{}}
		if i < len(metadatas) && metadatas[i] != nil {
			m.Metadata = metadatas[i]
		}
		// an omitted distance stays nil rather than reading as a perfect match
		if i < len(distances) {
			d := distances[i]
			m.Distance = &d
		}
		matches = append(matches, m)
	}
	return matches
}
