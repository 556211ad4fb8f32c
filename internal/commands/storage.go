package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/lox/email-vector-engine/internal/db"
	"github.com/lox/email-vector-engine/internal/embeddings"
	"github.com/lox/email-vector-engine/internal/index"
	"github.com/lox/email-vector-engine/internal/search"
)

// IndexConnector opens existing indexes only, so a missing index surfaces as a
// connection error rather than being created empty. Opened stores are kept per
// target for the life of the process; documents loaded by another process after
// the first search are not seen until restart.
func IndexConnector(provider embeddings.Provider, logger *log.Logger) search.Connector {
	var mu sync.Mutex
	stores := make(map[string]*index.Store)

	return func(ctx context.Context, target string) (search.VectorIndex, error) {
		target = filepath.Clean(target)
		mu.Lock()
		defer mu.Unlock()
		if s, ok := stores[target]; ok {
			return s, nil
		}
		s, err := index.Open(target, provider, logger)
		if err != nil {
			return nil, err
		}
		stores[target] = s
		return s, nil
	}
}

// SetupIndex opens the index for writing, creating its directory if needed
func SetupIndex(config IndexConfig, provider embeddings.Provider, logger *log.Logger) (*index.Store, error) {
	store, err := index.Create(filepath.Clean(config.DBPath), provider, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}
	return store, nil
}

// SetupLedger opens the ingestion ledger in the data directory
func SetupLedger(ctx context.Context, config CommonConfig, logger *log.Logger) (*db.DB, error) {
	ledger, err := db.New(ctx, config.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	return ledger, nil
}

// OpenIndex opens an existing index read side
func OpenIndex(config IndexConfig, provider embeddings.Provider, logger *log.Logger) (*index.Store, error) {
	store, err := index.Open(filepath.Clean(config.DBPath), provider, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	return store, nil
}
