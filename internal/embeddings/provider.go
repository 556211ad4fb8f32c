// Package embeddings turns email text into vectors for the index.
package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
)

// Provider embeds stored emails with Embed and search text with EmbedQuery.
// Retrieval models place the two sides differently, so callers must not mix them.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

const (
	defaultTimeout       = 30 * time.Second
	defaultRetryAttempts = 3
)

// Prefixes are prepended to text for models trained with task instructions
type Prefixes struct {
	Document string
	Query    string
}

// PrefixesFor returns the task prefixes a known model family expects, or none
func PrefixesFor(model string) Prefixes {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "nomic-embed"):
		return Prefixes{Document: "search_document: ", Query: "search_query: "}
	case strings.Contains(m, "mxbai-embed"):
		return Prefixes{Query: "Represent this sentence for searching relevant passages: "}
	case strings.Contains(m, "e5-"):
		return Prefixes{Document: "passage: ", Query: "query: "}
	default:
		return Prefixes{}
	}
}

// Hash returns the SHA-256 of content, used to detect unchanged documents
func Hash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// Close releases provider resources when the provider holds any
func Close(p Provider) error {
	if closer, ok := p.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// withRetry runs fn with exponential backoff, stopping early when ctx ends
func withRetry(ctx context.Context, logger *log.Logger, backend string, attempts uint, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Retrying embedding request", "backend", backend, "attempt", n+1, "max_attempts", attempts, "error", err)
		}),
	)
}
