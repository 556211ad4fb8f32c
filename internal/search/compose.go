package search

import (
	"fmt"

	"github.com/lox/email-vector-engine/internal/types"
)

// Compose builds the result envelope along with its column-oriented projection.
// Element i of every column describes SearchResults[i].
func Compose(query string, intent types.QueryIntent, outcome Outcome) types.SearchResult {
	matches := outcome.Matches
	if matches == nil {
		matches = []types.Match{}
	}

	ids := make([]string, 0, len(matches))
	documents := make([]string, 0, len(matches))
	metadatas := make([]map[string]string, 0, len(matches))
	distances := make([]*float64, 0, len(matches))

	for _, m := range matches {
		ids = append(ids, m.ID)
		documents = append(documents, document(m.Metadata))
		metadatas = append(metadatas, m.Metadata)
		distances = append(distances, m.Distance)
	}

	return types.SearchResult{
		Query:         query,
		ParsedQuery:   intent,
		Explanation:   outcome.Explanation,
		QueryType:     outcome.QueryType,
		Count:         outcome.Count,
		SearchResults: matches,
		IDs:           [][]string{ids},
		Documents:     [][]string{documents},
		Metadatas:     [][]map[string]string{metadatas},
		Distances:     [][]*float64{distances},
	}
}

// document picks the body, then the subject, then a rendering of all metadata
func document(metadata map[string]string) string {
	if body := metadata[types.FieldBody]; body != "" {
		return body
	}
	if subject := metadata[types.FieldSubject]; subject != "" {
		return subject
	}
	return fmt.Sprintf("%v", metadata)
}
