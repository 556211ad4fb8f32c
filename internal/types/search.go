package types

// QueryType distinguishes counting queries from plain searches
type QueryType string

const (
	QueryTypeSearch QueryType = "search"
	QueryTypeCount  QueryType = "count"

	DefaultLanguage = "en"
)

// QueryIntent is the structured interpretation of a free-form query.
// Nil filters are absent; a blank filter is treated the same as an absent one.
type QueryIntent struct {
	IsCountQuery      bool      `json:"is_count_query" yaml:"is_count_query"`
	SubjectFilter     *string   `json:"subject_filter" yaml:"subject_filter"`
	SenderFilter      *string   `json:"sender_filter" yaml:"sender_filter"`
	FolderFilter      *string   `json:"folder_filter" yaml:"folder_filter"`
	BodyFilter        *string   `json:"body_filter" yaml:"body_filter"`
	DateFilter        *string   `json:"date_filter" yaml:"date_filter"` // parsed but never applied
	LanguageDetection string    `json:"language_detection" yaml:"language_detection"`
	QueryType         QueryType `json:"query_type" yaml:"query_type"`
}

// IsCount reports whether the intent asks for a count by either signal
func (q QueryIntent) IsCount() bool {
	return q.IsCountQuery || q.QueryType == QueryTypeCount
}

// Match is a single retrieved document, ordered as returned by the vector index
type Match struct {
	ID       string            `json:"id" yaml:"id"`
	Metadata map[string]string `json:"metadata" yaml:"metadata"`
	// Distance is nil when the index did not report one; it never means a perfect match
	Distance *float64 `json:"distance" yaml:"distance"`
}

// SearchResult is the envelope returned by the search pipeline.
// The ids/documents/metadatas/distances columns mirror the vector index's native
// single-query batch shape and always line up with SearchResults.
type SearchResult struct {
	Query         string      `json:"query" yaml:"query"`
	ParsedQuery   QueryIntent `json:"parsed_query" yaml:"parsed_query"`
	Explanation   string      `json:"explanation" yaml:"explanation"`
	QueryType     QueryType   `json:"query_type" yaml:"query_type"`
	Count         int         `json:"count" yaml:"count"`
	SearchResults []Match     `json:"search_results" yaml:"search_results"`

	IDs       [][]string            `json:"ids" yaml:"ids"`
	Documents [][]string            `json:"documents" yaml:"documents"`
	Metadatas [][]map[string]string `json:"metadatas" yaml:"metadatas"`
	Distances [][]*float64          `json:"distances" yaml:"distances"`
}
