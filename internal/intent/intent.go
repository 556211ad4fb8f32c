// Package intent turns free-form email search queries into structured filters.
//
// Two parsers are provided. RegexParser is deterministic and cannot fail.
// LLMParser asks a language model for a JSON object and degrades to RegexParser
// whenever the model is unreachable or its output cannot be understood.
package intent

import (
	"context"
	"strconv"
	"strings"

	"github.com/lox/email-vector-engine/internal/types"
)

// RegexOnly adapts a RegexParser to the Parser interface
type RegexOnly struct {
	parser *RegexParser
}

// NewRegexOnly returns a Parser that never consults a language model
func NewRegexOnly() *RegexOnly {
	return &RegexOnly{parser: NewRegexParser()}
}

func (r *RegexOnly) Parse(_ context.Context, query string) Parsed {
	return Parsed{
		Source:   SourceRegex,
		Intent:   r.parser.Parse(query),
		Fallback: FallbackDisabled,
	}
}

// IntentFromMap validates a decoded model response once, applying a default to
// every missing or mistyped field:
//
//	is_count_query      false (accepts bool, "true"/"false", numbers)
//	*_filter            nil   (accepts strings; blank and "null" become nil)
//	language_detection  "en"
//	query_type          "count" if exactly "count" (case-insensitive), otherwise "search"
func IntentFromMap(raw map[string]any) types.QueryIntent {
	intent := types.QueryIntent{
		IsCountQuery:      boolValue(raw["is_count_query"]),
		SubjectFilter:     stringValue(raw["subject_filter"]),
		SenderFilter:      stringValue(raw["sender_filter"]),
		FolderFilter:      stringValue(raw["folder_filter"]),
		BodyFilter:        stringValue(raw["body_filter"]),
		DateFilter:        stringValue(raw["date_filter"]),
		LanguageDetection: types.DefaultLanguage,
		QueryType:         types.QueryTypeSearch,
	}
	if lang := stringValue(raw["language_detection"]); lang != nil {
		intent.LanguageDetection = *lang
	}
	if qt := stringValue(raw["query_type"]); qt != nil && strings.EqualFold(*qt, string(types.QueryTypeCount)) {
		intent.QueryType = types.QueryTypeCount
	}
	return intent
}

func boolValue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	case float64:
		return b != 0
	default:
		return false
	}
}

func stringValue(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	t := strings.TrimSpace(s)
	if t == "" || strings.EqualFold(t, "null") || strings.EqualFold(t, "none") {
		return nil
	}
	return &s
}
