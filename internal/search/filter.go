package search

import (
	"fmt"
	"strings"

	"github.com/lox/email-vector-engine/internal/types"
	"golang.org/x/exp/slices"
)

const noFiltersExplanation = "No specific filters applied beyond semantic search."

// fieldFilter pairs an intent filter with the metadata field it narrows
type fieldFilter struct {
	label string
	field string
	value func(types.QueryIntent) *string
}

// filters are applied in this order
var filters = []fieldFilter{
	{"subject", types.FieldSubject, func(q types.QueryIntent) *string { return q.SubjectFilter }},
	{"sender", types.FieldSenderName, func(q types.QueryIntent) *string { return q.SenderFilter }},
	{"folder", types.FieldFolderPath, func(q types.QueryIntent) *string { return q.FolderFilter }},
	{"body", types.FieldBody, func(q types.QueryIntent) *string { return q.BodyFilter }},
}

// Outcome is the result of narrowing retrieved matches by intent
type Outcome struct {
	Matches     []types.Match
	Explanation string
	Count       int
	QueryType   types.QueryType
}

// Apply narrows matches with every active filter in intent, then caps the list at k.
// For count queries Count is the filtered total before the cap; otherwise it is the
// number of matches returned.
func Apply(matches []types.Match, intent types.QueryIntent, k int) Outcome {
	filtered := slices.Clone(matches)
	var parts []string

	for _, f := range filters {
		v := f.value(intent)
		if v == nil || strings.TrimSpace(*v) == "" {
			continue
		}
		needle := strings.ToLower(*v)
		filtered = slices.DeleteFunc(filtered, func(m types.Match) bool {
			return !containsFold(m.Metadata, f.field, needle)
		})
		parts = append(parts, fmt.Sprintf("%s containing '%s'", f.label, *v))
	}

	out := Outcome{
		Explanation: noFiltersExplanation,
		QueryType:   types.QueryTypeSearch,
	}
	if intent.QueryType != "" {
		out.QueryType = intent.QueryType
	}
	if len(parts) > 0 {
		out.Explanation = "Filtered for " + strings.Join(parts, ", and ") + "."
	}

	if intent.IsCount() {
		out.QueryType = types.QueryTypeCount
		out.Count = len(filtered)
		out.Explanation += fmt.Sprintf(" Found %d matching emails after filtering.", out.Count)
	}

	if k >= 0 && len(filtered) > k {
		filtered = filtered[:k]
	}
	out.Matches = filtered

	if out.QueryType != types.QueryTypeCount {
		out.Count = len(filtered)
	}
	return out
}

// containsFold reports whether the metadata field is present and contains needle,
// which must already be lower-cased
func containsFold(metadata map[string]string, field, needle string) bool {
	value, ok := metadata[field]
	if !ok || value == "" {
		return false
	}
	return strings.Contains(strings.ToLower(value), needle)
}
