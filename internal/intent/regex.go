package intent

import (
	"regexp"
	"strings"

	"github.com/lox/email-vector-engine/internal/types"
)

// phrase captures a quoted or bare value up to the next quote or comma
const phrase = `\s+["']?([^"',]+)["']?`

type field int

const (
	fieldSubject field = iota
	fieldSender
	fieldFolder
	fieldBody
)

type fieldPattern struct {
	field   field
	pattern *regexp.Regexp
}

var countPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)how many emails?`),
	regexp.MustCompile(`(?i)count.*emails?`),
	regexp.MustCompile(`(?i)number of emails?`),
	regexp.MustCompile(`(?i)total emails?`),
}

// fieldPatterns is tried top to bottom; the first match for a field wins
var fieldPatterns = []fieldPattern{
	{fieldSubject, regexp.MustCompile(`(?i)\bsubject` + phrase)},
	{fieldSender, regexp.MustCompile(`(?i)\b(?:from|sender is|sent by)` + phrase)},
	{fieldFolder, regexp.MustCompile(`(?i)(?:\bin\s+folder|\bfolder\s+is|\bfolder:)` + phrase)},
	{fieldBody, regexp.MustCompile(`(?i)\b(?:body contains|content includes)` + phrase)},
	{fieldBody, regexp.MustCompile(`(?i)\b(?:about|regarding|concerning)` + phrase)},
	{fieldBody, regexp.MustCompile(`(?i)\b(?:emails about|messages about)` + phrase)},
	{fieldBody, regexp.MustCompile(`(?i)\b(?:contains|including|with)` + phrase)},
}

var commandWords = map[string]struct{}{
	"show":     {},
	"find":     {},
	"get":      {},
	"list":     {},
	"search":   {},
	"display":  {},
	"retrieve": {},
}

const maxBareKeywordTokens = 3

// RegexParser extracts intent from query text with a fixed pattern table.
// It performs no I/O and cannot fail.
type RegexParser struct{}

// NewRegexParser creates a new regex intent parser
func NewRegexParser() *RegexParser {
	return &RegexParser{}
}

// Parse interprets the query deterministically
func (p *RegexParser) Parse(query string) types.QueryIntent {
	isCount := false
	for _, re := range countPatterns {
		if re.MatchString(query) {
			isCount = true
			break
		}
	}

	found := make(map[field]*string)
	for _, fp := range fieldPatterns {
		if _, ok := found[fp.field]; ok {
			continue
		}
		m := fp.pattern.FindStringSubmatch(query)
		if m == nil {
			continue
		}
		value := strings.Trim(m[1], "\"' \t\r\n")
		if value == "" {
			continue
		}
		found[fp.field] = &value
	}

	if !isCount && len(found) == 0 {
		if keyword, ok := bareKeyword(query); ok {
			found[fieldBody] = &keyword
		}
	}

	queryType := types.QueryTypeSearch
	if isCount {
		queryType = types.QueryTypeCount
	}

	return types.QueryIntent{
		IsCountQuery:      isCount,
		SubjectFilter:     found[fieldSubject],
		SenderFilter:      found[fieldSender],
		FolderFilter:      found[fieldFolder],
		BodyFilter:        found[fieldBody],
		DateFilter:        nil,
		LanguageDetection: types.DefaultLanguage,
		QueryType:         queryType,
	}
}

// bareKeyword treats a short query without command words as a body filter
func bareKeyword(query string) (string, bool) {
	trimmed := strings.TrimSpace(query)
	tokens := strings.Fields(trimmed)
	if len(tokens) == 0 || len(tokens) > maxBareKeywordTokens {
		return "", false
	}
	for _, tok := range tokens {
		if _, ok := commandWords[strings.ToLower(tok)]; ok {
			return "", false
		}
	}
	return trimmed, true
}
