package intent

import (
	"regexp"
	"strings"
)

var (
	lineCommentPattern   = regexp.MustCompile(`//[^\n]*`)
	blockCommentPattern  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
)

// CleanJSON repairs near-valid JSON emitted by a language model: it strips line and
// block comments, drops trailing commas before a closing brace or bracket, and trims
// whitespace. It is not string-literal aware, so a "//" inside a quoted value is cut.
func CleanJSON(text string) string {
	text = lineCommentPattern.ReplaceAllString(text, "")
	text = blockCommentPattern.ReplaceAllString(text, "")
	text = trailingCommaPattern.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}
