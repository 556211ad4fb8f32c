package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/email-vector-engine/internal/types"
)

// Source records which parser produced an intent
type Source string

const (
	SourceLLM   Source = "llm"
	SourceRegex Source = "regex"
)

// FallbackReason explains why the LLM parser handed over to the regex parser
type FallbackReason string

const (
	FallbackNone         FallbackReason = ""
	FallbackDisabled     FallbackReason = "disabled"
	FallbackUnavailable  FallbackReason = "unavailable"
	FallbackEmpty        FallbackReason = "empty_response"
	FallbackNoJSON       FallbackReason = "no_json"
	FallbackInvalidJSON  FallbackReason = "invalid_json"
	FallbackGeneratorErr FallbackReason = "generator_error"
)

// Parsed is the outcome of intent parsing. Intent is always well formed.
type Parsed struct {
	Source   Source
	Intent   types.QueryIntent
	Fallback FallbackReason
}

// Generator sends a prompt to a language model and returns its text
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Parser turns a raw query into intent
type Parser interface {
	Parse(ctx context.Context, query string) Parsed
}

const promptTemplate = `Parse the following email search query and extract key information.
Query: %q

Respond with ONLY a JSON object, no prose and no markdown, with exactly these keys:
{
    "is_count_query": true or false,
    "subject_filter": string or null,
    "sender_filter": string or null,
    "folder_filter": string or null,
    "body_filter": string or null,
    "date_filter": string or null,
    "language_detection": string,
    "query_type": "count" or "search"
}

Rules:
- Only set filters that are explicitly or implicitly mentioned in the query. Every other filter MUST be null.
- "language_detection" is the language code of the query, for example "en", "es" or "fr".
- "query_type" is "count" when the query asks for a number of emails, otherwise "search".
- Do NOT include comments of any kind in the JSON.`

// BuildPrompt renders the intent extraction prompt for a query
func BuildPrompt(query string) string {
	return fmt.Sprintf(promptTemplate, query)
}

// jsonCandidates is ordered from most to least specific; the first match wins
var jsonCandidates = []*regexp.Regexp{
	regexp.MustCompile(`(?is)\{\s*(?:"is_count_query"|is_count_query)[\s\S]*\}`),
	regexp.MustCompile(`(?s)\{[\s\S]*"query_type"[\s\S]*\}`),
	regexp.MustCompile(`(?s)\{[\s\S]*\}`),
}

// ExtractJSON finds the most specific JSON object span in free-form model output
func ExtractJSON(text string) (string, bool) {
	for _, re := range jsonCandidates {
		if span := re.FindString(text); span != "" {
			return span, true
		}
	}
	return "", false
}

// DefaultLLMTimeout bounds a single generate call
const DefaultLLMTimeout = 20 * time.Second

// LLMParser asks a language model for intent and falls back to the regex parser
// on any failure. It never returns an error.
type LLMParser struct {
	generator Generator
	fallback  *RegexParser
	logger    *log.Logger
	timeout   time.Duration
}

// NewLLMParser creates a parser backed by the given generator
func NewLLMParser(generator Generator, logger *log.Logger) *LLMParser {
	return &LLMParser{
		generator: generator,
		fallback:  NewRegexParser(),
		logger:    logger,
		timeout:   DefaultLLMTimeout,
	}
}

// WithTimeout overrides the bound on the generate call
func (p *LLMParser) WithTimeout(timeout time.Duration) *LLMParser {
	p.timeout = timeout
	return p
}

// Parse interprets a query with the language model, or the regex parser if that fails
func (p *LLMParser) Parse(ctx context.Context, query string) Parsed {
	intent, reason := p.parseWithLLM(ctx, query)
	if reason != FallbackNone {
		p.logger.Info("Falling back to regex-based query parsing", "reason", reason)
		return Parsed{
			Source:   SourceRegex,
			Intent:   p.fallback.Parse(query),
			Fallback: reason,
		}
	}
	p.logger.Debug("Parsed query with language model", "intent", intent)
	return Parsed{Source: SourceLLM, Intent: intent}
}

func (p *LLMParser) parseWithLLM(ctx context.Context, query string) (intent types.QueryIntent, reason FallbackReason) {
	if p.generator == nil {
		return types.QueryIntent{}, FallbackUnavailable
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("Language model parsing panicked", "panic", r)
			intent, reason = types.QueryIntent{}, FallbackGeneratorErr
		}
	}()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := p.generator.Generate(ctx, BuildPrompt(query))
	if err != nil {
		p.logger.Warn("Language model query parsing failed", "error", err, "duration", time.Since(start))
		return types.QueryIntent{}, FallbackGeneratorErr
	}
	if text == "" {
		p.logger.Warn("Language model returned an empty response")
		return types.QueryIntent{}, FallbackEmpty
	}

	span, ok := ExtractJSON(text)
	if !ok {
		p.logger.Warn("No JSON object found in language model response", "response", truncate(text, 200))
		return types.QueryIntent{}, FallbackNoJSON
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(CleanJSON(span)), &raw); err != nil {
		p.logger.Warn("Could not parse JSON from language model response", "error", err, "response", truncate(span, 200))
		return types.QueryIntent{}, FallbackInvalidJSON
	}

	return IntentFromMap(raw), FallbackNone
}

// truncate shortens s to n runes for log output
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
