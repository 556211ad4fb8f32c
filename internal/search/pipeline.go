// Package search runs the email query pipeline: similarity retrieval, intent
// parsing, lexical post-filtering and envelope composition.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/email-vector-engine/internal/intent"
	"github.com/lox/email-vector-engine/internal/types"
)

const (
	DefaultCollection = "outlook_emails"
	DefaultModel      = "llama3.1:latest"
	DefaultEndpoint   = "http://localhost:11434/api/generate"
	DefaultLimit      = 20
)

// GeneratorFactory builds a language model client for one call's model and
// endpoint. ctx is the search request's context.
type GeneratorFactory func(ctx context.Context, model, endpoint string) (intent.Generator, error)

// Observer receives pipeline events, typically for metrics
type Observer interface {
	ObserveSearch(queryType types.QueryType)
	ObserveError(kind string)
	ObserveParse(source intent.Source, reason intent.FallbackReason)
	ObserveRetrieval(d time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveSearch(types.QueryType)                      {}
func (noopObserver) ObserveError(string)                                {}
func (noopObserver) ObserveParse(intent.Source, intent.FallbackReason) {}
func (noopObserver) ObserveRetrieval(time.Duration)                     {}

// Error kinds reported to the Observer
const (
	ErrorKindConnection = "connection"
	ErrorKindRetrieval  = "retrieval"
)

// Request is a single search call. Model and Endpoint are per call so callers
// never share a mutable model selection.
type Request struct {
	Query         string
	IndexPath     string
	Collection    string
	UseLLMParsing bool
	Model         string
	Endpoint      string
	Limit         int
}

func (r Request) withDefaults() Request {
	if r.Collection == "" {
		r.Collection = DefaultCollection
	}
	if r.Model == "" {
		r.Model = DefaultModel
	}
	if r.Endpoint == "" {
		r.Endpoint = DefaultEndpoint
	}
	if r.Limit <= 0 {
		r.Limit = DefaultLimit
	}
	return r
}

// Pipeline holds only immutable collaborators and is safe for concurrent use
type Pipeline struct {
	logger     *log.Logger
	connect    Connector
	generators GeneratorFactory
	observer   Observer
	llmTimeout time.Duration
	regex      *intent.RegexOnly
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithGeneratorFactory enables LLM-assisted parsing for requests that ask for it
func WithGeneratorFactory(f GeneratorFactory) Option {
	return func(p *Pipeline) {
		p.generators = f
	}
}

// WithObserver reports pipeline events to o
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithLLMTimeout bounds the language model call
func WithLLMTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.llmTimeout = d
	}
}

func NewPipeline(logger *log.Logger, connect Connector, opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:     logger,
		connect:    connect,
		observer:   noopObserver{},
		llmTimeout: intent.DefaultLLMTimeout,
		regex:      intent.NewRegexOnly(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run performs exactly one attempt at the search. Only *ConnectionError and
// *RetrievalError are returned; intent parsing problems degrade to regex parsing.
func (p *Pipeline) Run(ctx context.Context, req Request) (types.SearchResult, error) {
	req = req.withDefaults()
	p.logger.Info("Performing search", "query", req.Query, "n_results", req.Limit)

	start := time.Now()
	matches, err := Retrieve(ctx, p.logger, p.connect, req.IndexPath, req.Collection, req.Query, req.Limit)
	p.observer.ObserveRetrieval(time.Since(start))
	if err != nil {
		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			p.observer.ObserveError(ErrorKindConnection)
		} else {
			p.observer.ObserveError(ErrorKindRetrieval)
		}
		return types.SearchResult{}, err
	}

	parser, release := p.parser(ctx, req)
	parsed := parser.Parse(ctx, req.Query)
	release()
	p.observer.ObserveParse(parsed.Source, parsed.Fallback)

	outcome := Apply(matches, parsed.Intent, req.Limit)
	result := Compose(req.Query, parsed.Intent, outcome)
	p.observer.ObserveSearch(result.QueryType)

	p.logger.Info("Search logic complete", "explanation", result.Explanation, "source", parsed.Source)
	return result, nil
}

func (p *Pipeline) parser(ctx context.Context, req Request) (intent.Parser, func()) {
	release := func() {}
	if !req.UseLLMParsing {
		p.logger.Info("Language model parsing disabled, using regex-based parsing")
		return p.regex, release
	}
	if p.generators == nil {
		return intent.NewLLMParser(nil, p.logger), release
	}
	gen, err := p.generators(ctx, req.Model, req.Endpoint)
	if err != nil {
		// an unreachable or misconfigured LLM backend is one more fallback trigger
		p.logger.Warn("Language model unavailable", "model", req.Model, "endpoint", req.Endpoint, "error", err)
		return intent.NewLLMParser(nil, p.logger), release
	}
	if closer, ok := gen.(interface{ Close() error }); ok {
		release = func() {
			if err := closer.Close(); err != nil {
				p.logger.Warn("Failed to close language model client", "error", err)
			}
		}
	}
	return intent.NewLLMParser(gen, p.logger).WithTimeout(p.llmTimeout), release
}

// Describe renders a one line summary of a result, used by log output and the CLI
func Describe(r types.SearchResult) string {
	if r.QueryType == types.QueryTypeCount {
		return fmt.Sprintf("%d matching emails (%d shown)", r.Count, len(r.SearchResults))
	}
	return fmt.Sprintf("%d results", r.Count)
}
