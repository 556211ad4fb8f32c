package commands

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/lox/email-vector-engine/internal/intent"
	"github.com/lox/email-vector-engine/internal/llm"
	"github.com/lox/email-vector-engine/internal/search"
)

// GeneratorFactory returns a factory building a generator for the configured
// backend with each call's model and endpoint
func GeneratorFactory(config LLMConfig, logger *log.Logger) (search.GeneratorFactory, error) {
	switch config.LLMProvider {
	case "", "ollama":
		return func(_ context.Context, model, endpoint string) (intent.Generator, error) {
			return llm.NewOllamaGenerator(llm.NewOllamaConfig().
				WithURL(endpoint).
				WithModelName(model).
				WithTimeout(config.LLMTimeout).
				WithLogger(logger))
		}, nil

	case "openai":
		if config.LLMAPIKey == "" {
			return nil, fmt.Errorf("llm api key is required when using the openai backend")
		}
		return func(_ context.Context, model, endpoint string) (intent.Generator, error) {
			cfg := llm.NewOpenAIConfig().
				WithAPIKey(config.LLMAPIKey).
				WithModelName(model).
				WithTimeout(config.LLMTimeout).
				WithLogger(logger)
			// the Ollama generate URL is meaningless to an OpenAI client
			if endpoint != "" && endpoint != search.DefaultEndpoint {
				cfg = cfg.WithEndpoint(endpoint)
			}
			return llm.NewOpenAIGenerator(cfg)
		}, nil

	case "openrouter":
		if config.LLMAPIKey == "" {
			return nil, fmt.Errorf("llm api key is required when using the openrouter backend")
		}
		return func(_ context.Context, model, endpoint string) (intent.Generator, error) {
			cfg := llm.NewOpenAIConfig().
				WithAPIKey(config.LLMAPIKey).
				WithEndpoint(llm.OpenRouterEndpoint).
				WithModelName(model).
				WithTimeout(config.LLMTimeout).
				WithLogger(logger)
			if endpoint != "" && endpoint != search.DefaultEndpoint {
				cfg = cfg.WithEndpoint(endpoint)
			}
			return llm.NewToolCallGenerator(cfg, llm.DefaultToolCallMaxAttempts)
		}, nil

	case "gemini":
		if config.LLMGeminiKey == "" {
			return nil, fmt.Errorf("gemini api key is required when using the gemini backend")
		}
		// the client lives for one parse and is closed by the pipeline afterwards
		return func(ctx context.Context, model, _ string) (intent.Generator, error) {
			if model == "" || model == search.DefaultModel {
				model = llm.DefaultGeminiModel
			}
			return llm.NewGeminiGenerator(ctx, llm.NewGeminiConfig().
				WithAPIKey(config.LLMGeminiKey).
				WithModelName(model).
				WithTimeout(config.LLMTimeout).
				WithLogger(logger))
		}, nil

	default:
		return nil, fmt.Errorf("unknown llm provider: %s", config.LLMProvider)
	}
}

// Pipeline builds the search pipeline shared by the CLI, HTTP API and MCP server
func Pipeline(embedding EmbeddingConfig, llmConfig LLMConfig, logger *log.Logger, opts ...search.Option) (*search.Pipeline, func(), error) {
	provider, err := SetupEmbeddingProvider(context.Background(), embedding, logger)
	if err != nil {
		return nil, nil, err
	}
	factory, err := GeneratorFactory(llmConfig, logger)
	if err != nil {
		CloseEmbeddingProvider(provider, logger)
		return nil, nil, err
	}

	opts = append([]search.Option{
		search.WithGeneratorFactory(factory),
		search.WithLLMTimeout(llmConfig.LLMTimeout),
	}, opts...)
	p := search.NewPipeline(logger, IndexConnector(provider, logger), opts...)
	return p, func() { CloseEmbeddingProvider(provider, logger) }, nil
}

// DefaultRequest builds a search request template from flags
func DefaultRequest(index IndexConfig, llmConfig LLMConfig, limit int) search.Request {
	return search.Request{
		IndexPath:     index.DBPath,
		Collection:    index.CollectionName,
		UseLLMParsing: llmConfig.UseLLM,
		Model:         llmConfig.LLMModel,
		Endpoint:      llmConfig.LLMURL,
		Limit:         limit,
	}
}
