package commands

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/lox/email-vector-engine/internal/embeddings"
)

// openAICompatible describes one of the backends reached through go-openai
type openAICompatible struct {
	name     string
	apiKey   string
	endpoint string
	model    string
}

// backend resolves the ollama, lmstudio and openai providers. Ollama and LM
// Studio accept any API key.
func (c EmbeddingConfig) backend() (openAICompatible, error) {
	switch c.Provider {
	case "ollama":
		return openAICompatible{name: "Ollama", apiKey: "ollama", endpoint: c.OllamaEndpoint, model: c.OllamaModel}, nil
	case "lmstudio":
		return openAICompatible{name: "LM Studio", apiKey: "lm-studio", endpoint: c.LMStudioEndpoint, model: c.LMStudioModel}, nil
	case "openai":
		if c.OpenAIAPIKey == "" {
			return openAICompatible{}, fmt.Errorf("openai api key is required when using OpenAI embeddings")
		}
		endpoint := c.OpenAIEndpoint
		if endpoint == "" {
			endpoint = embeddings.NewOpenAIConfig().Endpoint
		}
		return openAICompatible{name: "OpenAI", apiKey: c.OpenAIAPIKey, endpoint: endpoint, model: c.OpenAIModel}, nil
	default:
		return openAICompatible{}, fmt.Errorf("unknown embedding provider: %s", c.Provider)
	}
}

// prefixes returns the task prefixes for model, with explicit flags taking precedence
func (c EmbeddingConfig) prefixes(model string) embeddings.Prefixes {
	if c.NoTaskPrefixes {
		return embeddings.Prefixes{}
	}
	p := embeddings.PrefixesFor(model)
	if c.DocumentPrefix != "" {
		p.Document = c.DocumentPrefix
	}
	if c.QueryPrefix != "" {
		p.Query = c.QueryPrefix
	}
	return p
}

// SetupEmbeddingProvider initializes and returns an embedding provider based on the config
func SetupEmbeddingProvider(ctx context.Context, config EmbeddingConfig, logger *log.Logger) (embeddings.Provider, error) {
	switch config.Provider {
	case "gemini":
		return setupGemini(ctx, config, logger)
	case "llamacpp":
		return setupLlamaCpp(config, logger)
	}

	b, err := config.backend()
	if err != nil {
		return nil, err
	}
	prefixes := config.prefixes(b.model)
	provider, err := embeddings.NewOpenAIProvider(embeddings.NewOpenAIConfig().
		WithAPIKey(b.apiKey).
		WithEndpoint(b.endpoint).
		WithModelName(b.model).
		WithPrefixes(prefixes).
		WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s embedding provider: %w", b.name, err)
	}
	logger.Info("Using "+b.name+" for embeddings", "model", b.model, "endpoint", b.endpoint, "query_prefix", prefixes.Query)
	return provider, nil
}

func setupGemini(ctx context.Context, config EmbeddingConfig, logger *log.Logger) (embeddings.Provider, error) {
	if config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini api key is required when using Gemini embeddings")
	}
	cfg := embeddings.NewGeminiConfig().WithAPIKey(config.GeminiAPIKey).WithLogger(logger)
	if config.GeminiModel != "" {
		cfg = cfg.WithModelName(config.GeminiModel)
	}
	provider, err := embeddings.NewGeminiProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding provider: %w", err)
	}
	logger.Info("Using Gemini API for embeddings", "model", cfg.ModelName)
	return provider, nil
}

func setupLlamaCpp(config EmbeddingConfig, logger *log.Logger) (embeddings.Provider, error) {
	if config.LlamaCppModel == "" {
		return nil, fmt.Errorf("llamacpp model name is required when using LlamaCpp embeddings")
	}
	cfg := embeddings.NewLlamaCppConfig().
		WithModelName(config.LlamaCppModel).
		WithPrefixes(config.prefixes(config.LlamaCppModel)).
		WithLogger(logger)
	if config.LlamaCppURL != "" {
		cfg = cfg.WithURL(config.LlamaCppURL)
	}
	provider, err := embeddings.NewLlamaCppProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LlamaCpp embedding provider: %w", err)
	}
	logger.Info("Using LlamaCpp for embeddings", "model", cfg.ModelName, "url", cfg.URL)
	return provider, nil
}

// CloseEmbeddingProvider closes the provider if it holds resources, logging any failure
func CloseEmbeddingProvider(provider embeddings.Provider, logger *log.Logger) {
	if err := embeddings.Close(provider); err != nil {
		logger.Warn("Failed to close embedding provider", "error", err)
	}
}
