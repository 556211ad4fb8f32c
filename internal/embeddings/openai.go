package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures any OpenAI-compatible embeddings endpoint
// (OpenAI, OpenRouter, LM Studio, Ollama's /v1)
type OpenAIConfig struct {
	APIKey        string
	Endpoint      string
	ModelName     string
	Timeout       time.Duration
	RetryAttempts uint
	Prefixes      Prefixes
	Logger        *log.Logger
}

func NewOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Endpoint:      "https://api.openai.com/v1",
		Timeout:       defaultTimeout,
		RetryAttempts: defaultRetryAttempts,
	}
}

func (c OpenAIConfig) WithAPIKey(apiKey string) OpenAIConfig {
	c.APIKey = apiKey
	return c
}
func (c OpenAIConfig) WithEndpoint(endpoint string) OpenAIConfig {
	c.Endpoint = endpoint
	return c
}
func (c OpenAIConfig) WithModelName(modelName string) OpenAIConfig {
	c.ModelName = modelName
	return c
}
func (c OpenAIConfig) WithTimeout(timeout time.Duration) OpenAIConfig {
	c.Timeout = timeout
	return c
}
func (c OpenAIConfig) WithRetryAttempts(attempts uint) OpenAIConfig {
	c.RetryAttempts = attempts
	return c
}
func (c OpenAIConfig) WithPrefixes(prefixes Prefixes) OpenAIConfig {
	c.Prefixes = prefixes
	return c
}
func (c OpenAIConfig) WithLogger(logger *log.Logger) OpenAIConfig {
	c.Logger = logger
	return c
}

func (c OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	if c.RetryAttempts == 0 {
		return fmt.Errorf("retry attempts must be greater than 0")
	}
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

type OpenAIProvider struct {
	config OpenAIConfig
	client *openai.Client
	logger *log.Logger
}

func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg := openai.DefaultConfig(config.APIKey)
	cfg.BaseURL = config.Endpoint
	return &OpenAIProvider{
		config: config,
		client: openai.NewClientWithConfig(cfg),
		logger: config.Logger,
	}, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, p.config.Prefixes.Document+text)
}

func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, p.config.Prefixes.Query+text)
}

func (p *OpenAIProvider) embed(ctx context.Context, input string) ([]float32, error) {
	var embedding []float32
	start := time.Now()
	err := withRetry(ctx, p.logger, p.config.Endpoint, p.config.RetryAttempts, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
		resp, err := p.client.CreateEmbeddings(reqCtx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(p.config.ModelName),
			Input: []string{input},
		})
		if err != nil {
			return fmt.Errorf("failed to create embeddings: %w", err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return fmt.Errorf("empty embedding returned from server")
		}
		embedding = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	p.logger.Debug("Generated embedding", "text_length", len(input), "embedding_length", len(embedding), "model", p.config.ModelName, "duration", time.Since(start))
	return embedding, nil
}

func (p *OpenAIProvider) ModelName() string {
	return p.config.ModelName
}
