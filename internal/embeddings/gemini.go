package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "text-embedding-004"

// GeminiConfig holds configuration for Gemini text embeddings
type GeminiConfig struct {
	APIKey        string
	ModelName     string
	RetryAttempts uint
	Logger        *log.Logger
}

func NewGeminiConfig() GeminiConfig {
	return GeminiConfig{
		ModelName:     DefaultGeminiModel,
		RetryAttempts: defaultRetryAttempts,
	}
}

func (c GeminiConfig) WithAPIKey(apiKey string) GeminiConfig {
	c.APIKey = apiKey
	return c
}
func (c GeminiConfig) WithModelName(modelName string) GeminiConfig {
	c.ModelName = modelName
	return c
}
func (c GeminiConfig) WithRetryAttempts(attempts uint) GeminiConfig {
	c.RetryAttempts = attempts
	return c
}
func (c GeminiConfig) WithLogger(logger *log.Logger) GeminiConfig {
	c.Logger = logger
	return c
}

func (c GeminiConfig) Validate() error {
	switch {
	case c.APIKey == "":
		return fmt.Errorf("gemini api key is required")
	case c.ModelName == "":
		return fmt.Errorf("model name is required")
	case c.RetryAttempts == 0:
		return fmt.Errorf("retry attempts must be greater than 0")
	case c.Logger == nil:
		return fmt.Errorf("logger is required")
	}
	return nil
}

// GeminiProvider embeds with Gemini's retrieval task types: emails are stored
// as RETRIEVAL_DOCUMENT and searches are sent as RETRIEVAL_QUERY
type GeminiProvider struct {
	config   GeminiConfig
	client   *genai.Client
	document *genai.EmbeddingModel
	query    *genai.EmbeddingModel
	logger   *log.Logger
}

func NewGeminiProvider(ctx context.Context, config GeminiConfig) (*GeminiProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{
		config:   config,
		client:   client,
		document: taskModel(client, config.ModelName, genai.TaskTypeRetrievalDocument),
		query:    taskModel(client, config.ModelName, genai.TaskTypeRetrievalQuery),
		logger:   config.Logger,
	}, nil
}

func taskModel(client *genai.Client, name string, task genai.TaskType) *genai.EmbeddingModel {
	m := client.EmbeddingModel(name)
	m.TaskType = task
	return m
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, p.document, text)
}

func (p *GeminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, p.query, text)
}

func (p *GeminiProvider) embed(ctx context.Context, model *genai.EmbeddingModel, text string) ([]float32, error) {
	var values []float32
	start := time.Now()
	err := withRetry(ctx, p.logger, "gemini", p.config.RetryAttempts, func() error {
		result, err := model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return err
		}
		if result == nil || result.Embedding == nil || len(result.Embedding.Values) == 0 {
			return fmt.Errorf("no embedding returned from Gemini API")
		}
		values = result.Embedding.Values
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get Gemini %v embedding: %w", model.TaskType, err)
	}
	p.logger.Debug("Generated Gemini embedding", "task", model.TaskType, "text_length", len(text), "duration", time.Since(start))
	return values, nil
}

func (p *GeminiProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func (p *GeminiProvider) ModelName() string {
	return p.config.ModelName
}
