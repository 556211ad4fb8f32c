package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
)

// LlamaCppConfig holds configuration for a llama.cpp server started with --embedding
type LlamaCppConfig struct {
	URL           string
	Timeout       time.Duration
	RetryAttempts uint
	ModelName     string
	Prefixes      Prefixes
	Logger        *log.Logger
}

func NewLlamaCppConfig() LlamaCppConfig {
	return LlamaCppConfig{
		URL:           "http://localhost:8080",
		Timeout:       defaultTimeout,
		RetryAttempts: defaultRetryAttempts,
	}
}

func (c LlamaCppConfig) WithURL(url string) LlamaCppConfig {
	c.URL = url
	return c
}
func (c LlamaCppConfig) WithTimeout(timeout time.Duration) LlamaCppConfig {
	c.Timeout = timeout
	return c
}
func (c LlamaCppConfig) WithRetryAttempts(attempts uint) LlamaCppConfig {
	c.RetryAttempts = attempts
	return c
}
func (c LlamaCppConfig) WithModelName(modelName string) LlamaCppConfig {
	c.ModelName = modelName
	return c
}
func (c LlamaCppConfig) WithPrefixes(prefixes Prefixes) LlamaCppConfig {
	c.Prefixes = prefixes
	return c
}
func (c LlamaCppConfig) WithLogger(logger *log.Logger) LlamaCppConfig {
	c.Logger = logger
	return c
}

func (c LlamaCppConfig) Validate() error {
	switch {
	case c.URL == "":
		return fmt.Errorf("embedding service URL is required")
	case c.Timeout <= 0:
		return fmt.Errorf("timeout must be greater than 0")
	case c.RetryAttempts == 0:
		return fmt.Errorf("retry attempts must be greater than 0")
	case c.ModelName == "":
		return fmt.Errorf("model name is required")
	case c.Logger == nil:
		return fmt.Errorf("logger is required")
	}
	return nil
}

// LlamaCppProvider calls the native /embedding endpoint of llama.cpp's server
type LlamaCppProvider struct {
	config     LlamaCppConfig
	endpoint   string
	httpClient *http.Client
	logger     *log.Logger
}

func NewLlamaCppProvider(config LlamaCppConfig) (*LlamaCppProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	base, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &LlamaCppProvider{
		config:     config,
		endpoint:   base.JoinPath("embedding").String(),
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     config.Logger,
	}, nil
}

func (p *LlamaCppProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, p.config.Prefixes.Document+text)
}

func (p *LlamaCppProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, p.config.Prefixes.Query+text)
}

func (p *LlamaCppProvider) embed(ctx context.Context, content string) ([]float32, error) {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var embedding []float32
	err = withRetry(ctx, p.logger, "llamacpp", p.config.RetryAttempts, func() error {
		body, err := p.post(ctx, payload)
		if err != nil {
			return err
		}
		embedding, err = decodeLlamaCppEmbedding(body)
		if err != nil {
			p.logger.Debug("Unexpected embedding response", "body", string(body), "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	p.logger.Debug("Generated embedding", "text_length", len(content), "embedding_length", len(embedding))
	return embedding, nil
}

func (p *LlamaCppProvider) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding server returned status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

// decodeLlamaCppEmbedding accepts both server formats: the current
// [{"index":0,"embedding":[[...]]}] and the older {"embedding":[...]}
func decodeLlamaCppEmbedding(body []byte) ([]float32, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '{' {
		var single struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if len(single.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding returned from server")
		}
		return single.Embedding, nil
	}

	var pooled []struct {
		Index     int         `json:"index"`
		Embedding [][]float32 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &pooled); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(pooled) == 0 || len(pooled[0].Embedding) == 0 || len(pooled[0].Embedding[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned from server")
	}
	return pooled[0].Embedding[0], nil
}

func (p *LlamaCppProvider) ModelName() string {
	return p.config.ModelName
}
