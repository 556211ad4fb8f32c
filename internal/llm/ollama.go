// Package llm provides text generation backends used for query understanding.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultOllamaURL   = "http://localhost:11434/api/generate"
	DefaultOllamaModel = "llama3.1:latest"
	DefaultTimeout     = 20 * time.Second
)

// OllamaConfig holds configuration for an Ollama generate endpoint
type OllamaConfig struct {
	URL       string // full generate URL, e.g. http://localhost:11434/api/generate
	ModelName string
	Timeout   time.Duration
	Logger    *log.Logger
}

func NewOllamaConfig() OllamaConfig {
	return OllamaConfig{
		URL:       DefaultOllamaURL,
		ModelName: DefaultOllamaModel,
		Timeout:   DefaultTimeout,
	}
}

func (c OllamaConfig) WithURL(url string) OllamaConfig {
	c.URL = url
	return c
}
func (c OllamaConfig) WithModelName(modelName string) OllamaConfig {
	c.ModelName = modelName
	return c
}
func (c OllamaConfig) WithTimeout(timeout time.Duration) OllamaConfig {
	c.Timeout = timeout
	return c
}
func (c OllamaConfig) WithLogger(logger *log.Logger) OllamaConfig {
	c.Logger = logger
	return c
}

func (c OllamaConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("ollama URL is required")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// OllamaGenerator calls Ollama's non-streaming generate API
type OllamaGenerator struct {
	config     OllamaConfig
	httpClient *http.Client
	logger     *log.Logger
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

func NewOllamaGenerator(config OllamaConfig) (*OllamaGenerator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &OllamaGenerator{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger,
	}, nil
}

// Generate sends a single prompt and returns the model's response text. No retries.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	jsonBody, err := json.Marshal(ollamaGenerateRequest{
		Model:  g.config.ModelName,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.URL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	g.logger.Info("Querying Ollama", "model", g.config.ModelName, "url", g.config.URL)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to query ollama (%s at %s): %w", g.config.ModelName, g.config.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama (%s at %s) returned status %d: %s", g.config.ModelName, g.config.URL, resp.StatusCode, body)
	}

	var out ollamaGenerateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	g.logger.Debug("Received response from Ollama", "response_length", len(out.Response), "duration", time.Since(start))
	return out.Response, nil
}
