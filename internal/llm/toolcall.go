package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/exp/slices"
)

const (
	intentToolName             = "record_query_intent"
	DefaultToolCallMaxAttempts = 3
)

var intentTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        intentToolName,
		Description: "Record the structured interpretation of an email search query",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"is_count_query":     map[string]any{"type": "boolean"},
				"subject_filter":     map[string]any{"type": []string{"string", "null"}},
				"sender_filter":      map[string]any{"type": []string{"string", "null"}},
				"folder_filter":      map[string]any{"type": []string{"string", "null"}},
				"body_filter":        map[string]any{"type": []string{"string", "null"}},
				"date_filter":        map[string]any{"type": []string{"string", "null"}},
				"language_detection": map[string]any{"type": "string"},
				"query_type":         map[string]any{"type": "string", "enum": []string{"search", "count"}},
			},
			"required": []string{"is_count_query", "query_type"},
		},
	},
}

// ToolCallGenerator asks an OpenAI-compatible model to answer through a
// function call, feeding validation errors back until the arguments are usable
type ToolCallGenerator struct {
	config      OpenAIConfig
	client      *openai.Client
	maxAttempts int
	logger      *log.Logger
}

func NewToolCallGenerator(config OpenAIConfig, maxAttempts int) (*ToolCallGenerator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultToolCallMaxAttempts
	}
	cfg := openai.DefaultConfig(config.APIKey)
	cfg.BaseURL = config.Endpoint
	return &ToolCallGenerator{
		config:      config,
		client:      openai.NewClientWithConfig(cfg),
		maxAttempts: maxAttempts,
		logger:      config.Logger,
	}, nil
}

// Generate returns the arguments of the first valid intent tool call as JSON text
func (g *ToolCallGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	initial := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}
	var (
		lastArguments string
		lastError     error
		messages      = slices.Clone(initial)
		start         = time.Now()
	)

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		g.logger.Debug("Requesting intent tool call", "model", g.config.ModelName, "attempt", attempt)

		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       g.config.ModelName,
			Messages:    messages,
			Tools:       []openai.Tool{intentTool},
			ToolChoice:  "auto",
			Temperature: 0,
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("failed to create chat completion: %w", err)
			}
			lastError = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastError = fmt.Errorf("no choices in response")
			continue
		}

		message := resp.Choices[0].Message
		if len(message.ToolCalls) == 0 {
			lastError = fmt.Errorf("no tool calls in response")
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: "Respond by calling the " + intentToolName + " function.",
			})
			continue
		}

		call := message.ToolCalls[0]
		lastArguments = call.Function.Arguments
		if err := validateIntentCall(call); err != nil {
			g.logger.Debug("Intent tool call rejected", "arguments", lastArguments, "error", err)
			lastError = err
			messages = append(messages, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleUser,
				Content: "Previous tool call arguments:\n" + lastArguments + "\n" +
					"Error: " + err.Error() + "\n" +
					"Please correct your response using only allowed values.",
			})
			continue
		}

		g.logger.Debug("Received intent tool call", "model", g.config.ModelName, "attempts", attempt, "duration", time.Since(start))
		return lastArguments, nil
	}

	return "", fmt.Errorf("failed to get valid tool call after %d attempts: %w", g.maxAttempts, lastError)
}

func validateIntentCall(call openai.ToolCall) error {
	if call.Function.Name != intentToolName {
		return fmt.Errorf("unexpected tool call: %s", call.Function.Name)
	}
	var args struct {
		QueryType *string `json:"query_type"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if args.QueryType != nil && *args.QueryType != "search" && *args.QueryType != "count" {
		return fmt.Errorf("query_type must be search or count, got %q", *args.QueryType)
	}
	return nil
}
