package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicCompleter sends prompts to the Anthropic Messages API.
type AnthropicCompleter struct {
	client    anthropic.Client
	maxTokens int
}

// NewAnthropicCompleter creates a new AnthropicCompleter. Extra options
// (base URL, HTTP client) are passed through to the SDK client.
func NewAnthropicCompleter(apiKey string, maxTokens int, opts ...option.RequestOption) *AnthropicCompleter {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	return &AnthropicCompleter{
		client:    anthropic.NewClient(opts...),
		maxTokens: maxTokens,
	}
}

// Complete sends prompt as a single user message and returns the concatenated text blocks.
func (c *AnthropicCompleter) Complete(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	// Extract text from content blocks
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	return sb.String(), nil
}
