// Package llm wraps the language-model backend behind a minimal completion
// interface so the workflow core never depends on a concrete provider.
package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Client is an opaque text-completion capability. Each call is a bounded,
// awaitable request; callers treat an in-flight call as uncancellable and
// wait for completion or failure.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GeminiClient completes prompts against the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini-backed client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("llm: creating genai client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Complete sends one prompt and returns the model's text response.
func (c *GeminiClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	config := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), config)
	if err != nil {
		return "", fmt.Errorf("llm: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("llm: empty response from model")
	}
	return text, nil
}
