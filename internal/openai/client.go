// Package openai provides a thin wrapper around the official OpenAI Go SDK for chat completions.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

var (
	// ErrEmptyPrompt is returned when Complete is called with an empty prompt.
	ErrEmptyPrompt = errors.New("openai: prompt is empty")
	// ErrNoChoicesInResponse is returned when the API response contains no choices.
	ErrNoChoicesInResponse = errors.New("openai: no choices in response")
)

const (
	defaultModel       = openaisdk.ChatModelGPT4oMini
	defaultTemperature = 0.5
	defaultTopP        = 0.6
	defaultMaxTokens   = 500
)

// Client calls the OpenAI chat completions API via the official SDK.
type Client struct {
	sdk         openaisdk.Client
	model       openaisdk.ChatModel
	temperature float64
	topP        float64
	maxTokens   int64
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithModel sets the chat model name (e.g. gpt-4o-mini). Empty uses default.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = openaisdk.ChatModel(model)
		}
	}
}

// WithSampling sets temperature and top_p for completions.
func WithSampling(temperature, topP float64) ClientOption {
	return func(c *Client) {
		c.temperature = temperature
		c.topP = topP
	}
}

// WithMaxTokens caps the completion length in tokens.
func WithMaxTokens(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = int64(n)
		}
	}
}

// NewClient creates an OpenAI chat client using the official SDK.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		sdk:         openaisdk.NewClient(option.WithAPIKey(apiKey)),
		model:       defaultModel,
		temperature: defaultTemperature,
		topP:        defaultTopP,
		maxTokens:   defaultMaxTokens,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Complete sends the prompt as a single user message and returns the model's text response.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(prompt),
		},
		Temperature:         param.NewOpt(c.temperature),
		TopP:                param.NewOpt(c.topP),
		MaxCompletionTokens: param.NewOpt(c.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesInResponse
	}

	return resp.Choices[0].Message.Content, nil
}
