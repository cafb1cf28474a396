// Package googleai provides a thin wrapper around the Google Gen AI SDK (Gemini API)
// for chat completions and embeddings.
package googleai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrEmptyInput is returned when an embedding call receives empty input.
	ErrEmptyInput = errors.New("googleai: input text is empty")
	// ErrEmptyPrompt is returned when Complete is called with an empty prompt.
	ErrEmptyPrompt = errors.New("googleai: prompt is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("googleai: embedding dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("googleai: no embedding in response")
	// ErrNoCandidatesInResponse is returned when the API response contains no candidates.
	ErrNoCandidatesInResponse = errors.New("googleai: no candidates in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("googleai: embedding dimension mismatch")
)

const (
	defaultDimension    = 1536
	defaultModel        = "gemini-embedding-001"
	defaultChatModel    = "gemini-2.0-flash"
	defaultTemperature  = 0.5
	defaultTopP         = 0.6
	defaultMaxOutTokens = 500
)

// Client calls the Gemini API via the Google Gen AI SDK.
type Client struct {
	client      *genai.Client
	model       string
	chatModel   string
	dimensions  int
	temperature float32
	topP        float32
	maxTokens   int32
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithDimensions sets the requested embedding dimension (must match DB column).
func WithDimensions(dim int) ClientOption {
	return func(c *Client) {
		c.dimensions = dim
	}
}

// WithModel sets the embedding model name (e.g. gemini-embedding-001). Empty uses default.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithChatModel sets the chat model name (e.g. gemini-2.0-flash). Empty uses default.
func WithChatModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.chatModel = model
		}
	}
}

// WithSampling sets temperature and top_p for completions.
func WithSampling(temperature, topP float32) ClientOption {
	return func(c *Client) {
		c.temperature = temperature
		c.topP = topP
	}
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("googleai client: %w", err)
	}

	client := &Client{
		client:      genaiClient,
		model:       defaultModel,
		chatModel:   defaultChatModel,
		dimensions:  defaultDimension,
		temperature: defaultTemperature,
		topP:        defaultTopP,
		maxTokens:   defaultMaxOutTokens,
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Complete sends the prompt as a single user message and returns the model's text response.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.chatModel, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		TopP:            genai.Ptr(c.topP),
		MaxOutputTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", ErrNoCandidatesInResponse
	}

	return resp.Text(), nil
}

// CreateEmbedding returns the embedding vector for the given text using the configured model.
// The returned slice length equals the configured dimensions when OutputDimensionality is supported.
func (c *Client) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	out, err := c.CreateEmbeddings(ctx, []string{input})
	if err != nil {
		return nil, err
	}

	return out[0], nil
}

// CreateEmbeddings returns embedding vectors for the given texts in one request.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInput
	}

	if c.dimensions <= 0 || c.dimensions > math.MaxInt32 {
		return nil, ErrInvalidDims
	}

	model := c.model
	if model == "" {
		model = defaultModel
	}

	contents := make([]*genai.Content, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			return nil, ErrEmptyInput
		}

		contents = append(contents, genai.NewContentFromText(input, genai.RoleUser))
	}

	//nolint:gosec // G115: c.dimensions is bounded above by math.MaxInt32
	dimInt32 := int32(c.dimensions)

	resp, err := c.client.Models.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dimInt32,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedding: %w", err)
	}

	if len(resp.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrNoEmbeddingInResponse, len(resp.Embeddings), len(inputs))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if len(emb.Values) != c.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb.Values), c.dimensions)
		}

		vec := make([]float32, len(emb.Values))
		copy(vec, emb.Values)
		out[i] = vec
	}

	return out, nil
}
