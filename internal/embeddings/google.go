package embeddings

import (
	"context"
	"fmt"

	"github.com/autotaghq/autotag/internal/googleai"
)

// GoogleClient implements the Client interface using the Gemini embeddings API.
type GoogleClient struct {
	client *googleai.Client
}

// Ensure GoogleClient implements Client interface
var _ Client = (*GoogleClient)(nil)

// NewGoogleClient wraps a googleai.Client as an embedding Client.
func NewGoogleClient(client *googleai.Client) *GoogleClient {
	return &GoogleClient{client: client}
}

// GetEmbedding generates an embedding vector for the given text.
func (c *GoogleClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.client.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	return vec, nil
}

// GetEmbeddings generates embedding vectors for multiple texts in a batch.
func (c *GoogleClient) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := c.client.CreateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	return vecs, nil
}
