package service

import "context"

// EmbeddingClient generates embedding vectors for text.
// Implemented by provider-specific clients (e.g. OpenAI, Google Gemini).
type EmbeddingClient interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
	GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}
