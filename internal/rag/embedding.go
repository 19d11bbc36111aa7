// Package rag gives the game master long-term narrative memory: log
// entries are embedded and stored in Qdrant, then recalled by semantic
// similarity when resolving later rounds.
package rag

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"StoryLoom/server/internal/config"
)

// EmbeddingService turns text into vectors via the OpenAI embeddings
// API.
type EmbeddingService struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewEmbeddingService builds a service from the OpenAI config section.
func NewEmbeddingService(cfg config.OpenAIConfig) *EmbeddingService {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &EmbeddingService{
		client: openai.NewClientWithConfig(clientCfg),
		model:  openai.EmbeddingModel(cfg.EmbeddingModel),
	}
}

// Embed returns one vector per input text, in input order.
func (s *EmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: s.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}
