// Package generators holds the media collaborators: character and
// scene images via the OpenAI image API, opening clips via an external
// video service.
package generators

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"StoryLoom/server/internal/config"
)

// ImageClient generates images and returns hosted URLs.
type ImageClient struct {
	client *openai.Client
	model  string
}

// NewImageClient builds a client from the OpenAI config section.
func NewImageClient(cfg config.OpenAIConfig) *ImageClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.ImageModel
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	return &ImageClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

// GenerateImage renders one image for the prompt and returns its URL.
func (c *ImageClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.model,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("image response contained no URL")
	}
	return resp.Data[0].URL, nil
}
