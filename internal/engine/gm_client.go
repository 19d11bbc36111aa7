// Package engine implements the AI game master: a thin retrying client
// over the OpenAI chat API plus the narrator and scenario generator
// built on top of it.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"StoryLoom/server/internal/config"
)

const (
	maxRetries = 3
	retryDelay = 1 * time.Second

	defaultMaxTokens   = 1200
	defaultTemperature = 0.8
)

// GMClient wraps the OpenAI client with bounded retries. All game
// master text runs through it.
type GMClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewGMClient builds a client from the OpenAI config section.
func NewGMClient(cfg config.OpenAIConfig) *GMClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	return &GMClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.TextModel,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
	}
}

// Chat sends a prompt and returns the raw completion text.
func (c *GMClient) Chat(ctx context.Context, system, prompt string) (string, error) {
	return c.complete(ctx, system, prompt, nil)
}

// ChatJSON sends a prompt with the JSON response format enforced. The
// model is still free to wrap output in markdown fences; callers parse
// with StripFences.
func (c *GMClient) ChatJSON(ctx context.Context, system, prompt string) (string, error) {
	format := &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}
	return c.complete(ctx, system, prompt, format)
}

func (c *GMClient) complete(ctx context.Context, system, prompt string, format *openai.ChatCompletionResponseFormat) (string, error) {
	messages := []openai.ChatCompletionMessage{}
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:          c.model,
		Messages:       messages,
		MaxTokens:      c.maxTokens,
		Temperature:    c.temperature,
		ResponseFormat: format,
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay * time.Duration(attempt)):
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			if !isRetryable(err) {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no choices returned from model")
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("chat completion failed after %d attempts: %w", maxRetries, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503")
}
