package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"reportrag/internal/apperr"
	"reportrag/internal/contextutil"
)

// Client talks to an OpenAI-compatible chat completions API (llama.cpp server, vLLM, Ollama).
// It implements Generator.
type Client struct {
	BaseURL string
	Model   string
	client  *openai.Client
	params  Params
}

// NewClient creates a new LLM client. The "/v1" API prefix is appended to baseURL when missing.
func NewClient(baseURL, apiKey, model string, opts ...Option) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = apiBaseURL(baseURL)
	c := &Client{
		BaseURL: baseURL,
		Model:   model,
		client:  openai.NewClientWithConfig(cfg),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func apiBaseURL(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(baseURL, "/v1") {
		return baseURL
	}
	return baseURL + "/v1"
}

// ModelName returns the configured model identifier.
func (c *Client) ModelName() string {
	return c.Model
}

func (c *Client) request(prompt string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.params.MaxTokens,
		Temperature: c.params.Temperature,
		Stream:      stream,
	}
}

// Generate sends prompt as a single user message and returns the first choice.
// Transport and server failures are reported as apperr.ErrModelUnavailable.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(prompt, false))
	if err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "chat completion failed", "model", c.Model, "error", err)
		return "", fmt.Errorf("%w: %s: %w", apperr.ErrModelUnavailable, c.Model, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s: no choices returned", apperr.ErrModelUnavailable, c.Model)
	}

	return resp.Choices[0].Message.Content, nil
}

// Stream sends prompt with streaming enabled and calls fn for each non-empty fragment.
// An error returned by fn stops the stream and is returned wrapped.
func (c *Client) Stream(ctx context.Context, prompt string, fn func(chunk string) error) error {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(prompt, true))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", apperr.ErrModelUnavailable, c.Model, err)
	}
	defer func() {
		_ = stream.Close()
	}()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: failed to read stream: %w", apperr.ErrModelUnavailable, err)
		}

		if len(resp.Choices) == 0 {
			continue
		}
		if chunk := resp.Choices[0].Delta.Content; chunk != "" {
			if err := fn(chunk); err != nil {
				return fmt.Errorf("callback error: %w", err)
			}
		}
		// Check if stream is finished
		if resp.Choices[0].FinishReason != "" {
			return nil
		}
	}
}

// Ping lists the server's models to check that the API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", apperr.ErrModelUnavailable, c.BaseURL, err)
	}
	return nil
}
