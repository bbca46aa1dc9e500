package llm

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_generator.go -package=mocks reportrag/internal/llm Generator

import "context"

// Generator produces a completion for a single user prompt.
type Generator interface {
	// Generate returns the full completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)
	// Stream calls fn with each completion fragment as it arrives.
	Stream(ctx context.Context, prompt string, fn func(chunk string) error) error
	// ModelName returns the model identifier used for completions.
	ModelName() string
}
