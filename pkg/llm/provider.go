package llm

import "context"

// Provider is the text-completion contract the pipeline depends on.
// No streaming, no function calling: a system instruction plus a turn
// history in, opaque text out. Implementations handle protocol details
// such as request formatting and authentication.
type Provider interface {
	// Invoke sends the instruction and turns and returns the model's reply.
	Invoke(ctx context.Context, system string, turns []Message) (string, error)
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}
