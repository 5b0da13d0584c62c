package llm

import (
	"context"
	"time"
)

// Client defines the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Request is a single-turn completion request.
type Request struct {
	// Temperature overrides the client default when set. Zero is a valid
	// value and means deterministic decoding.
	Temperature *float64
	System      string
	Prompt      string
	MaxTokens   int
	// JSON asks the provider for a JSON-only response where supported.
	JSON bool
}

// Response contains the provider's text output.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Temperature returns a pointer for Request.Temperature.
func Temperature(t float64) *float64 {
	return &t
}

// Config configures a provider client.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	CacheTTL    time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}
