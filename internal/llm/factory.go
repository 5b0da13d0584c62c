package llm

import (
	"fmt"
	"strings"

	"github.com/Veraticus/riskdesk/internal/common"
)

// NewClient creates a raw provider client. A missing credential or unknown
// provider is reported once here as a *common.ConfigError.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newOpenAIClient(cfg)
	case "anthropic":
		return newAnthropicClient(cfg)
	case "gemini", "google":
		return newGeminiClient(cfg)
	case "":
		return nil, common.NewConfigError("llm", fmt.Errorf("no provider configured"))
	default:
		return nil, common.NewConfigError("llm", fmt.Errorf("unsupported LLM provider: %s", cfg.Provider))
	}
}

// New creates a provider client wrapped in a Guard configured from cfg.
func New(cfg Config) (*Guard, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewGuard(client, GuardOptions{
		Name:      strings.ToLower(cfg.Provider),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		CacheTTL:  cfg.CacheTTL,
	}), nil
}
