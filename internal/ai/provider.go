package ai

import (
	"context"
	"fmt"

	"resumeopt/internal/config"
	"resumeopt/internal/errors"
)

// Prompt is one JSON generation request.
type Prompt struct {
	Operation   string
	System      string
	User        string
	Temperature *float32
}

// Completion is the raw model reply before fence stripping and validation.
type Completion struct {
	Text  string
	Model string
	Usage *TokenUsage
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// Provider generates JSON text for a prompt. Implementations make exactly one
// upstream call per invocation; retry and circuit breaking live in the caller.
type Provider interface {
	GenerateJSON(ctx context.Context, prompt Prompt) (*Completion, error)
	Name() string
	Close() error
}

// NewProvider creates the provider selected by the operation config.
func NewProvider(ctx context.Context, cfg config.OperationAIConfig, baseURL string) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewConfigError(errors.ErrCodeMissingAPIKey,
			fmt.Sprintf("no API key configured for provider %s", cfg.Provider), nil)
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, cfg)
	case config.ProviderOpenRouter:
		return NewOpenRouterProvider(cfg, baseURL), nil
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported AI provider: %s", cfg.Provider), nil)
	}
}
