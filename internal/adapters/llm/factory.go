package llm

import (
	"context"
	"fmt"

	"github.com/PabloGalante/haven-agent/internal/config"
	"github.com/PabloGalante/haven-agent/internal/domain"
)

// NewClient builds the configured provider wrapped in a circuit breaker.
func NewClient(ctx context.Context, cfg config.LLMConfig) (domain.LLMClient, error) {
	var (
		client domain.LLMClient
		err    error
	)

	switch cfg.Provider {
	case config.ProviderMock:
		return NewMockLLM(), nil
	case config.ProviderGemini, "":
		client, err = NewGeminiClient(ctx, cfg)
	case config.ProviderOpenAI:
		client, err = NewOpenAIClient(cfg)
	case config.ProviderAnthropic:
		client, err = NewAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewResilient(client, DefaultBreakerConfig()), nil
}
