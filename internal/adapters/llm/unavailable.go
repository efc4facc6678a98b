package llm

import (
	"context"
	"fmt"

	"github.com/PabloGalante/haven-agent/internal/domain"
)

// Unavailable stands in for a model that failed to initialize. Every call
// fails with the initialization error.
type Unavailable struct {
	Err error
}

var _ domain.LLMClient = Unavailable{}

func (u Unavailable) StartChat(string) domain.ChatSession { return unavailableChat(u) }

func (u Unavailable) GenerateJSON(context.Context, string) (string, error) {
	return "", fmt.Errorf("model unavailable: %w", u.Err)
}

type unavailableChat Unavailable

func (u unavailableChat) SendTurn(context.Context, string) (string, error) {
	return "", fmt.Errorf("model unavailable: %w", u.Err)
}

func (unavailableChat) ResetSession() {}
