// Package classifier runs the side-channel classification calls that drive
// the suggestion flow. Calls are single-shot and never see the chat history.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PabloGalante/haven-agent/internal/app/tools"
	"github.com/PabloGalante/haven-agent/internal/domain"
	"github.com/PabloGalante/haven-agent/internal/observability"
)

// ErrMalformedResponse is returned when the model output is not the expected JSON.
var ErrMalformedResponse = errors.New("malformed classification response")

// JSONGenerator is the part of domain.LLMClient the gateway needs.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

type Gateway struct {
	gen     JSONGenerator
	catalog *tools.Catalog
	timeout time.Duration
}

var _ domain.ThemeClassifier = (*Gateway)(nil)

// NewGateway builds a gateway. A zero timeout disables the per-call bound.
func NewGateway(gen JSONGenerator, catalog *tools.Catalog, timeout time.Duration) *Gateway {
	return &Gateway{gen: gen, catalog: catalog, timeout: timeout}
}

type themeResponse struct {
	Theme           string `json:"theme"`
	TargetMode      string `json:"targetMode"`
	EmotionCategory string `json:"emotionCategory"`
	TargetGame      string `json:"targetGame"`
}

type confirmationResponse struct {
	Confirmed *bool `json:"confirmed"`
}

// ClassifyTheme labels text. Any failure is logged and reported as ThemeNone.
func (g *Gateway) ClassifyTheme(ctx context.Context, text string) domain.ThemeClassification {
	log := observability.LoggerFromContext(ctx)
	start := time.Now()

	raw, err := g.call(ctx, buildThemePrompt(g.catalog, text))
	if err != nil {
		log.Warn("theme classification failed", zap.Error(err))
		return domain.ThemeClassification{}
	}

	var resp themeResponse
	if err := decode(raw, &resp); err != nil {
		log.Warn("theme classification unreadable", zap.Error(err), zap.String("raw", raw))
		return domain.ThemeClassification{}
	}

	out := g.normalize(resp)
	log.Debug("theme classified",
		zap.String("theme", string(out.Theme)),
		zap.String("target_game", out.TargetGame),
		zap.String("target_mode", string(out.TargetMode)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return out
}

// ClassifyConfirmation reports whether text accepts the pending suggestion.
func (g *Gateway) ClassifyConfirmation(ctx context.Context, text string, pending domain.PendingSuggestion) (bool, error) {
	raw, err := g.call(ctx, buildConfirmationPrompt(g.catalog, pending, text))
	if err != nil {
		return false, fmt.Errorf("confirmation classification: %w", err)
	}

	var resp confirmationResponse
	if err := decode(raw, &resp); err != nil {
		return false, fmt.Errorf("confirmation classification: %w", err)
	}
	if resp.Confirmed == nil {
		return false, fmt.Errorf("confirmation classification: %w: missing confirmed field", ErrMalformedResponse)
	}
	return *resp.Confirmed, nil
}

func (g *Gateway) call(ctx context.Context, prompt string) (string, error) {
	if g.gen == nil {
		return "", fmt.Errorf("no model configured: %w", domain.ErrMissingCredential)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return g.gen.GenerateJSON(ctx, prompt)
}

// normalize keeps the result inside the documented shape: one of the known
// themes, and a game only for Simplicity when the catalog knows it.
func (g *Gateway) normalize(resp themeResponse) domain.ThemeClassification {
	out := domain.ThemeClassification{Theme: domain.ParseTheme(strings.TrimSpace(resp.Theme))}

	switch out.Theme {
	case domain.ThemeSpecificity:
		out.TargetMode = domain.TargetVisualizer
	case domain.ThemeComplexity:
		out.TargetMode = domain.TargetMindMap
	case domain.ThemeSimplicity:
		out.TargetMode = domain.TargetGameSelection
		if game, ok := g.catalog.Game(resp.TargetGame); ok {
			out.TargetGame = game.Name
		} else if game, ok := g.catalog.GameForCategory(resp.EmotionCategory); ok {
			out.TargetGame = game.Name
		}
	}
	return out
}

// decode parses model JSON, tolerating a surrounding markdown fence.
func decode(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if s == "" {
		return fmt.Errorf("%w: empty", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
