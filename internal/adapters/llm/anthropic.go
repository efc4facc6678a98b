package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/PabloGalante/haven-agent/internal/config"
	"github.com/PabloGalante/haven-agent/internal/domain"
)

type AnthropicClient struct {
	client *anthropic.Client
	model  anthropic.Model
}

var _ domain.LLMClient = (*AnthropicClient)(nil)

func NewAnthropicClient(cfg config.LLMConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", domain.ErrMissingCredential)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	model := anthropic.ModelClaudeSonnet4_5_20250929
	if cfg.Model != "" {
		model = anthropic.Model(cfg.Model)
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(cfg.APIKey),
	)

	return &AnthropicClient{client: &client, model: model}, nil
}

func (a *AnthropicClient) StartChat(systemPrompt string) domain.ChatSession {
	return newChatSession(a, systemPrompt)
}

func (a *AnthropicClient) complete(ctx context.Context, system string, history []Turn) (string, error) {
	msgs := make([]anthropic.MessageParam, 0, len(history))
	for _, t := range history {
		if t.Sender == domain.SenderAgent {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Text)))
			continue
		}
		msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
	}
	return a.send(ctx, system, msgs, 4096)
}

func (a *AnthropicClient) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return a.send(ctx, "Reply with a single JSON object and nothing else.", []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}, 512)
}

func (a *AnthropicClient) send(ctx context.Context, system string, msgs []anthropic.MessageParam, maxTokens int64) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String(), nil
}
