package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/PabloGalante/haven-agent/internal/config"
	"github.com/PabloGalante/haven-agent/internal/domain"
)

type OpenAIClient struct {
	client openai.Client
	model  string
}

var _ domain.LLMClient = (*OpenAIClient)(nil)

func NewOpenAIClient(cfg config.LLMConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", domain.ErrMissingCredential)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(cfg.APIKey),
	)

	return &OpenAIClient{client: client, model: model}, nil
}

func (o *OpenAIClient) StartChat(systemPrompt string) domain.ChatSession {
	return newChatSession(o, systemPrompt)
}

func (o *OpenAIClient) complete(ctx context.Context, system string, history []Turn) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}
	for _, t := range history {
		if t.Sender == domain.SenderAgent {
			msgs = append(msgs, openai.AssistantMessage(t.Text))
			continue
		}
		msgs = append(msgs, openai.UserMessage(t.Text))
	}
	return o.send(ctx, msgs)
}

func (o *OpenAIClient) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return o.send(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("Reply with a single JSON object and nothing else."),
		openai.UserMessage(prompt),
	})
}

func (o *OpenAIClient) send(ctx context.Context, msgs []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(o.model),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
