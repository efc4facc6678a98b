package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PabloGalante/haven-agent/internal/domain"
)

// MockLLM is a deterministic offline model for local runs and tests.
// Classification is keyword based.
type MockLLM struct{}

var _ domain.LLMClient = (*MockLLM)(nil)

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) StartChat(systemPrompt string) domain.ChatSession {
	return newChatSession(m, systemPrompt)
}

func (m *MockLLM) complete(_ context.Context, _ string, history []Turn) (string, error) {
	last := history[len(history)-1].Text
	if i := strings.LastIndex(last, "] "); i >= 0 {
		last = last[i+2:]
	}
	return fmt.Sprintf("I hear you. You said %q. Tell me a little more about how that feels.", last), nil
}

var mockKeywords = []struct {
	words  []string
	theme  domain.Theme
	target string
}{
	{words: []string{"angry", "furious", "rage", "mad"}, theme: domain.ThemeSimplicity, target: "Dragon Flyer"},
	{words: []string{"anxious", "overthinking", "stressed"}, theme: domain.ThemeSimplicity, target: "Crystal Race"},
	{words: []string{"sad", "grief", "lost"}, theme: domain.ThemeSimplicity, target: "Magic Paint"},
	{words: []string{"complicated", "messy", "relationship", "everything"}, theme: domain.ThemeComplexity},
	{words: []string{"tomorrow", "meeting", "interview", "boss", "yesterday"}, theme: domain.ThemeSpecificity},
}

var mockYes = []string{"yes", "yeah", "sure", "ok", "okay", "let's", "please", "why not"}

func (m *MockLLM) GenerateJSON(_ context.Context, prompt string) (string, error) {
	text := strings.ToLower(quotedTail(prompt))

	if strings.Contains(prompt, `"confirmed"`) {
		confirmed := false
		for _, w := range mockYes {
			if strings.Contains(text, w) {
				confirmed = true
				break
			}
		}
		return marshal(map[string]any{"confirmed": confirmed})
	}

	for _, k := range mockKeywords {
		for _, w := range k.words {
			if strings.Contains(text, w) {
				out := map[string]any{"theme": k.theme}
				if k.target != "" {
					out["targetGame"] = k.target
				}
				return marshal(out)
			}
		}
	}
	return marshal(map[string]any{"theme": domain.ThemeUnclear})
}

// quotedTail returns the user text, which prompts put last.
func quotedTail(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if i := strings.LastIndex(prompt, ": "); i >= 0 {
		return prompt[i+2:]
	}
	return prompt
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
