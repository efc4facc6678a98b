package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/PabloGalante/haven-agent/internal/domain"
)

// Turn is one entry of the model-side history.
type Turn struct {
	Sender domain.Sender
	Text   string
}

// completer runs one stateless completion over a full history.
type completer interface {
	complete(ctx context.Context, system string, history []Turn) (string, error)
}

// chatSession keeps the history for one conversation. A turn only enters the
// history once the model answered it.
type chatSession struct {
	mu         sync.Mutex
	system     string
	history    []Turn
	generation uint64
	c          completer
}

var _ domain.ChatSession = (*chatSession)(nil)

func newChatSession(c completer, system string) *chatSession {
	return &chatSession{c: c, system: system}
}

func (s *chatSession) SendTurn(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	gen := s.generation
	history := make([]Turn, len(s.history), len(s.history)+1)
	copy(history, s.history)
	s.mu.Unlock()

	history = append(history, Turn{Sender: domain.SenderUser, Text: prompt})

	reply, err := s.c.complete(ctx, s.system, history)
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "", fmt.Errorf("model returned empty text")
	}

	s.mu.Lock()
	// a reset while the call was in flight wins
	if gen == s.generation {
		s.history = append(history, Turn{Sender: domain.SenderAgent, Text: reply})
	}
	s.mu.Unlock()

	return reply, nil
}

func (s *chatSession) ResetSession() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = nil
	s.generation++
}

// History returns a copy of the committed turns.
func (s *chatSession) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}
