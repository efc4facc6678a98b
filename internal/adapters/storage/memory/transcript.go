package memory

import (
	"sync"

	"github.com/PabloGalante/haven-agent/internal/domain"
)

// Transcript is the ordered message list of one session.
// Messages are only appended, or all replaced by a single greeting on Reset.
type Transcript struct {
	mu       sync.RWMutex
	messages []*domain.Message
}

// NewTranscript returns a transcript seeded with the given messages.
func NewTranscript(initial ...*domain.Message) *Transcript {
	t := &Transcript{}
	t.messages = append(t.messages, initial...)
	return t
}

func (t *Transcript) Append(msg *domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = append(t.messages, msg)
}

// Reset replaces everything with exactly one greeting message.
func (t *Transcript) Reset(greeting *domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = []*domain.Message{greeting}
}

// Messages returns the last limit messages in order. limit <= 0 returns all.
func (t *Transcript) Messages(limit int) []*domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	msgs := t.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the most recent message, or nil.
func (t *Transcript) Last() *domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.messages) == 0 {
		return nil
	}
	return t.messages[len(t.messages)-1]
}
