package domain

import "context"

// LLMClient is the model collaborator. One client is shared by all sessions,
// each session owns its own ChatSession.
type LLMClient interface {
	// StartChat opens a stateful conversation primed with the system prompt.
	StartChat(systemPrompt string) ChatSession
	// GenerateJSON runs a single-shot query outside any chat history and
	// returns the raw JSON text.
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// ChatSession keeps the model-side history of one conversation.
type ChatSession interface {
	SendTurn(ctx context.Context, prompt string) (string, error)
	// ResetSession drops the history and keeps the system prompt.
	ResetSession()
}

// ThemeClassifier runs the side-channel classification calls.
type ThemeClassifier interface {
	// ClassifyTheme never fails. Failures yield ThemeNone.
	ClassifyTheme(ctx context.Context, text string) ThemeClassification
	// ClassifyConfirmation reports whether text accepts the pending suggestion.
	// Callers treat a non-nil error as a refusal.
	ClassifyConfirmation(ctx context.Context, text string, pending PendingSuggestion) (bool, error)
}

// Navigator switches the host to a tool view or game.
type Navigator interface {
	Activate(kind SuggestionKind, target string)
}

// NavigatorFunc adapts a plain function to Navigator.
type NavigatorFunc func(kind SuggestionKind, target string)

func (f NavigatorFunc) Activate(kind SuggestionKind, target string) { f(kind, target) }

// Speaker plays synthesized replies. At most one playback is alive at a time.
type Speaker interface {
	// Speak stops any current playback and starts a new one. It does not
	// wait for synthesis or playback to finish.
	Speak(ctx context.Context, text string) (PlaybackID, error)
	Stop(id PlaybackID)
	StopAll()
	IsPlaying() bool
}

// EventPublisher delivers host events for a session.
type EventPublisher interface {
	Publish(sessionID SessionID, evt Event)
}

// SessionStore keeps session records.
type SessionStore interface {
	CreateSession(session *Session) error
	UpdateSession(session *Session) error
	GetSession(id SessionID) (*Session, error)
	DeleteSession(id SessionID) error
}
