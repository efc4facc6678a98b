package domain

// Message is a single transcript entry. It is never mutated after creation.
type Message struct {
	ID        MessageID
	SessionID SessionID
	Sender    Sender
	Text      string
	CreatedAt Timestamp
}

// Session holds the host-visible settings of one conversation.
type Session struct {
	ID        SessionID
	CreatedAt Timestamp
	UpdatedAt Timestamp

	SidebarMode  SidebarMode
	VoiceEnabled bool
}

// Canonical agent texts shown in the transcript.
const (
	GreetingText      = "Hey What's up?"
	ResetGreetingText = "Chat reset. How can I help you now?"
	ApologyText       = "I'm sorry, I encountered an error responding to that."
	ModelUnavailable  = "Error: Could not connect to AI service. Please check API key."
	VoiceUnavailable  = "Error: Voice output is unavailable. Please check the speech API key."
)
