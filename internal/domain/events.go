package domain

// EventType names a side effect delivered to the host.
type EventType string

const (
	EventActivate      EventType = "activate"
	EventFollowUpCheck EventType = "followup_check"
	EventSpeechStart   EventType = "speech_start"
	EventSpeechStop    EventType = "speech_stop"
	EventNotice        EventType = "notice"
)

// Event is what the host receives on its event stream.
type Event struct {
	Type       EventType      `json:"type"`
	SessionID  SessionID      `json:"session_id"`
	Kind       SuggestionKind `json:"kind,omitempty"`
	Target     string         `json:"target,omitempty"`
	PlaybackID PlaybackID     `json:"playback_id,omitempty"`
	Audio      []byte         `json:"audio,omitempty"`
	MimeType   string         `json:"mime_type,omitempty"`
	Text       string         `json:"text,omitempty"`
	CreatedAt  Timestamp      `json:"created_at"`
}
