package speech

import (
	"time"

	"github.com/PabloGalante/haven-agent/internal/domain"
)

// SessionVoice is the speaker of one session together with the way its host
// reports finished playbacks.
type SessionVoice struct {
	*Speaker
	ended func(id domain.PlaybackID) bool
}

// NewSessionVoice plays through host events. The host reports back when it
// is done playing a clip.
func NewSessionVoice(
	synth Synthesizer,
	sessionID domain.SessionID,
	publisher domain.EventPublisher,
	synthTimeout time.Duration,
	maxDuration time.Duration,
) *SessionVoice {
	player := NewEventPlayer(sessionID, publisher, maxDuration)
	return &SessionVoice{
		Speaker: NewSpeaker(synth, player, synthTimeout),
		ended:   player.Ended,
	}
}

// NewFileVoice writes every clip to dir.
func NewFileVoice(synth Synthesizer, dir string, onSave func(path string), synthTimeout time.Duration) *SessionVoice {
	return &SessionVoice{
		Speaker: NewSpeaker(synth, NewFilePlayer(dir, onSave), synthTimeout),
		ended:   func(domain.PlaybackID) bool { return false },
	}
}

// Ended marks playback id as finished by the host.
func (v *SessionVoice) Ended(id domain.PlaybackID) bool {
	return v.ended(id)
}
