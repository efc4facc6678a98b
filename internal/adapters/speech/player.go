package speech

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/PabloGalante/haven-agent/internal/domain"
)

// EventPlayer hands clips to the host over the event stream. Playback ends
// when the host reports it, when it is cancelled, or after maxDuration.
type EventPlayer struct {
	sessionID   domain.SessionID
	publisher   domain.EventPublisher
	maxDuration time.Duration
	now         func() time.Time

	mu    sync.Mutex
	ended map[domain.PlaybackID]chan struct{}
}

var _ Player = (*EventPlayer)(nil)

func NewEventPlayer(sessionID domain.SessionID, publisher domain.EventPublisher, maxDuration time.Duration) *EventPlayer {
	if maxDuration <= 0 {
		maxDuration = 2 * time.Minute
	}
	return &EventPlayer{
		sessionID:   sessionID,
		publisher:   publisher,
		maxDuration: maxDuration,
		now:         time.Now,
		ended:       make(map[domain.PlaybackID]chan struct{}),
	}
}

func (p *EventPlayer) Play(ctx context.Context, id domain.PlaybackID, clip Clip) error {
	ch := make(chan struct{})
	p.mu.Lock()
	p.ended[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.ended, id)
		p.mu.Unlock()
	}()

	p.publisher.Publish(p.sessionID, domain.Event{
		Type:       domain.EventSpeechStart,
		SessionID:  p.sessionID,
		PlaybackID: id,
		Audio:      clip.Audio,
		MimeType:   clip.MimeType,
		CreatedAt:  p.now(),
	})

	timer := time.NewTimer(p.maxDuration)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		p.publisher.Publish(p.sessionID, domain.Event{
			Type:       domain.EventSpeechStop,
			SessionID:  p.sessionID,
			PlaybackID: id,
			CreatedAt:  p.now(),
		})
		return ctx.Err()
	}
}

// Ended is called when the host finished playing id. Unknown ids are ignored.
func (p *EventPlayer) Ended(id domain.PlaybackID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.ended[id]
	if !ok {
		return false
	}
	close(ch)
	delete(p.ended, id)
	return true
}

// FilePlayer writes each clip to a directory. Used by the terminal chat.
type FilePlayer struct {
	dir    string
	onSave func(path string)
}

var _ Player = (*FilePlayer)(nil)

func NewFilePlayer(dir string, onSave func(path string)) *FilePlayer {
	return &FilePlayer{dir: dir, onSave: onSave}
}

func (p *FilePlayer) Play(ctx context.Context, id domain.PlaybackID, clip Clip) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("creating audio dir: %w", err)
	}
	path := filepath.Join(p.dir, string(id)+extFor(clip.MimeType))
	if err := os.WriteFile(path, clip.Audio, 0o644); err != nil {
		return fmt.Errorf("writing audio: %w", err)
	}
	if p.onSave != nil {
		p.onSave(path)
	}
	return nil
}

func extFor(mime string) string {
	switch mime {
	case "audio/mpeg":
		return ".mp3"
	case "audio/pcm":
		return ".pcm"
	default:
		return ".bin"
	}
}
