// Package speech turns agent replies into audio for the host.
package speech

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PabloGalante/haven-agent/internal/domain"
	"github.com/PabloGalante/haven-agent/internal/observability"
)

// Clip is a synthesized piece of audio.
type Clip struct {
	Audio    []byte
	MimeType string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Clip, error)
}

// Player plays a clip. Play blocks until playback ends or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, id domain.PlaybackID, clip Clip) error
}

type playback struct {
	id     domain.PlaybackID
	cancel context.CancelFunc
	done   chan struct{}
}

// Speaker serializes speech for one session: a new Speak stops the current
// playback, and the next clip only starts once the previous one is gone.
// Failures are logged and never reach the caller.
type Speaker struct {
	synth   Synthesizer
	player  Player
	timeout time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	current *playback
	last    chan struct{}
	wg      sync.WaitGroup
}

var _ domain.Speaker = (*Speaker)(nil)

// NewSpeaker builds a speaker. timeout bounds synthesis, zero means unbounded.
func NewSpeaker(synth Synthesizer, player Player, timeout time.Duration) *Speaker {
	return &Speaker{
		synth:   synth,
		player:  player,
		timeout: timeout,
		log:     observability.Logger(),
	}
}

func (s *Speaker) Speak(ctx context.Context, text string) (domain.PlaybackID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	// playback outlives the request that triggered it
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pb := &playback{
		id:     domain.PlaybackID(uuid.NewString()),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	prev := s.last
	s.current = pb
	s.last = pb.done

	log := observability.LoggerFromContext(ctx).With(zap.String("playback_id", string(pb.id)))

	s.wg.Add(1)
	go s.run(pctx, pb, prev, text, log)

	return pb.id, nil
}

func (s *Speaker) run(ctx context.Context, pb *playback, prev <-chan struct{}, text string, log *zap.Logger) {
	defer s.wg.Done()
	defer close(pb.done)
	defer s.finish(pb)

	synthCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		synthCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	clip, err := s.synth.Synthesize(synthCtx, text)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("speech synthesis failed", zap.Error(err))
		}
		return
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	if err := s.player.Play(ctx, pb.id, clip); err != nil && ctx.Err() == nil {
		log.Warn("speech playback failed", zap.Error(err))
	}
}

func (s *Speaker) finish(pb *playback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pb.cancel()
	if s.current == pb {
		s.current = nil
	}
}

// Stop cancels the playback if it is still the current one.
func (s *Speaker) Stop(id domain.PlaybackID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.id == id {
		s.stopLocked()
	}
}

func (s *Speaker) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Speaker) stopLocked() {
	if s.current == nil {
		return
	}
	s.current.cancel()
	s.current = nil
}

// IsPlaying reports whether a playback is being synthesized or played.
func (s *Speaker) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Close stops everything and waits for background work to end.
func (s *Speaker) Close() {
	s.StopAll()
	s.wg.Wait()
}
