package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PabloGalante/haven-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/haven-agent/internal/app/agentflow"
	"github.com/PabloGalante/haven-agent/internal/app/events"
	"github.com/PabloGalante/haven-agent/internal/app/mindmap"
	"github.com/PabloGalante/haven-agent/internal/app/tools"
	"github.com/PabloGalante/haven-agent/internal/domain"
	"github.com/PabloGalante/haven-agent/internal/observability"
)

// SessionSpeaker is the voice of one session.
type SessionSpeaker interface {
	domain.Speaker
	// Ended reports that the host finished playing id.
	Ended(id domain.PlaybackID) bool
	Close()
}

// SpeakerFactory builds the voice of a new session.
type SpeakerFactory func(sessionID domain.SessionID, publisher domain.EventPublisher) SessionSpeaker

type Config struct {
	LLM domain.LLMClient
	// LLMErr is the model initialization failure, if any. Sessions still
	// start, and their transcript shows it.
	LLMErr     error
	Classifier domain.ThemeClassifier
	Catalog    *tools.Catalog
	Hub        *events.Hub

	// Speakers is nil when speech could not be initialized. SpeechErr says why.
	Speakers  SpeakerFactory
	SpeechErr error

	SystemPrompt      string
	MaxSessions       int
	CompletionTimeout time.Duration
	FollowUpDelay     time.Duration
}

type session struct {
	orch       *agentflow.Orchestrator
	transcript *memory.Transcript
	voice      SessionSpeaker
	mindMap    *mindmap.Graph
}

type Service struct {
	cfg        Config
	store      *memory.SessionStore
	hub        *events.Hub
	dispatcher *tools.Dispatcher
	now        func() time.Time
	newID      func() string

	mu      sync.Mutex
	running map[domain.SessionID]*session
}

func NewService(cfg Config) (*Service, error) {
	if cfg.LLM == nil || cfg.Classifier == nil || cfg.Catalog == nil {
		return nil, errors.New("conversation: LLM, classifier and catalog are required")
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1024
	}
	if cfg.Hub == nil {
		cfg.Hub = events.NewHub(0)
	}

	s := &Service{
		cfg:     cfg,
		hub:     cfg.Hub,
		now:     time.Now,
		newID:   uuid.NewString,
		running: make(map[domain.SessionID]*session),
	}

	store, err := memory.NewSessionStore(cfg.MaxSessions, s.teardown)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.dispatcher = tools.NewDispatcher(cfg.Catalog, cfg.Hub, s.onModeActivated)
	return s, nil
}

type StartSessionInput struct {
	SidebarMode  domain.SidebarMode
	VoiceEnabled bool
}

type StartSessionOutput struct {
	Session  *domain.Session
	Messages []*domain.Message
}

func (s *Service) StartSession(ctx context.Context, in StartSessionInput) (*StartSessionOutput, error) {
	now := s.now()
	id := domain.SessionID(s.newID())

	log := observability.LoggerFromContext(ctx).With(zap.String("session_id", string(id)))
	log.Info("starting new session", zap.Bool("voice", in.VoiceEnabled))

	rec := &domain.Session{
		ID:          id,
		CreatedAt:   now,
		UpdatedAt:   now,
		SidebarMode: in.SidebarMode,
	}

	transcript := memory.NewTranscript(s.message(id, domain.GreetingText))
	if s.cfg.LLMErr != nil {
		log.Warn("model unavailable for session", zap.Error(s.cfg.LLMErr))
		transcript.Append(s.message(id, domain.ModelUnavailable))
	}

	var voice SessionSpeaker
	if s.cfg.Speakers != nil {
		voice = s.cfg.Speakers(id, s.hub)
	} else if in.VoiceEnabled {
		log.Warn("voice unavailable for session", zap.Error(s.cfg.SpeechErr))
		transcript.Append(s.message(id, domain.VoiceUnavailable))
	}
	rec.VoiceEnabled = in.VoiceEnabled && voice != nil

	deps := agentflow.Deps{
		SessionID:  id,
		Classifier: s.cfg.Classifier,
		Chat:       s.cfg.LLM.StartChat(s.cfg.SystemPrompt),
		Catalog:    s.cfg.Catalog,
		Transcript: transcript,
		Navigator:  s.dispatcher.Navigator(tools.ToolContext{SessionID: id}),
		OnFollowUp: func() { s.followUp(id) },
	}
	// A nil SessionSpeaker must stay a nil interface for the orchestrator.
	if voice != nil {
		deps.Speaker = voice
	}

	orch, err := agentflow.New(deps, agentflow.Config{
		CompletionTimeout: s.cfg.CompletionTimeout,
		FollowUpDelay:     s.cfg.FollowUpDelay,
		VoiceEnabled:      rec.VoiceEnabled,
	})
	if err != nil {
		if voice != nil {
			voice.Close()
		}
		return nil, fmt.Errorf("building orchestrator: %w", err)
	}

	s.mu.Lock()
	s.running[id] = &session{
		orch:       orch,
		transcript: transcript,
		voice:      voice,
		mindMap:    mindmap.NewGraph(),
	}
	s.mu.Unlock()

	// May evict the least recently used session, which takes s.mu.
	if err := s.store.CreateSession(rec); err != nil {
		log.Error("failed to create session", zap.Error(err))
		s.teardown(rec)
		return nil, err
	}

	log.Info("session started")
	return &StartSessionOutput{Session: rec, Messages: transcript.Messages(0)}, nil
}

type SendMessageInput struct {
	SessionID domain.SessionID
	Text      string
	// SidebarMode, when set, replaces the stored mode once the turn is accepted.
	SidebarMode *domain.SidebarMode
}

type SendMessageOutput struct {
	UserMessage  *domain.Message
	AgentMessage *domain.Message
	Suggestion   domain.SuggestionState
	Proposed     *domain.PendingSuggestion
	Activated    *domain.PendingSuggestion
	ModelFailed  bool
	PlaybackID   domain.PlaybackID
}

func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageOutput, error) {
	rec, sess, err := s.lookup(in.SessionID)
	if err != nil {
		return nil, err
	}

	log := observability.LoggerFromContext(ctx).With(
		zap.String("session_id", string(rec.ID)),
		zap.String("sidebar_mode", string(rec.SidebarMode)),
	)
	log.Info("sending message", zap.Int("text_len", len(in.Text)))

	mode := rec.SidebarMode
	if in.SidebarMode != nil {
		mode = *in.SidebarMode
	}

	res, err := sess.orch.HandleTurn(ctx, agentflow.TurnInput{
		Text:        in.Text,
		SidebarMode: mode,
	})
	if err != nil {
		log.Warn("turn rejected", zap.Error(err))
		return nil, err
	}

	// The override sticks once the turn ran, unless the turn itself switched
	// the sidebar through the navigator.
	if cur, err := s.store.GetSession(rec.ID); err == nil {
		if in.SidebarMode != nil && (res.Activated == nil || res.Activated.Kind != domain.KindMode) {
			cur.SidebarMode = mode
		}
		cur.UpdatedAt = s.now()
		if err := s.store.UpdateSession(cur); err != nil {
			log.Warn("failed to update session", zap.Error(err))
		}
	}

	if res.Discarded {
		log.Info("turn discarded by reset")
		return nil, domain.ErrTurnDiscarded
	}

	log.Info("send message completed",
		zap.Bool("model_failed", res.ModelFailed),
		zap.String("phase", string(res.Suggestion.Phase())),
	)

	return &SendMessageOutput{
		UserMessage:  res.UserMessage,
		AgentMessage: res.AgentMessage,
		Suggestion:   res.Suggestion,
		Proposed:     res.Proposed,
		Activated:    res.Activated,
		ModelFailed:  res.ModelFailed,
		PlaybackID:   res.PlaybackID,
	}, nil
}

// ResetSession clears the transcript, the suggestion state and the model
// history, and stops any playback. It returns the new greeting.
func (s *Service) ResetSession(ctx context.Context, id domain.SessionID) (*domain.Message, error) {
	_, sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	greeting := sess.orch.Reset()
	observability.LoggerFromContext(ctx).Info("session reset", zap.String("session_id", string(id)))
	return greeting, nil
}

// SetVoice turns spoken replies on or off. Enabling voice on a session
// without speech appends the unavailable notice and returns ErrVoiceUnavailable.
func (s *Service) SetVoice(ctx context.Context, id domain.SessionID, enabled bool) (*domain.Session, error) {
	rec, sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	if err := sess.orch.SetVoice(enabled); err != nil {
		if errors.Is(err, domain.ErrVoiceUnavailable) && !s.noticeShown(sess) {
			sess.transcript.Append(s.message(id, domain.VoiceUnavailable))
		}
		observability.LoggerFromContext(ctx).Warn("voice not enabled",
			zap.String("session_id", string(id)), zap.Error(s.cfg.SpeechErr))
		return nil, err
	}

	rec.VoiceEnabled = enabled
	rec.UpdatedAt = s.now()
	if err := s.store.UpdateSession(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) noticeShown(sess *session) bool {
	for _, m := range sess.transcript.Messages(0) {
		if m.Sender == domain.SenderAgent && m.Text == domain.VoiceUnavailable {
			return true
		}
	}
	return false
}

func (s *Service) SetSidebarMode(ctx context.Context, id domain.SessionID, mode domain.SidebarMode) (*domain.Session, error) {
	rec, _, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	rec.SidebarMode = mode
	rec.UpdatedAt = s.now()
	if err := s.store.UpdateSession(rec); err != nil {
		return nil, err
	}
	observability.LoggerFromContext(ctx).Debug("sidebar mode changed",
		zap.String("session_id", string(id)), zap.String("mode", string(mode)))
	return rec, nil
}

// Timeline is a read-only view of a session.
type Timeline struct {
	Session    *domain.Session
	Messages   []*domain.Message
	Suggestion domain.SuggestionState
	Busy       bool
	Speaking   bool
}

func (s *Service) GetSessionTimeline(ctx context.Context, id domain.SessionID, limit int) (*Timeline, error) {
	log := observability.LoggerFromContext(ctx).With(
		zap.String("session_id", string(id)),
		zap.Int("limit", limit),
	)

	rec, sess, err := s.lookup(id)
	if err != nil {
		log.Warn("failed to get session", zap.Error(err))
		return nil, err
	}

	tl := &Timeline{
		Session:    rec,
		Messages:   sess.transcript.Messages(limit),
		Suggestion: sess.orch.Suggestion(),
		Busy:       sess.orch.Busy(),
	}
	if sess.voice != nil {
		tl.Speaking = sess.voice.IsPlaying()
	}

	log.Debug("fetched session timeline", zap.Int("message_count", len(tl.Messages)))
	return tl, nil
}

// SpeechEnded is called by the host when it finished playing a clip.
// It reports false for unknown or already finished playbacks.
func (s *Service) SpeechEnded(_ context.Context, id domain.SessionID, playback domain.PlaybackID) (bool, error) {
	_, sess, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	if sess.voice == nil {
		return false, nil
	}
	return sess.voice.Ended(playback), nil
}

// EndSession tears a session down and closes its event subscribers.
func (s *Service) EndSession(ctx context.Context, id domain.SessionID) error {
	if err := s.store.DeleteSession(id); err != nil {
		return err
	}
	observability.LoggerFromContext(ctx).Info("session ended", zap.String("session_id", string(id)))
	return nil
}

// Subscribe streams the host events of a session. The subscription is made
// before the lookup, so a teardown racing it still closes the channel.
func (s *Service) Subscribe(id domain.SessionID) (<-chan domain.Event, func(), error) {
	ch, cancel := s.hub.Subscribe(id)
	if _, _, err := s.lookup(id); err != nil {
		cancel()
		return nil, nil, err
	}
	return ch, cancel, nil
}

// Close ends every session.
func (s *Service) Close() {
	s.store.Purge()
}

func (s *Service) lookup(id domain.SessionID) (*domain.Session, *session, error) {
	rec, err := s.store.GetSession(id)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	sess, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	return rec, sess, nil
}

// teardown runs when a session leaves the registry, by delete or eviction.
func (s *Service) teardown(rec *domain.Session) {
	s.mu.Lock()
	sess, ok := s.running[rec.ID]
	delete(s.running, rec.ID)
	s.mu.Unlock()

	if ok {
		sess.orch.Close()
		if sess.voice != nil {
			sess.voice.Close()
		}
	}
	s.hub.CloseSession(rec.ID)
	observability.WithFields(zap.String("session_id", string(rec.ID))).Info("session torn down")
}

func (s *Service) onModeActivated(id domain.SessionID, mode domain.SidebarMode) {
	rec, err := s.store.GetSession(id)
	if err != nil {
		return
	}
	rec.SidebarMode = mode
	rec.UpdatedAt = s.now()
	_ = s.store.UpdateSession(rec)
}

func (s *Service) followUp(id domain.SessionID) {
	s.hub.Publish(id, domain.Event{
		Type:      domain.EventFollowUpCheck,
		SessionID: id,
		CreatedAt: s.now(),
	})
}

func (s *Service) message(id domain.SessionID, text string) *domain.Message {
	return &domain.Message{
		ID:        domain.MessageID(s.newID()),
		SessionID: id,
		Sender:    domain.SenderAgent,
		Text:      text,
		CreatedAt: s.now(),
	}
}
