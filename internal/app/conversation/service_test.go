package conversation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/haven-agent/internal/adapters/llm"
	"github.com/PabloGalante/haven-agent/internal/app/classifier"
	"github.com/PabloGalante/haven-agent/internal/app/conversation"
	"github.com/PabloGalante/haven-agent/internal/app/events"
	"github.com/PabloGalante/haven-agent/internal/app/tools"
	"github.com/PabloGalante/haven-agent/internal/domain"
)

func newService(t *testing.T, mutate func(*conversation.Config)) *conversation.Service {
	t.Helper()

	catalog, err := tools.Default()
	require.NoError(t, err)

	model := llm.NewMockLLM()
	cfg := conversation.Config{
		LLM:          model,
		Classifier:   classifier.NewGateway(model, catalog, time.Second),
		Catalog:      catalog,
		Hub:          events.NewHub(16),
		SystemPrompt: llm.SystemPrompt,
		MaxSessions:  8,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	svc, err := conversation.NewService(cfg)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func start(t *testing.T, svc *conversation.Service, in conversation.StartSessionInput) *domain.Session {
	t.Helper()
	out, err := svc.StartSession(context.Background(), in)
	require.NoError(t, err)
	require.NotEmpty(t, out.Session.ID)
	return out.Session
}

func send(t *testing.T, svc *conversation.Service, id domain.SessionID, text string) *conversation.SendMessageOutput {
	t.Helper()
	out, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{SessionID: id, Text: text})
	require.NoError(t, err)
	return out
}

func nextEvent(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "event stream closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return domain.Event{}
	}
}

func TestStartSessionAndSendMessage(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)

	out, err := svc.StartSession(ctx, conversation.StartSessionInput{})
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, domain.GreetingText, out.Messages[0].Text)

	reply := send(t, svc, out.Session.ID, "Hello Haven")
	require.NotNil(t, reply.AgentMessage)
	assert.NotEmpty(t, reply.AgentMessage.Text)
	assert.False(t, reply.ModelFailed)

	tl, err := svc.GetSessionTimeline(ctx, out.Session.ID, 0)
	require.NoError(t, err)
	assert.Len(t, tl.Messages, 3)
	assert.False(t, tl.Busy)
}

func TestGameSuggestionFlow(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	sess := start(t, svc, conversation.StartSessionInput{})

	ch, cancel, err := svc.Subscribe(sess.ID)
	require.NoError(t, err)
	defer cancel()

	proposed := send(t, svc, sess.ID, "I'm so angry at my friend")
	require.NotNil(t, proposed.Proposed)
	assert.Equal(t, domain.PendingSuggestion{Kind: domain.KindGame, Target: "Dragon Flyer"}, *proposed.Proposed)
	assert.Equal(t, domain.PhaseAwaitingConfirmation, proposed.Suggestion.Phase())

	confirmed := send(t, svc, sess.ID, "yes")
	require.NotNil(t, confirmed.Activated)
	assert.Equal(t, domain.PhaseResolved, confirmed.Suggestion.Phase())

	evt := nextEvent(t, ch)
	assert.Equal(t, domain.EventActivate, evt.Type)
	assert.Equal(t, domain.KindGame, evt.Kind)
	assert.Equal(t, "Dragon Flyer", evt.Target)

	tl, err := svc.GetSessionTimeline(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.True(t, tl.Suggestion.HasActedOnTheme)
	assert.Equal(t, domain.SidebarNone, tl.Session.SidebarMode)
}

func TestModeActivationSwitchesSidebar(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	sess := start(t, svc, conversation.StartSessionInput{})

	send(t, svc, sess.ID, "everything with my family is messy")
	send(t, svc, sess.ID, "sure")

	tl, err := svc.GetSessionTimeline(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.SidebarMindMap, tl.Session.SidebarMode)
}

func TestDeclineReturnsToIdle(t *testing.T) {
	svc := newService(t, nil)
	sess := start(t, svc, conversation.StartSessionInput{})

	send(t, svc, sess.ID, "I'm so angry at my friend")
	out := send(t, svc, sess.ID, "no thanks")

	assert.Nil(t, out.Activated)
	assert.Equal(t, domain.PhaseIdle, out.Suggestion.Phase())
}

func TestFollowUpEventAfterConfirm(t *testing.T) {
	svc := newService(t, func(c *conversation.Config) { c.FollowUpDelay = 10 * time.Millisecond })
	sess := start(t, svc, conversation.StartSessionInput{})
	ch, cancel, err := svc.Subscribe(sess.ID)
	require.NoError(t, err)
	defer cancel()

	send(t, svc, sess.ID, "I'm so angry")
	send(t, svc, sess.ID, "yes")

	assert.Equal(t, domain.EventActivate, nextEvent(t, ch).Type)
	assert.Equal(t, domain.EventFollowUpCheck, nextEvent(t, ch).Type)
}

func TestResetSession(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	sess := start(t, svc, conversation.StartSessionInput{})
	send(t, svc, sess.ID, "I'm so angry")

	greeting, err := svc.ResetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ResetGreetingText, greeting.Text)

	tl, err := svc.GetSessionTimeline(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, tl.Messages, 1)
	assert.Equal(t, domain.SuggestionState{}, tl.Suggestion)
}

func TestModelUnavailableIsVisible(t *testing.T) {
	initErr := errors.New("no api key")
	svc := newService(t, func(c *conversation.Config) {
		c.LLM = llm.Unavailable{Err: initErr}
		c.LLMErr = initErr
		c.Classifier = classifier.NewGateway(c.LLM, c.Catalog, time.Second)
	})

	out, err := svc.StartSession(context.Background(), conversation.StartSessionInput{})
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, domain.ModelUnavailable, out.Messages[1].Text)

	reply := send(t, svc, out.Session.ID, "I'm so angry")
	assert.True(t, reply.ModelFailed)
	assert.Equal(t, domain.ApologyText, reply.AgentMessage.Text)
	assert.Equal(t, domain.PhaseIdle, reply.Suggestion.Phase())
}

func TestVoiceUnavailable(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, func(c *conversation.Config) { c.SpeechErr = domain.ErrMissingCredential })

	out, err := svc.StartSession(ctx, conversation.StartSessionInput{VoiceEnabled: true})
	require.NoError(t, err)
	assert.False(t, out.Session.VoiceEnabled)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, domain.VoiceUnavailable, out.Messages[1].Text)

	_, err = svc.SetVoice(ctx, out.Session.ID, true)
	assert.ErrorIs(t, err, domain.ErrVoiceUnavailable)

	tl, err := svc.GetSessionTimeline(ctx, out.Session.ID, 0)
	require.NoError(t, err)
	assert.Len(t, tl.Messages, 2, "notice is shown once")
}

type fakeVoice struct {
	mu      sync.Mutex
	spoken  []string
	ended   []domain.PlaybackID
	closed  bool
	playing bool
}

func (f *fakeVoice) Speak(_ context.Context, text string) (domain.PlaybackID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	f.playing = true
	return "pb-1", nil
}

func (f *fakeVoice) Stop(domain.PlaybackID) {}

func (f *fakeVoice) StopAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
}

func (f *fakeVoice) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeVoice) Ended(id domain.PlaybackID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, id)
	f.playing = false
	return id == "pb-1"
}

func (f *fakeVoice) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func TestVoiceEnabledSpeaksReplies(t *testing.T) {
	ctx := context.Background()
	voice := &fakeVoice{}
	svc := newService(t, func(c *conversation.Config) {
		c.Speakers = func(domain.SessionID, domain.EventPublisher) conversation.SessionSpeaker { return voice }
	})
	sess := start(t, svc, conversation.StartSessionInput{VoiceEnabled: true})
	require.True(t, sess.VoiceEnabled)

	out := send(t, svc, sess.ID, "hello")
	assert.Equal(t, domain.PlaybackID("pb-1"), out.PlaybackID)

	tl, err := svc.GetSessionTimeline(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.True(t, tl.Speaking)

	ok, err := svc.SpeechEnded(ctx, sess.ID, "pb-1")
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := svc.SetVoice(ctx, sess.ID, false)
	require.NoError(t, err)
	assert.False(t, rec.VoiceEnabled)

	require.NoError(t, svc.EndSession(ctx, sess.ID))
	voice.mu.Lock()
	assert.True(t, voice.closed)
	voice.mu.Unlock()
}

func TestSidebarModeFeedsPrefix(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	sess := start(t, svc, conversation.StartSessionInput{})

	rec, err := svc.SetSidebarMode(ctx, sess.ID, domain.SidebarVisualizer)
	require.NoError(t, err)
	assert.Equal(t, domain.SidebarVisualizer, rec.SidebarMode)

	mode := domain.SidebarGameSelection
	_, err = svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: sess.ID, Text: "hi", SidebarMode: &mode})
	require.NoError(t, err)

	tl, err := svc.GetSessionTimeline(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.SidebarGameSelection, tl.Session.SidebarMode)
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)

	_, err := svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: "nope", Text: "hi"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = svc.ResetSession(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, _, err = svc.Subscribe("nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, svc.EndSession(ctx, "nope"), domain.ErrSessionNotFound)
}

func TestEmptyMessageRejected(t *testing.T) {
	svc := newService(t, nil)
	sess := start(t, svc, conversation.StartSessionInput{})

	_, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{SessionID: sess.ID, Text: "  "})
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
}

func TestEvictionTearsDownOldestSession(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, func(c *conversation.Config) { c.MaxSessions = 1 })

	first := start(t, svc, conversation.StartSessionInput{})
	ch, _, err := svc.Subscribe(first.ID)
	require.NoError(t, err)

	second := start(t, svc, conversation.StartSessionInput{})

	_, err = svc.GetSessionTimeline(ctx, first.ID, 0)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, open := <-ch
	assert.False(t, open)

	_, err = svc.GetSessionTimeline(ctx, second.ID, 0)
	assert.NoError(t, err)
}

func TestMindMapOperations(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, nil)
	sess := start(t, svc, conversation.StartSessionInput{})

	view, err := svc.MindMap(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, view.Nodes, 1)
	root := view.Nodes[0]
	assert.True(t, root.IsRoot)

	child, err := svc.AddMindMapNode(ctx, sess.ID, "")
	require.NoError(t, err)
	assert.Equal(t, root.X+150, child.X)

	text := "Work"
	x := 42.0
	updated, err := svc.UpdateMindMapNode(ctx, sess.ID, child.ID, conversation.MindMapPatch{Text: &text, X: &x})
	require.NoError(t, err)
	assert.Equal(t, "Work", updated.Text)
	assert.Equal(t, 42.0, updated.X)
	assert.Equal(t, child.Y, updated.Y)

	view, err = svc.MindMap(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, view.Segments, 1)

	assert.ErrorIs(t, svc.DeleteMindMapNode(ctx, sess.ID, root.ID), domain.ErrRootNode)
	require.NoError(t, svc.DeleteMindMapNode(ctx, sess.ID, child.ID))
	_, err = svc.UpdateMindMapNode(ctx, sess.ID, child.ID, conversation.MindMapPatch{Text: &text})
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

// blockingLLM classifies like the mock but holds every chat turn until release is closed.
type blockingLLM struct {
	*llm.MockLLM
	started chan struct{}
	release chan struct{}
}

func newBlockingLLM() *blockingLLM {
	return &blockingLLM{
		MockLLM: llm.NewMockLLM(),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (b *blockingLLM) StartChat(string) domain.ChatSession { return &blockingChat{b} }

type blockingChat struct{ b *blockingLLM }

func (c *blockingChat) SendTurn(ctx context.Context, _ string) (string, error) {
	select {
	case c.b.started <- struct{}{}:
	default:
	}
	select {
	case <-c.b.release:
		return "late reply", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *blockingChat) ResetSession() {}

func newBlockingService(t *testing.T) (*conversation.Service, *blockingLLM) {
	t.Helper()
	model := newBlockingLLM()
	svc := newService(t, func(c *conversation.Config) {
		c.LLM = model
		c.Classifier = classifier.NewGateway(model, c.Catalog, time.Second)
	})
	return svc, model
}

func TestResetDuringTurnReportsDiscarded(t *testing.T) {
	ctx := context.Background()
	svc, model := newBlockingService(t)
	sess := start(t, svc, conversation.StartSessionInput{})

	errs := make(chan error, 1)
	go func() {
		_, err := svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: sess.ID, Text: "hello"})
		errs <- err
	}()
	<-model.started

	greeting, err := svc.ResetSession(ctx, sess.ID)
	require.NoError(t, err)
	close(model.release)

	assert.ErrorIs(t, <-errs, domain.ErrTurnDiscarded)

	tl, err := svc.GetSessionTimeline(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, tl.Messages, 1)
	assert.Equal(t, greeting.ID, tl.Messages[0].ID)
	assert.False(t, tl.Busy)

	reply := send(t, svc, sess.ID, "hello again")
	assert.Equal(t, "late reply", reply.AgentMessage.Text)
}

func TestRejectedSendKeepsSidebarMode(t *testing.T) {
	ctx := context.Background()
	svc, model := newBlockingService(t)
	sess := start(t, svc, conversation.StartSessionInput{SidebarMode: domain.SidebarVisualizer})
	mindMap := domain.SidebarMindMap

	_, err := svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: sess.ID, Text: " ", SidebarMode: &mindMap})
	require.ErrorIs(t, err, domain.ErrEmptyMessage)

	errs := make(chan error, 1)
	go func() {
		_, err := svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: sess.ID, Text: "first"})
		errs <- err
	}()
	<-model.started

	_, err = svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: sess.ID, Text: "second", SidebarMode: &mindMap})
	require.ErrorIs(t, err, domain.ErrTurnInProgress)

	tl, err := svc.GetSessionTimeline(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.SidebarVisualizer, tl.Session.SidebarMode)

	close(model.release)
	require.NoError(t, <-errs)
}

func TestSubscribeUnknownSessionLeavesNoSubscriber(t *testing.T) {
	hub := events.NewHub(4)
	svc := newService(t, func(c *conversation.Config) { c.Hub = hub })

	_, _, err := svc.Subscribe("nope")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Zero(t, hub.Subscribers("nope"))

	sess := start(t, svc, conversation.StartSessionInput{})
	ch, _, err := svc.Subscribe(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers(sess.ID))

	require.NoError(t, svc.EndSession(context.Background(), sess.ID))
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, hub.Subscribers(sess.ID))

	_, _, err = svc.Subscribe(sess.ID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Zero(t, hub.Subscribers(sess.ID))
}
