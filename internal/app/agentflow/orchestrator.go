package agentflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PabloGalante/haven-agent/internal/app/suggestion"
	"github.com/PabloGalante/haven-agent/internal/app/tools"
	"github.com/PabloGalante/haven-agent/internal/domain"
	"github.com/PabloGalante/haven-agent/internal/observability"
)

// Transcript is the message list an Orchestrator writes to.
type Transcript interface {
	Append(msg *domain.Message)
	Reset(greeting *domain.Message)
	Messages(limit int) []*domain.Message
}

// Deps are the collaborators of one session. Speaker and Navigator may be nil.
type Deps struct {
	SessionID  domain.SessionID
	Classifier domain.ThemeClassifier
	Chat       domain.ChatSession
	Catalog    *tools.Catalog
	Transcript Transcript
	Navigator  domain.Navigator
	Speaker    domain.Speaker
	// OnFollowUp runs once FollowUpDelay after a suggestion is confirmed.
	OnFollowUp func()
}

type Config struct {
	// CompletionTimeout bounds the model call. Zero means no bound.
	CompletionTimeout time.Duration
	FollowUpDelay     time.Duration
	VoiceEnabled      bool
}

// TurnInput is one user submission.
type TurnInput struct {
	Text        string
	SidebarMode domain.SidebarMode
}

// TurnResult describes what a turn did.
type TurnResult struct {
	UserMessage  *domain.Message
	AgentMessage *domain.Message
	// Instruction is the directive prepended to the user's text, if any.
	Instruction string
	// Prompt is exactly what was sent to the model.
	Prompt string
	// Proposed is set when the turn offered a new suggestion.
	Proposed *domain.PendingSuggestion
	// Activated is set when the turn fired a confirmed suggestion.
	Activated *domain.PendingSuggestion
	// ModelFailed is true when the reply is the fixed apology.
	ModelFailed bool
	// Discarded is true when a reset happened during the turn. AgentMessage
	// is nil then.
	Discarded  bool
	PlaybackID domain.PlaybackID
	Suggestion domain.SuggestionState
}

// turnPlan holds the state changes a turn will apply once the model answers.
type turnPlan struct {
	instruction string
	confirm     bool
	decline     bool
	propose     *domain.PendingSuggestion
}

// Orchestrator runs the turns of one session. Turns are single-flight:
// a second HandleTurn while one is running fails with ErrTurnInProgress.
type Orchestrator struct {
	sessionID   domain.SessionID
	classifier  domain.ThemeClassifier
	chat        domain.ChatSession
	catalog     *tools.Catalog
	transcript  Transcript
	navigator   domain.Navigator
	speaker     domain.Speaker
	suggestions *suggestion.Machine
	followUp    *followUpTimer

	completionTimeout time.Duration

	busy  atomic.Bool
	voice atomic.Bool

	// mu orders commits against resets. It is never held across a call
	// to the model or the classifier.
	mu    sync.Mutex
	epoch uint64

	now   func() time.Time
	newID func() string
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Classifier == nil || deps.Chat == nil || deps.Catalog == nil || deps.Transcript == nil {
		return nil, errors.New("agentflow: classifier, chat, catalog and transcript are required")
	}

	machine, err := suggestion.NewMachine()
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		sessionID:         deps.SessionID,
		classifier:        deps.Classifier,
		chat:              deps.Chat,
		catalog:           deps.Catalog,
		transcript:        deps.Transcript,
		navigator:         deps.Navigator,
		speaker:           deps.Speaker,
		suggestions:       machine,
		followUp:          newFollowUpTimer(cfg.FollowUpDelay, deps.OnFollowUp),
		completionTimeout: cfg.CompletionTimeout,
		now:               time.Now,
		newID:             uuid.NewString,
	}
	o.voice.Store(cfg.VoiceEnabled && deps.Speaker != nil)
	return o, nil
}

// HandleTurn runs one user turn end to end.
func (o *Orchestrator) HandleTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, domain.ErrEmptyMessage
	}
	if !o.busy.CompareAndSwap(false, true) {
		return nil, domain.ErrTurnInProgress
	}
	defer o.busy.Store(false)

	log := observability.LoggerFromContext(ctx).With(zap.String("session_id", string(o.sessionID)))
	start := o.now()

	res := &TurnResult{UserMessage: o.message(domain.SenderUser, text)}

	// The user message belongs to the epoch it was appended in.
	o.mu.Lock()
	epoch := o.epoch
	o.transcript.Append(res.UserMessage)
	o.mu.Unlock()

	plan := o.plan(ctx, log, text)
	res.Instruction = plan.instruction
	res.Prompt = plan.instruction + ContextPrefix(in.SidebarMode) + text

	o.mu.Lock()
	stale := o.epoch != epoch
	o.mu.Unlock()
	if stale {
		log.Info("turn discarded by reset before completion")
		return o.discard(res), nil
	}

	reply, err := o.complete(ctx, res.Prompt)

	o.mu.Lock()
	if o.epoch != epoch {
		// The reset may have cleared the model history before this turn
		// reached it. No other turn runs meanwhile, so clearing again
		// drops exactly the stale exchange.
		o.chat.ResetSession()
		o.mu.Unlock()
		log.Info("turn discarded by reset")
		return o.discard(res), nil
	}

	if err != nil {
		o.mu.Unlock()
		log.Error("model completion failed", zap.Error(err))
		res.ModelFailed = true
		res.AgentMessage = o.message(domain.SenderAgent, domain.ApologyText)
		o.transcript.Append(res.AgentMessage)
		res.Suggestion = o.suggestions.State()
		return res, nil
	}

	res.AgentMessage = o.message(domain.SenderAgent, reply)
	o.transcript.Append(res.AgentMessage)
	fired := o.commit(log, plan, res)
	res.Suggestion = o.suggestions.State()
	o.mu.Unlock()

	// The navigator runs outside the lock so it may call back into the session.
	if fired != nil {
		if o.navigator != nil {
			o.navigator.Activate(fired.Kind, fired.Target)
		}
		o.followUp.Arm()
	}

	res.PlaybackID = o.speak(ctx, log, reply)

	log.Info("turn handled",
		zap.String("phase", string(res.Suggestion.Phase())),
		zap.Bool("instructed", res.Instruction != ""),
		zap.Int64("elapsed_ms", o.now().Sub(start).Milliseconds()),
	)
	return res, nil
}

// plan decides the turn's instruction and pending state change from the
// current suggestion phase. Nothing is applied yet.
func (o *Orchestrator) plan(ctx context.Context, log *zap.Logger, text string) turnPlan {
	var plan turnPlan
	state := o.suggestions.State()

	switch state.Phase() {
	case domain.PhaseResolved:
		return plan

	case domain.PhaseAwaitingConfirmation:
		pending := *state.Pending
		ok, err := o.classifier.ClassifyConfirmation(ctx, text, pending)
		if err != nil {
			log.Warn("confirmation classification failed, treating as refusal", zap.Error(err))
			ok = false
		}
		if ok {
			plan.confirm = true
			plan.instruction = acknowledgeInstruction(o.catalog, pending)
			return plan
		}
		plan.decline = true
	}

	cl := o.classifier.ClassifyTheme(ctx, text)
	switch {
	case cl.Theme == domain.ThemeNone:
		// Classification failed. The text goes out without a directive.
	case cl.Theme == domain.ThemeUnclear:
		plan.instruction = clarifyInstruction
	default:
		p, ok := o.catalog.Resolve(cl)
		if !ok {
			log.Debug("theme without a resolvable target", zap.String("theme", string(cl.Theme)))
			plan.instruction = clarifyInstruction
			break
		}
		plan.propose = &p
		plan.instruction = proposeInstruction(o.catalog, p)
	}
	return plan
}

// commit applies a plan after a successful completion. Caller holds o.mu.
func (o *Orchestrator) commit(log *zap.Logger, plan turnPlan, res *TurnResult) *domain.PendingSuggestion {
	var fired *domain.PendingSuggestion

	if plan.confirm {
		p, err := o.suggestions.Confirm()
		if err != nil {
			log.Warn("confirm without pending suggestion", zap.Error(err))
		} else {
			fired = &p
			res.Activated = &p
		}
	}
	if plan.decline {
		if p, err := o.suggestions.Decline(); err == nil {
			log.Info("suggestion declined", zap.String("target", p.Target))
		}
	}
	if plan.propose != nil {
		if err := o.suggestions.Propose(*plan.propose); err != nil {
			log.Warn("suggestion not stored", zap.Error(err))
		} else {
			res.Proposed = plan.propose
		}
	}
	return fired
}

func (o *Orchestrator) discard(res *TurnResult) *TurnResult {
	res.Discarded = true
	res.Suggestion = o.suggestions.State()
	return res
}

func (o *Orchestrator) complete(ctx context.Context, prompt string) (string, error) {
	if o.completionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.completionTimeout)
		defer cancel()
	}
	reply, err := o.chat.SendTurn(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("send turn: %w", err)
	}
	return reply, nil
}

func (o *Orchestrator) speak(ctx context.Context, log *zap.Logger, text string) domain.PlaybackID {
	if !o.voice.Load() || o.speaker == nil {
		return ""
	}
	id, err := o.speaker.Speak(ctx, text)
	if err != nil {
		log.Warn("speech failed", zap.Error(err))
		return ""
	}
	return id
}

// Reset returns the session to its initial state and returns the new greeting.
func (o *Orchestrator) Reset() *domain.Message {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.epoch++
	o.followUp.Stop()
	if o.speaker != nil {
		o.speaker.StopAll()
	}

	greeting := o.message(domain.SenderAgent, domain.ResetGreetingText)
	o.transcript.Reset(greeting)
	o.suggestions.Reset()
	o.chat.ResetSession()
	return greeting
}

// SetVoice turns spoken replies on or off. Turning voice off stops playback.
func (o *Orchestrator) SetVoice(enabled bool) error {
	if enabled && o.speaker == nil {
		return domain.ErrVoiceUnavailable
	}
	o.voice.Store(enabled)
	if !enabled && o.speaker != nil {
		o.speaker.StopAll()
	}
	return nil
}

func (o *Orchestrator) VoiceEnabled() bool { return o.voice.Load() }

func (o *Orchestrator) Busy() bool { return o.busy.Load() }

func (o *Orchestrator) Suggestion() domain.SuggestionState { return o.suggestions.State() }

// FollowUpPending reports whether a follow-up is scheduled.
func (o *Orchestrator) FollowUpPending() bool { return o.followUp.Pending() }

func (o *Orchestrator) Messages(limit int) []*domain.Message { return o.transcript.Messages(limit) }

// Close stops timers and playback. The session must not be used afterwards.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.epoch++
	o.mu.Unlock()

	o.followUp.Stop()
	if o.speaker != nil {
		o.speaker.StopAll()
	}
	o.suggestions.Stop()
}

func (o *Orchestrator) message(sender domain.Sender, text string) *domain.Message {
	return &domain.Message{
		ID:        domain.MessageID(o.newID()),
		SessionID: o.sessionID,
		Sender:    sender,
		Text:      text,
		CreatedAt: o.now(),
	}
}
