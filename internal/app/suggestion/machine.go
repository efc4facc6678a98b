// Package suggestion holds the confirmation-gated suggestion statechart.
package suggestion

import (
	"errors"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/statekit"

	"github.com/PabloGalante/haven-agent/internal/domain"
)

var (
	ErrSuggestionPending = errors.New("a suggestion is already awaiting confirmation")
	ErrThemeResolved     = errors.New("a suggestion was already acted on")
	ErrNothingPending    = errors.New("no suggestion is awaiting confirmation")
	ErrNoTarget          = errors.New("suggestion has no target")
)

const machineID = "suggestion"

const (
	stateIdle     statekit.StateID = statekit.StateID(domain.PhaseIdle)
	stateAwaiting statekit.StateID = statekit.StateID(domain.PhaseAwaitingConfirmation)
	stateResolved statekit.StateID = statekit.StateID(domain.PhaseResolved)
)

const (
	eventPropose statekit.EventType = "PROPOSE"
	eventConfirm statekit.EventType = "CONFIRM"
	eventDecline statekit.EventType = "DECLINE"
	eventReset   statekit.EventType = "RESET"
)

// Context is the statechart context. Actions are the only writers.
type Context struct {
	HasActedOnTheme bool
	Pending         *domain.PendingSuggestion
}

func (c *Context) snapshot() domain.SuggestionState {
	out := domain.SuggestionState{HasActedOnTheme: c.HasActedOnTheme}
	if c.Pending != nil {
		p := *c.Pending
		out.Pending = &p
	}
	return out
}

// NewMachineConfig builds the suggestion statechart.
//
//	idle --PROPOSE--> awaiting_confirmation --CONFIRM--> resolved
//	                  awaiting_confirmation --DECLINE--> idle
//	any non-idle --RESET--> idle
func NewMachineConfig() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context](machineID).
		WithInitial(stateIdle).
		WithContext(&Context{}).
		WithAction("storePending", storePending).
		WithAction("promotePending", promotePending).
		WithAction("discardPending", discardPending).
		WithAction("clearAll", clearAll).
		WithGuard("hasTarget", guardHasTarget).
		State(stateIdle).
			On(eventPropose).Target(stateAwaiting).Guard("hasTarget").Do("storePending").
			Done().
		State(stateAwaiting).
			On(eventConfirm).Target(stateResolved).Do("promotePending").
			On(eventDecline).Target(stateIdle).Do("discardPending").
			On(eventReset).Target(stateIdle).Do("clearAll").
			Done().
		State(stateResolved).
			On(eventReset).Target(stateIdle).Do("clearAll").
			Done().
		Build()
}

func guardHasTarget(_ *Context, event statekit.Event) bool {
	p, ok := event.Payload.(domain.PendingSuggestion)
	return ok && p.Target != ""
}

func storePending(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	if p, ok := event.Payload.(domain.PendingSuggestion); ok {
		(*ctx).Pending = &p
	}
}

// promotePending clears the pending suggestion and sets the flag in the same step.
func promotePending(ctx **Context, _ statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	(*ctx).Pending = nil
	(*ctx).HasActedOnTheme = true
}

func discardPending(ctx **Context, _ statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	(*ctx).Pending = nil
}

func clearAll(ctx **Context, _ statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	(*ctx).Pending = nil
	(*ctx).HasActedOnTheme = false
}

// Machine is a per-session suggestion state. It is safe for concurrent use.
type Machine struct {
	mu     sync.Mutex
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

func NewMachine() (*Machine, error) {
	cfg, err := NewMachineConfig()
	if err != nil {
		return nil, fmt.Errorf("building suggestion machine: %w", err)
	}

	ctx := &Context{}
	interp := statekit.NewInterpreter(cfg)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	interp.Start()

	return &Machine{interp: interp, ctx: ctx}, nil
}

// Phase returns the current statechart position.
func (m *Machine) Phase() domain.SuggestionPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase()
}

func (m *Machine) phase() domain.SuggestionPhase {
	return domain.SuggestionPhase(m.interp.State().Value)
}

// State returns a copy of the context.
func (m *Machine) State() domain.SuggestionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx.snapshot()
}

// Propose stores p as the pending suggestion. Only valid in idle.
func (m *Machine) Propose(p domain.PendingSuggestion) error {
	if p.Target == "" {
		return ErrNoTarget
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.phase() {
	case domain.PhaseAwaitingConfirmation:
		return ErrSuggestionPending
	case domain.PhaseResolved:
		return ErrThemeResolved
	}

	m.interp.Send(statekit.Event{Type: eventPropose, Payload: p})
	if !m.interp.Matches(stateAwaiting) {
		return fmt.Errorf("propose %s:%s rejected in state %s", p.Kind, p.Target, m.phase())
	}
	return nil
}

// Confirm promotes the pending suggestion and returns it.
func (m *Machine) Confirm() (domain.PendingSuggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase() != domain.PhaseAwaitingConfirmation || m.ctx.Pending == nil {
		return domain.PendingSuggestion{}, ErrNothingPending
	}
	fired := *m.ctx.Pending

	m.interp.Send(statekit.Event{Type: eventConfirm})
	return fired, nil
}

// Decline discards the pending suggestion and returns it.
func (m *Machine) Decline() (domain.PendingSuggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase() != domain.PhaseAwaitingConfirmation || m.ctx.Pending == nil {
		return domain.PendingSuggestion{}, ErrNothingPending
	}
	dropped := *m.ctx.Pending

	m.interp.Send(statekit.Event{Type: eventDecline})
	return dropped, nil
}

// Reset returns to idle from any state.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase() != domain.PhaseIdle {
		m.interp.Send(statekit.Event{Type: eventReset})
	}
	m.ctx.Pending = nil
	m.ctx.HasActedOnTheme = false
}

// Stop releases the interpreter.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interp.Stop()
}
