package tools

import (
	"time"

	"go.uber.org/zap"

	"github.com/PabloGalante/haven-agent/internal/domain"
	"github.com/PabloGalante/haven-agent/internal/observability"
)

// ToolContext brings metadata of the activation to the dispatcher.
type ToolContext struct {
	SessionID domain.SessionID
}

// ModeObserver is told when an activation switches the sidebar view.
type ModeObserver func(sessionID domain.SessionID, mode domain.SidebarMode)

// Dispatcher turns activations into host events.
type Dispatcher struct {
	catalog   *Catalog
	publisher domain.EventPublisher
	onMode    ModeObserver
	now       func() time.Time
}

func NewDispatcher(catalog *Catalog, publisher domain.EventPublisher, onMode ModeObserver) *Dispatcher {
	return &Dispatcher{
		catalog:   catalog,
		publisher: publisher,
		onMode:    onMode,
		now:       time.Now,
	}
}

// Navigator returns the activation callback for one session.
func (d *Dispatcher) Navigator(tctx ToolContext) domain.Navigator {
	return domain.NavigatorFunc(func(kind domain.SuggestionKind, target string) {
		d.activate(tctx, kind, target)
	})
}

func (d *Dispatcher) activate(tctx ToolContext, kind domain.SuggestionKind, target string) {
	log := observability.WithFields(
		zap.String("session_id", string(tctx.SessionID)),
		zap.String("kind", string(kind)),
		zap.String("target", target),
	)

	switch kind {
	case domain.KindMode:
		if _, ok := d.catalog.ToolForMode(domain.TargetMode(target)); !ok {
			log.Warn("activating unknown tool view")
		}
		if d.onMode != nil {
			d.onMode(tctx.SessionID, domain.SidebarMode(target))
		}
	case domain.KindGame:
		if _, ok := d.catalog.Game(target); !ok {
			log.Warn("activating unknown game")
		}
	}

	log.Info("activation dispatched")

	if d.publisher == nil {
		return
	}
	d.publisher.Publish(tctx.SessionID, domain.Event{
		Type:      domain.EventActivate,
		SessionID: tctx.SessionID,
		Kind:      kind,
		Target:    target,
		CreatedAt: d.now(),
	})
}
