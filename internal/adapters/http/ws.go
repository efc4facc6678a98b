package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/PabloGalante/haven-agent/internal/app/conversation"
	"github.com/PabloGalante/haven-agent/internal/domain"
	"github.com/PabloGalante/haven-agent/internal/observability"
)

const (
	eventsWSWriteWait     = 10 * time.Second
	defaultEventsPongWait = 60 * time.Second
)

var eventsWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type eventsWSInbound struct {
	Type        string  `json:"type"`
	Text        string  `json:"text,omitempty"`
	SidebarMode *string `json:"sidebar_mode,omitempty"`
	Enabled     bool    `json:"enabled,omitempty"`
	Mode        string  `json:"mode,omitempty"`
	PlaybackID  string  `json:"playback_id,omitempty"`
}

type eventsWSOutbound struct {
	Type      string               `json:"type"`
	SessionID string               `json:"session_id,omitempty"`
	Event     *domain.Event        `json:"event,omitempty"`
	Reply     *sendMessageResponse `json:"reply,omitempty"`
	Greeting  *messageResponse     `json:"greeting,omitempty"`
	Session   *sessionResponse     `json:"session,omitempty"`
	Accepted  bool                 `json:"accepted,omitempty"`
	Code      string               `json:"code,omitempty"`
	Message   string               `json:"message,omitempty"`
}

// handleEvents streams session events to the host and accepts commands back.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	subCh, unsubscribe, err := s.svc.Subscribe(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer unsubscribe()

	log := observability.LoggerFromContext(r.Context()).With(zap.String("session_id", string(id)))

	conn, err := eventsWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("events ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(s.pongWait)); err != nil {
		log.Warn("events ws set read deadline failed", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	writeCh := make(chan eventsWSOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(s.pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(eventsWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(eventsWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	pushEventsWS(writeCh, eventsWSOutbound{Type: "subscribed", SessionID: string(id)})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-subCh:
				if !ok {
					// The session ended. Unblock the reader.
					cancel()
					_ = conn.Close()
					return
				}
				pushEventsWS(writeCh, eventsWSOutbound{Type: "event", SessionID: string(id), Event: &evt})
			}
		}
	}()

	// Turns run off the read loop so pongs are still read while the model
	// answers. The session rejects overlapping turns as busy.
	var turns sync.WaitGroup
	for {
		var in eventsWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			turns.Wait()
			<-writerDone
			return
		}

		if strings.EqualFold(strings.TrimSpace(in.Type), "send") {
			turns.Add(1)
			go func() {
				defer turns.Done()
				pushEventsWS(writeCh, s.dispatchWS(ctx, id, in))
			}()
			continue
		}
		pushEventsWS(writeCh, s.dispatchWS(ctx, id, in))
	}
}

func (s *Server) dispatchWS(ctx context.Context, id domain.SessionID, in eventsWSInbound) eventsWSOutbound {
	msgType := strings.ToLower(strings.TrimSpace(in.Type))

	switch msgType {
	case "":
		return wsError("invalid_argument", "type is required")

	case "ping":
		return eventsWSOutbound{Type: "pong"}

	case "send":
		req := conversation.SendMessageInput{SessionID: id, Text: in.Text}
		if in.SidebarMode != nil {
			mode := domain.SidebarMode(*in.SidebarMode)
			req.SidebarMode = &mode
		}
		out, err := s.svc.SendMessage(ctx, req)
		if err != nil {
			return wsFromError(err)
		}
		reply := toSendMessageResponse(out)
		return eventsWSOutbound{Type: "send_ack", SessionID: string(id), Reply: &reply}

	case "reset":
		greeting, err := s.svc.ResetSession(ctx, id)
		if err != nil {
			return wsFromError(err)
		}
		m := toMessageResponse(greeting)
		return eventsWSOutbound{Type: "reset_ack", SessionID: string(id), Greeting: &m}

	case "voice":
		sess, err := s.svc.SetVoice(ctx, id, in.Enabled)
		if err != nil {
			return wsFromError(err)
		}
		resp := toSessionResponse(sess)
		return eventsWSOutbound{Type: "voice_ack", SessionID: string(id), Session: &resp}

	case "sidebar":
		sess, err := s.svc.SetSidebarMode(ctx, id, domain.SidebarMode(in.Mode))
		if err != nil {
			return wsFromError(err)
		}
		resp := toSessionResponse(sess)
		return eventsWSOutbound{Type: "sidebar_ack", SessionID: string(id), Session: &resp}

	case "speech_ended":
		ok, err := s.svc.SpeechEnded(ctx, id, domain.PlaybackID(in.PlaybackID))
		if err != nil {
			return wsFromError(err)
		}
		return eventsWSOutbound{Type: "speech_ended_ack", SessionID: string(id), Accepted: ok}

	default:
		return wsError("invalid_argument", "unsupported type: "+msgType)
	}
}

func wsError(code, msg string) eventsWSOutbound {
	return eventsWSOutbound{Type: "error", Code: code, Message: msg}
}

func wsFromError(err error) eventsWSOutbound {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return wsError("not_found", err.Error())
	case errors.Is(err, domain.ErrEmptyMessage):
		return wsError("invalid_argument", err.Error())
	case errors.Is(err, domain.ErrTurnInProgress):
		return wsError("busy", err.Error())
	case errors.Is(err, domain.ErrTurnDiscarded):
		return wsError("discarded", err.Error())
	case errors.Is(err, domain.ErrVoiceUnavailable):
		return wsError("unavailable", err.Error())
	default:
		return wsError("internal", "internal error")
	}
}

// pushEventsWS drops the oldest queued message when the writer falls behind.
func pushEventsWS(writeCh chan eventsWSOutbound, out eventsWSOutbound) {
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
