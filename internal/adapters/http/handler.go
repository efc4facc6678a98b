package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"go.uber.org/zap"

	"github.com/PabloGalante/haven-agent/internal/app/conversation"
	"github.com/PabloGalante/haven-agent/internal/app/mindmap"
	"github.com/PabloGalante/haven-agent/internal/domain"
	"github.com/PabloGalante/haven-agent/internal/observability"
)

type Options struct {
	// RateLimit is the number of messages per second allowed per session.
	// Zero disables limiting.
	RateLimit int
	RateBurst int
	// EventsPongWait is how long the event socket waits for a pong.
	// Zero means 60s.
	EventsPongWait time.Duration
	// EventsPingPeriod must be shorter than EventsPongWait. Zero means 9/10 of it.
	EventsPingPeriod time.Duration
}

type Server struct {
	svc        *conversation.Service
	limiter    ratelimit.RateLimiter
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewServer(svc *conversation.Service, opts Options) http.Handler {
	s := &Server{svc: svc, pongWait: opts.EventsPongWait, pingPeriod: opts.EventsPingPeriod}
	if s.pongWait <= 0 {
		s.pongWait = defaultEventsPongWait
	}
	if s.pingPeriod <= 0 || s.pingPeriod >= s.pongWait {
		s.pingPeriod = (s.pongWait * 9) / 10
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = opts.RateLimit
		}
		s.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     opts.RateLimit,
			Burst:    burst,
			FailOpen: true,
		})
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleEndSession)

	mux.Handle("POST /sessions/{id}/messages", s.withRateLimit(http.HandlerFunc(s.handleSendMessage)))
	mux.HandleFunc("POST /sessions/{id}/reset", s.handleReset)
	mux.HandleFunc("PUT /sessions/{id}/voice", s.handleSetVoice)
	mux.HandleFunc("PUT /sessions/{id}/sidebar", s.handleSetSidebar)
	mux.HandleFunc("POST /sessions/{id}/speech/{playback}/ended", s.handleSpeechEnded)

	mux.HandleFunc("GET /sessions/{id}/mindmap", s.handleGetMindMap)
	mux.HandleFunc("POST /sessions/{id}/mindmap/nodes", s.handleAddNode)
	mux.HandleFunc("PATCH /sessions/{id}/mindmap/nodes/{node}", s.handleUpdateNode)
	mux.HandleFunc("DELETE /sessions/{id}/mindmap/nodes/{node}", s.handleDeleteNode)

	mux.HandleFunc("GET /sessions/{id}/events", s.handleEvents)

	return chainMiddlewares(mux, withLogging, withRequestID, withCORS)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createSessionRequest struct {
	SidebarMode  string `json:"sidebar_mode,omitempty"`
	VoiceEnabled bool   `json:"voice_enabled,omitempty"`
}

type createSessionResponse struct {
	Session  sessionResponse   `json:"session"`
	Messages []messageResponse `json:"messages"`
}

type sessionResponse struct {
	ID           string    `json:"id"`
	SidebarMode  string    `json:"sidebar_mode"`
	VoiceEnabled bool      `json:"voice_enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type suggestionResponse struct {
	Phase           string            `json:"phase"`
	HasActedOnTheme bool              `json:"has_acted_on_theme"`
	Pending         *suggestionTarget `json:"pending,omitempty"`
}

type suggestionTarget struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

type sendMessageRequest struct {
	Text        string  `json:"text"`
	SidebarMode *string `json:"sidebar_mode,omitempty"`
}

type sendMessageResponse struct {
	UserMessage  messageResponse    `json:"user_message"`
	AgentMessage *messageResponse   `json:"agent_message,omitempty"`
	Suggestion   suggestionResponse `json:"suggestion"`
	Proposed     *suggestionTarget  `json:"proposed,omitempty"`
	Activated    *suggestionTarget  `json:"activated,omitempty"`
	ModelFailed  bool               `json:"model_failed,omitempty"`
	PlaybackID   string             `json:"playback_id,omitempty"`
}

type getSessionResponse struct {
	Session    sessionResponse    `json:"session"`
	Messages   []messageResponse  `json:"messages"`
	Suggestion suggestionResponse `json:"suggestion"`
	Busy       bool               `json:"busy"`
	Speaking   bool               `json:"speaking"`
}

type resetResponse struct {
	Greeting messageResponse `json:"greeting"`
}

type setVoiceRequest struct {
	Enabled bool `json:"enabled"`
}

type setSidebarRequest struct {
	Mode string `json:"mode"`
}

type speechEndedResponse struct {
	Accepted bool `json:"accepted"`
}

type addNodeRequest struct {
	ParentID string `json:"parent_id,omitempty"`
}

type updateNodeRequest struct {
	Text *string  `json:"text,omitempty"`
	X    *float64 `json:"x,omitempty"`
	Y    *float64 `json:"y,omitempty"`
}

type mindMapResponse struct {
	Nodes    []domain.MindMapNode `json:"nodes"`
	Edges    []domain.MindMapEdge `json:"edges"`
	Segments []mindmap.Segment    `json:"segments"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeOptional(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	out, err := s.svc.StartSession(r.Context(), conversation.StartSessionInput{
		SidebarMode:  domain.SidebarMode(req.SidebarMode),
		VoiceEnabled: req.VoiceEnabled,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		Session:  toSessionResponse(out.Session),
		Messages: toMessagesResponse(out.Messages),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	tl, err := s.svc.GetSessionTimeline(r.Context(), sessionID(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, getSessionResponse{
		Session:    toSessionResponse(tl.Session),
		Messages:   toMessagesResponse(tl.Messages),
		Suggestion: toSuggestionResponse(tl.Suggestion),
		Busy:       tl.Busy,
		Speaking:   tl.Speaking,
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.EndSession(r.Context(), sessionID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	in := conversation.SendMessageInput{SessionID: sessionID(r), Text: req.Text}
	if req.SidebarMode != nil {
		mode := domain.SidebarMode(*req.SidebarMode)
		in.SidebarMode = &mode
	}

	out, err := s.svc.SendMessage(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSendMessageResponse(out))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	greeting, err := s.svc.ResetSession(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Greeting: toMessageResponse(greeting)})
}

func (s *Server) handleSetVoice(w http.ResponseWriter, r *http.Request) {
	var req setVoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	sess, err := s.svc.SetVoice(r.Context(), sessionID(r), req.Enabled)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) handleSetSidebar(w http.ResponseWriter, r *http.Request) {
	var req setSidebarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	sess, err := s.svc.SetSidebarMode(r.Context(), sessionID(r), domain.SidebarMode(req.Mode))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) handleSpeechEnded(w http.ResponseWriter, r *http.Request) {
	ok, err := s.svc.SpeechEnded(r.Context(), sessionID(r), domain.PlaybackID(r.PathValue("playback")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, speechEndedResponse{Accepted: ok})
}

func (s *Server) handleGetMindMap(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.MindMap(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mindMapResponse{
		Nodes:    view.Nodes,
		Edges:    view.Edges,
		Segments: view.Segments,
	})
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if err := decodeOptional(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	node, err := s.svc.AddMindMapNode(r.Context(), sessionID(r), domain.NodeID(req.ParentID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	var req updateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	node, err := s.svc.UpdateMindMapNode(r.Context(), sessionID(r), nodeID(r), conversation.MindMapPatch{
		Text: req.Text,
		X:    req.X,
		Y:    req.Y,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteMindMapNode(r.Context(), sessionID(r), nodeID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─────────────────────────────────────────────
// Conversation Helpers
// ─────────────────────────────────────────────

func sessionID(r *http.Request) domain.SessionID { return domain.SessionID(r.PathValue("id")) }

func nodeID(r *http.Request) domain.NodeID { return domain.NodeID(r.PathValue("node")) }

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:           string(s.ID),
		SidebarMode:  string(s.SidebarMode),
		VoiceEnabled: s.VoiceEnabled,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func toMessageResponse(m *domain.Message) messageResponse {
	return messageResponse{
		ID:        string(m.ID),
		SessionID: string(m.SessionID),
		Sender:    string(m.Sender),
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}

func toOptionalMessageResponse(m *domain.Message) *messageResponse {
	if m == nil {
		return nil
	}
	out := toMessageResponse(m)
	return &out
}

func toMessagesResponse(msgs []*domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func toSuggestionTarget(p *domain.PendingSuggestion) *suggestionTarget {
	if p == nil {
		return nil
	}
	return &suggestionTarget{Kind: string(p.Kind), Target: p.Target}
}

func toSuggestionResponse(st domain.SuggestionState) suggestionResponse {
	return suggestionResponse{
		Phase:           string(st.Phase()),
		HasActedOnTheme: st.HasActedOnTheme,
		Pending:         toSuggestionTarget(st.Pending),
	}
}

func toSendMessageResponse(out *conversation.SendMessageOutput) sendMessageResponse {
	return sendMessageResponse{
		UserMessage:  toMessageResponse(out.UserMessage),
		AgentMessage: toOptionalMessageResponse(out.AgentMessage),
		Suggestion:   toSuggestionResponse(out.Suggestion),
		Proposed:     toSuggestionTarget(out.Proposed),
		Activated:    toSuggestionTarget(out.Activated),
		ModelFailed:  out.ModelFailed,
		PlaybackID:   string(out.PlaybackID),
	}
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeOptional decodes a JSON body that may be absent.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTurnInProgress), errors.Is(err, domain.ErrTurnDiscarded),
		errors.Is(err, domain.ErrRootNode):
		return http.StatusConflict
	case errors.Is(err, domain.ErrVoiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("request failed", zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}
