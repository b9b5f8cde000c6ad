// Package httpapi exposes the intake engine over HTTP. Handlers are thin:
// decode, call the engine or pipeline, encode. All conversational soft
// failures are already absorbed below this layer.
package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tonyjurso-collab/attorney-directory/internal/engine"
	"github.com/tonyjurso-collab/attorney-directory/internal/marketplace"
	"github.com/tonyjurso-collab/attorney-directory/internal/session"
	"github.com/tonyjurso-collab/attorney-directory/pkg/logging"
)

// Handler serves the chat endpoints.
type Handler struct {
	engine   *engine.Engine
	pipeline *marketplace.Pipeline
	logger   *logging.Logger
}

// NewHandler creates the chat handler. pipeline may be nil when submission is
// disabled (local development without marketplace credentials).
func NewHandler(e *engine.Engine, pipeline *marketplace.Pipeline, logger *logging.Logger) *Handler {
	if e == nil {
		panic("httpapi: engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: e, pipeline: pipeline, logger: logger}
}

type turnRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type turnResponse struct {
	ReplyText string       `json:"reply_text"`
	Complete  bool         `json:"complete"`
	SessionID string       `json:"session_id"`
	DebugInfo engine.Debug `json:"debug_info"`
}

// Turn handles POST /chat/turn.
func (h *Handler) Turn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" && req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	meta := engine.RequestMeta{
		ClientIP:      clientIP(r),
		UserAgent:     r.UserAgent(),
		ReferringPage: r.Referer(),
	}

	result, err := h.engine.Turn(r.Context(), req.SessionID, req.Message, meta)
	if err != nil {
		h.logger.Error("turn failed", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not process message")
		return
	}

	writeJSON(w, http.StatusOK, turnResponse{
		ReplyText: result.Reply,
		Complete:  result.Complete,
		SessionID: result.SessionID,
		DebugInfo: result.Debug,
	})
}

type resetRequest struct {
	SessionID     string `json:"session_id"`
	RotateSession bool   `json:"rotate_session,omitempty"`
}

type resetResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

// Reset handles POST /chat/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	newID, err := h.engine.Reset(r.Context(), req.SessionID, req.RotateSession)
	if err != nil {
		h.logger.Error("reset failed", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not reset session")
		return
	}

	writeJSON(w, http.StatusOK, resetResponse{Success: true, SessionID: newID})
}

type submitRequest struct {
	SessionID  string                 `json:"session_id"`
	Compliance marketplace.Compliance `json:"compliance,omitempty"`
}

type submitResponse struct {
	LeadID      string `json:"lead_id"`
	SubmittedAt string `json:"submitted_at"`
}

// Submit handles POST /chat/submit.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "submission_disabled", "lead submission is not configured")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	sub, err := h.pipeline.Submit(r.Context(), req.SessionID, req.Compliance)
	if err != nil {
		h.writeSubmitError(w, req.SessionID, err)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		LeadID:      sub.LeadID,
		SubmittedAt: sub.SubmittedAt.Format(time.RFC3339),
	})
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, sessionID string, err error) {
	var submitErr *marketplace.SubmitError
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown_session", "session not found or expired")
	case errors.Is(err, marketplace.ErrNotComplete):
		writeError(w, http.StatusConflict, "not_complete", "intake is not complete yet")
	case errors.Is(err, marketplace.ErrAlreadySubmitted):
		writeError(w, http.StatusConflict, "already_submitted", "this session was already submitted")
	case errors.As(err, &submitErr):
		writeError(w, http.StatusBadGateway, submitErr.Code, submitErr.Message)
	default:
		h.logger.Error("submit failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not submit lead")
	}
}

type historyResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []session.Turn `json:"turns"`
}

// History handles GET /chat/history?session_id=...
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	turns, err := h.engine.History(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown_session", "session not found or expired")
			return
		}
		h.logger.Error("history failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load history")
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{SessionID: id, Turns: turns})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware rewrites RemoteAddr from the forwarding
	// headers; strip the port if one is present.
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
