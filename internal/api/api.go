// Package api exposes the session manager's command and observable surface
// over HTTP, for the UI process driving the voice client.
//
//	POST /v1/session/start    — start a session (body: start request)
//	POST /v1/session/message  — send one typed learner message
//	POST /v1/session/stop     — tear the session down
//	GET  /v1/session          — current state snapshot
//	GET  /v1/session/transcript — finalised turns and corrections so far
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voxtutor/voxtutor/internal/session"
	"github.com/voxtutor/voxtutor/pkg/types"
)

// Handler adapts a [session.Manager] to HTTP.
type Handler struct {
	mgr *session.Manager
	log *slog.Logger
}

// New returns a Handler driving mgr.
func New(mgr *session.Manager, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{mgr: mgr, log: log.With("component", "api")}
}

// Register adds the session routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/session/start", h.start)
	mux.HandleFunc("POST /v1/session/message", h.message)
	mux.HandleFunc("POST /v1/session/stop", h.stop)
	mux.HandleFunc("GET /v1/session", h.status)
	mux.HandleFunc("GET /v1/session/transcript", h.transcript)
}

type startRequest struct {
	UserID                 string `json:"userId"`
	SessionID              string `json:"sessionId"`
	PersonalizationContext string `json:"personalizationContext,omitempty"`
}

type messageRequest struct {
	Text string `json:"text"`
}

// statusResponse mirrors the manager's observable surface.
type statusResponse struct {
	Status           string `json:"status"`
	ErrorMessage     string `json:"errorMessage,omitempty"`
	MicrophoneActive bool   `json:"microphoneActive"`
	TutorSpeaking    bool   `json:"tutorSpeaking"`
}

type transcriptResponse struct {
	Turns       []types.TranscriptTurn   `json:"turns"`
	Corrections []types.CorrectionRecord `json:"corrections"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sessionId is required"})
		return
	}

	err := h.mgr.Start(r.Context(), session.StartConfig{
		UserID:                 req.UserID,
		SessionID:              req.SessionID,
		PersonalizationContext: req.PersonalizationContext,
	})
	if err != nil {
		h.log.Warn("start failed", "session_id", req.SessionID, "err", err)
		writeJSON(w, commandStatus(err), errorResponse{Error: err.Error()})
		return
	}
	h.writeStatus(w, http.StatusOK)
}

func (h *Handler) message(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text is required"})
		return
	}

	if err := h.mgr.SendText(r.Context(), req.Text); err != nil {
		writeJSON(w, commandStatus(err), errorResponse{Error: err.Error()})
		return
	}
	h.writeStatus(w, http.StatusOK)
}

func (h *Handler) stop(w http.ResponseWriter, _ *http.Request) {
	if err := h.mgr.Stop(); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	h.writeStatus(w, http.StatusOK)
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	h.writeStatus(w, http.StatusOK)
}

func (h *Handler) transcript(w http.ResponseWriter, _ *http.Request) {
	turns := h.mgr.Transcript()
	recs := h.mgr.Corrections()
	if turns == nil {
		turns = []types.TranscriptTurn{}
	}
	if recs == nil {
		recs = []types.CorrectionRecord{}
	}
	writeJSON(w, http.StatusOK, transcriptResponse{Turns: turns, Corrections: recs})
}

func (h *Handler) writeStatus(w http.ResponseWriter, code int) {
	writeJSON(w, code, statusResponse{
		Status:           h.mgr.Status().String(),
		ErrorMessage:     h.mgr.ErrorMessage(),
		MicrophoneActive: h.mgr.MicrophoneActive(),
		TutorSpeaking:    h.mgr.TutorSpeaking(),
	})
}

// commandStatus maps a command failure onto an HTTP status: state-machine
// rejections are conflicts, everything else is an upstream failure.
func commandStatus(err error) int {
	if errors.Is(err, session.ErrInvalidState) {
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}
