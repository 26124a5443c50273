// Package httpapi exposes the drafting workflow over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/service"
	"github.com/fraktionswerk/draftflow/internal/session"
	"github.com/fraktionswerk/draftflow/internal/workflow"
)

// userIDHeader carries the caller identity. Authentication happens upstream;
// this service only scopes data by it.
const userIDHeader = "X-User-ID"

// DraftHandler handles drafting session endpoints.
type DraftHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewDraftHandler creates a new handler.
func NewDraftHandler(svc *service.Service, logger *zap.Logger) *DraftHandler {
	return &DraftHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers drafting routes on the provided mux.
func (h *DraftHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/drafts", h.handleInitiate)
	mux.HandleFunc("GET /api/v1/drafts", h.handleList)
	mux.HandleFunc("GET /api/v1/drafts/{session}", h.handleStatus)
	mux.HandleFunc("POST /api/v1/drafts/{session}/answers", h.handleAnswers)
}

type initiateRequest struct {
	SessionID   string `json:"session_id,omitempty"`
	Topic       string `json:"topic"`
	Details     string `json:"details,omitempty"`
	RequestType string `json:"request_type,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

func (h *DraftHandler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing "+userIDHeader+" header")
		return
	}

	var req initiateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.logger.Warn("initiate decode error", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	res, err := h.svc.Initiate(r.Context(), service.InitiateInput{
		UserID:      userID,
		SessionID:   req.SessionID,
		Topic:       req.Topic,
		Details:     req.Details,
		RequestType: req.RequestType,
		Locale:      req.Locale,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type answersRequest struct {
	Answers map[string]string `json:"answers"`
}

func (h *DraftHandler) handleAnswers(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing "+userIDHeader+" header")
		return
	}

	var req answersRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.logger.Warn("answers decode error", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	res, err := h.svc.Continue(r.Context(), service.ContinueInput{
		UserID:    userID,
		SessionID: r.PathValue("session"),
		Answers:   req.Answers,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DraftHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing "+userIDHeader+" header")
		return
	}

	res, err := h.svc.Status(r.Context(), userID, r.PathValue("session"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DraftHandler) handleList(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing "+userIDHeader+" header")
		return
	}

	sessions, err := h.svc.List(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// writeServiceError maps service errors to HTTP statuses.
func (h *DraftHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, workflow.ErrThreadNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrSessionExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, service.ErrSessionFinished),
		errors.Is(err, workflow.ErrInvalidResumeState),
		errors.Is(err, workflow.ErrResumeConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
