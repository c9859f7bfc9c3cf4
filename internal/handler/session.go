package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/wagate/internal/errors"
	"github.com/openclaw/wagate/internal/httputil"
	"github.com/openclaw/wagate/internal/middleware"
	"github.com/openclaw/wagate/internal/model"
	"github.com/openclaw/wagate/internal/service"
	"github.com/openclaw/wagate/internal/util"
)

const qrCodeMessage = "Scan this QR code with your WhatsApp app."

type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

type qrResponse struct {
	SessionID string `json:"sessionId"`
	QRCode    string `json:"qrCode"`
	Message   string `json:"message"`
}

type statusResponse struct {
	SessionID    string              `json:"sessionId"`
	Status       model.SessionStatus `json:"status"`
	SessionToken *string             `json:"session_token"`
	Message      string              `json:"message"`
}

type notFoundResponse struct {
	Status  model.SessionStatus `json:"status"`
	Message string              `json:"message"`
}

// GET /get_qr
func (h *SessionHandler) GetQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := h.sessionService.CreateSession(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to create session")
		httputil.WriteError(w, err)
		return
	}

	session, err := h.sessionService.WaitForCode(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to obtain pairing code")
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, qrResponse{
		SessionID: session.ID,
		QRCode:    *session.AuthCode,
		Message:   qrCodeMessage,
	})
}

// GET /check_status?sessionId=
func (h *SessionHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("sessionId query parameter"))
		return
	}

	if !util.IsValidUUID(sessionID) {
		writeSessionNotFound(w)
		return
	}
	session, err := h.sessionService.GetStatus(r.Context(), sessionID)
	if err != nil {
		writeSessionNotFound(w)
		return
	}

	resp := statusResponse{
		SessionID: session.ID,
		Status:    session.Status,
		Message:   model.StatusMessage(session.Status),
	}
	if session.Status == model.SessionStatusReady {
		resp.SessionToken = session.Token
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeSessionNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, notFoundResponse{
		Status:  model.SessionStatusNotFound,
		Message: model.StatusMessage(model.SessionStatusNotFound),
	})
}

// DELETE /sessions/{sessionId}
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID != middleware.GetSessionID(r.Context()) {
		httputil.WriteError(w, apperrors.Forbidden("Token does not belong to this session"))
		return
	}

	if err := h.sessionService.Teardown(r.Context(), sessionID, service.ReasonLogout); err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sessionId": sessionID,
		"status":    model.SessionStatusDisconnected,
	})
}
