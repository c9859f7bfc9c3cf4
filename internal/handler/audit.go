package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/wagate/internal/errors"
	"github.com/openclaw/wagate/internal/httputil"
	"github.com/openclaw/wagate/internal/middleware"
	"github.com/openclaw/wagate/internal/model"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// AuditReader lists the audit trail of one session.
type AuditReader interface {
	FindBySessionID(ctx context.Context, sessionID string, limit int) ([]model.AuditEvent, error)
}

type AuditHandler struct {
	reader AuditReader
}

// NewAuditHandler returns a handler that answers 404 when reader is nil.
func NewAuditHandler(reader AuditReader) *AuditHandler {
	return &AuditHandler{reader: reader}
}

// GET /sessions/{sessionId}/audit
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID != middleware.GetSessionID(r.Context()) {
		httputil.WriteError(w, apperrors.Forbidden("Token does not belong to this session"))
		return
	}
	if h.reader == nil {
		httputil.WriteError(w, apperrors.NotFound("Audit trail"))
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAuditLimit {
			httputil.WriteError(w, apperrors.InvalidInput("limit", "must be between 1 and 200"))
			return
		}
		limit = n
	}

	events, err := h.reader.FindBySessionID(r.Context(), sessionID, limit)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to list audit events")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"events":    events,
	})
}
