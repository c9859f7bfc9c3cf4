package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/wagate/internal/engine"
	apperrors "github.com/openclaw/wagate/internal/errors"
	"github.com/openclaw/wagate/internal/httputil"
)

// EventDeliverer routes an engine callback to the session it names.
type EventDeliverer interface {
	Deliver(ctx context.Context, event engine.Event) error
}

type EngineHandler struct {
	deliverer EventDeliverer
}

func NewEngineHandler(deliverer EventDeliverer) *EngineHandler {
	return &EngineHandler{deliverer: deliverer}
}

// POST /engine/events
func (h *EngineHandler) Events(w http.ResponseWriter, r *http.Request) {
	var event engine.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}
	if event.SessionID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("sessionId"))
		return
	}
	if !event.Type.Valid() {
		httputil.WriteError(w, apperrors.InvalidInput("type", string(event.Type)))
		return
	}

	log.Debug().
		Str("sessionId", event.SessionID).
		Str("event", string(event.Type)).
		Msg("engine event received")

	err := h.deliverer.Deliver(r.Context(), event)
	if errors.Is(err, engine.ErrUnknownSession) {
		httputil.WriteError(w, apperrors.NotFound("Session"))
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
