package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/wagate/internal/audit"
	"github.com/openclaw/wagate/internal/engine"
	apperrors "github.com/openclaw/wagate/internal/errors"
	"github.com/openclaw/wagate/internal/httputil"
	"github.com/openclaw/wagate/internal/util"
)

// EngineSignatureMiddleware authenticates callbacks from the automation engine
// sidecar by the hex HMAC-SHA256 of the raw body.
type EngineSignatureMiddleware struct {
	secret string
}

func NewEngineSignatureMiddleware(secret string) *EngineSignatureMiddleware {
	return &EngineSignatureMiddleware{secret: secret}
}

func (m *EngineSignatureMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.secret == "" {
			log.Warn().Msg("engine signature verification bypassed: ENGINE_SIGNATURE_SECRET is not configured")
			next.ServeHTTP(w, r)
			return
		}

		signature := r.Header.Get(engine.SignatureHeader)
		if signature == "" {
			log.Warn().Msg("engine signature middleware: missing signature header")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventEngineSignature, Details: map[string]interface{}{"reason": "missing"}})
			httputil.WriteError(w, apperrors.Unauthorized("Missing signature"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Error().Err(err).Msg("engine signature middleware: failed to read body")
			httputil.WriteErrorWithStatus(w, http.StatusBadRequest, apperrors.ValidationError("Failed to read request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		computed := util.HmacSHA256(m.secret, string(body))
		if !util.ConstantTimeEqual(computed, signature) {
			log.Warn().Msg("engine signature middleware: invalid signature")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventEngineSignature, Details: map[string]interface{}{"reason": "mismatch"}})
			httputil.WriteError(w, apperrors.Unauthorized("Invalid signature"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
