package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/wagate/internal/audit"
	"github.com/openclaw/wagate/internal/engine"
	apperrors "github.com/openclaw/wagate/internal/errors"
	"github.com/openclaw/wagate/internal/model"
	"github.com/openclaw/wagate/internal/repository"
	"github.com/openclaw/wagate/internal/sse"
	"github.com/openclaw/wagate/internal/util"
)

const (
	handleCloseTimeout = 10 * time.Second

	SessionEventType = "status"

	ReasonCodeWaitTimeout  = "pairing code wait timed out"
	ReasonCodeWaitCanceled = "pairing code request canceled"
	ReasonPairingExpired   = "pairing window expired"
	ReasonLogout           = "logged out"
	ReasonShutdown         = "server shutting down"
)

// EventPublisher fans lifecycle events out to interested clients.
type EventPublisher interface {
	Publish(ctx context.Context, sessionID string, event sse.Event) error
}

// SessionService owns the session state machine. Engine events are the only
// producers of forward transitions; teardown, the code wait ceiling and the
// cleanup job may terminate a session early.
//
//	INITIALIZING --code_ready--> CODE_READY --authenticated--> AUTHENTICATED --ready--> READY
//
// auth_failure and disconnected are accepted from every live state. Terminal
// states are never stored: the session and its credential are removed in the
// same step that records them.
type SessionService struct {
	store     repository.SessionStore
	engine    engine.Engine
	renderer  CodeRenderer
	issuer    *CredentialIssuer
	publisher EventPublisher
	codeWait  time.Duration
}

func NewSessionService(
	store repository.SessionStore,
	eng engine.Engine,
	renderer CodeRenderer,
	issuer *CredentialIssuer,
	publisher EventPublisher,
	codeWait time.Duration,
) *SessionService {
	return &SessionService{
		store:     store,
		engine:    eng,
		renderer:  renderer,
		issuer:    issuer,
		publisher: publisher,
		codeWait:  codeWait,
	}
}

// CreateSession registers a new session and starts its engine instance. It
// returns as soon as the engine has accepted the session; pairing progress
// arrives later through HandleEvent.
func (s *SessionService) CreateSession(ctx context.Context) (string, error) {
	id := uuid.New().String()

	err := s.store.Insert(model.Session{ID: id, Status: model.SessionStatusInitializing}, nil)
	if errors.Is(err, repository.ErrSessionExists) {
		return "", apperrors.AlreadyExists("Session")
	}
	if err != nil {
		return "", apperrors.Internal("Failed to create session").WithCause(err)
	}

	audit.Log(ctx, audit.Event{Type: audit.EventSessionCreate, SessionID: id})
	log.Info().Str("sessionId", id).Msg("session created")

	handle, err := s.engine.Start(ctx, id, s)
	if err != nil {
		log.Error().Err(err).Str("sessionId", id).Msg("engine start failed")
		_, _ = s.terminate(ctx, id, model.SessionStatusError, "engine start failed")
		return "", apperrors.EngineStart(err)
	}

	err = s.store.Update(id, func(rec *repository.SessionRecord) error {
		rec.Handle = handle
		return nil
	})
	if err != nil {
		// The session terminated while the engine was starting.
		closeHandle(id, handle)
		return "", apperrors.EngineStart(fmt.Errorf("session terminated during start: %w", err))
	}

	return id, nil
}

// HandleEvent applies one engine event to the session it names.
func (s *SessionService) HandleEvent(ctx context.Context, event engine.Event) error {
	if !event.Type.Valid() {
		return apperrors.InvalidInput("event type", string(event.Type))
	}

	switch event.Type {
	case model.EngineEventCodeReady:
		return s.onCodeReady(ctx, event)
	case model.EngineEventAuthenticated:
		return s.advance(ctx, event, model.SessionStatusCodeReady, model.SessionStatusAuthenticated,
			func(rec *repository.SessionRecord) error {
				rec.Session.AuthCode = nil
				return nil
			})
	case model.EngineEventReady:
		return s.advance(ctx, event, model.SessionStatusAuthenticated, model.SessionStatusReady,
			func(rec *repository.SessionRecord) error {
				_, err := s.issuer.IssueInto(rec)
				return err
			})
	case model.EngineEventAuthFailure:
		_, err := s.terminate(ctx, event.SessionID, model.SessionStatusAuthFailed, event.Reason)
		return err
	case model.EngineEventDisconnected:
		_, err := s.terminate(ctx, event.SessionID, model.SessionStatusDisconnected, event.Reason)
		return err
	}
	return nil
}

func (s *SessionService) onCodeReady(ctx context.Context, event engine.Event) error {
	current, err := s.store.Get(event.SessionID)
	if err != nil {
		return apperrors.NotFound("Session")
	}
	if current.Status == model.SessionStatusCodeReady {
		log.Debug().Str("sessionId", event.SessionID).Msg("pairing code refresh ignored")
		return nil
	}
	if current.Status != model.SessionStatusInitializing {
		return s.rejectTransition(event, current.Status)
	}

	rendered, renderErr := s.renderer.Render(event.Code)
	if renderErr != nil {
		log.Error().Err(renderErr).Str("sessionId", event.SessionID).Msg("pairing code render failed")
		if _, err := s.terminate(ctx, event.SessionID, model.SessionStatusError, "pairing code render failed"); err != nil {
			return err
		}
		return apperrors.CodeFailed("render failed").WithCause(renderErr)
	}

	return s.advance(ctx, event, model.SessionStatusInitializing, model.SessionStatusCodeReady,
		func(rec *repository.SessionRecord) error {
			rec.Session.AuthCode = &rendered
			return nil
		})
}

// advance moves a session from one live state to the next. mutate runs under
// the session lock together with the status change.
func (s *SessionService) advance(
	ctx context.Context,
	event engine.Event,
	from, to model.SessionStatus,
	mutate func(rec *repository.SessionRecord) error,
) error {
	var actual model.SessionStatus
	var token string
	errInvalid := errors.New("invalid transition")

	err := s.store.Update(event.SessionID, func(rec *repository.SessionRecord) error {
		actual = rec.Session.Status
		if actual != from {
			return errInvalid
		}
		if err := mutate(rec); err != nil {
			return err
		}
		rec.Session.Status = to
		rec.Session.LastReason = event.Reason
		if rec.Credential != nil {
			token = rec.Credential.Token
		}
		return nil
	})

	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		return apperrors.NotFound("Session")
	case errors.Is(err, errInvalid):
		return s.rejectTransition(event, actual)
	case err != nil:
		log.Error().Err(err).Str("sessionId", event.SessionID).Str("to", string(to)).Msg("session transition failed")
		_, _ = s.terminate(ctx, event.SessionID, model.SessionStatusError, fmt.Sprintf("transition to %s failed", to))
		return apperrors.Internal("Session transition failed").WithCause(err)
	}

	s.record(ctx, model.SessionEvent{
		SessionID: event.SessionID,
		From:      from,
		To:        to,
		Reason:    event.Reason,
		At:        time.Now(),
	})

	if to == model.SessionStatusReady {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventCredentialIssue,
			SessionID: event.SessionID,
			Details: map[string]interface{}{
				"token":       util.MaskToken(token),
				"fingerprint": util.HashToken(token)[:16],
			},
		})
	}
	return nil
}

func (s *SessionService) rejectTransition(event engine.Event, from model.SessionStatus) error {
	log.Warn().
		Str("sessionId", event.SessionID).
		Str("status", string(from)).
		Str("event", string(event.Type)).
		Msg("engine event rejected")
	return apperrors.InvalidTransition(string(from), string(event.Type))
}

// terminate records a terminal status, removes the session together with its
// credential and closes the engine handle outside the session lock.
func (s *SessionService) terminate(ctx context.Context, id string, to model.SessionStatus, reason string) (*model.SessionEvent, error) {
	var from model.SessionStatus
	removed, err := s.store.Delete(id, func(rec *repository.SessionRecord) error {
		from = rec.Session.Status
		rec.Session.Status = to
		rec.Session.LastReason = reason
		rec.Session.AuthCode = nil
		return nil
	})
	if err != nil {
		return nil, apperrors.NotFound("Session")
	}

	evt := model.SessionEvent{SessionID: id, From: from, To: to, Reason: reason, At: time.Now()}
	s.record(ctx, evt)

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionTeardown,
		SessionID: id,
		Details: map[string]interface{}{
			"status":            string(to),
			"reason":            reason,
			"credentialRevoked": removed.Credential != nil,
		},
	})

	if removed.Handle != nil {
		closeHandle(id, removed.Handle)
	}
	return &evt, nil
}

func closeHandle(id string, handle engine.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), handleCloseTimeout)
	defer cancel()
	if err := handle.Close(ctx); err != nil {
		log.Warn().Err(err).Str("sessionId", id).Msg("failed to close engine handle")
	}
}

func (s *SessionService) record(ctx context.Context, evt model.SessionEvent) {
	log.Info().
		Str("sessionId", evt.SessionID).
		Str("from", string(evt.From)).
		Str("to", string(evt.To)).
		Str("reason", evt.Reason).
		Msg("session transition")

	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal session event")
		return
	}
	if err := s.publisher.Publish(ctx, evt.SessionID, sse.Event{Type: SessionEventType, Data: data}); err != nil {
		log.Warn().Err(err).Str("sessionId", evt.SessionID).Msg("failed to publish session event")
	}
}

// GetStatus returns a snapshot of the session. It never waits on engine work.
func (s *SessionService) GetStatus(ctx context.Context, id string) (*model.Session, error) {
	session, err := s.store.Get(id)
	if err != nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

// Teardown ends a session on request of its owner.
func (s *SessionService) Teardown(ctx context.Context, id, reason string) error {
	_, err := s.terminate(ctx, id, model.SessionStatusDisconnected, reason)
	return err
}

// WaitForCode blocks until the session shows a pairing code. The session is
// torn down when the configured ceiling passes or ctx is canceled first.
func (s *SessionService) WaitForCode(ctx context.Context, id string) (*model.Session, error) {
	timer := time.NewTimer(s.codeWait)
	defer timer.Stop()

	for {
		session, changed, err := s.store.Watch(id)
		if err != nil {
			return nil, apperrors.CodeFailed("session terminated before a code was available")
		}

		switch session.Status {
		case model.SessionStatusCodeReady:
			return session, nil
		case model.SessionStatusInitializing:
		default:
			return nil, apperrors.CodeFailed(fmt.Sprintf("session is %s", session.Status))
		}

		select {
		case <-changed:
		case <-timer.C:
			log.Warn().Str("sessionId", id).Dur("elapsed", s.codeWait).Msg("pairing code wait timed out")
			_, _ = s.terminate(context.WithoutCancel(ctx), id, model.SessionStatusDisconnected, ReasonCodeWaitTimeout)
			return nil, apperrors.CodeTimeout()
		case <-ctx.Done():
			_, _ = s.terminate(context.WithoutCancel(ctx), id, model.SessionStatusDisconnected, ReasonCodeWaitCanceled)
			return nil, apperrors.CodeFailed("request canceled").WithCause(ctx.Err())
		}
	}
}

// ReapStale tears down sessions still pairing (INITIALIZING or CODE_READY)
// after maxAge. A non-positive maxAge reaps nothing.
func (s *SessionService) ReapStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-maxAge)
	var count int64
	for _, session := range s.store.List() {
		if !isPairing(session.Status) || session.CreatedAt.After(cutoff) {
			continue
		}
		if _, err := s.terminate(ctx, session.ID, model.SessionStatusDisconnected, ReasonPairingExpired); err == nil {
			count++
		}
	}
	return count, nil
}

func isPairing(status model.SessionStatus) bool {
	return status == model.SessionStatusInitializing || status == model.SessionStatusCodeReady
}

// Shutdown tears down every live session.
func (s *SessionService) Shutdown(ctx context.Context) {
	for _, session := range s.store.List() {
		_, _ = s.terminate(ctx, session.ID, model.SessionStatusDisconnected, ReasonShutdown)
	}
}

func (s *SessionService) ActiveSessions() int {
	return s.store.Count()
}
