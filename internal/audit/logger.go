package audit

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/wagate/internal/model"
)

type EventType string

const (
	EventSessionCreate   EventType = "session_create"
	EventSessionReady    EventType = "session_ready"
	EventSessionTeardown EventType = "session_teardown"
	EventCredentialIssue EventType = "credential_issue"
	EventAuthFailure     EventType = "auth_failure"
	EventEngineSignature EventType = "engine_signature_failure"
	EventMessageDispatch EventType = "message_dispatch"
)

type Event struct {
	Type      EventType
	SessionID string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

// Sink persists audit events.
type Sink interface {
	Create(ctx context.Context, params model.CreateAuditEventParams) error
}

const (
	sinkBuffer       = 256
	sinkWriteTimeout = 5 * time.Second
)

type asyncSink struct {
	sink   Sink
	events chan model.CreateAuditEventParams
	done   chan struct{}
	wg     sync.WaitGroup
}

var current atomic.Pointer[asyncSink]

// StartSink begins persisting audit events to sink in the background. The
// returned function flushes pending events and detaches the sink.
func StartSink(sink Sink) func() {
	s := &asyncSink{
		sink:   sink,
		events: make(chan model.CreateAuditEventParams, sinkBuffer),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	current.Store(s)

	return func() {
		current.CompareAndSwap(s, nil)
		close(s.done)
		s.wg.Wait()
	}
}

func (s *asyncSink) run() {
	defer s.wg.Done()
	for {
		select {
		case params := <-s.events:
			s.write(params)
		case <-s.done:
			for {
				select {
				case params := <-s.events:
					s.write(params)
				default:
					return
				}
			}
		}
	}
}

func (s *asyncSink) write(params model.CreateAuditEventParams) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()
	if err := s.sink.Create(ctx, params); err != nil {
		log.Warn().Err(err).Str("event_type", params.Type).Msg("failed to persist audit event")
	}
}

func (s *asyncSink) enqueue(params model.CreateAuditEventParams) {
	select {
	case s.events <- params:
	default:
		log.Warn().Str("event_type", params.Type).Msg("audit sink buffer full, dropping event")
	}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")

	if s := current.Load(); s != nil {
		s.enqueue(model.CreateAuditEventParams{
			Type:      string(event.Type),
			SessionID: event.SessionID,
			IP:        event.IP,
			UserAgent: event.UserAgent,
			Details:   event.Details,
		})
	}
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = getClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
