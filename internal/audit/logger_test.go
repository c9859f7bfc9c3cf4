package audit

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/wagate/internal/model"
)

type memorySink struct {
	mu     sync.Mutex
	events []model.CreateAuditEventParams
}

func (s *memorySink) Create(ctx context.Context, params model.CreateAuditEventParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, params)
	return nil
}

func TestLog(t *testing.T) {
	t.Run("persists events through the sink", func(t *testing.T) {
		sink := &memorySink{}
		stop := StartSink(sink)

		Log(context.Background(), Event{
			Type:      EventSessionCreate,
			SessionID: "sess-1",
			Details:   map[string]interface{}{"engine": "bridge"},
		})
		Log(context.Background(), Event{Type: EventSessionTeardown, SessionID: "sess-1"})

		stop()

		sink.mu.Lock()
		defer sink.mu.Unlock()
		require.Len(t, sink.events, 2)
		assert.Equal(t, "session_create", sink.events[0].Type)
		assert.Equal(t, "sess-1", sink.events[0].SessionID)
		assert.Equal(t, "bridge", sink.events[0].Details["engine"])
		assert.Equal(t, "session_teardown", sink.events[1].Type)
	})

	t.Run("does not persist after sink is stopped", func(t *testing.T) {
		sink := &memorySink{}
		stop := StartSink(sink)
		stop()

		Log(context.Background(), Event{Type: EventAuthFailure})

		sink.mu.Lock()
		defer sink.mu.Unlock()
		assert.Empty(t, sink.events)
	})
}

func TestLogFromRequest(t *testing.T) {
	t.Run("captures client ip and user agent", func(t *testing.T) {
		sink := &memorySink{}
		stop := StartSink(sink)

		req := httptest.NewRequest("POST", "/send_message", nil)
		req.Header.Set("X-Real-IP", "203.0.113.7")
		req.Header.Set("User-Agent", "wagatectl/1.0")
		LogFromRequest(req, Event{Type: EventAuthFailure})

		stop()

		sink.mu.Lock()
		defer sink.mu.Unlock()
		require.Len(t, sink.events, 1)
		assert.Equal(t, "203.0.113.7", sink.events[0].IP)
		assert.Equal(t, "wagatectl/1.0", sink.events[0].UserAgent)
	})
}

func TestGetClientIP(t *testing.T) {
	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", "198.51.100.1")
		req.Header.Set("X-Real-IP", "203.0.113.7")
		assert.Equal(t, "198.51.100.1", getClientIP(req))
	})

	t.Run("falls back to remote addr", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		assert.Equal(t, req.RemoteAddr, getClientIP(req))
	})
}
