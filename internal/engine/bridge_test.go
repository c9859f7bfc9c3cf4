package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/wagate/internal/model"
	"github.com/openclaw/wagate/internal/util"
)

type recordedRequest struct {
	Method    string
	Path      string
	Body      []byte
	Signature string
}

type sidecar struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	response string
}

func newSidecar(t *testing.T) (*sidecar, *httptest.Server) {
	sc := &sidecar{status: http.StatusOK, response: `{"id":"msg-1"}`}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		sc.mu.Lock()
		sc.requests = append(sc.requests, recordedRequest{
			Method:    r.Method,
			Path:      r.URL.Path,
			Body:      body,
			Signature: r.Header.Get(SignatureHeader),
		})
		status, response := sc.status, sc.response
		sc.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return sc, srv
}

func (s *sidecar) last() recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

type recordingHandler struct {
	events []Event
}

func (h *recordingHandler) HandleEvent(ctx context.Context, event Event) error {
	h.events = append(h.events, event)
	return nil
}

func TestBridge_Start(t *testing.T) {
	t.Run("registers handler and posts signed start request", func(t *testing.T) {
		sc, srv := newSidecar(t)
		bridge := NewBridge(srv.URL+"/", "https://gw.example.com/engine/events", "secret", time.Second)
		handler := &recordingHandler{}

		handle, err := bridge.Start(context.Background(), "sess-1", handler)
		require.NoError(t, err)
		require.NotNil(t, handle)

		req := sc.last()
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/sessions", req.Path)
		assert.Equal(t, util.HmacSHA256("secret", string(req.Body)), req.Signature)

		var body map[string]string
		require.NoError(t, json.Unmarshal(req.Body, &body))
		assert.Equal(t, "sess-1", body["sessionId"])
		assert.Equal(t, "https://gw.example.com/engine/events", body["callbackUrl"])
		assert.Equal(t, 1, bridge.ActiveInstances())
	})

	t.Run("unregisters handler when sidecar rejects start", func(t *testing.T) {
		sc, srv := newSidecar(t)
		sc.status = http.StatusServiceUnavailable
		sc.response = `{"error":"browser pool exhausted"}`
		bridge := NewBridge(srv.URL, "", "", time.Second)

		handle, err := bridge.Start(context.Background(), "sess-1", &recordingHandler{})
		assert.Error(t, err)
		assert.Nil(t, handle)
		assert.Contains(t, err.Error(), "503")
		assert.Equal(t, 0, bridge.ActiveInstances())
	})

	t.Run("omits signature when no secret configured", func(t *testing.T) {
		sc, srv := newSidecar(t)
		bridge := NewBridge(srv.URL, "", "", time.Second)

		_, err := bridge.Start(context.Background(), "sess-1", &recordingHandler{})
		require.NoError(t, err)
		assert.Empty(t, sc.last().Signature)
	})
}

func TestBridge_Deliver(t *testing.T) {
	t.Run("routes event to the session handler", func(t *testing.T) {
		_, srv := newSidecar(t)
		bridge := NewBridge(srv.URL, "", "", time.Second)
		handler := &recordingHandler{}
		_, err := bridge.Start(context.Background(), "sess-1", handler)
		require.NoError(t, err)

		event := Event{SessionID: "sess-1", Type: model.EngineEventCodeReady, Code: "2@abc"}
		require.NoError(t, bridge.Deliver(context.Background(), event))

		require.Len(t, handler.events, 1)
		assert.Equal(t, event, handler.events[0])
	})

	t.Run("returns ErrUnknownSession for unregistered session", func(t *testing.T) {
		bridge := NewBridge("http://127.0.0.1:1", "", "", time.Second)

		err := bridge.Deliver(context.Background(), Event{SessionID: "missing", Type: model.EngineEventReady})
		assert.ErrorIs(t, err, ErrUnknownSession)
	})
}

func TestBridgeHandle_Send(t *testing.T) {
	t.Run("sends text and returns message id", func(t *testing.T) {
		sc, srv := newSidecar(t)
		bridge := NewBridge(srv.URL, "", "", time.Second)
		handle, err := bridge.Start(context.Background(), "sess-1", &recordingHandler{})
		require.NoError(t, err)

		id, err := handle.SendText(context.Background(), "911234567890@c.us", "hi")
		require.NoError(t, err)
		assert.Equal(t, "msg-1", id)

		req := sc.last()
		assert.Equal(t, "/sessions/sess-1/messages", req.Path)
		var body map[string]any
		require.NoError(t, json.Unmarshal(req.Body, &body))
		assert.Equal(t, "911234567890@c.us", body["chatId"])
		assert.Equal(t, "hi", body["text"])
		assert.NotContains(t, body, "media")
	})

	t.Run("sends media as base64 with caption", func(t *testing.T) {
		sc, srv := newSidecar(t)
		bridge := NewBridge(srv.URL, "", "", time.Second)
		handle, err := bridge.Start(context.Background(), "sess-1", &recordingHandler{})
		require.NoError(t, err)

		media := &model.NormalizedMedia{MimeType: "image/png", Filename: "cat.png", Data: []byte{0x89, 'P', 'N', 'G'}}
		_, err = handle.SendMedia(context.Background(), "1@c.us", media, "look")
		require.NoError(t, err)

		var body struct {
			Caption string `json:"caption"`
			Media   struct {
				MimeType string `json:"mimetype"`
				Data     string `json:"data"`
				Filename string `json:"filename"`
			} `json:"media"`
		}
		require.NoError(t, json.Unmarshal(sc.last().Body, &body))
		assert.Equal(t, "look", body.Caption)
		assert.Equal(t, "image/png", body.Media.MimeType)
		assert.Equal(t, "cat.png", body.Media.Filename)
		assert.Equal(t, base64.StdEncoding.EncodeToString(media.Data), body.Media.Data)
	})

	t.Run("fails when sidecar returns no id", func(t *testing.T) {
		sc, srv := newSidecar(t)
		bridge := NewBridge(srv.URL, "", "", time.Second)
		handle, err := bridge.Start(context.Background(), "sess-1", &recordingHandler{})
		require.NoError(t, err)

		sc.mu.Lock()
		sc.response = `{}`
		sc.mu.Unlock()

		_, err = handle.SendText(context.Background(), "1@c.us", "hi")
		assert.Error(t, err)
	})
}

func TestBridgeHandle_Close(t *testing.T) {
	t.Run("deletes instance once and unregisters handler", func(t *testing.T) {
		sc, srv := newSidecar(t)
		bridge := NewBridge(srv.URL, "", "", time.Second)
		handle, err := bridge.Start(context.Background(), "sess-1", &recordingHandler{})
		require.NoError(t, err)

		require.NoError(t, handle.Close(context.Background()))
		require.NoError(t, handle.Close(context.Background()))

		sc.mu.Lock()
		defer sc.mu.Unlock()
		deletes := 0
		for _, r := range sc.requests {
			if r.Method == http.MethodDelete {
				deletes++
				assert.Equal(t, "/sessions/sess-1", r.Path)
			}
		}
		assert.Equal(t, 1, deletes)
		assert.Equal(t, 0, bridge.ActiveInstances())
	})
}
