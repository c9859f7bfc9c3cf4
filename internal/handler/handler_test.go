package handler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/wagate/internal/engine"
	"github.com/openclaw/wagate/internal/middleware"
	"github.com/openclaw/wagate/internal/model"
	"github.com/openclaw/wagate/internal/repository"
	"github.com/openclaw/wagate/internal/service"
	"github.com/openclaw/wagate/internal/sse"
)

const testSecret = "handler-test-secret-long-enough-for-hs256"

type sentMedia struct {
	ChatID   string
	Filename string
	MimeType string
	Data     []byte
	Caption  string
}

type fakeHandle struct {
	mu     sync.Mutex
	texts  []string
	media  []sentMedia
	fail   bool
	closed int
}

func (h *fakeHandle) SendText(ctx context.Context, chatID, text string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		return "", fmt.Errorf("engine rejected message")
	}
	h.texts = append(h.texts, chatID+":"+text)
	return fmt.Sprintf("text-%d", len(h.texts)), nil
}

func (h *fakeHandle) SendMedia(ctx context.Context, chatID string, media *model.NormalizedMedia, caption string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		return "", fmt.Errorf("engine rejected media")
	}
	h.media = append(h.media, sentMedia{
		ChatID:   chatID,
		Filename: media.Filename,
		MimeType: media.MimeType,
		Data:     media.Data,
		Caption:  caption,
	})
	return fmt.Sprintf("media-%d", len(h.media)), nil
}

func (h *fakeHandle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
	return nil
}

type fakeEngine struct {
	handle   *fakeHandle
	err      error
	autoCode string
}

func (e *fakeEngine) Start(ctx context.Context, sessionID string, events engine.EventHandler) (engine.Handle, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.autoCode != "" {
		go func() {
			time.Sleep(10 * time.Millisecond)
			_ = events.HandleEvent(context.Background(), engine.Event{
				SessionID: sessionID,
				Type:      model.EngineEventCodeReady,
				Code:      e.autoCode,
			})
		}()
	}
	return e.handle, nil
}

type testApp struct {
	store    repository.SessionStore
	engine   *fakeEngine
	handle   *fakeHandle
	broker   *sse.Broker
	issuer   *service.CredentialIssuer
	sessions *service.SessionService
	messages *service.MessageService
}

func newTestApp(t *testing.T, codeWait time.Duration) *testApp {
	t.Helper()
	store := repository.NewSessionStore()
	handle := &fakeHandle{}
	eng := &fakeEngine{handle: handle}
	broker := sse.NewBroker(nil)
	t.Cleanup(broker.Close)
	issuer := service.NewCredentialIssuer(store, testSecret, time.Hour)

	return &testApp{
		store:    store,
		engine:   eng,
		handle:   handle,
		broker:   broker,
		issuer:   issuer,
		sessions: service.NewSessionService(store, eng, service.NewQRCodeRenderer(), issuer, broker, codeWait),
		messages: service.NewMessageService(store, service.NewMediaResolver(5*time.Second, 1<<20)),
	}
}

// readySession drives a new session to READY and returns its id and token.
func (a *testApp) readySession(t *testing.T) (string, string) {
	t.Helper()
	ctx := context.Background()
	id, err := a.sessions.CreateSession(ctx)
	require.NoError(t, err)

	for _, evt := range []engine.Event{
		{SessionID: id, Type: model.EngineEventCodeReady, Code: "pairing-code"},
		{SessionID: id, Type: model.EngineEventAuthenticated},
		{SessionID: id, Type: model.EngineEventReady},
	} {
		require.NoError(t, a.sessions.HandleEvent(ctx, evt))
	}

	session, err := a.sessions.GetStatus(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, session.Token)
	return id, *session.Token
}

func withSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, middleware.SessionIDContextKey, id)
}
