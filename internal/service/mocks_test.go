package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/openclaw/wagate/internal/engine"
	"github.com/openclaw/wagate/internal/model"
	"github.com/openclaw/wagate/internal/sse"
)

type mockHandle struct {
	mock.Mock
}

func (m *mockHandle) SendText(ctx context.Context, chatID, text string) (string, error) {
	args := m.Called(ctx, chatID, text)
	return args.String(0), args.Error(1)
}

func (m *mockHandle) SendMedia(ctx context.Context, chatID string, media *model.NormalizedMedia, caption string) (string, error) {
	args := m.Called(ctx, chatID, media, caption)
	return args.String(0), args.Error(1)
}

func (m *mockHandle) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type fakeEngine struct {
	mu      sync.Mutex
	handle  engine.Handle
	err     error
	onStart func(ctx context.Context, sessionID string, events engine.EventHandler)
	started []string
}

func (e *fakeEngine) Start(ctx context.Context, sessionID string, events engine.EventHandler) (engine.Handle, error) {
	e.mu.Lock()
	e.started = append(e.started, sessionID)
	e.mu.Unlock()

	if e.onStart != nil {
		e.onStart(ctx, sessionID, events)
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.handle, nil
}

type stubRenderer struct {
	err error
}

func (r stubRenderer) Render(code string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "data:image/png;base64," + code, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, sessionID string, event sse.Event) error {
	var evt model.SessionEvent
	if err := json.Unmarshal(event.Data, &evt); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) transitions() []model.SessionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.SessionStatus, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.To)
	}
	return out
}

type stubResolver struct {
	results map[string]*model.NormalizedMedia
}

func (r stubResolver) Resolve(ctx context.Context, d model.MediaDescriptor) (*model.NormalizedMedia, error) {
	if media, ok := r.results[d.RemoteURL]; ok {
		return media, nil
	}
	return nil, errFetch
}

var errFetch = errors.New("fetch failed")
