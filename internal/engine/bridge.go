package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/wagate/internal/model"
	"github.com/openclaw/wagate/internal/util"
)

const (
	SignatureHeader    = "X-Engine-Signature"
	maxErrorBodyBytes  = 512
	maxResponseBytes   = 1 << 20
	defaultBridgeLimit = 60 * time.Second
)

var ErrUnknownSession = errors.New("engine: unknown session")

// Bridge drives an automation-engine sidecar over HTTP. The sidecar posts
// lifecycle events back to the gateway, which hands them to Deliver.
type Bridge struct {
	baseURL     string
	callbackURL string
	secret      string
	client      *http.Client

	mu       sync.RWMutex
	handlers map[string]EventHandler
}

func NewBridge(baseURL, callbackURL, secret string, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = defaultBridgeLimit
	}
	return &Bridge{
		baseURL:     strings.TrimRight(baseURL, "/"),
		callbackURL: callbackURL,
		secret:      secret,
		client: &http.Client{
			Timeout: timeout,
		},
		handlers: make(map[string]EventHandler),
	}
}

type startRequest struct {
	SessionID   string `json:"sessionId"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

func (b *Bridge) Start(ctx context.Context, sessionID string, events EventHandler) (Handle, error) {
	// Register before the sidecar can call back.
	b.mu.Lock()
	b.handlers[sessionID] = events
	b.mu.Unlock()

	err := b.do(ctx, http.MethodPost, "/sessions", startRequest{
		SessionID:   sessionID,
		CallbackURL: b.callbackURL,
	}, nil)
	if err != nil {
		b.unregister(sessionID)
		return nil, fmt.Errorf("start engine instance: %w", err)
	}

	log.Info().Str("sessionId", sessionID).Msg("engine instance started")

	return &bridgeHandle{bridge: b, sessionID: sessionID}, nil
}

// Deliver routes an event received from the sidecar to the handler of its session.
func (b *Bridge) Deliver(ctx context.Context, event Event) error {
	b.mu.RLock()
	handler, ok := b.handlers[event.SessionID]
	b.mu.RUnlock()

	if !ok {
		return ErrUnknownSession
	}
	return handler.HandleEvent(ctx, event)
}

// ActiveInstances returns the number of sessions with a registered handler.
func (b *Bridge) ActiveInstances() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

func (b *Bridge) unregister(sessionID string) {
	b.mu.Lock()
	delete(b.handlers, sessionID)
	b.mu.Unlock()
}

func (b *Bridge) do(ctx context.Context, method, path string, payload any, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.secret != "" {
		req.Header.Set(SignatureHeader, util.HmacSHA256(b.secret, string(body)))
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("method", method).
			Str("path", path).
			Dur("elapsed", elapsed).
			Msg("engine request error")
		return fmt.Errorf("engine request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		log.Error().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("engine request failed")
		return fmt.Errorf("engine responded with status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("engine request successful")

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode engine response: %w", err)
	}
	return nil
}

type bridgeHandle struct {
	bridge    *Bridge
	sessionID string
	closeOnce sync.Once
	closeErr  error
}

type sendMediaPayload struct {
	MimeType string `json:"mimetype"`
	Data     string `json:"data"`
	Filename string `json:"filename"`
}

type sendRequest struct {
	ChatID  string            `json:"chatId"`
	Text    string            `json:"text,omitempty"`
	Caption string            `json:"caption,omitempty"`
	Media   *sendMediaPayload `json:"media,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

func (h *bridgeHandle) messagesPath() string {
	return "/sessions/" + url.PathEscape(h.sessionID) + "/messages"
}

func (h *bridgeHandle) SendText(ctx context.Context, chatID, text string) (string, error) {
	return h.send(ctx, sendRequest{ChatID: chatID, Text: text})
}

func (h *bridgeHandle) SendMedia(ctx context.Context, chatID string, media *model.NormalizedMedia, caption string) (string, error) {
	return h.send(ctx, sendRequest{
		ChatID:  chatID,
		Caption: caption,
		Media: &sendMediaPayload{
			MimeType: media.MimeType,
			Data:     base64.StdEncoding.EncodeToString(media.Data),
			Filename: media.Filename,
		},
	})
}

func (h *bridgeHandle) send(ctx context.Context, req sendRequest) (string, error) {
	var resp sendResponse
	if err := h.bridge.do(ctx, http.MethodPost, h.messagesPath(), req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("engine returned no message id")
	}
	return resp.ID, nil
}

// Close stops the engine instance. Safe to call more than once.
func (h *bridgeHandle) Close(ctx context.Context) error {
	h.closeOnce.Do(func() {
		h.bridge.unregister(h.sessionID)
		h.closeErr = h.bridge.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(h.sessionID), nil, nil)
		if h.closeErr == nil {
			log.Info().Str("sessionId", h.sessionID).Msg("engine instance stopped")
		}
	})
	return h.closeErr
}
