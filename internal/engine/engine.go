// Package engine defines the contract between the gateway and the device-pairing
// automation engine that speaks the remote messaging protocol.
//
// An Engine starts one instance per session and reports lifecycle progress by
// calling the EventHandler it was started with. The returned Handle is owned by
// exactly one session and is closed when that session terminates.
package engine

import (
	"context"

	"github.com/openclaw/wagate/internal/model"
)

// Event is a lifecycle notification emitted by an engine instance.
type Event struct {
	SessionID string                `json:"sessionId"`
	Type      model.EngineEventType `json:"type"`
	// Code is the raw pairing code; set for code_ready.
	Code string `json:"code,omitempty"`
	// Reason is set for auth_failure and disconnected.
	Reason string `json:"reason,omitempty"`
}

// EventHandler consumes engine events.
type EventHandler interface {
	HandleEvent(ctx context.Context, event Event) error
}

// Handle is the per-session handle used to send messages.
type Handle interface {
	SendText(ctx context.Context, chatID, text string) (string, error)
	SendMedia(ctx context.Context, chatID string, media *model.NormalizedMedia, caption string) (string, error)
	Close(ctx context.Context) error
}

// Engine starts automation-engine instances. Start must not block until
// pairing completes; progress is reported through events.
type Engine interface {
	Start(ctx context.Context, sessionID string, events EventHandler) (Handle, error)
}
