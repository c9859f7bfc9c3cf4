package model

import "time"

// Session is a point-in-time snapshot of one pairing-and-messaging context.
type Session struct {
	ID         string        `json:"sessionId"`
	Status     SessionStatus `json:"status"`
	AuthCode   *string       `json:"qrCode,omitempty"`
	LastReason string        `json:"reason,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	// Token is the current credential token; set only while Status is READY.
	Token *string `json:"-"`
}

// StatusMessage returns the human readable hint shown next to a status.
func StatusMessage(status SessionStatus) string {
	switch status {
	case SessionStatusInitializing:
		return "Session is initializing. Please wait."
	case SessionStatusCodeReady:
		return "QR code has been generated. Please scan it."
	case SessionStatusAuthenticated:
		return "User authenticated. Client is getting ready."
	case SessionStatusReady:
		return "Session is active and ready to send messages."
	case SessionStatusDisconnected:
		return "User has disconnected. Please request a new QR code."
	case SessionStatusAuthFailed:
		return "Authentication failed. Please try again."
	case SessionStatusError:
		return "Session failed. Please request a new QR code."
	case SessionStatusNotFound:
		return "Session not found. Please request a new QR code."
	default:
		return "Unknown status."
	}
}

// SessionEvent is published whenever a session changes state.
type SessionEvent struct {
	SessionID string        `json:"sessionId"`
	From      SessionStatus `json:"from"`
	To        SessionStatus `json:"to"`
	Reason    string        `json:"reason,omitempty"`
	At        time.Time     `json:"at"`
}
