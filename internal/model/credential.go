package model

import "time"

// Credential is the bearer token minted when a session reaches READY.
type Credential struct {
	SessionID string    `json:"sessionId"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
