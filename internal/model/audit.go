package model

import (
	"encoding/json"
	"time"
)

type AuditEvent struct {
	ID        int64            `db:"id" json:"id"`
	Type      string           `db:"event_type" json:"type"`
	SessionID *string          `db:"session_id" json:"sessionId,omitempty"`
	IP        *string          `db:"ip" json:"ip,omitempty"`
	UserAgent *string          `db:"user_agent" json:"userAgent,omitempty"`
	Details   *json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}

type CreateAuditEventParams struct {
	Type      string
	SessionID string
	IP        string
	UserAgent string
	Details   map[string]any
}
