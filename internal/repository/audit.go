package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/wagate/internal/model"
)

type AuditRepository interface {
	Create(ctx context.Context, params model.CreateAuditEventParams) error
	FindBySessionID(ctx context.Context, sessionID string, limit int) ([]model.AuditEvent, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) AuditRepository
}

// auditDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type auditDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type auditRepo struct {
	db auditDB
}

func NewAuditRepository(db *sqlx.DB) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) WithTx(tx *sqlx.Tx) AuditRepository {
	return &auditRepo{db: tx}
}

func (r *auditRepo) Create(ctx context.Context, params model.CreateAuditEventParams) error {
	// jsonb is sent as text; a []byte parameter would be encoded as bytea.
	var details *string
	if len(params.Details) > 0 {
		raw, err := json.Marshal(params.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = nullString(string(raw))
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (event_type, session_id, ip, user_agent, details)
		VALUES ($1, $2, $3, $4, $5)
	`, params.Type, nullString(params.SessionID), nullString(params.IP), nullString(params.UserAgent), details)
	return err
}

func (r *auditRepo) FindBySessionID(ctx context.Context, sessionID string, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []model.AuditEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM audit_events
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *auditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM audit_events WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
