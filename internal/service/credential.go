package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/openclaw/wagate/internal/errors"
	"github.com/openclaw/wagate/internal/model"
	"github.com/openclaw/wagate/internal/repository"
	"github.com/openclaw/wagate/internal/util"
)

// SessionClaims is the JWT payload bound to one session.
type SessionClaims struct {
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

// CredentialIssuer mints and verifies bearer credentials. It is the only
// writer of credentials in the session store.
type CredentialIssuer struct {
	store  repository.SessionStore
	secret []byte
	ttl    time.Duration
}

func NewCredentialIssuer(store repository.SessionStore, secret string, ttl time.Duration) *CredentialIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CredentialIssuer{
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
	}
}

func (c *CredentialIssuer) mint(sessionID string) (*model.Credential, error) {
	now := time.Now()
	expiresAt := now.Add(c.ttl)
	claims := &SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("sign credential: %w", err)
	}

	return &model.Credential{
		SessionID: sessionID,
		Token:     token,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: expiresAt,
	}, nil
}

// IssueInto mints a credential and stores it on rec, replacing any previous
// one. It is meant to run inside a SessionStore.Update callback so that the
// credential appears together with the READY status.
func (c *CredentialIssuer) IssueInto(rec *repository.SessionRecord) (*model.Credential, error) {
	cred, err := c.mint(rec.Session.ID)
	if err != nil {
		return nil, err
	}
	rec.Credential = cred
	return cred, nil
}

// Issue mints a fresh credential for an existing session.
func (c *CredentialIssuer) Issue(sessionID string) (*model.Credential, error) {
	var cred *model.Credential
	err := c.store.Update(sessionID, func(rec *repository.SessionRecord) error {
		var err error
		cred, err = c.IssueInto(rec)
		return err
	})
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, apperrors.NotFound("Session")
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to issue credential").WithCause(err)
	}
	return cred, nil
}

// Verify returns the session id the token is bound to. The token must carry a
// valid signature, be unexpired and still be the stored credential of a live
// session.
func (c *CredentialIssuer) Verify(ctx context.Context, token string) (string, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.SessionID == "" {
		return "", apperrors.InvalidToken("Invalid or expired session token")
	}

	stored, err := c.store.Credential(claims.SessionID)
	if err != nil {
		return "", apperrors.SessionRevoked()
	}
	if !util.ConstantTimeEqual(stored.Token, token) {
		return "", apperrors.SessionRevoked()
	}

	return claims.SessionID, nil
}
