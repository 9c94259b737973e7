package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/pixvault/internal/kv"
	"github.com/iliyamo/pixvault/internal/model"
	"github.com/iliyamo/pixvault/internal/utils"
)

// SessionRepo issues, resolves and revokes opaque bearer sessions.
//
// A session moves Active -> Expired when its TTL elapses and Expired ->
// Deleted the first time it is observed; Revoke moves Active -> Deleted
// directly. Nothing moves a session out of Deleted.
type SessionRepo struct {
	Store kv.Store
	Now   func() time.Time
}

// NewSessionRepo returns a SessionRepo using the wall clock.
func NewSessionRepo(s kv.Store) *SessionRepo { return &SessionRepo{Store: s, Now: time.Now} }

func (r *SessionRepo) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

// Issue creates a session for accountID valid for ttl.
func (r *SessionRepo) Issue(ctx context.Context, accountID string, ttl time.Duration) (*model.Session, error) {
	token, err := utils.NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	now := r.now()
	s := &model.Session{
		UserID:    accountID,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := kv.SetJSON(ctx, r.Store, sessionKey(token), s); err != nil {
		return nil, fmt.Errorf("write session: %w", err)
	}
	return s, nil
}

// Resolve loads the session for token. An expired session is deleted as a
// side effect and reported as ErrSessionExpired; later calls see
// ErrSessionNotFound.
func (r *SessionRepo) Resolve(ctx context.Context, token string) (*model.Session, error) {
	if !utils.IsSessionToken(token) {
		return nil, ErrSessionNotFound
	}
	var s model.Session
	if err := kv.GetJSON(ctx, r.Store, sessionKey(token), &s); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if s.ExpiredAt(r.now()) {
		// Best effort: if the delete fails the next Resolve retries it.
		_ = r.Store.Delete(ctx, sessionKey(token))
		return nil, ErrSessionExpired
	}
	return &s, nil
}

// Revoke deletes the session. Unknown, malformed and already revoked tokens
// are not errors.
func (r *SessionRepo) Revoke(ctx context.Context, token string) error {
	if !utils.IsSessionToken(token) {
		return nil
	}
	return r.Store.Delete(ctx, sessionKey(token))
}
