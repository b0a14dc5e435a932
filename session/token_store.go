package session

import (
	"context"
	"errors"
)

// BoundTokenStore exposes the access token of one stored session through the
// Token/SetToken/ClearToken contract used by login flows.
type BoundTokenStore struct {
	store     *Store
	sessionID string
}

// Bind returns a token store scoped to sessionID.
func (s *Store) Bind(sessionID string) *BoundTokenStore {
	return &BoundTokenStore{store: s, sessionID: sessionID}
}

// SessionID returns the bound session identifier.
func (b *BoundTokenStore) SessionID() string {
	return b.sessionID
}

// Token returns the stored access token, or "" when the session has none or
// no longer exists.
func (b *BoundTokenStore) Token(ctx context.Context) (string, error) {
	sess, err := b.store.Get(ctx, b.sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return sess.AccessToken, nil
}

// SetToken stores token on the bound session.
func (b *BoundTokenStore) SetToken(ctx context.Context, token string) error {
	return b.store.Update(ctx, b.sessionID, func(sess *Session) error {
		sess.AccessToken = token
		return nil
	})
}

// ClearToken removes the access token. A missing session counts as cleared.
func (b *BoundTokenStore) ClearToken(ctx context.Context) error {
	err := b.store.Update(ctx, b.sessionID, func(sess *Session) error {
		sess.AccessToken = ""
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
