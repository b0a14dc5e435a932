package chamaWeb

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/chamaWeb/session"
)

// SessionInfo is the safe view of a browser session. It never carries the
// access token.
type SessionInfo struct {
	SessionID     string
	Phone         string
	LoginState    string
	Authenticated bool
	CreatedAt     int64
	ExpiresAt     int64
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// GetSessionInfo returns the masked view of one browser session.
func (e *Engine) GetSessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	info := toSessionInfo(sess)
	return &info, nil
}

// ActiveSessionEstimate returns the tracked number of live browser sessions.
func (e *Engine) ActiveSessionEstimate(ctx context.Context) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessions.Count(ctx)
}

// Health pings Redis. Without Redis it reports unavailable.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessions == nil {
		return HealthStatus{}
	}

	latency, err := e.sessions.Ping(ctx)
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   latency,
	}
}

// GetInitiateAttempts reports how many initiations phone has used in the
// current window.
func (e *Engine) GetInitiateAttempts(ctx context.Context, phoneNumber string) (int, error) {
	if e == nil || e.limiter == nil {
		return 0, ErrEngineNotReady
	}
	if phoneNumber == "" {
		return 0, nil
	}
	return e.limiter.Attempts(ctx, phoneNumber)
}

func toSessionInfo(sess *session.Session) SessionInfo {
	return SessionInfo{
		SessionID:     sess.SessionID,
		Phone:         maskPhone(sess.Phone),
		LoginState:    sess.LoginState.String(),
		Authenticated: sess.Authenticated(),
		CreatedAt:     sess.CreatedAt,
		ExpiresAt:     sess.ExpiresAt,
	}
}

// IsSessionNotFound reports whether err means the browser session is gone.
func IsSessionNotFound(err error) bool {
	return errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrInvalidID)
}
