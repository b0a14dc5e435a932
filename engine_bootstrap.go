package chamaWeb

import (
	"context"
	"errors"

	"github.com/MrEthical07/chamaWeb/jwt"
	"go.uber.org/zap"
)

// BootstrapResult says what Bootstrap found in the token store.
type BootstrapResult uint8

const (
	// BootstrapNoToken means nothing was stored.
	BootstrapNoToken BootstrapResult = iota
	// BootstrapValid means the stored token was accepted by the platform.
	BootstrapValid
	// BootstrapCleared means the stored token was rejected and removed.
	BootstrapCleared
)

func (r BootstrapResult) String() string {
	switch r {
	case BootstrapValid:
		return "valid"
	case BootstrapCleared:
		return "cleared"
	default:
		return "no-token"
	}
}

// Bootstrap validates a previously stored token once, with a single verify
// request and no retry. A token that is expired locally, refused by the
// platform or cannot be checked because the platform is unreachable is
// cleared. The returned error is only non-nil when the store itself fails.
func (e *Engine) Bootstrap(ctx context.Context, tokens TokenStore) (BootstrapResult, error) {
	if e == nil || e.closed.Load() {
		return BootstrapNoToken, ErrEngineNotReady
	}
	if tokens == nil {
		return BootstrapNoToken, errors.New("nil token store")
	}

	token, err := tokens.Token(ctx)
	if err != nil {
		return BootstrapNoToken, err
	}
	if token == "" {
		e.metrics.Inc(MetricBootstrapNoToken)
		return BootstrapNoToken, nil
	}

	valid, reason := e.verify(ctx, token)
	if valid {
		e.metrics.Inc(MetricBootstrapValid)
		e.emitAudit(ctx, AuditBootstrapValid, true, "", "", nil, nil)
		return BootstrapValid, nil
	}

	if err := tokens.ClearToken(ctx); err != nil {
		return BootstrapCleared, err
	}
	e.metrics.Inc(MetricBootstrapCleared)
	e.emitAudit(ctx, AuditBootstrapCleared, false, "", "", nil, map[string]string{"reason": reason})
	e.log.Info("stored token cleared", zap.String("reason", reason))
	return BootstrapCleared, nil
}

// VerifyToken reports whether the platform accepts token. It returns
// [ErrUnauthorized] for a rejected token and wraps [ErrTransport] when the
// platform could not be reached.
func (e *Engine) VerifyToken(ctx context.Context, token string) error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrUnauthorized
	}
	if e.locallyRejected(token) {
		return ErrUnauthorized
	}
	ok, err := e.api.Verify(ctx, token)
	if err != nil {
		return newLoginError(ErrTransport, MsgStatusCheckError, err)
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) verify(ctx context.Context, token string) (bool, string) {
	if e.locallyRejected(token) {
		return false, "expired"
	}
	ok, err := e.api.Verify(ctx, token)
	if err != nil {
		e.log.Warn("token verification unreachable", zap.Error(err))
		return false, "unreachable"
	}
	if !ok {
		return false, "rejected"
	}
	return true, ""
}

// locallyRejected skips the network for tokens that are plainly expired or,
// when a secret is configured, carry a bad signature. Malformed tokens are
// left to the platform.
func (e *Engine) locallyRejected(token string) bool {
	_, err := e.inspector.Inspect(token)
	return errors.Is(err, jwt.ErrExpired) || errors.Is(err, jwt.ErrSignature)
}
