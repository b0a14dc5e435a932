package chamaWeb

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/chamaWeb/apiclient"
	"github.com/MrEthical07/chamaWeb/clock"
	"github.com/MrEthical07/chamaWeb/internal/rate"
	"github.com/MrEthical07/chamaWeb/phone"
	"go.uber.org/zap"
)

// PollInterval is the fixed delay between status polls.
const PollInterval = 2 * time.Second

// HandshakeStatus is the phase of one out-of-band login.
type HandshakeStatus uint8

const (
	StatusIdle HandshakeStatus = iota
	StatusAwaitingConfirmation
	StatusSucceeded
	StatusFailed
	StatusExpired
	// StatusCancelled is the released state entered through Cancel.
	StatusCancelled
)

func (s HandshakeStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusAwaitingConfirmation:
		return "awaiting-confirmation"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusExpired:
		return "expired"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s HandshakeStatus) Terminal() bool {
	return s >= StatusSucceeded
}

/*
====================================
POLL OUTCOMES
====================================
*/

// PollOutcomeKind classifies one status answer.
type PollOutcomeKind uint8

const (
	PollPending PollOutcomeKind = iota
	PollConfirmed
	PollExpired
	PollFailed
)

// PollOutcome is the interpretation of one status request. Token is set for
// PollConfirmed; Message and Err are set for PollExpired and PollFailed.
type PollOutcome struct {
	Kind    PollOutcomeKind
	Token   string
	Message string
	Err     error
}

// PollOnce issues one status request for requestID and interprets the answer.
// It never touches handshake state. A transport failure is reported as
// PollFailed, and an access token wins over any status value.
func (e *Engine) PollOnce(ctx context.Context, requestID string) PollOutcome {
	e.metrics.Inc(MetricPollSent)

	resp, err := e.api.MpesaLoginStatus(ctx, requestID)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			msg := apiErr.Detail
			if msg == "" {
				msg = MsgStatusCheckFailed
			}
			return PollOutcome{Kind: PollFailed, Message: msg, Err: newLoginError(ErrRemoteFailed, msg, err)}
		}
		e.metrics.Inc(MetricPollTransportError)
		return PollOutcome{Kind: PollFailed, Message: MsgStatusCheckError, Err: newLoginError(ErrTransport, MsgStatusCheckError, err)}
	}

	if resp.AccessToken != "" {
		return PollOutcome{Kind: PollConfirmed, Token: resp.AccessToken}
	}

	switch strings.ToLower(strings.TrimSpace(resp.Status)) {
	case "expired":
		msg := remoteMessage(resp.Message)
		return PollOutcome{Kind: PollExpired, Message: msg, Err: newLoginError(ErrRemoteExpired, msg, nil)}
	case "failed":
		msg := remoteMessage(resp.Message)
		return PollOutcome{Kind: PollFailed, Message: msg, Err: newLoginError(ErrRemoteFailed, msg, nil)}
	default:
		e.metrics.Inc(MetricPollPending)
		return PollOutcome{Kind: PollPending}
	}
}

func remoteMessage(msg string) string {
	if msg == "" {
		return MsgLoginFailed
	}
	return msg
}

/*
====================================
HANDSHAKE
====================================
*/

// HandshakeOptions wires one handshake to its caller.
type HandshakeOptions struct {
	// Tokens receives the access token before OnSuccess runs. Nil skips persistence.
	Tokens TokenStore
	// Notifier receives user-facing notices. Nil discards them.
	Notifier Notifier
	// OnSuccess is called once with the access token.
	OnSuccess func(token string)
	// OnFailure is called once with the terminal error.
	OnFailure func(err error)
}

// HandshakeSnapshot is a point-in-time view of a handshake.
type HandshakeSnapshot struct {
	Status    HandshakeStatus
	RequestID string
	Phone     string
	Message   string
	Polls     int
	StartedAt time.Time
}

// Handshake drives one out-of-band login: initiate, then poll every
// [PollInterval] until the platform confirms, refuses or expires the request.
// At most one poll timer is armed at a time and it is only re-armed from its
// own callback. A Handshake is single-use once it reaches a terminal state.
type Handshake struct {
	e    *Engine
	opts HandshakeOptions

	ctx    context.Context
	cancel context.CancelFunc

	// attempt scopes the requests of the current initiation; re-initiating
	// cancels it.
	attempt       context.Context
	cancelAttempt context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once

	mu        sync.Mutex
	status    HandshakeStatus
	gen       uint64
	timer     clock.Timer
	phone     string
	requestID string
	lastID    string
	token     string
	err       error
	startedAt time.Time
	polls     int

	sessionID string
	ip        string
	userAgent string
}

// NewHandshake returns an idle handshake bound to the engine.
func (e *Engine) NewHandshake(opts HandshakeOptions) (*Handshake, error) {
	if e == nil || e.closed.Load() {
		return nil, ErrEngineNotReady
	}
	if opts.Notifier == nil {
		opts.Notifier = noopNotifier{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Handshake{
		e:      e,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		status: StatusIdle,
	}, nil
}

// Initiate normalizes raw, asks the platform to push a confirmation prompt
// and, on success, arms the first poll. It returns the request id.
//
// An empty number or an exhausted rate budget is rejected without changing
// state. A refused or unreachable initiation ends the handshake in
// StatusFailed and never arms a timer. Calling Initiate while awaiting
// confirmation replaces the previous attempt.
func (h *Handshake) Initiate(ctx context.Context, raw string) (string, error) {
	phoneNumber := phone.Normalize(raw)
	if phoneNumber == "" {
		h.e.metrics.Inc(MetricInitiateRejected)
		h.notify(NoticeError, MsgEnterPhone)
		return "", newLoginError(ErrValidation, MsgEnterPhone, nil)
	}

	if h.Status().Terminal() {
		return "", ErrHandshakeClosed
	}

	ip := clientIPFromContext(ctx)
	if h.e.limiter != nil {
		if err := h.e.limiter.AllowInitiate(ctx, phoneNumber, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				h.e.metrics.Inc(MetricInitiateRateLimited)
				h.notify(NoticeError, MsgTooManyAttempts)
				h.e.emitAudit(ctx, AuditHandshakeRejected, false, "", phoneNumber, ErrRateLimited, nil)
				return "", newLoginError(ErrRateLimited, MsgTooManyAttempts, err)
			}
			h.e.log.Warn("initiate rate limiter unavailable", zap.Error(err))
		}
	}

	h.mu.Lock()
	if h.status.Terminal() {
		h.mu.Unlock()
		return "", ErrHandshakeClosed
	}
	h.stopTimerLocked()
	h.gen++
	gen := h.gen
	h.resetAttemptLocked()
	attempt := h.attempt
	h.status = StatusIdle
	h.requestID = ""
	h.phone = phoneNumber
	h.sessionID = sessionIDFromContext(ctx)
	h.ip = ip
	h.userAgent = userAgentFromContext(ctx)
	h.mu.Unlock()

	reqCtx, cancelReq := context.WithCancel(ctx)
	stopRelay := context.AfterFunc(attempt, cancelReq)
	resp, err := h.e.api.InitiateMpesaLogin(reqCtx, phoneNumber)
	stopRelay()
	cancelReq()

	h.mu.Lock()
	if gen != h.gen || h.status.Terminal() {
		cancelled := h.status == StatusCancelled
		h.mu.Unlock()
		h.e.metrics.Inc(MetricStaleResponseDiscarded)
		h.e.log.Debug("initiation response discarded", zap.Bool("cancelled", cancelled))
		if cancelled {
			return "", ErrHandshakeCancelled
		}
		return "", ErrHandshakeSuperseded
	}

	if err != nil {
		msg := MsgMpesaLoginFailed
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			msg = apiErr.Detail
			if msg == "" {
				msg = MsgInitiateFailed
			}
		}
		loginErr := newLoginError(ErrInitiation, msg, err)
		complete := h.finishLocked(StatusFailed, loginErr)
		h.mu.Unlock()
		complete()
		return "", loginErr
	}

	h.requestID = resp.RequestID
	h.lastID = resp.RequestID
	h.status = StatusAwaitingConfirmation
	h.startedAt = h.e.clock.Now()
	h.armLocked(gen)
	h.mu.Unlock()

	h.e.metrics.Inc(MetricHandshakeStarted)
	h.notify(NoticeInfo, MsgCheckPhone)
	h.e.emitAudit(ctx, AuditHandshakeInitiated, true, resp.RequestID, phoneNumber, nil, nil)
	h.e.log.Info("mpesa login initiated",
		zap.String("request_id", resp.RequestID),
		zap.String("phone", maskPhone(phoneNumber)),
	)

	return resp.RequestID, nil
}

// Cancel stops polling and releases the handshake without calling OnSuccess
// or OnFailure. Any response still in flight is discarded when it arrives.
// Cancel is idempotent and a no-op once the handshake is terminal.
func (h *Handshake) Cancel() {
	h.mu.Lock()
	if h.status.Terminal() {
		h.mu.Unlock()
		return
	}
	from := h.status
	requestID := h.requestID
	phoneNumber := h.phone
	auditCtx := h.auditContext()
	h.stopTimerLocked()
	h.gen++
	h.status = StatusCancelled
	h.requestID = ""
	h.cancel()
	h.closeDone()
	h.mu.Unlock()

	h.e.metrics.Inc(MetricHandshakeCancelled)
	h.e.emitAudit(auditCtx, AuditHandshakeCancelled, true, requestID, phoneNumber, nil,
		map[string]string{"from": from.String()})
}

// Wait blocks until the handshake is terminal or ctx ends. It returns the
// access token on success.
func (h *Handshake) Wait(ctx context.Context) (string, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.status {
	case StatusSucceeded:
		return h.token, nil
	case StatusCancelled:
		return "", ErrHandshakeCancelled
	default:
		return "", h.err
	}
}

// Done is closed once the handshake is terminal.
func (h *Handshake) Done() <-chan struct{} {
	return h.done
}

// Status returns the current phase.
func (h *Handshake) Status() HandshakeStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// RequestID returns the platform request id while awaiting confirmation.
func (h *Handshake) RequestID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requestID
}

// LastRequestID returns the id of the most recent accepted initiation. Unlike
// RequestID it survives the terminal transition, so OnSuccess and OnFailure
// can tell which request ended. Empty if no initiation was accepted.
func (h *Handshake) LastRequestID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastID
}

// Token returns the access token once succeeded.
func (h *Handshake) Token() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.token
}

// Err returns the terminal error of a failed or expired handshake.
func (h *Handshake) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Snapshot returns a consistent view of the handshake.
func (h *Handshake) Snapshot() HandshakeSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := HandshakeSnapshot{
		Status:    h.status,
		RequestID: h.requestID,
		Phone:     h.phone,
		Polls:     h.polls,
		StartedAt: h.startedAt,
	}
	switch {
	case h.err != nil:
		snap.Message = UserMessage(h.err, MsgLoginFailed)
	case h.status == StatusAwaitingConfirmation:
		snap.Message = MsgCheckPhone
	}
	return snap
}

/*
====================================
POLL LOOP
====================================
*/

func (h *Handshake) armLocked(gen uint64) {
	if h.timer != nil {
		h.e.log.DPanic("poll timer already armed")
		h.timer.Stop()
	}
	h.timer = h.e.clock.AfterFunc(PollInterval, func() { h.tick(gen) })
}

func (h *Handshake) resetAttemptLocked() {
	if h.cancelAttempt != nil {
		h.cancelAttempt()
	}
	h.attempt, h.cancelAttempt = context.WithCancel(h.ctx)
}

func (h *Handshake) stopTimerLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

func (h *Handshake) tick(gen uint64) {
	h.mu.Lock()
	if gen != h.gen || h.status != StatusAwaitingConfirmation {
		h.mu.Unlock()
		return
	}
	h.timer = nil
	h.polls++
	requestID := h.requestID
	attempt := h.attempt
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(attempt, h.e.config.Handshake.PollTimeout)
	outcome := h.e.PollOnce(ctx, requestID)
	cancel()

	h.apply(gen, outcome)
}

func (h *Handshake) apply(gen uint64, outcome PollOutcome) {
	h.mu.Lock()
	if gen != h.gen || h.status != StatusAwaitingConfirmation {
		h.mu.Unlock()
		h.e.metrics.Inc(MetricStaleResponseDiscarded)
		h.e.log.Debug("poll response discarded")
		return
	}

	var complete func()
	switch outcome.Kind {
	case PollConfirmed:
		attempt := h.attempt
		h.mu.Unlock()

		err := h.persist(attempt, outcome.Token)

		h.mu.Lock()
		if gen != h.gen || h.status != StatusAwaitingConfirmation {
			h.mu.Unlock()
			h.e.metrics.Inc(MetricStaleResponseDiscarded)
			h.e.log.Debug("confirmed token discarded")
			if err == nil {
				h.unpersist(outcome.Token)
			}
			return
		}
		if err != nil {
			complete = h.finishLocked(StatusFailed, newLoginError(ErrTokenPersist, MsgLoginFailed, err))
		} else {
			h.token = outcome.Token
			complete = h.finishLocked(StatusSucceeded, nil)
		}
	case PollExpired:
		complete = h.finishLocked(StatusExpired, outcome.Err)
	case PollFailed:
		complete = h.finishLocked(StatusFailed, outcome.Err)
	default:
		ceiling := h.e.config.Handshake.MaxDuration
		if ceiling > 0 && h.e.clock.Now().Sub(h.startedAt) >= ceiling {
			complete = h.finishLocked(StatusExpired, newLoginError(ErrHandshakeTimeout, MsgRequestExpired, nil))
		} else {
			h.armLocked(gen)
		}
	}
	h.mu.Unlock()

	if complete != nil {
		complete()
	}
}

// persist stores token without holding h.mu. The write is bound to the
// attempt, so Cancel or a re-initiation aborts it.
func (h *Handshake) persist(attempt context.Context, token string) error {
	if h.opts.Tokens == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(attempt, tokenPersistTimeout)
	defer cancel()
	return h.opts.Tokens.SetToken(ctx, token)
}

// unpersist removes a token whose handshake was cancelled or superseded while
// it was being stored. A token written by someone else in the meantime stays.
func (h *Handshake) unpersist(token string) {
	if h.opts.Tokens == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), tokenPersistTimeout)
	defer cancel()
	current, err := h.opts.Tokens.Token(ctx)
	if err != nil || current != token {
		return
	}
	if err := h.opts.Tokens.ClearToken(ctx); err != nil {
		h.e.log.Warn("clear discarded token", zap.Error(err))
	}
}

const tokenPersistTimeout = 5 * time.Second

// finishLocked moves to a terminal status and releases the timer and context.
// The returned function delivers callbacks, metrics and audit and must run
// after h.mu is released.
func (h *Handshake) finishLocked(status HandshakeStatus, err error) func() {
	h.stopTimerLocked()
	h.status = status
	h.err = err
	requestID := h.requestID
	h.requestID = ""
	h.cancel()
	h.closeDone()

	phoneNumber := h.phone
	token := h.token
	var elapsed time.Duration
	if !h.startedAt.IsZero() {
		elapsed = h.e.clock.Now().Sub(h.startedAt)
	}
	ctx := h.auditContext()

	return func() {
		if status == StatusSucceeded {
			h.succeeded(ctx, requestID, phoneNumber, token, elapsed)
			return
		}
		h.failed(ctx, status, requestID, phoneNumber, err)
	}
}

func (h *Handshake) succeeded(ctx context.Context, requestID, phoneNumber, token string, elapsed time.Duration) {
	h.e.metrics.Inc(MetricHandshakeSucceeded)
	h.e.metrics.Observe(MetricHandshakeLatency, elapsed)
	h.e.emitAudit(ctx, AuditHandshakeSucceeded, true, requestID, phoneNumber, nil, nil)
	h.e.log.Info("mpesa login confirmed",
		zap.String("request_id", requestID),
		zap.Duration("elapsed", elapsed),
	)

	if h.e.limiter != nil {
		resetCtx, cancel := context.WithTimeout(context.Background(), tokenPersistTimeout)
		if err := h.e.limiter.ResetPhone(resetCtx, phoneNumber); err != nil {
			h.e.log.Warn("reset initiate budget", zap.Error(err))
		}
		cancel()
	}

	if h.opts.OnSuccess != nil {
		h.opts.OnSuccess(token)
	}
}

func (h *Handshake) failed(ctx context.Context, status HandshakeStatus, requestID, phoneNumber string, err error) {
	event := AuditHandshakeFailed
	switch {
	case errors.Is(err, ErrHandshakeTimeout):
		h.e.metrics.Inc(MetricHandshakeTimeout)
		event = AuditHandshakeExpired
	case status == StatusExpired:
		h.e.metrics.Inc(MetricHandshakeExpired)
		event = AuditHandshakeExpired
	case errors.Is(err, ErrInitiation):
		h.e.metrics.Inc(MetricInitiateFailure)
		event = AuditHandshakeRejected
	default:
		h.e.metrics.Inc(MetricHandshakeFailed)
	}

	h.e.emitAudit(ctx, event, false, requestID, phoneNumber, err, nil)
	h.e.log.Info("mpesa login ended",
		zap.String("status", status.String()),
		zap.String("request_id", requestID),
		zap.Error(err),
	)

	h.notify(NoticeError, UserMessage(err, MsgLoginFailed))
	if h.opts.OnFailure != nil {
		h.opts.OnFailure(err)
	}
}

func (h *Handshake) notify(level NoticeLevel, msg string) {
	h.opts.Notifier.Notify(Notice{Level: level, Message: msg})
}

func (h *Handshake) closeDone() {
	h.doneOnce.Do(func() { close(h.done) })
}

// auditContext rebuilds the request attributes captured at initiation.
// Callers hold h.mu.
func (h *Handshake) auditContext() context.Context {
	ctx := context.Background()
	if h.sessionID != "" {
		ctx = WithSessionID(ctx, h.sessionID)
	}
	if h.ip != "" {
		ctx = WithClientIP(ctx, h.ip)
	}
	if h.userAgent != "" {
		ctx = WithUserAgent(ctx, h.userAgent)
	}
	return ctx
}
