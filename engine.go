package chamaWeb

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/chamaWeb/apiclient"
	"github.com/MrEthical07/chamaWeb/clock"
	"github.com/MrEthical07/chamaWeb/internal/rate"
	"github.com/MrEthical07/chamaWeb/jwt"
	"github.com/MrEthical07/chamaWeb/permission"
	"github.com/MrEthical07/chamaWeb/session"
	"go.uber.org/zap"
)

// RemoteAPI is the subset of the chama platform the engine calls.
// *apiclient.Client implements it.
type RemoteAPI interface {
	InitiateMpesaLogin(ctx context.Context, phoneNumber string) (apiclient.InitiateResponse, error)
	MpesaLoginStatus(ctx context.Context, requestID string) (apiclient.StatusResponse, error)
	Verify(ctx context.Context, token string) (bool, error)
	Login(ctx context.Context, phoneNumber, password string) (apiclient.TokenResponse, error)
	Signup(ctx context.Context, req apiclient.SignupRequest) (apiclient.TokenResponse, error)
	MyChamas(ctx context.Context, token string) ([]apiclient.Chama, error)

	CreateChama(ctx context.Context, token string, req apiclient.CreateChamaRequest) (apiclient.CreateChamaResponse, error)
	JoinChama(ctx context.Context, token string, req apiclient.JoinChamaRequest) (apiclient.MessageResponse, error)
	JoinRequests(ctx context.Context, token string, chamaID int64) ([]apiclient.JoinRequest, error)
	ApproveJoinRequest(ctx context.Context, token string, requestID int64) (apiclient.MessageResponse, error)
	RejectJoinRequest(ctx context.Context, token string, requestID int64) (apiclient.MessageResponse, error)
	Members(ctx context.Context, token string, chamaID int64) ([]apiclient.Member, error)
	RemoveMember(ctx context.Context, token string, chamaID, memberID int64) (apiclient.MessageResponse, error)
	UpdateRoles(ctx context.Context, token string, chamaID int64, updates []apiclient.RoleUpdate) (apiclient.UpdateRolesResponse, error)
	CreateMeeting(ctx context.Context, token string, chamaID int64, req apiclient.CreateMeetingRequest) (apiclient.Meeting, error)
	UpcomingMeetings(ctx context.Context, token string, chamaID int64) ([]apiclient.Meeting, error)
	PreviousMeetings(ctx context.Context, token string, chamaID int64) ([]apiclient.Meeting, error)
	SaveMinutes(ctx context.Context, token string, chamaID, meetingID int64, minutes string) (apiclient.MessageResponse, error)

	Profile(ctx context.Context, token string) (apiclient.Profile, error)
	UpdateProfile(ctx context.Context, token string, upd apiclient.ProfileUpdate) (apiclient.MessageResponse, error)
	VerifyEmail(ctx context.Context, email, code string) (apiclient.MessageResponse, error)
	ResendVerification(ctx context.Context, email string) (apiclient.MessageResponse, error)
}

// Engine owns the platform client and the shared infrastructure every login
// flow uses. It is safe for concurrent use; each [Handshake] it creates owns
// its own state.
type Engine struct {
	config    Config
	api       RemoteAPI
	clock     clock.Clock
	log       *zap.Logger
	catalog   *permission.Catalog
	inspector *jwt.Inspector
	sessions  *session.Store
	limiter   *rate.Limiter
	audit     *auditDispatcher
	metrics   *Metrics
	closed    atomic.Bool
}

// Close flushes pending audit events. Handshakes created afterwards fail
// with [ErrEngineNotReady].
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closed.Store(true)
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Sessions returns the Redis session store, or nil when no Redis client was
// configured.
func (e *Engine) Sessions() *session.Store {
	return e.sessions
}

// Inspector returns the local token inspector.
func (e *Engine) Inspector() *jwt.Inspector {
	return e.inspector
}

// AuditDropped reports events dropped because the audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of every counter.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// SessionTTL returns how long a browser session holding token should live:
// the configured MaxAge, shortened to the token's own expiry when that comes
// first. A token without a readable expiry gets MaxAge.
func (e *Engine) SessionTTL(token string) time.Duration {
	ttl := e.config.Session.MaxAge
	remaining := e.inspector.Remaining(token)
	if remaining > 0 && remaining < ttl {
		return remaining
	}
	return ttl
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, requestID, phoneNumber string, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		SessionID: sessionIDFromContext(ctx),
		RequestID: requestID,
		Phone:     maskPhone(phoneNumber),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.audit.Emit(ctx, event)
}
