package chamaWeb

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Audit event types.
const (
	AuditHandshakeInitiated = "handshake_initiated"
	AuditHandshakeRejected  = "handshake_rejected"
	AuditHandshakeSucceeded = "handshake_succeeded"
	AuditHandshakeFailed    = "handshake_failed"
	AuditHandshakeExpired   = "handshake_expired"
	AuditHandshakeCancelled = "handshake_cancelled"
	AuditBootstrapValid     = "bootstrap_valid"
	AuditBootstrapCleared   = "bootstrap_cleared"
	AuditPasswordLogin      = "password_login"
	AuditSignup             = "signup"
	AuditChamaAction        = "chama_action"
	AuditChamaActionDenied  = "chama_action_denied"
)

// AuditEvent records one security-relevant step. Phone numbers are masked
// before they reach an event.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	SessionID string            `json:"session_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Phone     string            `json:"phone,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// ZapAuditSink mirrors events into a structured logger.
type ZapAuditSink struct {
	log *zap.Logger
}

func NewZapAuditSink(log *zap.Logger) *ZapAuditSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapAuditSink{log: log.Named("audit")}
}

func (s *ZapAuditSink) Emit(_ context.Context, event AuditEvent) {
	fields := make([]zap.Field, 0, 8+len(event.Metadata))
	fields = append(fields,
		zap.Time("timestamp", event.Timestamp),
		zap.Bool("success", event.Success),
	)
	if event.SessionID != "" {
		fields = append(fields, zap.String("session_id", event.SessionID))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if event.Phone != "" {
		fields = append(fields, zap.String("phone", event.Phone))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.String(k, v))
	}

	if event.Success {
		s.log.Info(event.EventType, fields...)
		return
	}
	s.log.Warn(event.EventType, fields...)
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []AuditSink

func (m MultiSink) Emit(ctx context.Context, event AuditEvent) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}

// maskPhone keeps the country prefix and the last four digits.
func maskPhone(p string) string {
	if len(p) <= 7 {
		return p
	}
	masked := []byte(p)
	for i := 4; i < len(masked)-4; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
