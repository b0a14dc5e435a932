package chamaWeb

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/chamaWeb/clock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Contains(s string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(b.buf.String(), s)
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	engine, err := New().WithAPIClient(newScriptedAPI(confirmed("t"))).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if engine.audit != nil {
		t.Fatal("expected no dispatcher when audit is disabled")
	}
	engine.emitAudit(context.Background(), AuditHandshakeInitiated, true, "abc", "254712345678", nil, nil)
	engine.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no sink calls, got %d", sink.Count())
	}
}

func TestAuditBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestAuditBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: AuditHandshakeSucceeded,
		RequestID: "abc",
		Phone:     maskPhone("254712345678"),
		Success:   true,
	})

	if !buf.Contains("handshake_succeeded") {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !buf.Contains(`"request_id":"abc"`) {
		t.Fatal("expected JSON log line to contain request id")
	}
	if buf.Contains("254712345678") {
		t.Fatal("phone number must be masked")
	}
}

func TestAuditZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapAuditSink(zap.New(core))

	sink.Emit(context.Background(), AuditEvent{EventType: AuditHandshakeSucceeded, Success: true, RequestID: "abc"})
	sink.Emit(context.Background(), AuditEvent{EventType: AuditHandshakeFailed, Error: "Login failed"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zap.InfoLevel || entries[0].Message != AuditHandshakeSucceeded {
		t.Fatalf("unexpected success entry %+v", entries[0])
	}
	if entries[1].Level != zap.WarnLevel {
		t.Fatalf("expected failure at warn, got %s", entries[1].Level)
	}
	if entries[0].ContextMap()["request_id"] != "abc" {
		t.Fatalf("expected request_id field, got %v", entries[0].ContextMap())
	}
}

func TestAuditDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	sink := &countingSink{}
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, sink)

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	if sink.Count() != 1 {
		t.Fatalf("expected queued event drained on close, got %d", sink.Count())
	}
	if dispatcher.Emitted() != 1 {
		t.Fatalf("expected emitted=1, got %d", dispatcher.Emitted())
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	token := "eyJhbGciOiJIUzI1NiJ9.secret-claims.signature"
	password := "correct-password-123"

	api := newScriptedAPI(pending(), confirmed(token))
	sink := NewChannelSink(32)
	cfg := DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false

	fake := clock.NewFake(testEpoch)
	engine, err := New().WithConfig(cfg).WithAPIClient(api).WithClock(fake).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	h, _ := engine.NewHandshake(HandshakeOptions{})
	if _, err := h.Initiate(context.Background(), "0712345678"); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	fake.Advance(2 * PollInterval)
	if h.Status() != StatusSucceeded {
		t.Fatalf("expected success, got %s", h.Status())
	}
	api.loginErr = nil
	api.loginResp.AccessToken = token
	if _, err := engine.PasswordLogin(context.Background(), "0712345678", password, nil); err != nil {
		t.Fatalf("password login: %v", err)
	}
	engine.Close()

	var events []AuditEvent
drain:
	for {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		default:
			break drain
		}
	}
	if len(events) < 3 {
		t.Fatalf("expected at least 3 events, got %d", len(events))
	}

	for _, ev := range events {
		for _, needle := range []string{token, password, "254712345678"} {
			if strings.Contains(ev.Error, needle) || strings.Contains(ev.Phone, needle) {
				t.Fatalf("sensitive value leaked in %s", ev.EventType)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(v, needle) {
					t.Fatalf("sensitive value leaked in metadata %q", k)
				}
			}
		}
	}
}
