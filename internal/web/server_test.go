package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	chamaWeb "github.com/MrEthical07/chamaWeb"
	"github.com/MrEthical07/chamaWeb/clock"
	"github.com/MrEthical07/chamaWeb/internal"
	"github.com/MrEthical07/chamaWeb/session"
	"github.com/alicebob/miniredis/v2"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/securecookie"
	"github.com/redis/go-redis/v9"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// platform is a fake chama API.
type platform struct {
	mu          sync.Mutex
	token       string
	statuses    []string
	statusCalls int
	initiateErr int
	verifyOK    bool
	loginOK     bool

	// role is the caller's role in chama 1; hits lists management calls.
	role      string
	hits      []string
	manageErr int
	bodies    map[string]map[string]interface{}
}

func (p *platform) hit(r *http.Request) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hits = append(p.hits, r.Method+" "+r.URL.Path)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if p.bodies == nil {
			p.bodies = map[string]map[string]interface{}{}
		}
		p.bodies[r.URL.Path] = body
	}
	return p.manageErr
}

func (p *platform) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.hits...)
}

func (p *platform) set(fn func(*platform)) {
	p.mu.Lock()
	fn(p)
	p.mu.Unlock()
}

func (p *platform) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/mpesa/login/initiate", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		code := p.initiateErr
		p.mu.Unlock()
		if code != 0 {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"detail":"Phone not registered"}`))
			return
		}
		_, _ = w.Write([]byte(`{"request_id":"req-1"}`))
	})
	mux.HandleFunc("/api/auth/mpesa/login/status/req-1", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		idx := p.statusCalls
		p.statusCalls++
		if idx >= len(p.statuses) {
			idx = len(p.statuses) - 1
		}
		status := p.statuses[idx]
		tok := p.token
		p.mu.Unlock()

		if status == "confirmed" {
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": tok, "token_type": "bearer"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
	mux.HandleFunc("/api/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		ok := p.verifyOK
		p.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		ok := p.loginOK
		tok := p.token
		p.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Invalid credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": tok})
	})
	mux.HandleFunc("/api/my-chamas", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		role := p.role
		p.mu.Unlock()
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{{"chama_id": 1, "name": "Umoja", "role": role}})
	})
	manage := func(reply string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if code := p.hit(r); code != 0 {
				w.WriteHeader(code)
				_, _ = w.Write([]byte(`{"detail":"Cannot remove another admin"}`))
				return
			}
			_, _ = w.Write([]byte(reply))
		}
	}
	mux.HandleFunc("/api/join-chama", manage(`{"message":"Joined chama successfully"}`))
	mux.HandleFunc("/api/chamas/1/members", manage(`[{"member_id":4,"full_name":"Otieno","role":"member"}]`))
	mux.HandleFunc("/api/chamas/1/members/4", manage(`{"message":"Member removed successfully"}`))
	mux.HandleFunc("/api/chamas/1/meetings/upcoming", manage(`[{"meeting_id":6,"meeting_date":"2026-03-05T14:00:00","location":"Hall"}]`))
	mux.HandleFunc("/api/verify-email", manage(`{"message":"Email verified successfully"}`))
	mux.HandleFunc("/api/profile", func(w http.ResponseWriter, r *http.Request) {
		p.hit(r)
		if err := r.ParseMultipartForm(1 << 16); err == nil {
			p.mu.Lock()
			p.bodies["/api/profile"] = map[string]interface{}{"phone_number": r.FormValue("phone_number")}
			p.mu.Unlock()
		}
		_, _ = w.Write([]byte(`{"message":"Profile updated"}`))
	})
	return mux
}

type harness struct {
	t        *testing.T
	server   *Server
	http     *httptest.Server
	client   *http.Client
	platform *platform
	clock    *clock.Fake
	engine   *chamaWeb.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	tok, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"user_id": 42,
		"exp":     testEpoch.Add(time.Hour).Unix(),
	}).SignedString([]byte("platform-key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	p := &platform{token: tok, statuses: []string{"pending"}, verifyOK: true, loginOK: true, role: "treasurer", bodies: map[string]map[string]interface{}{}}
	api := httptest.NewServer(p.handler())
	t.Cleanup(api.Close)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := chamaWeb.DefaultConfig()
	cfg.API.BaseURL = api.URL + "/api"
	fake := clock.NewFake(testEpoch)
	engine, err := chamaWeb.New().WithConfig(cfg).WithRedis(rdb).WithClock(fake).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	public := t.TempDir()
	for name, body := range map[string]string{"index.html": "<h1>index</h1>", "login.html": "<h1>login</h1>", "app.js": "//js"} {
		if err := os.WriteFile(filepath.Join(public, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write page: %v", err)
		}
	}

	keys, err := internal.DeriveCookieKeys([]byte("test-secret"))
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	srv, err := New(engine, keys, Options{PublicDir: public, RateLimitPerMin: 600}, nil)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	jar, _ := cookiejar.New(nil)
	return &harness{
		t:        t,
		server:   srv,
		http:     ts,
		client:   &http.Client{Jar: jar},
		platform: p,
		clock:    fake,
		engine:   engine,
	}
}

func (h *harness) do(method, path, body string) (int, map[string]interface{}) {
	h.t.Helper()
	req, err := http.NewRequest(method, h.http.URL+path, strings.NewReader(body))
	if err != nil {
		h.t.Fatalf("request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("do %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			h.t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

// record loads the Redis record behind the client's session cookie.
func (h *harness) record() *session.Session {
	h.t.Helper()
	u, _ := url.Parse(h.http.URL)
	for _, c := range h.client.Jar.Cookies(u) {
		if c.Name != CookieName {
			continue
		}
		var id string
		if err := securecookie.DecodeMulti(CookieName, c.Value, &id, h.server.cookies.codecs...); err != nil {
			h.t.Fatalf("decode cookie: %v", err)
		}
		rec, err := h.engine.Sessions().Get(h.t.Context(), id)
		if err != nil {
			h.t.Fatalf("load record: %v", err)
		}
		return rec
	}
	h.t.Fatal("no session cookie")
	return nil
}

func TestMpesaLoginFlow(t *testing.T) {
	h := newHarness(t)
	h.platform.set(func(p *platform) { p.statuses = []string{"pending", "confirmed"} })

	code, body := h.do(http.MethodPost, "/api/auth/mpesa/login", `{"phone_number":"0712 345 678"}`)
	if code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %v", code, body)
	}
	if body["request_id"] != "req-1" || body["message"] != chamaWeb.MsgCheckPhone {
		t.Fatalf("unexpected initiate body %v", body)
	}

	code, body = h.do(http.MethodGet, "/api/auth/mpesa/login", "")
	if code != http.StatusOK || body["status"] != "awaiting-confirmation" {
		t.Fatalf("expected awaiting, got %d %v", code, body)
	}

	if code, _ := h.do(http.MethodGet, "/api/me", ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 before confirmation, got %d", code)
	}

	h.clock.Advance(chamaWeb.PollInterval)
	if code, body = h.do(http.MethodGet, "/api/auth/mpesa/login", ""); body["status"] != "awaiting-confirmation" {
		t.Fatalf("expected still awaiting after pending poll, got %v", body)
	}

	h.clock.Advance(chamaWeb.PollInterval)
	code, body = h.do(http.MethodGet, "/api/auth/mpesa/login", "")
	if body["status"] != "succeeded" || body["redirect"] != "/dashboard" {
		t.Fatalf("expected succeeded with redirect, got %d %v", code, body)
	}
	if h.server.ActiveHandshakes() != 0 {
		t.Fatalf("expected handshake released, got %d", h.server.ActiveHandshakes())
	}
	if rec := h.record(); rec.LoginRequestID != "req-1" || rec.LoginState != session.LoginSucceeded {
		t.Fatalf("expected succeeded record for req-1, got %q %s", rec.LoginRequestID, rec.LoginState)
	}

	code, body = h.do(http.MethodGet, "/api/me", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200 from /api/me, got %d", code)
	}
	user, _ := body["user"].(map[string]interface{})
	if user["phone"] != "254712345678" || user["user_id"] != "42" {
		t.Fatalf("unexpected user %v", body)
	}

	code, body = h.do(http.MethodGet, "/api/chamas", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200 from /api/chamas, got %d", code)
	}
	chamas, _ := body["chamas"].([]interface{})
	if len(chamas) != 1 {
		t.Fatalf("expected one chama, got %v", body)
	}
}

func TestMpesaInitiateErrors(t *testing.T) {
	h := newHarness(t)

	if code, body := h.do(http.MethodPost, "/api/auth/mpesa/login", `{"phone_number":""}`); code != http.StatusBadRequest || body["error"] != chamaWeb.MsgEnterPhone {
		t.Fatalf("expected 400 enter phone, got %d %v", code, body)
	}

	h.platform.set(func(p *platform) { p.initiateErr = http.StatusBadRequest })
	code, body := h.do(http.MethodPost, "/api/auth/mpesa/login", `{"phone_number":"0712345678"}`)
	if code != http.StatusBadGateway || body["error"] != "Phone not registered" {
		t.Fatalf("expected 502 with detail, got %d %v", code, body)
	}

	_, body = h.do(http.MethodGet, "/api/auth/mpesa/login", "")
	if body["status"] != "failed" || body["message"] != "Phone not registered" {
		t.Fatalf("expected failed status with detail, got %v", body)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("expected no poll timer, got %d", h.clock.Pending())
	}
}

func TestMpesaRemoteExpiry(t *testing.T) {
	h := newHarness(t)
	h.platform.set(func(p *platform) { p.statuses = []string{"expired"} })

	if code, _ := h.do(http.MethodPost, "/api/auth/mpesa/login", `{"phone_number":"712345678"}`); code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", code)
	}
	h.clock.Advance(chamaWeb.PollInterval)

	_, body := h.do(http.MethodGet, "/api/auth/mpesa/login", "")
	if body["status"] != "expired" {
		t.Fatalf("expected expired, got %v", body)
	}
	if _, ok := body["redirect"]; ok {
		t.Fatal("expired login must not redirect")
	}
	if rec := h.record(); rec.LoginRequestID != "req-1" || rec.LoginState != session.LoginExpired {
		t.Fatalf("expected expired record for req-1, got %q %s", rec.LoginRequestID, rec.LoginState)
	}
}

func TestMpesaFailedPollKeepsRequestID(t *testing.T) {
	h := newHarness(t)
	h.platform.set(func(p *platform) { p.statuses = []string{"failed"} })

	if code, _ := h.do(http.MethodPost, "/api/auth/mpesa/login", `{"phone_number":"712345678"}`); code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", code)
	}
	h.clock.Advance(chamaWeb.PollInterval)

	rec := h.record()
	if rec.LoginRequestID != "req-1" || rec.LoginState != session.LoginFailed {
		t.Fatalf("expected failed record for req-1, got %q %s", rec.LoginRequestID, rec.LoginState)
	}
	if _, body := h.do(http.MethodGet, "/api/auth/mpesa/login", ""); body["status"] != "failed" {
		t.Fatalf("expected failed, got %v", body)
	}
}

func TestMarkAwaitingKeepsTerminalStateOfSameRequest(t *testing.T) {
	rec := &session.Session{LoginRequestID: "req-1", LoginState: session.LoginSucceeded}
	markAwaiting(rec, "req-1", "254712345678")
	if rec.LoginState != session.LoginSucceeded {
		t.Fatalf("a late initiate write must not reopen req-1, got %s", rec.LoginState)
	}

	markAwaiting(rec, "req-2", "254712345678")
	if rec.LoginState != session.LoginAwaiting || rec.LoginRequestID != "req-2" || rec.LoginMessage != chamaWeb.MsgCheckPhone {
		t.Fatalf("expected awaiting req-2, got %+v", rec)
	}

	rec = &session.Session{LoginRequestID: "req-3", LoginState: session.LoginAwaiting}
	markAwaiting(rec, "req-3", "254712345678")
	if rec.Phone != "254712345678" {
		t.Fatalf("expected phone recorded, got %q", rec.Phone)
	}
}

func TestMpesaCancelStopsPolling(t *testing.T) {
	h := newHarness(t)

	if code, _ := h.do(http.MethodPost, "/api/auth/mpesa/login", `{"phone_number":"0712345678"}`); code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", code)
	}
	if h.clock.Pending() != 1 {
		t.Fatalf("expected one armed timer, got %d", h.clock.Pending())
	}

	if code, _ := h.do(http.MethodDelete, "/api/auth/mpesa/login", ""); code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", code)
	}
	if code, _ := h.do(http.MethodDelete, "/api/auth/mpesa/login", ""); code != http.StatusNoContent {
		t.Fatalf("expected idempotent 204, got %d", code)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("expected timer stopped, got %d", h.clock.Pending())
	}

	h.clock.Advance(10 * chamaWeb.PollInterval)
	h.platform.mu.Lock()
	calls := h.platform.statusCalls
	h.platform.mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected no polls after cancel, got %d", calls)
	}

	_, body := h.do(http.MethodGet, "/api/auth/mpesa/login", "")
	if body["status"] != "cancelled" {
		t.Fatalf("expected cancelled, got %v", body)
	}
}

func TestMpesaReinitiateReplacesHandshake(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 2; i++ {
		if code, _ := h.do(http.MethodPost, "/api/auth/mpesa/login", `{"phone_number":"0712345678"}`); code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", code)
		}
	}
	if h.server.ActiveHandshakes() != 1 {
		t.Fatalf("expected one live handshake, got %d", h.server.ActiveHandshakes())
	}
	if h.clock.Pending() != 1 {
		t.Fatalf("expected one armed timer, got %d", h.clock.Pending())
	}
}

func TestPasswordLoginBootstrapAndLogout(t *testing.T) {
	h := newHarness(t)

	if _, body := h.do(http.MethodGet, "/api/session", ""); body["authenticated"] != false {
		t.Fatalf("expected unauthenticated without a session, got %v", body)
	}

	h.platform.set(func(p *platform) { p.loginOK = false })
	code, body := h.do(http.MethodPost, "/api/auth/login", `{"phone_number":"0712345678","password":"pw"}`)
	if code != http.StatusUnauthorized || body["error"] != "Invalid credentials" {
		t.Fatalf("expected 401 with detail, got %d %v", code, body)
	}

	h.platform.set(func(p *platform) { p.loginOK = true })
	if code, body = h.do(http.MethodPost, "/api/auth/login", `{"phone_number":"0712345678","password":"pw"}`); code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", code, body)
	}

	if _, body = h.do(http.MethodGet, "/api/session", ""); body["authenticated"] != true {
		t.Fatalf("expected authenticated, got %v", body)
	}

	h.platform.set(func(p *platform) { p.verifyOK = false })
	if _, body = h.do(http.MethodGet, "/api/session", ""); body["authenticated"] != false {
		t.Fatalf("expected token cleared after rejection, got %v", body)
	}
	if code, _ = h.do(http.MethodGet, "/api/me", ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after clear, got %d", code)
	}

	if code, _ = h.do(http.MethodPost, "/api/auth/logout", ""); code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", code)
	}
	if n, _ := h.engine.ActiveSessionEstimate(t.Context()); n != 0 {
		t.Fatalf("expected session deleted, got %d", n)
	}
}

func TestSignupValidation(t *testing.T) {
	h := newHarness(t)

	code, body := h.do(http.MethodPost, "/api/auth/signup", `{"username":"amina","phone_number":"0712345678","email":"a@b.c","password":"123"}`)
	if code != http.StatusBadRequest || body["error"] != chamaWeb.MsgPasswordTooShort {
		t.Fatalf("expected short password error, got %d %v", code, body)
	}
}

func TestPagesAndHealth(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/", "/login", "/app.js"} {
		resp, err := h.client.Get(h.http.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", path, resp.StatusCode)
		}
	}

	code, body := h.do(http.MethodGet, "/healthz", "")
	if code != http.StatusOK || body["redis"] != true {
		t.Fatalf("expected healthy, got %d %v", code, body)
	}
}

func TestForgedCookieStartsFreshSession(t *testing.T) {
	h := newHarness(t)

	req, _ := http.NewRequest(http.MethodGet, h.http.URL+"/api/me", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "forged"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
