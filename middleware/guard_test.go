package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chamaWeb "github.com/MrEthical07/chamaWeb"
	gojwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "guard-test-secret"

func mint(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"user_id": 9,
		"exp":     exp.Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func newGuardEngine(t *testing.T, verify http.HandlerFunc) *chamaWeb.Engine {
	t.Helper()
	api := httptest.NewServer(verify)
	t.Cleanup(api.Close)

	cfg := chamaWeb.DefaultConfig()
	cfg.API.BaseURL = api.URL + "/api"
	cfg.Token.VerifySecret = testSecret
	engine, err := chamaWeb.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func acceptAll(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func protected() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := TokenFromContext(r.Context())
		if !ok || tok == "" {
			http.Error(w, "missing token", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestGuardLocal(t *testing.T) {
	engine := newGuardEngine(t, acceptAll)
	h := RequireLocal(engine, nil)(protected())

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer not-a-jwt", want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + mint(t, time.Now().Add(-time.Hour)), want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + mint(t, time.Now().Add(time.Hour)), want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), `"error":"Unauthorized"`) {
				t.Fatalf("unexpected body %q", rec.Body.String())
			}
		})
	}
}

func TestGuardLocalExposesClaims(t *testing.T) {
	engine := newGuardEngine(t, acceptAll)
	var userID string
	h := RequireLocal(engine, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())
		userID = claims.UserID
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mint(t, time.Now().Add(time.Hour)))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if userID != "9" {
		t.Fatalf("expected user id 9, got %q", userID)
	}
}

func TestGuardStrictRejectedByPlatform(t *testing.T) {
	engine := newGuardEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	h := RequireStrict(engine, nil)(protected())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mint(t, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGuardStrictAccepted(t *testing.T) {
	engine := newGuardEngine(t, acceptAll)
	h := RequireStrict(engine, nil)(protected())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mint(t, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestGuardStrictPlatformDown(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(acceptAll))
	cfg := chamaWeb.DefaultConfig()
	cfg.API.BaseURL = api.URL + "/api"
	api.Close()

	engine, err := chamaWeb.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	h := RequireStrict(engine, nil)(protected())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mint(t, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestGuardCustomSource(t *testing.T) {
	engine := newGuardEngine(t, acceptAll)
	tok := mint(t, time.Now().Add(time.Hour))
	source := func(r *http.Request) (string, bool) {
		c, err := r.Cookie("tok")
		if err != nil {
			return "", false
		}
		return c.Value, true
	}
	h := RequireLocal(engine, source)(protected())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "tok", Value: tok})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestGuardNilEngine(t *testing.T) {
	h := Guard(nil, ModeLocal, nil)(protected())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
