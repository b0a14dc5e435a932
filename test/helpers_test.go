//go:build integration
// +build integration

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// redisMode describes which Redis backend a suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes always includes miniredis. A real server is added when
// REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{{
		name: "miniredis",
		setup: func(t *testing.T) redis.UniversalClient {
			t.Helper()
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("miniredis: %v", err)
			}
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close(); mr.Close() })
			return rdb
		},
	}}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				t.Cleanup(func() { rdb.FlushDB(context.Background()); _ = rdb.Close() })
				return rdb
			},
		})
	}
	return modes
}

// fakePlatform answers the chama API endpoints the engine uses. Status polls
// walk through statuses; the last one repeats.
type fakePlatform struct {
	mu          sync.Mutex
	token       string
	statuses    []string
	statusCalls int
	lastPhone   string
	verified    map[string]bool
}

func newFakePlatform(t *testing.T, statuses ...string) (*fakePlatform, string) {
	t.Helper()
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"user_id": 7,
		"exp":     epoch.Add(time.Hour).Unix(),
	}).SignedString([]byte("platform-key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	p := &fakePlatform{token: token, statuses: statuses, verified: map[string]bool{token: true}}
	srv := httptest.NewServer(p.routes())
	t.Cleanup(srv.Close)
	return p, srv.URL + "/api"
}

func (p *fakePlatform) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/mpesa/login/initiate", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PhoneNumber string `json:"phone_number"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.mu.Lock()
		p.lastPhone = body.PhoneNumber
		p.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"request_id": "req-9", "expires_in": 120})
	})
	mux.HandleFunc("GET /api/auth/mpesa/login/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "req-9" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Unknown request"}`))
			return
		}
		p.mu.Lock()
		idx := p.statusCalls
		p.statusCalls++
		if idx >= len(p.statuses) {
			idx = len(p.statuses) - 1
		}
		status := p.statuses[idx]
		p.mu.Unlock()

		if status == "confirmed" {
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": p.token, "token_type": "bearer"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
	mux.HandleFunc("GET /api/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		p.mu.Lock()
		ok := p.verified[token]
		p.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (p *fakePlatform) polls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusCalls
}

func (p *fakePlatform) phone() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPhone
}

func (p *fakePlatform) revoke(token string) {
	p.mu.Lock()
	delete(p.verified, token)
	p.mu.Unlock()
}
