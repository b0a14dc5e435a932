package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	chamaWeb "github.com/MrEthical07/chamaWeb"
	"github.com/MrEthical07/chamaWeb/jwt"
)

// Mode selects how a guard checks the token.
type Mode uint8

const (
	// ModeLocal accepts any token the inspector can read that has not expired.
	ModeLocal Mode = iota
	// ModeStrict asks the platform to verify the token on every request.
	ModeStrict
)

// TokenSource extracts the access token for a request.
type TokenSource func(r *http.Request) (string, bool)

type tokenContextKey struct{}
type claimsContextKey struct{}

// TokenFromContext returns the token admitted by a guard.
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenContextKey{}).(string)
	return tok, ok && tok != ""
}

// ClaimsFromContext returns the claims read by a [ModeLocal] guard.
func ClaimsFromContext(ctx context.Context) (jwt.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(jwt.Claims)
	return claims, ok
}

// Guard rejects requests without an acceptable token with 401, or 503 when
// strict verification cannot reach the platform. A nil source reads the
// Authorization bearer header.
func Guard(engine *chamaWeb.Engine, mode Mode, source TokenSource) func(http.Handler) http.Handler {
	if source == nil {
		source = BearerToken
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			token, ok := source(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), tokenContextKey{}, token)
			switch mode {
			case ModeStrict:
				if err := engine.VerifyToken(r.Context(), token); err != nil {
					if errors.Is(err, chamaWeb.ErrTransport) {
						writeError(w, http.StatusServiceUnavailable, "Service unavailable")
						return
					}
					writeError(w, http.StatusUnauthorized, "Unauthorized")
					return
				}
			default:
				claims, err := engine.Inspector().Inspect(token)
				if err != nil {
					writeError(w, http.StatusUnauthorized, "Unauthorized")
					return
				}
				ctx = context.WithValue(ctx, claimsContextKey{}, claims)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireLocal is Guard with [ModeLocal].
func RequireLocal(engine *chamaWeb.Engine, source TokenSource) func(http.Handler) http.Handler {
	return Guard(engine, ModeLocal, source)
}

// RequireStrict is Guard with [ModeStrict].
func RequireStrict(engine *chamaWeb.Engine, source TokenSource) func(http.Handler) http.Handler {
	return Guard(engine, ModeStrict, source)
}

// BearerToken reads "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	const bearer = "Bearer "
	value := r.Header.Get("Authorization")
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
