package jwt

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the verification algorithm.
type SigningMethod string

const (
	// MethodHS256 verifies with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 verifies with an Ed25519 public key.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrMalformed is returned when the token cannot be parsed at all.
	ErrMalformed = errors.New("malformed token")
	// ErrExpired is returned when the token's exp is in the past (beyond leeway).
	ErrExpired = errors.New("token expired")
	// ErrSignature is returned when verification is enabled and the signature is wrong.
	ErrSignature = errors.New("token signature invalid")
)

// Config configures an [Inspector]. Leave Key empty to parse unverified.
type Config struct {
	SigningMethod SigningMethod
	Key           []byte
	Leeway        time.Duration
	Now           func() time.Time
}

// Claims is the subset of platform claims the frontend uses.
type Claims struct {
	UserID    string
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// HasExpiry reports whether the token carried an exp claim.
func (c Claims) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

// Inspector parses platform access tokens.
type Inspector struct {
	config    Config
	verifyKey interface{}
}

// NewInspector validates cfg and returns an Inspector.
func NewInspector(cfg Config) (*Inspector, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}

	in := &Inspector{config: cfg}
	if len(cfg.Key) == 0 {
		return in, nil
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		in.verifyKey = append([]byte(nil), cfg.Key...)
	case MethodEd25519:
		pub, err := parseEdPublicKey(cfg.Key)
		if err != nil {
			return nil, err
		}
		in.verifyKey = pub
	default:
		return nil, errors.New("unsupported signing method")
	}
	return in, nil
}

// Verifies reports whether signatures are checked.
func (in *Inspector) Verifies() bool {
	return in != nil && in.verifyKey != nil
}

type platformClaims struct {
	UserID json.RawMessage `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Inspect parses token and enforces exp. Signatures are checked only when a
// key was configured.
func (in *Inspector) Inspect(token string) (Claims, error) {
	if in == nil {
		return Claims{}, errors.New("nil inspector")
	}

	var pc platformClaims
	if in.verifyKey == nil {
		parser := jwt.NewParser()
		if _, _, err := parser.ParseUnverified(token, &pc); err != nil {
			return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	} else {
		method := in.method()
		parser := jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithoutClaimsValidation(),
		)
		_, err := parser.ParseWithClaims(token, &pc, func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != method.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
			}
			return in.verifyKey, nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenMalformed) {
				return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			return Claims{}, fmt.Errorf("%w: %v", ErrSignature, err)
		}
	}

	claims := Claims{
		UserID:  rawToString(pc.UserID),
		Subject: pc.Subject,
	}
	if pc.ExpiresAt != nil {
		claims.ExpiresAt = pc.ExpiresAt.Time
	}
	if pc.IssuedAt != nil {
		claims.IssuedAt = pc.IssuedAt.Time
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}

	if claims.HasExpiry() && !in.config.Now().Before(claims.ExpiresAt.Add(in.config.Leeway)) {
		return claims, ErrExpired
	}
	return claims, nil
}

// Remaining returns how long token stays valid, or zero when it carries no
// exp claim. Expired or unparsable tokens return a negative duration.
func (in *Inspector) Remaining(token string) time.Duration {
	claims, err := in.Inspect(token)
	if err != nil {
		return -1
	}
	if !claims.HasExpiry() {
		return 0
	}
	return claims.ExpiresAt.Sub(in.config.Now())
}

func (in *Inspector) method() jwt.SigningMethod {
	switch in.config.SigningMethod {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

// user_id is an integer on the platform but may arrive quoted.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
