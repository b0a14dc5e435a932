package session

// LoginState mirrors the phase of the out-of-band login owned by a session.
type LoginState uint8

const (
	LoginNone LoginState = iota
	LoginAwaiting
	LoginSucceeded
	LoginFailed
	LoginExpired
	LoginCancelled
)

// String returns the wire name used by the browser API.
func (s LoginState) String() string {
	switch s {
	case LoginAwaiting:
		return "awaiting-confirmation"
	case LoginSucceeded:
		return "succeeded"
	case LoginFailed:
		return "failed"
	case LoginExpired:
		return "expired"
	case LoginCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// Session is one browser session. SessionID is the Redis key suffix and is
// not part of the encoded blob.
type Session struct {
	SessionID string

	Phone       string
	AccessToken string

	LoginRequestID string
	LoginState     LoginState
	LoginMessage   string

	SchemaVersion uint8

	CreatedAt int64
	ExpiresAt int64
}

// Authenticated reports whether the session carries an access token.
func (s *Session) Authenticated() bool {
	return s != nil && s.AccessToken != ""
}
