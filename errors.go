package chamaWeb

import (
	"errors"
)

var (
	// ErrValidation is returned when input is rejected locally, before any network call.
	ErrValidation = errors.New("validation failed")
	// ErrInitiation is returned when the remote system refused or could not be reached to start a login.
	ErrInitiation = errors.New("login initiation failed")
	// ErrTransport is returned when a status poll could not reach the remote system.
	ErrTransport = errors.New("login status transport failure")
	// ErrRemoteExpired is returned when the remote system reports the login request as expired.
	ErrRemoteExpired = errors.New("login request expired")
	// ErrRemoteFailed is returned when the remote system reports the login as failed.
	ErrRemoteFailed = errors.New("login failed")
	// ErrHandshakeTimeout is returned when the client-side ceiling elapses before confirmation.
	ErrHandshakeTimeout = errors.New("login handshake timed out")
	// ErrHandshakeCancelled is returned to an Initiate caller whose handshake was cancelled mid-call.
	ErrHandshakeCancelled = errors.New("login handshake cancelled")
	// ErrHandshakeSuperseded is returned to an Initiate caller whose attempt was replaced by a newer one.
	ErrHandshakeSuperseded = errors.New("login handshake superseded")
	// ErrHandshakeClosed is returned when Initiate is called on a handshake that already finished.
	ErrHandshakeClosed = errors.New("login handshake closed")
	// ErrTokenPersist is returned when a confirmed access token could not be stored.
	ErrTokenPersist = errors.New("access token could not be stored")
	// ErrRateLimited is returned when initiation attempts exceed the configured window budget.
	ErrRateLimited = errors.New("login initiation rate limited")
	// ErrCredentialsRejected is returned when the platform refuses a password login.
	ErrCredentialsRejected = errors.New("credentials rejected")
	// ErrSignupRejected is returned when the platform refuses to create an account.
	ErrSignupRejected = errors.New("signup rejected")
	// ErrForbidden is returned when the member's chama role does not grant the action.
	ErrForbidden = errors.New("forbidden")
	// ErrChamaRejected is returned when the platform refuses a chama, profile or email request.
	ErrChamaRejected = errors.New("request rejected")
	// ErrUnauthorized is returned when no valid access token is available.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEngineNotReady is returned when an Engine method is called on a nil or closed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// User-facing notice texts.
const (
	MsgCheckPhone         = "Check your phone for M-Pesa prompt"
	MsgEnterPhone         = "Please enter your phone number"
	MsgInitiateFailed     = "Failed to initiate M-Pesa login"
	MsgMpesaLoginFailed   = "M-Pesa login failed. Please try again."
	MsgStatusCheckFailed  = "Login status check failed"
	MsgLoginFailed        = "Login failed. Please try again."
	MsgStatusCheckError   = "Error checking login status"
	MsgRequestExpired     = "Login request expired"
	MsgTooManyAttempts    = "Too many login attempts. Please try again later."
	MsgFillAllFields      = "Please fill in all fields"
	MsgPasswordTooShort   = "Password must be at least 6 characters"
	MsgAccountCreated     = "Account created successfully!"
	MsgSignupFailed       = "Signup failed. Please try again."
	MsgPasswordLoginError = "Login failed"
	MsgSignupRejected     = "Signup failed"

	MsgNotAuthorized         = "Not authorized"
	MsgRequestFailed         = "Request failed. Please try again."
	MsgInvalidChama          = "Invalid chama"
	MsgInvalidContribution   = "Monthly contribution must be greater than zero"
	MsgInvalidRole           = "Invalid role"
	MsgInvalidMeetingDate    = "Invalid meeting date"
	MsgInvalidPhone          = "Invalid phone number"
	MsgEnterEmail            = "Please enter your email"
	MsgEnterVerificationCode = "Please enter the verification code"
)

// LoginError classifies a login, signup, handshake or chama request failure
// and carries the message shown to the user. errors.Is matches it against its Kind sentinel.
type LoginError struct {
	Kind    error
	Message string
	Err     error
}

func (e *LoginError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != nil {
		return e.Kind.Error()
	}
	return "login error"
}

// Is matches the Kind sentinel.
func (e *LoginError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// Unwrap exposes the underlying cause.
func (e *LoginError) Unwrap() error {
	return e.Err
}

func newLoginError(kind error, message string, cause error) *LoginError {
	return &LoginError{Kind: kind, Message: message, Err: cause}
}

// UserMessage returns the text to show for err. Errors that are not
// [*LoginError] fall back to fallback.
func UserMessage(err error, fallback string) string {
	var he *LoginError
	if errors.As(err, &he) && he.Message != "" {
		return he.Message
	}
	return fallback
}
