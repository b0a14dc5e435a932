package chamaWeb

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/chamaWeb/apiclient"
	"github.com/MrEthical07/chamaWeb/phone"
	"go.uber.org/zap"
)

// MinPasswordLength is the shortest password accepted at signup.
const MinPasswordLength = 6

// SignupInput is the account creation form.
type SignupInput struct {
	Username    string
	PhoneNumber string
	Email       string
	Password    string
}

// PasswordLogin exchanges a phone number and password for an access token
// and stores it in tokens.
func (e *Engine) PasswordLogin(ctx context.Context, rawPhone, password string, tokens TokenStore) (string, error) {
	if e == nil || e.closed.Load() {
		return "", ErrEngineNotReady
	}

	phoneNumber := phone.Normalize(rawPhone)
	if phoneNumber == "" || password == "" {
		return "", newLoginError(ErrValidation, MsgFillAllFields, nil)
	}

	resp, err := e.api.Login(ctx, phoneNumber, password)
	if err != nil {
		e.metrics.Inc(MetricPasswordLoginFailure)
		loginErr := rejection(err, ErrCredentialsRejected, MsgPasswordLoginError, MsgLoginFailed)
		e.emitAudit(ctx, AuditPasswordLogin, false, "", phoneNumber, loginErr, nil)
		return "", loginErr
	}

	if err := storeToken(ctx, tokens, resp.AccessToken); err != nil {
		e.metrics.Inc(MetricPasswordLoginFailure)
		return "", newLoginError(ErrTokenPersist, MsgLoginFailed, err)
	}

	e.metrics.Inc(MetricPasswordLoginSuccess)
	e.emitAudit(ctx, AuditPasswordLogin, true, "", phoneNumber, nil, nil)
	e.log.Info("password login", zap.String("phone", maskPhone(phoneNumber)))
	return resp.AccessToken, nil
}

// Signup creates an account and stores the returned token, logging the new
// user in.
func (e *Engine) Signup(ctx context.Context, in SignupInput, tokens TokenStore) (string, error) {
	if e == nil || e.closed.Load() {
		return "", ErrEngineNotReady
	}

	req := apiclient.SignupRequest{
		Username:    strings.TrimSpace(in.Username),
		PhoneNumber: phone.Normalize(in.PhoneNumber),
		Email:       strings.TrimSpace(in.Email),
		Password:    in.Password,
	}
	if req.Username == "" || req.PhoneNumber == "" || req.Email == "" || req.Password == "" {
		return "", newLoginError(ErrValidation, MsgFillAllFields, nil)
	}
	if utf8.RuneCountInString(req.Password) < MinPasswordLength {
		return "", newLoginError(ErrValidation, MsgPasswordTooShort, nil)
	}

	resp, err := e.api.Signup(ctx, req)
	if err != nil {
		e.metrics.Inc(MetricSignupFailure)
		loginErr := rejection(err, ErrSignupRejected, MsgSignupRejected, MsgSignupFailed)
		e.emitAudit(ctx, AuditSignup, false, "", req.PhoneNumber, loginErr, nil)
		return "", loginErr
	}

	if err := storeToken(ctx, tokens, resp.AccessToken); err != nil {
		e.metrics.Inc(MetricSignupFailure)
		return "", newLoginError(ErrTokenPersist, MsgSignupFailed, err)
	}

	e.metrics.Inc(MetricSignupSuccess)
	e.emitAudit(ctx, AuditSignup, true, "", req.PhoneNumber, nil,
		map[string]string{"username": req.Username})
	e.log.Info("account created", zap.String("phone", maskPhone(req.PhoneNumber)))
	return resp.AccessToken, nil
}

// rejection maps a platform error to a LoginError. A non-2xx answer carries
// the server detail (or rejectedMsg); anything else is a transport failure
// shown as transportMsg.
func rejection(err, kind error, rejectedMsg, transportMsg string) *LoginError {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Detail
		if msg == "" {
			msg = rejectedMsg
		}
		return newLoginError(kind, msg, err)
	}
	return newLoginError(ErrTransport, transportMsg, err)
}

func storeToken(ctx context.Context, tokens TokenStore, token string) error {
	if tokens == nil {
		return nil
	}
	return tokens.SetToken(ctx, token)
}
