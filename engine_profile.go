package chamaWeb

import (
	"context"
	"net/mail"
	"strings"

	"github.com/MrEthical07/chamaWeb/apiclient"
	"github.com/MrEthical07/chamaWeb/phone"
)

// Profile returns the token holder's account.
func (e *Engine) Profile(ctx context.Context, token string) (apiclient.Profile, error) {
	if err := e.ready(token); err != nil {
		return apiclient.Profile{}, err
	}
	out, err := e.api.Profile(ctx, token)
	if err != nil {
		return apiclient.Profile{}, chamaRejection(err)
	}
	return out, nil
}

// UpdateProfile changes the contact numbers. Both are normalized like login
// numbers; at least one must be given.
func (e *Engine) UpdateProfile(ctx context.Context, token string, upd apiclient.ProfileUpdate) (string, error) {
	if err := e.ready(token); err != nil {
		return "", err
	}

	var ok bool
	if upd.PhoneNumber, ok = normalizeOptionalPhone(upd.PhoneNumber); !ok {
		return "", newLoginError(ErrValidation, MsgInvalidPhone, nil)
	}
	if upd.AlternatePhoneNumber, ok = normalizeOptionalPhone(upd.AlternatePhoneNumber); !ok {
		return "", newLoginError(ErrValidation, MsgInvalidPhone, nil)
	}
	if upd.PhoneNumber == "" && upd.AlternatePhoneNumber == "" {
		return "", newLoginError(ErrValidation, MsgFillAllFields, nil)
	}

	resp, err := e.api.UpdateProfile(ctx, token, upd)
	if err != nil {
		err = chamaRejection(err)
	}
	e.auditChama(ctx, "profile.update", 0, err)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

func normalizeOptionalPhone(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", true
	}
	n := phone.Normalize(raw)
	return n, phone.Valid(n)
}

// VerifyEmail confirms email with the code sent at signup. No token is needed.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) (string, error) {
	if e == nil || e.closed.Load() {
		return "", ErrEngineNotReady
	}
	email, ok := cleanEmail(email)
	if !ok {
		return "", newLoginError(ErrValidation, MsgEnterEmail, nil)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "", newLoginError(ErrValidation, MsgEnterVerificationCode, nil)
	}

	resp, err := e.api.VerifyEmail(ctx, email, code)
	if err != nil {
		return "", chamaRejection(err)
	}
	return resp.Message, nil
}

// ResendVerification asks the platform to mail a new verification code.
func (e *Engine) ResendVerification(ctx context.Context, email string) (string, error) {
	if e == nil || e.closed.Load() {
		return "", ErrEngineNotReady
	}
	email, ok := cleanEmail(email)
	if !ok {
		return "", newLoginError(ErrValidation, MsgEnterEmail, nil)
	}

	resp, err := e.api.ResendVerification(ctx, email)
	if err != nil {
		return "", chamaRejection(err)
	}
	return resp.Message, nil
}

func cleanEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", false
	}
	return raw, true
}
