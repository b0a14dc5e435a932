package web

import (
	"context"
	"errors"
	"net/http"

	chamaWeb "github.com/MrEthical07/chamaWeb"
	"github.com/MrEthical07/chamaWeb/phone"
	"github.com/MrEthical07/chamaWeb/session"
	"go.uber.org/zap"
)

type mpesaRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type passwordLoginRequest struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

type signupRequest struct {
	Username    string `json:"username"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

func (s *Server) handleMpesaInitiate(w http.ResponseWriter, r *http.Request) {
	var req mpesaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgEnterPhone)
		return
	}

	gs, err := s.ensureSession(w, r)
	if err != nil {
		s.log.Warn("session unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	sid := gs.ID

	var h *chamaWeb.Handshake
	h, err = s.engine.NewHandshake(chamaWeb.HandshakeOptions{
		Tokens:    s.engine.Sessions().Bind(sid),
		OnSuccess: func(token string) { s.handshakeSucceeded(sid, h, token) },
		OnFailure: func(err error) { s.handshakeFailed(sid, h, err) },
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	s.registry.start(sid, h)

	requestID, err := h.Initiate(s.requestContext(r, sid), req.PhoneNumber)
	if err != nil {
		s.registry.release(sid, h)
		writeError(w, initiateStatus(err), chamaWeb.UserMessage(err, chamaWeb.MsgMpesaLoginFailed))
		return
	}

	snap := h.Snapshot()
	err = s.engine.Sessions().Update(r.Context(), sid, func(rec *session.Session) error {
		markAwaiting(rec, requestID, snap.Phone)
		return nil
	})
	if err != nil {
		s.log.Warn("session update failed", zap.Error(err))
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"request_id": requestID,
		"message":    chamaWeb.MsgCheckPhone,
	})
}

// markAwaiting records an accepted initiation. A terminal state already
// written for the same request by the handshake callbacks is kept.
func markAwaiting(rec *session.Session, requestID, phoneNumber string) {
	if rec.LoginRequestID == requestID && rec.LoginState != session.LoginAwaiting {
		return
	}
	rec.Phone = phoneNumber
	rec.LoginRequestID = requestID
	rec.LoginState = session.LoginAwaiting
	rec.LoginMessage = chamaWeb.MsgCheckPhone
}

func initiateStatus(err error) int {
	switch {
	case errors.Is(err, chamaWeb.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, chamaWeb.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, chamaWeb.ErrHandshakeCancelled), errors.Is(err, chamaWeb.ErrHandshakeSuperseded):
		return http.StatusConflict
	case errors.Is(err, chamaWeb.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) callbackContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opts.CallbackTimeout)
}

func (s *Server) handshakeSucceeded(sid string, h *chamaWeb.Handshake, token string) {
	defer s.registry.release(sid, h)
	if !s.registry.current(sid, h) {
		return
	}

	ctx, cancel := s.callbackContext()
	defer cancel()

	requestID := h.LastRequestID()
	err := s.engine.Sessions().Update(ctx, sid, func(rec *session.Session) error {
		rec.LoginRequestID = requestID
		rec.LoginState = session.LoginSucceeded
		rec.LoginMessage = ""
		return nil
	})
	if err != nil {
		s.log.Warn("session update failed", zap.Error(err))
		return
	}
	s.extendForToken(ctx, sid, token)
}

func (s *Server) handshakeFailed(sid string, h *chamaWeb.Handshake, cause error) {
	defer s.registry.release(sid, h)
	if !s.registry.current(sid, h) {
		return
	}

	ctx, cancel := s.callbackContext()
	defer cancel()

	state := session.LoginFailed
	if errors.Is(cause, chamaWeb.ErrRemoteExpired) || errors.Is(cause, chamaWeb.ErrHandshakeTimeout) {
		state = session.LoginExpired
	}
	requestID := h.LastRequestID()
	msg := chamaWeb.UserMessage(cause, chamaWeb.MsgLoginFailed)

	err := s.engine.Sessions().Update(ctx, sid, func(rec *session.Session) error {
		rec.LoginRequestID = requestID
		rec.LoginState = state
		rec.LoginMessage = msg
		return nil
	})
	if err != nil {
		s.log.Warn("session update failed", zap.Error(err))
	}
}

func (s *Server) handleMpesaStatus(w http.ResponseWriter, r *http.Request) {
	_, rec, err := s.existingSession(r)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": session.LoginNone.String()})
		return
	}

	resp := map[string]string{"status": rec.LoginState.String()}
	if rec.LoginMessage != "" {
		resp["message"] = rec.LoginMessage
	}
	if rec.LoginState == session.LoginSucceeded && rec.Authenticated() {
		resp["redirect"] = s.engine.Config().Handshake.RedirectTo
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMpesaCancel(w http.ResponseWriter, r *http.Request) {
	_, rec, err := s.existingSession(r)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.registry.cancel(rec.SessionID)
	err = s.engine.Sessions().Update(r.Context(), rec.SessionID, func(cur *session.Session) error {
		if cur.LoginState == session.LoginAwaiting {
			cur.LoginState = session.LoginCancelled
			cur.LoginMessage = ""
		}
		return nil
	})
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		s.log.Warn("session update failed", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePasswordLogin(w http.ResponseWriter, r *http.Request) {
	var req passwordLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgFillAllFields)
		return
	}

	gs, err := s.ensureSession(w, r)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	sid := gs.ID
	s.registry.cancel(sid)

	ctx := s.requestContext(r, sid)
	token, err := s.engine.PasswordLogin(ctx, req.PhoneNumber, req.Password, s.engine.Sessions().Bind(sid))
	if err != nil {
		writeError(w, loginStatus(err), chamaWeb.UserMessage(err, chamaWeb.MsgLoginFailed))
		return
	}
	s.markLoggedIn(ctx, sid, phone.Normalize(req.PhoneNumber), token)

	writeJSON(w, http.StatusOK, map[string]string{
		"redirect": s.engine.Config().Handshake.RedirectTo,
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgFillAllFields)
		return
	}

	gs, err := s.ensureSession(w, r)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	sid := gs.ID
	s.registry.cancel(sid)

	ctx := s.requestContext(r, sid)
	token, err := s.engine.Signup(ctx, chamaWeb.SignupInput{
		Username:    req.Username,
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		Password:    req.Password,
	}, s.engine.Sessions().Bind(sid))
	if err != nil {
		writeError(w, loginStatus(err), chamaWeb.UserMessage(err, chamaWeb.MsgSignupFailed))
		return
	}
	s.markLoggedIn(ctx, sid, phone.Normalize(req.PhoneNumber), token)

	writeJSON(w, http.StatusCreated, map[string]string{
		"message":  chamaWeb.MsgAccountCreated,
		"redirect": s.engine.Config().Handshake.RedirectTo,
	})
}

func (s *Server) markLoggedIn(ctx context.Context, sid, phoneNumber, token string) {
	err := s.engine.Sessions().Update(ctx, sid, func(rec *session.Session) error {
		rec.Phone = phoneNumber
		rec.LoginRequestID = ""
		rec.LoginState = session.LoginSucceeded
		rec.LoginMessage = ""
		return nil
	})
	if err != nil {
		s.log.Warn("session update failed", zap.Error(err))
		return
	}
	s.extendForToken(ctx, sid, token)
}

func loginStatus(err error) int {
	switch {
	case errors.Is(err, chamaWeb.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, chamaWeb.ErrCredentialsRejected):
		return http.StatusUnauthorized
	case errors.Is(err, chamaWeb.ErrSignupRejected):
		return http.StatusBadRequest
	case errors.Is(err, chamaWeb.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
