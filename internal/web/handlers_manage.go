package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	chamaWeb "github.com/MrEthical07/chamaWeb"
	"github.com/MrEthical07/chamaWeb/apiclient"
	"github.com/MrEthical07/chamaWeb/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type joinChamaRequest struct {
	ChamaID  int64  `json:"chama_id"`
	JoinCode string `json:"join_code"`
}

type updateRolesRequest struct {
	Updates []apiclient.RoleUpdate `json:"updates"`
}

type minutesRequest struct {
	Minutes string `json:"minutes"`
}

type profileRequest struct {
	PhoneNumber          string `json:"phone_number"`
	AlternatePhoneNumber string `json:"alternate_phone_number"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// actor returns the audit context and the token admitted by the guard.
func (s *Server) actor(r *http.Request) (context.Context, string) {
	token, _ := middleware.TokenFromContext(r.Context())
	sid := ""
	if _, rec, _ := s.existingSession(r); rec != nil {
		sid = rec.SessionID
	}
	return s.requestContext(r, sid), token
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil && id > 0
}

// clearToken drops a token the platform no longer accepts.
func (s *Server) clearToken(r *http.Request) {
	if _, rec, _ := s.existingSession(r); rec != nil {
		if err := s.engine.Sessions().Bind(rec.SessionID).ClearToken(r.Context()); err != nil {
			s.log.Warn("token clear failed", zap.Error(err))
		}
	}
}

// writeEngineError maps an Engine error to a response. fallback is shown for
// failures that carry no user message.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, chamaWeb.ErrUnauthorized):
		s.clearToken(r)
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, chamaWeb.ErrValidation):
		writeError(w, http.StatusBadRequest, chamaWeb.UserMessage(err, fallback))
	case errors.Is(err, chamaWeb.ErrForbidden):
		writeError(w, http.StatusForbidden, chamaWeb.UserMessage(err, chamaWeb.MsgNotAuthorized))
	case errors.Is(err, chamaWeb.ErrChamaRejected):
		status := http.StatusBadGateway
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			status = apiErr.StatusCode
		}
		writeError(w, status, chamaWeb.UserMessage(err, fallback))
	case errors.Is(err, chamaWeb.ErrEngineNotReady):
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
	default:
		s.log.Warn("platform request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadGateway, fallback)
	}
}

/*
====================================
CHAMAS & MEMBERSHIP
====================================
*/

func (s *Server) handleCreateChama(w http.ResponseWriter, r *http.Request) {
	var req apiclient.CreateChamaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgFillAllFields)
		return
	}
	ctx, token := s.actor(r)
	resp, err := s.engine.CreateChama(ctx, token, req)
	if err != nil {
		s.writeEngineError(w, r, err, "Failed to create chama")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJoinChama(w http.ResponseWriter, r *http.Request) {
	var req joinChamaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgInvalidChama)
		return
	}
	ctx, token := s.actor(r)
	msg, err := s.engine.JoinChama(ctx, token, req.ChamaID, req.JoinCode)
	if err != nil {
		s.writeEngineError(w, r, err, "Failed to join chama")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleJoinRequests(w http.ResponseWriter, r *http.Request) {
	chamaID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgInvalidChama)
		return
	}
	ctx, token := s.actor(r)
	requests, err := s.engine.JoinRequests(ctx, token, chamaID)
	if err != nil {
		s.writeEngineError(w, r, err, "Failed to load join requests")
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (s *Server) handleDecideJoinRequest(w http.ResponseWriter, r *http.Request) {
	chamaID, ok := pathID(r, "id")
	requestID, ok2 := pathID(r, "rid")
	if !ok || !ok2 {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgRequestFailed)
		return
	}
	ctx, token := s.actor(r)

	decide := s.engine.ApproveJoinRequest
	if mux.Vars(r)["decision"] == "reject" {
		decide = s.engine.RejectJoinRequest
	}
	msg, err := decide(ctx, token, chamaID, requestID)
	if err != nil {
		s.writeEngineError(w, r, err, "Failed to update join request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	chamaID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgInvalidChama)
		return
	}
	ctx, token := s.actor(r)
	members, err := s.engine.Members(ctx, token, chamaID)
	if err != nil {
		s.writeEngineError(w, r, err, "Failed to load members")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	chamaID, ok := pathID(r, "id")
	memberID, ok2 := pathID(r, "mid")
	if !ok || !ok2 {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgRequestFailed)
		return
	}
	ctx, token := s.actor(r)
	msg, err := s.engine.RemoveMember(ctx, token, chamaID, memberID)
	if err != nil {
		s.writeEngineError(w, r, err, "Failed to remove member")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleUpdateRoles(w http.ResponseWriter, r *http.Request) {
	chamaID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgInvalidChama)
		return
	}
	var req updateRolesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgInvalidRole)
		return
	}
	ctx, token := s.actor(r)
	resp, err := s.engine.UpdateRoles(ctx, token, chamaID, req.Updates)
	if err != nil {
		s.writeEngineError(w, r, err, "Failed to update roles")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

/*
====================================
MEETINGS
====================================
*/

func (s *Server) handleScheduleMeeting(w http.ResponseWriter, r *http.Request) {
	chamaID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgInvalidChama)
		return
	}
	var req apiclient.CreateMeetingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgFillAllFields)
		return
	}
	ctx, token := s.actor(r)
	meeting, err := s.engine.ScheduleMeeting(ctx, token, chamaID, req)
	if err != nil {
		s.writeEngineError(w, r, err, "Failed to schedule meeting")
		return
	}
	writeJSON(w, http.StatusOK, meeting)
}

func (s *Server) handleMeetings(w http.ResponseWriter, r *http.Request) {
	chamaID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgInvalidChama)
		return
	}
	ctx, token := s.actor(r)

	list := s.engine.UpcomingMeetings
	if mux.Vars(r)["when"] == "previous" {
		list = s.engine.PreviousMeetings
	}
	meetings, err := list(ctx, token, chamaID)
	if err != nil {
		s.writeEngineError(w, r, err, "Failed to load meetings")
		return
	}
	writeJSON(w, http.StatusOK, meetings)
}

func (s *Server) handleSaveMinutes(w http.ResponseWriter, r *http.Request) {
	chamaID, ok := pathID(r, "id")
	meetingID, ok2 := pathID(r, "mid")
	if !ok || !ok2 {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgRequestFailed)
		return
	}
	var req minutesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgFillAllFields)
		return
	}
	ctx, token := s.actor(r)
	msg, err := s.engine.SaveMinutes(ctx, token, chamaID, meetingID, req.Minutes)
	if err != nil {
		s.writeEngineError(w, r, err, "Failed to save minutes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

/*
====================================
PROFILE & EMAIL
====================================
*/

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	ctx, token := s.actor(r)
	profile, err := s.engine.Profile(ctx, token)
	if err != nil {
		s.writeEngineError(w, r, err, "Failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleUpdateProfile accepts the profile page's form post or a JSON body.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, chamaWeb.MsgInvalidPhone)
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			writeError(w, http.StatusBadRequest, chamaWeb.MsgInvalidPhone)
			return
		}
		req.PhoneNumber = r.FormValue("phone_number")
		req.AlternatePhoneNumber = r.FormValue("alternate_phone_number")
	}

	ctx, token := s.actor(r)
	msg, err := s.engine.UpdateProfile(ctx, token, apiclient.ProfileUpdate{
		PhoneNumber:          req.PhoneNumber,
		AlternatePhoneNumber: req.AlternatePhoneNumber,
	})
	if err != nil {
		s.writeEngineError(w, r, err, "Failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgEnterEmail)
		return
	}
	msg, err := s.engine.VerifyEmail(s.requestContext(r, ""), req.Email, req.Code)
	if err != nil {
		s.writeEngineError(w, r, err, "Verification failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, chamaWeb.MsgEnterEmail)
		return
	}
	msg, err := s.engine.ResendVerification(s.requestContext(r, ""), req.Email)
	if err != nil {
		s.writeEngineError(w, r, err, "Failed to resend code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}
