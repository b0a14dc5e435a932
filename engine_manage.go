package chamaWeb

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/chamaWeb/apiclient"
	"github.com/MrEthical07/chamaWeb/permission"
	"go.uber.org/zap"
)

/*
====================================
AUTHORIZATION
====================================
*/

// authorize checks that the token holder belongs to chamaID with a role
// granting action. Denials never reach the platform.
func (e *Engine) authorize(ctx context.Context, token string, chamaID int64, action string) error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrUnauthorized
	}
	if chamaID <= 0 {
		return newLoginError(ErrValidation, MsgInvalidChama, nil)
	}

	chamas, err := e.api.MyChamas(ctx, token)
	if err != nil {
		if apiclient.IsUnauthorized(err) {
			return ErrUnauthorized
		}
		return newLoginError(ErrTransport, MsgRequestFailed, err)
	}

	role := ""
	for _, c := range chamas {
		if c.ChamaID == chamaID {
			role = c.Role
			break
		}
	}
	if role != "" && e.catalog.Allowed(role, action) {
		return nil
	}

	e.emitAudit(ctx, AuditChamaActionDenied, false, "", "", ErrForbidden, chamaMeta(action, chamaID))
	e.log.Debug("chama action denied",
		zap.String("action", action),
		zap.Int64("chama_id", chamaID),
		zap.String("role", role),
	)
	return newLoginError(ErrForbidden, MsgNotAuthorized, nil)
}

// chamaRejection maps a platform error on a chama, profile or email request.
func chamaRejection(err error) error {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		return newLoginError(ErrTransport, MsgRequestFailed, err)
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		msg := apiErr.Detail
		if msg == "" {
			msg = MsgNotAuthorized
		}
		return newLoginError(ErrForbidden, msg, err)
	}
	msg := apiErr.Detail
	if msg == "" {
		msg = MsgRequestFailed
	}
	return newLoginError(ErrChamaRejected, msg, err)
}

func (e *Engine) auditChama(ctx context.Context, action string, chamaID int64, err error) {
	e.emitAudit(ctx, AuditChamaAction, err == nil, "", "", err, chamaMeta(action, chamaID))
}

func chamaMeta(action string, chamaID int64) map[string]string {
	meta := map[string]string{"action": action}
	if chamaID > 0 {
		meta["chama_id"] = strconv.FormatInt(chamaID, 10)
	}
	return meta
}

func (e *Engine) ready(token string) error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrUnauthorized
	}
	return nil
}

/*
====================================
CHAMAS & MEMBERSHIP
====================================
*/

// Actions that need no chama role. They are audited under these names.
const (
	actionCreateChama = "chama.create"
	actionJoinChama   = "chama.join"
)

// CreateChama creates a chama; the token holder becomes its admin.
func (e *Engine) CreateChama(ctx context.Context, token string, req apiclient.CreateChamaRequest) (apiclient.CreateChamaResponse, error) {
	if err := e.ready(token); err != nil {
		return apiclient.CreateChamaResponse{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.Guidelines = strings.TrimSpace(req.Guidelines)
	req.JoinCode = strings.TrimSpace(req.JoinCode)
	if req.Name == "" {
		return apiclient.CreateChamaResponse{}, newLoginError(ErrValidation, MsgFillAllFields, nil)
	}
	if req.MonthlyContribution <= 0 {
		return apiclient.CreateChamaResponse{}, newLoginError(ErrValidation, MsgInvalidContribution, nil)
	}

	resp, err := e.api.CreateChama(ctx, token, req)
	if err != nil {
		mapped := chamaRejection(err)
		e.auditChama(ctx, actionCreateChama, 0, mapped)
		return apiclient.CreateChamaResponse{}, mapped
	}
	e.auditChama(ctx, actionCreateChama, resp.ChamaID, nil)
	e.log.Info("chama created", zap.Int64("chama_id", resp.ChamaID))
	return resp, nil
}

// JoinChama joins chamaID as a plain member, or files a join request when the
// chama requires approval. It returns the platform's message.
func (e *Engine) JoinChama(ctx context.Context, token string, chamaID int64, joinCode string) (string, error) {
	if err := e.ready(token); err != nil {
		return "", err
	}
	if chamaID <= 0 {
		return "", newLoginError(ErrValidation, MsgInvalidChama, nil)
	}

	resp, err := e.api.JoinChama(ctx, token, apiclient.JoinChamaRequest{
		ChamaID:  chamaID,
		Role:     permission.RoleMember,
		JoinCode: strings.TrimSpace(joinCode),
	})
	if err != nil {
		mapped := chamaRejection(err)
		e.auditChama(ctx, actionJoinChama, chamaID, mapped)
		return "", mapped
	}
	e.auditChama(ctx, actionJoinChama, chamaID, nil)
	return resp.Message, nil
}

// JoinRequests lists pending join requests. Requires requests.approve.
func (e *Engine) JoinRequests(ctx context.Context, token string, chamaID int64) ([]apiclient.JoinRequest, error) {
	if err := e.authorize(ctx, token, chamaID, permission.ActionApproveRequests); err != nil {
		return nil, err
	}
	out, err := e.api.JoinRequests(ctx, token, chamaID)
	if err != nil {
		return nil, chamaRejection(err)
	}
	return out, nil
}

// ApproveJoinRequest admits the requester as a member. Requires requests.approve.
func (e *Engine) ApproveJoinRequest(ctx context.Context, token string, chamaID, requestID int64) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	return e.decideJoinRequest(ctx, token, chamaID, requestID, e.api.ApproveJoinRequest)
}

// RejectJoinRequest closes a join request. Requires requests.approve.
func (e *Engine) RejectJoinRequest(ctx context.Context, token string, chamaID, requestID int64) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	return e.decideJoinRequest(ctx, token, chamaID, requestID, e.api.RejectJoinRequest)
}

func (e *Engine) decideJoinRequest(
	ctx context.Context,
	token string,
	chamaID, requestID int64,
	call func(context.Context, string, int64) (apiclient.MessageResponse, error),
) (string, error) {
	if err := e.authorize(ctx, token, chamaID, permission.ActionApproveRequests); err != nil {
		return "", err
	}
	if requestID <= 0 {
		return "", newLoginError(ErrValidation, MsgRequestFailed, nil)
	}
	resp, err := call(ctx, token, requestID)
	if err != nil {
		err = chamaRejection(err)
	}
	e.auditChama(ctx, permission.ActionApproveRequests, chamaID, err)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Members lists the members of chamaID. Requires members.manage.
func (e *Engine) Members(ctx context.Context, token string, chamaID int64) ([]apiclient.Member, error) {
	if err := e.authorize(ctx, token, chamaID, permission.ActionManageMembers); err != nil {
		return nil, err
	}
	out, err := e.api.Members(ctx, token, chamaID)
	if err != nil {
		return nil, chamaRejection(err)
	}
	return out, nil
}

// RemoveMember deletes a membership. Requires members.manage.
func (e *Engine) RemoveMember(ctx context.Context, token string, chamaID, memberID int64) (string, error) {
	if err := e.authorize(ctx, token, chamaID, permission.ActionManageMembers); err != nil {
		return "", err
	}
	if memberID <= 0 {
		return "", newLoginError(ErrValidation, MsgRequestFailed, nil)
	}
	resp, err := e.api.RemoveMember(ctx, token, chamaID, memberID)
	if err != nil {
		err = chamaRejection(err)
	}
	e.auditChama(ctx, permission.ActionManageMembers, chamaID, err)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// UpdateRoles reassigns member roles. Requires members.manage. Every new role
// must be a known role other than admin.
func (e *Engine) UpdateRoles(ctx context.Context, token string, chamaID int64, updates []apiclient.RoleUpdate) (apiclient.UpdateRolesResponse, error) {
	if err := e.authorize(ctx, token, chamaID, permission.ActionManageMembers); err != nil {
		return apiclient.UpdateRolesResponse{}, err
	}
	if len(updates) == 0 {
		return apiclient.UpdateRolesResponse{}, newLoginError(ErrValidation, MsgFillAllFields, nil)
	}

	clean := make([]apiclient.RoleUpdate, 0, len(updates))
	for _, u := range updates {
		role := strings.ToLower(strings.TrimSpace(u.NewRole))
		if u.MemberID <= 0 || role == permission.RoleAdmin || !e.catalog.HasRole(role) {
			return apiclient.UpdateRolesResponse{}, newLoginError(ErrValidation, MsgInvalidRole, nil)
		}
		clean = append(clean, apiclient.RoleUpdate{MemberID: u.MemberID, NewRole: role})
	}

	resp, err := e.api.UpdateRoles(ctx, token, chamaID, clean)
	if err != nil {
		err = chamaRejection(err)
	}
	e.auditChama(ctx, permission.ActionManageMembers, chamaID, err)
	if err != nil {
		return apiclient.UpdateRolesResponse{}, err
	}
	return resp, nil
}

/*
====================================
MEETINGS
====================================
*/

// meetingLayouts are the accepted meeting date forms, datetime-local first.
var meetingLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

const meetingDateLayout = "2006-01-02T15:04:05"

func parseMeetingDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range meetingLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ScheduleMeeting creates a meeting. Requires meetings.schedule.
func (e *Engine) ScheduleMeeting(ctx context.Context, token string, chamaID int64, req apiclient.CreateMeetingRequest) (apiclient.Meeting, error) {
	if err := e.authorize(ctx, token, chamaID, permission.ActionScheduleMeeting); err != nil {
		return apiclient.Meeting{}, err
	}

	req.Location = strings.TrimSpace(req.Location)
	req.Agenda = strings.TrimSpace(req.Agenda)
	if req.Location == "" || strings.TrimSpace(req.MeetingDate) == "" {
		return apiclient.Meeting{}, newLoginError(ErrValidation, MsgFillAllFields, nil)
	}
	when, ok := parseMeetingDate(req.MeetingDate)
	if !ok {
		return apiclient.Meeting{}, newLoginError(ErrValidation, MsgInvalidMeetingDate, nil)
	}
	req.MeetingDate = when.Format(meetingDateLayout)

	resp, err := e.api.CreateMeeting(ctx, token, chamaID, req)
	if err != nil {
		err = chamaRejection(err)
	}
	e.auditChama(ctx, permission.ActionScheduleMeeting, chamaID, err)
	if err != nil {
		return apiclient.Meeting{}, err
	}
	return resp, nil
}

// UpcomingMeetings lists meetings still ahead. Requires meetings.view.
func (e *Engine) UpcomingMeetings(ctx context.Context, token string, chamaID int64) ([]apiclient.Meeting, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.listMeetings(ctx, token, chamaID, e.api.UpcomingMeetings)
}

// PreviousMeetings lists past meetings with minutes. Requires meetings.view.
func (e *Engine) PreviousMeetings(ctx context.Context, token string, chamaID int64) ([]apiclient.Meeting, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.listMeetings(ctx, token, chamaID, e.api.PreviousMeetings)
}

func (e *Engine) listMeetings(
	ctx context.Context,
	token string,
	chamaID int64,
	call func(context.Context, string, int64) ([]apiclient.Meeting, error),
) ([]apiclient.Meeting, error) {
	if err := e.authorize(ctx, token, chamaID, permission.ActionViewMeetings); err != nil {
		return nil, err
	}
	out, err := call(ctx, token, chamaID)
	if err != nil {
		return nil, chamaRejection(err)
	}
	return out, nil
}

// SaveMinutes replaces a meeting's minutes. Requires minutes.edit.
func (e *Engine) SaveMinutes(ctx context.Context, token string, chamaID, meetingID int64, minutes string) (string, error) {
	if err := e.authorize(ctx, token, chamaID, permission.ActionEditMinutes); err != nil {
		return "", err
	}
	if meetingID <= 0 {
		return "", newLoginError(ErrValidation, MsgRequestFailed, nil)
	}
	resp, err := e.api.SaveMinutes(ctx, token, chamaID, meetingID, minutes)
	if err != nil {
		err = chamaRejection(err)
	}
	e.auditChama(ctx, permission.ActionEditMinutes, chamaID, err)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}
