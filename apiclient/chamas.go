package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
)

/*
====================================
CHAMAS & MEMBERSHIP
====================================
*/

// MessageResponse is the platform's plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// CreateChamaRequest is the chama creation form. JoinCode is optional.
type CreateChamaRequest struct {
	Name                string  `json:"name"`
	Description         string  `json:"description"`
	Guidelines          string  `json:"guidelines"`
	MonthlyContribution float64 `json:"monthly_contribution"`
	IsOpenToJoin        bool    `json:"is_open_to_join"`
	RequiresApproval    bool    `json:"requires_approval"`
	JoinCode            string  `json:"join_code,omitempty"`
}

// CreateChamaResponse carries the id of the new chama. The creator becomes its admin.
type CreateChamaResponse struct {
	Message string `json:"message"`
	ChamaID int64  `json:"chama_id"`
}

// JoinChamaRequest asks to join a chama. A chama that requires approval
// answers with a pending join request instead of a membership.
type JoinChamaRequest struct {
	ChamaID  int64  `json:"chama_id"`
	Role     string `json:"role"`
	JoinCode string `json:"join_code,omitempty"`
}

// JoinRequest is a pending request to join a chama.
type JoinRequest struct {
	RequestID   int64  `json:"request_id"`
	UserID      int64  `json:"user_id"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	RequestedAt string `json:"requested_at"`
	Status      string `json:"status"`
}

// Member is one membership row of a chama.
type Member struct {
	MemberID    int64  `json:"member_id"`
	UserID      int64  `json:"user_id"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Role        string `json:"role"`
	JoinDate    string `json:"join_date"`
}

// RoleUpdate assigns NewRole to one member.
type RoleUpdate struct {
	MemberID int64  `json:"member_id"`
	NewRole  string `json:"new_role"`
}

// UpdateRolesResponse lists the updates the platform applied. Admin rows are skipped.
type UpdateRolesResponse struct {
	Message string       `json:"message"`
	Updated []RoleUpdate `json:"updated"`
}

// CreateChama creates a chama owned by the token's user.
func (c *Client) CreateChama(ctx context.Context, token string, req CreateChamaRequest) (CreateChamaResponse, error) {
	var out CreateChamaResponse
	if err := c.do(ctx, http.MethodPost, "/create-chama", token, req, &out); err != nil {
		return CreateChamaResponse{}, err
	}
	return out, nil
}

// JoinChama joins a chama directly or files a join request.
func (c *Client) JoinChama(ctx context.Context, token string, req JoinChamaRequest) (MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, "/join-chama", token, req, &out); err != nil {
		return MessageResponse{}, err
	}
	return out, nil
}

// JoinRequests lists the pending join requests of a chama.
func (c *Client) JoinRequests(ctx context.Context, token string, chamaID int64) ([]JoinRequest, error) {
	var out []JoinRequest
	if err := c.do(ctx, http.MethodGet, chamaPath(chamaID, "/join-requests"), token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveJoinRequest turns a pending request into a membership.
func (c *Client) ApproveJoinRequest(ctx context.Context, token string, requestID int64) (MessageResponse, error) {
	return c.decideJoinRequest(ctx, token, requestID, "approve")
}

// RejectJoinRequest closes a pending request.
func (c *Client) RejectJoinRequest(ctx context.Context, token string, requestID int64) (MessageResponse, error) {
	return c.decideJoinRequest(ctx, token, requestID, "reject")
}

func (c *Client) decideJoinRequest(ctx context.Context, token string, requestID int64, verb string) (MessageResponse, error) {
	var out MessageResponse
	path := "/join-requests/" + strconv.FormatInt(requestID, 10) + "/" + verb
	if err := c.do(ctx, http.MethodPost, path, token, nil, &out); err != nil {
		return MessageResponse{}, err
	}
	return out, nil
}

// Members lists the members of a chama.
func (c *Client) Members(ctx context.Context, token string, chamaID int64) ([]Member, error) {
	var out []Member
	if err := c.do(ctx, http.MethodGet, chamaPath(chamaID, "/members"), token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveMember deletes one membership.
func (c *Client) RemoveMember(ctx context.Context, token string, chamaID, memberID int64) (MessageResponse, error) {
	var out MessageResponse
	path := chamaPath(chamaID, "/members/"+strconv.FormatInt(memberID, 10))
	if err := c.do(ctx, http.MethodDelete, path, token, nil, &out); err != nil {
		return MessageResponse{}, err
	}
	return out, nil
}

// UpdateRoles applies role changes in one request.
func (c *Client) UpdateRoles(ctx context.Context, token string, chamaID int64, updates []RoleUpdate) (UpdateRolesResponse, error) {
	var out UpdateRolesResponse
	body := map[string][]RoleUpdate{"updates": updates}
	if err := c.do(ctx, http.MethodPut, chamaPath(chamaID, "/update-roles"), token, body, &out); err != nil {
		return UpdateRolesResponse{}, err
	}
	return out, nil
}

/*
====================================
MEETINGS
====================================
*/

// Meeting is one chama meeting. MeetingDate is the platform's ISO timestamp.
type Meeting struct {
	MeetingID   int64  `json:"meeting_id"`
	MeetingDate string `json:"meeting_date"`
	Location    string `json:"location"`
	Agenda      string `json:"agenda,omitempty"`
	Minutes     string `json:"minutes,omitempty"`
}

// CreateMeetingRequest schedules a meeting.
type CreateMeetingRequest struct {
	MeetingDate string `json:"meeting_date"`
	Location    string `json:"location"`
	Agenda      string `json:"agenda,omitempty"`
}

// CreateMeeting schedules a meeting and returns it.
func (c *Client) CreateMeeting(ctx context.Context, token string, chamaID int64, req CreateMeetingRequest) (Meeting, error) {
	var out Meeting
	if err := c.do(ctx, http.MethodPost, chamaPath(chamaID, "/meetings"), token, req, &out); err != nil {
		return Meeting{}, err
	}
	return out, nil
}

// UpcomingMeetings lists meetings from now on, soonest first.
func (c *Client) UpcomingMeetings(ctx context.Context, token string, chamaID int64) ([]Meeting, error) {
	return c.meetings(ctx, token, chamaID, "upcoming")
}

// PreviousMeetings lists past meetings with their minutes, latest first.
func (c *Client) PreviousMeetings(ctx context.Context, token string, chamaID int64) ([]Meeting, error) {
	return c.meetings(ctx, token, chamaID, "previous")
}

func (c *Client) meetings(ctx context.Context, token string, chamaID int64, when string) ([]Meeting, error) {
	var out []Meeting
	if err := c.do(ctx, http.MethodGet, chamaPath(chamaID, "/meetings/"+when), token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveMinutes replaces the minutes of a meeting.
func (c *Client) SaveMinutes(ctx context.Context, token string, chamaID, meetingID int64, minutes string) (MessageResponse, error) {
	var out MessageResponse
	path := chamaPath(chamaID, "/meetings/"+strconv.FormatInt(meetingID, 10)+"/minutes")
	if err := c.do(ctx, http.MethodPut, path, token, map[string]string{"minutes": minutes}, &out); err != nil {
		return MessageResponse{}, err
	}
	return out, nil
}

func chamaPath(chamaID int64, suffix string) string {
	return "/chamas/" + strconv.FormatInt(chamaID, 10) + suffix
}

/*
====================================
PROFILE & EMAIL
====================================
*/

// Profile is the token holder's account.
type Profile struct {
	FullName             string `json:"full_name"`
	Email                string `json:"email"`
	EmailVerified        bool   `json:"email_verified"`
	PhoneNumber          string `json:"phone_number,omitempty"`
	AlternatePhoneNumber string `json:"alternate_phone_number,omitempty"`
	ProfilePictureURL    string `json:"profile_picture_url,omitempty"`
}

// ProfileUpdate changes contact numbers. Empty fields are left unchanged.
type ProfileUpdate struct {
	PhoneNumber          string
	AlternatePhoneNumber string
}

// Profile fetches the token holder's account.
func (c *Client) Profile(ctx context.Context, token string) (Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodGet, "/profile", token, nil, &out); err != nil {
		return Profile{}, err
	}
	return out, nil
}

// UpdateProfile sends the changed numbers as a multipart form, the encoding
// the platform's profile endpoint reads.
func (c *Client) UpdateProfile(ctx context.Context, token string, upd ProfileUpdate) (MessageResponse, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for name, value := range map[string]string{
		"phone_number":           upd.PhoneNumber,
		"alternate_phone_number": upd.AlternatePhoneNumber,
	} {
		if value == "" {
			continue
		}
		if err := form.WriteField(name, value); err != nil {
			return MessageResponse{}, fmt.Errorf("encode profile form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return MessageResponse{}, fmt.Errorf("encode profile form: %w", err)
	}

	resp, err := c.sendBody(ctx, http.MethodPut, "/profile", token, &buf, form.FormDataContentType())
	if err != nil {
		return MessageResponse{}, err
	}
	var out MessageResponse
	if err := readResponse(resp, &out); err != nil {
		return MessageResponse{}, err
	}
	return out, nil
}

// VerifyEmail confirms an address with the code mailed at signup.
func (c *Client) VerifyEmail(ctx context.Context, email, code string) (MessageResponse, error) {
	var out MessageResponse
	body := map[string]string{"email": email, "code": code}
	if err := c.do(ctx, http.MethodPost, "/verify-email", "", body, &out); err != nil {
		return MessageResponse{}, err
	}
	return out, nil
}

// ResendVerification mails a fresh verification code.
func (c *Client) ResendVerification(ctx context.Context, email string) (MessageResponse, error) {
	var out MessageResponse
	body := map[string]string{"email": email}
	if err := c.do(ctx, http.MethodPost, "/resend-verification", "", body, &out); err != nil {
		return MessageResponse{}, err
	}
	return out, nil
}
