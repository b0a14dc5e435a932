package chamaWeb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/chamaWeb/apiclient"
	"github.com/MrEthical07/chamaWeb/clock"
)

var errDial = fmt.Errorf("%w: dial tcp 127.0.0.1:8000: connect: connection refused", apiclient.ErrTransport)

type statusStep struct {
	resp apiclient.StatusResponse
	err  error
}

func pending() statusStep {
	return statusStep{resp: apiclient.StatusResponse{Status: "pending"}}
}

func confirmed(token string) statusStep {
	return statusStep{resp: apiclient.StatusResponse{AccessToken: token, TokenType: "bearer"}}
}

// scriptedAPI answers status polls from a script; the last step repeats.
type scriptedAPI struct {
	mu sync.Mutex

	initiateResp  apiclient.InitiateResponse
	initiateErr   error
	initiateCalls int
	initiatePhone []string

	statuses    []statusStep
	statusCalls int
	statusIDs   []string
	onStatus    func(ctx context.Context, call int)

	verifyOK    bool
	verifyErr   error
	verifyCalls int

	loginResp  apiclient.TokenResponse
	loginErr   error
	loginCalls int

	signupResp apiclient.TokenResponse
	signupErr  error
	signupReqs []apiclient.SignupRequest

	chamas    []apiclient.Chama
	chamasErr error

	// manageErr fails every chama, profile and email call; manageCalls
	// names each call that reached the platform.
	manageErr   error
	manageCalls []string
	roleUpdates []apiclient.RoleUpdate
	joinReqs    []apiclient.JoinChamaRequest
	meetingReqs []apiclient.CreateMeetingRequest
	profileUpds []apiclient.ProfileUpdate
}

func newScriptedAPI(steps ...statusStep) *scriptedAPI {
	return &scriptedAPI{
		initiateResp: apiclient.InitiateResponse{RequestID: "abc"},
		statuses:     steps,
	}
}

func (a *scriptedAPI) InitiateMpesaLogin(_ context.Context, phoneNumber string) (apiclient.InitiateResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initiateCalls++
	a.initiatePhone = append(a.initiatePhone, phoneNumber)
	if a.initiateErr != nil {
		return apiclient.InitiateResponse{}, a.initiateErr
	}
	return a.initiateResp, nil
}

func (a *scriptedAPI) MpesaLoginStatus(ctx context.Context, requestID string) (apiclient.StatusResponse, error) {
	a.mu.Lock()
	a.statusCalls++
	call := a.statusCalls
	a.statusIDs = append(a.statusIDs, requestID)
	step := pending()
	if len(a.statuses) > 0 {
		idx := call - 1
		if idx >= len(a.statuses) {
			idx = len(a.statuses) - 1
		}
		step = a.statuses[idx]
	}
	hook := a.onStatus
	a.mu.Unlock()

	if hook != nil {
		hook(ctx, call)
	}
	return step.resp, step.err
}

func (a *scriptedAPI) Verify(context.Context, string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.verifyCalls++
	return a.verifyOK, a.verifyErr
}

func (a *scriptedAPI) Login(context.Context, string, string) (apiclient.TokenResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loginCalls++
	return a.loginResp, a.loginErr
}

func (a *scriptedAPI) Signup(_ context.Context, req apiclient.SignupRequest) (apiclient.TokenResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signupReqs = append(a.signupReqs, req)
	return a.signupResp, a.signupErr
}

func (a *scriptedAPI) MyChamas(context.Context, string) ([]apiclient.Chama, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chamas, a.chamasErr
}

func (a *scriptedAPI) record(call string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.manageCalls = append(a.manageCalls, call)
	return a.manageErr
}

func (a *scriptedAPI) calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.manageCalls...)
}

func (a *scriptedAPI) CreateChama(_ context.Context, _ string, req apiclient.CreateChamaRequest) (apiclient.CreateChamaResponse, error) {
	if err := a.record("create-chama"); err != nil {
		return apiclient.CreateChamaResponse{}, err
	}
	return apiclient.CreateChamaResponse{Message: "Chama created", ChamaID: 77}, nil
}

func (a *scriptedAPI) JoinChama(_ context.Context, _ string, req apiclient.JoinChamaRequest) (apiclient.MessageResponse, error) {
	a.mu.Lock()
	a.joinReqs = append(a.joinReqs, req)
	a.mu.Unlock()
	if err := a.record("join-chama"); err != nil {
		return apiclient.MessageResponse{}, err
	}
	return apiclient.MessageResponse{Message: "Join request submitted and awaiting approval."}, nil
}

func (a *scriptedAPI) JoinRequests(context.Context, string, int64) ([]apiclient.JoinRequest, error) {
	if err := a.record("join-requests"); err != nil {
		return nil, err
	}
	return []apiclient.JoinRequest{{RequestID: 9, FullName: "Wanjiru", Status: "pending"}}, nil
}

func (a *scriptedAPI) ApproveJoinRequest(context.Context, string, int64) (apiclient.MessageResponse, error) {
	if err := a.record("approve"); err != nil {
		return apiclient.MessageResponse{}, err
	}
	return apiclient.MessageResponse{Message: "Request approved successfully"}, nil
}

func (a *scriptedAPI) RejectJoinRequest(context.Context, string, int64) (apiclient.MessageResponse, error) {
	if err := a.record("reject"); err != nil {
		return apiclient.MessageResponse{}, err
	}
	return apiclient.MessageResponse{Message: "Request rejected"}, nil
}

func (a *scriptedAPI) Members(context.Context, string, int64) ([]apiclient.Member, error) {
	if err := a.record("members"); err != nil {
		return nil, err
	}
	return []apiclient.Member{{MemberID: 4, FullName: "Otieno", Role: "member"}}, nil
}

func (a *scriptedAPI) RemoveMember(context.Context, string, int64, int64) (apiclient.MessageResponse, error) {
	if err := a.record("remove-member"); err != nil {
		return apiclient.MessageResponse{}, err
	}
	return apiclient.MessageResponse{Message: "Member removed successfully"}, nil
}

func (a *scriptedAPI) UpdateRoles(_ context.Context, _ string, _ int64, updates []apiclient.RoleUpdate) (apiclient.UpdateRolesResponse, error) {
	a.mu.Lock()
	a.roleUpdates = append(a.roleUpdates, updates...)
	a.mu.Unlock()
	if err := a.record("update-roles"); err != nil {
		return apiclient.UpdateRolesResponse{}, err
	}
	return apiclient.UpdateRolesResponse{Message: "Roles updated successfully", Updated: updates}, nil
}

func (a *scriptedAPI) CreateMeeting(_ context.Context, _ string, _ int64, req apiclient.CreateMeetingRequest) (apiclient.Meeting, error) {
	a.mu.Lock()
	a.meetingReqs = append(a.meetingReqs, req)
	a.mu.Unlock()
	if err := a.record("create-meeting"); err != nil {
		return apiclient.Meeting{}, err
	}
	return apiclient.Meeting{MeetingID: 5, MeetingDate: req.MeetingDate, Location: req.Location}, nil
}

func (a *scriptedAPI) UpcomingMeetings(context.Context, string, int64) ([]apiclient.Meeting, error) {
	if err := a.record("upcoming"); err != nil {
		return nil, err
	}
	return []apiclient.Meeting{{MeetingID: 6, Location: "Hall"}}, nil
}

func (a *scriptedAPI) PreviousMeetings(context.Context, string, int64) ([]apiclient.Meeting, error) {
	if err := a.record("previous"); err != nil {
		return nil, err
	}
	return []apiclient.Meeting{{MeetingID: 5, Location: "Hall", Minutes: "Agreed"}}, nil
}

func (a *scriptedAPI) SaveMinutes(context.Context, string, int64, int64, string) (apiclient.MessageResponse, error) {
	if err := a.record("minutes"); err != nil {
		return apiclient.MessageResponse{}, err
	}
	return apiclient.MessageResponse{Message: "Minutes updated successfully"}, nil
}

func (a *scriptedAPI) Profile(context.Context, string) (apiclient.Profile, error) {
	if err := a.record("profile"); err != nil {
		return apiclient.Profile{}, err
	}
	return apiclient.Profile{FullName: "Amina", Email: "amina@example.com"}, nil
}

func (a *scriptedAPI) UpdateProfile(_ context.Context, _ string, upd apiclient.ProfileUpdate) (apiclient.MessageResponse, error) {
	a.mu.Lock()
	a.profileUpds = append(a.profileUpds, upd)
	a.mu.Unlock()
	if err := a.record("update-profile"); err != nil {
		return apiclient.MessageResponse{}, err
	}
	return apiclient.MessageResponse{Message: "Profile updated"}, nil
}

func (a *scriptedAPI) VerifyEmail(context.Context, string, string) (apiclient.MessageResponse, error) {
	if err := a.record("verify-email"); err != nil {
		return apiclient.MessageResponse{}, err
	}
	return apiclient.MessageResponse{Message: "Email verified successfully"}, nil
}

func (a *scriptedAPI) ResendVerification(context.Context, string) (apiclient.MessageResponse, error) {
	if err := a.record("resend-verification"); err != nil {
		return apiclient.MessageResponse{}, err
	}
	return apiclient.MessageResponse{Message: "Verification code sent to your email"}, nil
}

func (a *scriptedAPI) polls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statusCalls
}

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, api RemoteAPI, mutate ...func(*Config)) (*Engine, *clock.Fake) {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	fake := clock.NewFake(testEpoch)
	engine, err := New().
		WithConfig(cfg).
		WithAPIClient(api).
		WithClock(fake).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, fake
}

type recorder struct {
	mu       sync.Mutex
	tokens   []string
	failures []error
}

func (r *recorder) onSuccess(token string) {
	r.mu.Lock()
	r.tokens = append(r.tokens, token)
	r.mu.Unlock()
}

func (r *recorder) onFailure(err error) {
	r.mu.Lock()
	r.failures = append(r.failures, err)
	r.mu.Unlock()
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens), len(r.failures)
}

type failingTokenStore struct{ MemoryTokenStore }

func (*failingTokenStore) SetToken(context.Context, string) error {
	return errors.New("disk full")
}
