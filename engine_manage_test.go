package chamaWeb

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"

	"github.com/MrEthical07/chamaWeb/apiclient"
)

func newManageEngine(t *testing.T, role string) (*Engine, *scriptedAPI) {
	t.Helper()
	api := newScriptedAPI()
	api.chamas = []apiclient.Chama{
		{ChamaID: 3, Name: "Umoja", Role: role},
		{ChamaID: 8, Name: "Harambee", Role: "member"},
	}
	engine, _ := newTestEngine(t, api)
	return engine, api
}

func TestChamaActionsGatedByRole(t *testing.T) {
	ctx := context.Background()
	actions := map[string]func(e *Engine) error{
		"join-requests": func(e *Engine) error { _, err := e.JoinRequests(ctx, "tok", 3); return err },
		"approve":       func(e *Engine) error { _, err := e.ApproveJoinRequest(ctx, "tok", 3, 9); return err },
		"reject":        func(e *Engine) error { _, err := e.RejectJoinRequest(ctx, "tok", 3, 9); return err },
		"members":       func(e *Engine) error { _, err := e.Members(ctx, "tok", 3); return err },
		"remove-member": func(e *Engine) error { _, err := e.RemoveMember(ctx, "tok", 3, 4); return err },
		"update-roles": func(e *Engine) error {
			_, err := e.UpdateRoles(ctx, "tok", 3, []apiclient.RoleUpdate{{MemberID: 4, NewRole: "treasurer"}})
			return err
		},
		"create-meeting": func(e *Engine) error {
			_, err := e.ScheduleMeeting(ctx, "tok", 3, apiclient.CreateMeetingRequest{MeetingDate: "2026-03-05T14:00", Location: "Hall"})
			return err
		},
		"upcoming": func(e *Engine) error { _, err := e.UpcomingMeetings(ctx, "tok", 3); return err },
		"previous": func(e *Engine) error { _, err := e.PreviousMeetings(ctx, "tok", 3); return err },
		"minutes":  func(e *Engine) error { _, err := e.SaveMinutes(ctx, "tok", 3, 5, "Agreed"); return err },
	}

	allowed := map[string][]string{
		"admin":     {"join-requests", "approve", "reject", "members", "remove-member", "update-roles", "upcoming", "previous", "minutes"},
		"secretary": {"create-meeting", "upcoming", "previous", "minutes"},
		"treasurer": {"upcoming", "previous"},
		"member":    {"upcoming", "previous"},
	}

	for role, permitted := range allowed {
		t.Run(role, func(t *testing.T) {
			ok := map[string]bool{}
			for _, name := range permitted {
				ok[name] = true
			}
			for name, call := range actions {
				engine, api := newManageEngine(t, role)
				err := call(engine)
				if ok[name] {
					if err != nil {
						t.Fatalf("%s: expected success, got %v", name, err)
					}
					if got := api.calls(); len(got) != 1 || got[0] != name {
						t.Fatalf("%s: expected one platform call, got %v", name, got)
					}
					continue
				}
				if !errors.Is(err, ErrForbidden) || UserMessage(err, "") != MsgNotAuthorized {
					t.Fatalf("%s: expected ErrForbidden, got %v", name, err)
				}
				if got := api.calls(); len(got) != 0 {
					t.Fatalf("%s: denied action reached the platform: %v", name, got)
				}
			}
		})
	}
}

func TestChamaActionOutsideMembershipForbidden(t *testing.T) {
	engine, api := newManageEngine(t, "admin")

	if _, err := engine.Members(context.Background(), "tok", 99); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a foreign chama, got %v", err)
	}
	if _, err := engine.Members(context.Background(), "tok", 8); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden where the user is a plain member, got %v", err)
	}
	if len(api.calls()) != 0 {
		t.Fatalf("forbidden calls reached the platform: %v", api.calls())
	}
}

func TestChamaActionRoleMatchIgnoresCase(t *testing.T) {
	engine, _ := newManageEngine(t, " Admin ")
	if _, err := engine.Members(context.Background(), "tok", 3); err != nil {
		t.Fatalf("expected admin access, got %v", err)
	}
}

func TestChamaActionTokenAndInputChecks(t *testing.T) {
	engine, api := newManageEngine(t, "admin")
	ctx := context.Background()

	if _, err := engine.Members(ctx, "", 3); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized without token, got %v", err)
	}
	if _, err := engine.Members(ctx, "tok", 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for chama 0, got %v", err)
	}

	api.chamasErr = &apiclient.APIError{StatusCode: http.StatusUnauthorized}
	if _, err := engine.Members(ctx, "tok", 3); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized when the membership lookup is refused, got %v", err)
	}
}

func TestUpdateRolesValidatesRoles(t *testing.T) {
	engine, api := newManageEngine(t, "admin")
	ctx := context.Background()

	for _, bad := range []string{"admin", "chairman", ""} {
		_, err := engine.UpdateRoles(ctx, "tok", 3, []apiclient.RoleUpdate{{MemberID: 4, NewRole: bad}})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("role %q: expected ErrValidation, got %v", bad, err)
		}
	}
	if _, err := engine.UpdateRoles(ctx, "tok", 3, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for no updates, got %v", err)
	}
	if len(api.calls()) != 0 {
		t.Fatalf("invalid updates reached the platform: %v", api.calls())
	}

	resp, err := engine.UpdateRoles(ctx, "tok", 3, []apiclient.RoleUpdate{{MemberID: 4, NewRole: " Secretary "}})
	if err != nil {
		t.Fatalf("update roles: %v", err)
	}
	want := []apiclient.RoleUpdate{{MemberID: 4, NewRole: "secretary"}}
	if !reflect.DeepEqual(api.roleUpdates, want) || len(resp.Updated) != 1 {
		t.Fatalf("expected normalized update, got %+v", api.roleUpdates)
	}
}

func TestScheduleMeetingNormalizesDate(t *testing.T) {
	engine, api := newManageEngine(t, "secretary")
	ctx := context.Background()

	_, err := engine.ScheduleMeeting(ctx, "tok", 3, apiclient.CreateMeetingRequest{MeetingDate: "next tuesday", Location: "Hall"})
	if !errors.Is(err, ErrValidation) || UserMessage(err, "") != MsgInvalidMeetingDate {
		t.Fatalf("expected invalid date, got %v", err)
	}
	_, err = engine.ScheduleMeeting(ctx, "tok", 3, apiclient.CreateMeetingRequest{MeetingDate: "2026-03-05T14:00"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected missing location rejected, got %v", err)
	}

	m, err := engine.ScheduleMeeting(ctx, "tok", 3, apiclient.CreateMeetingRequest{MeetingDate: "2026-03-05T14:00", Location: " Hall ", Agenda: "Loans"})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if m.MeetingID != 5 || api.meetingReqs[0].MeetingDate != "2026-03-05T14:00:00" || api.meetingReqs[0].Location != "Hall" {
		t.Fatalf("unexpected meeting %+v sent %+v", m, api.meetingReqs)
	}
}

func TestCreateAndJoinChama(t *testing.T) {
	engine, api := newManageEngine(t, "member")
	ctx := context.Background()

	if _, err := engine.CreateChama(ctx, "tok", apiclient.CreateChamaRequest{Name: " ", MonthlyContribution: 500}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected blank name rejected, got %v", err)
	}
	if _, err := engine.CreateChama(ctx, "tok", apiclient.CreateChamaRequest{Name: "Umoja"}); UserMessage(err, "") != MsgInvalidContribution {
		t.Fatalf("expected contribution rejected, got %v", err)
	}
	resp, err := engine.CreateChama(ctx, "tok", apiclient.CreateChamaRequest{Name: "Umoja", MonthlyContribution: 500})
	if err != nil || resp.ChamaID != 77 {
		t.Fatalf("create: %+v %v", resp, err)
	}

	msg, err := engine.JoinChama(ctx, "tok", 12, " ABC123 ")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if msg != "Join request submitted and awaiting approval." {
		t.Fatalf("unexpected message %q", msg)
	}
	sent := api.joinReqs[0]
	if sent.ChamaID != 12 || sent.Role != "member" || sent.JoinCode != "ABC123" {
		t.Fatalf("join must always ask for the member role, sent %+v", sent)
	}
	if _, err := engine.JoinChama(ctx, "tok", 0, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected chama 0 rejected, got %v", err)
	}
}

func TestChamaPlatformErrorsMapped(t *testing.T) {
	engine, api := newManageEngine(t, "admin")
	ctx := context.Background()

	api.manageErr = &apiclient.APIError{StatusCode: http.StatusBadRequest, Detail: "Cannot remove another admin"}
	_, err := engine.RemoveMember(ctx, "tok", 3, 4)
	if !errors.Is(err, ErrChamaRejected) || UserMessage(err, "") != "Cannot remove another admin" {
		t.Fatalf("expected rejection with detail, got %v", err)
	}
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected the platform status to stay reachable, got %v", err)
	}

	api.manageErr = &apiclient.APIError{StatusCode: http.StatusForbidden, Detail: "Only admin can remove members"}
	if _, err := engine.RemoveMember(ctx, "tok", 3, 4); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden from the platform, got %v", err)
	}

	api.manageErr = &apiclient.APIError{StatusCode: http.StatusUnauthorized}
	if _, err := engine.Profile(ctx, "tok"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	api.manageErr = errDial
	if _, err := engine.Members(ctx, "tok", 3); !errors.Is(err, ErrTransport) || UserMessage(err, "") != MsgRequestFailed {
		t.Fatalf("expected transport failure, got %v", err)
	}
}

func TestChamaActionsAudited(t *testing.T) {
	api := newScriptedAPI()
	api.chamas = []apiclient.Chama{{ChamaID: 3, Role: "member"}}
	sink := NewChannelSink(16)
	cfg := DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	engine, err := New().WithConfig(cfg).WithAPIClient(api).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	_, _ = engine.Members(context.Background(), "tok", 3)
	_, _ = engine.JoinChama(context.Background(), "tok", 3, "")
	engine.Close()

	var events []AuditEvent
drain:
	for {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		default:
			break drain
		}
	}
	if len(events) != 2 {
		t.Fatalf("expected two audit events, got %+v", events)
	}
	if events[0].EventType != AuditChamaActionDenied || events[0].Metadata["action"] != "members.manage" || events[0].Metadata["chama_id"] != "3" {
		t.Fatalf("unexpected denial event %+v", events[0])
	}
	if events[1].EventType != AuditChamaAction || !events[1].Success || events[1].Metadata["action"] != "chama.join" {
		t.Fatalf("unexpected join event %+v", events[1])
	}
}
