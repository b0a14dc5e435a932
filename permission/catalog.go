package permission

// Chama actions offered in the membership UI.
const (
	ActionMakePayment     = "payments.make"
	ActionApplyLoan       = "loans.apply"
	ActionLoanProgress    = "loans.progress"
	ActionViewMeetings    = "meetings.view"
	ActionEditGuidelines  = "guidelines.edit"
	ActionApproveRequests = "requests.approve"
	ActionManageMembers   = "members.manage"
	ActionScheduleMeeting = "meetings.schedule"
	ActionInviteMembers   = "members.invite"
	ActionEditMinutes     = "minutes.edit"
)

// Chama membership roles.
const (
	RoleAdmin     = "admin"
	RoleTreasurer = "treasurer"
	RoleSecretary = "secretary"
	RoleMember    = "member"
)

// DefaultActions lists every chama action in display order.
func DefaultActions() []string {
	return []string{
		ActionMakePayment,
		ActionApplyLoan,
		ActionLoanProgress,
		ActionViewMeetings,
		ActionEditGuidelines,
		ActionApproveRequests,
		ActionManageMembers,
		ActionScheduleMeeting,
		ActionInviteMembers,
		ActionEditMinutes,
	}
}

// DefaultRoles is the chama role table. Guidelines, join requests and the
// member list are admin only; scheduling is secretary only; invitations and
// minutes belong to admins and secretaries.
func DefaultRoles() map[string][]string {
	common := []string{ActionMakePayment, ActionApplyLoan, ActionLoanProgress, ActionViewMeetings}
	with := func(extra ...string) []string {
		out := make([]string, 0, len(common)+len(extra))
		out = append(out, common...)
		return append(out, extra...)
	}
	return map[string][]string{
		RoleAdmin:     with(ActionEditGuidelines, ActionApproveRequests, ActionManageMembers, ActionInviteMembers, ActionEditMinutes),
		RoleSecretary: with(ActionScheduleMeeting, ActionInviteMembers, ActionEditMinutes),
		RoleTreasurer: with(),
		RoleMember:    with(),
	}
}

// Catalog is a frozen registry plus role manager.
type Catalog struct {
	registry *Registry
	roles    *RoleManager
}

// NewCatalog registers actions and roles and freezes both. Nil arguments
// select [DefaultActions] and [DefaultRoles].
func NewCatalog(actions []string, roles map[string][]string) (*Catalog, error) {
	if actions == nil {
		actions = DefaultActions()
	}
	if roles == nil {
		roles = DefaultRoles()
	}

	registry := NewRegistry()
	for _, a := range actions {
		if _, err := registry.Register(a); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	rm := NewRoleManager(registry)
	for name, list := range roles {
		if err := rm.RegisterRole(name, list); err != nil {
			return nil, err
		}
	}
	rm.Freeze()

	return &Catalog{registry: registry, roles: rm}, nil
}

// Actions returns the actions role may see. Unknown roles get none.
func (c *Catalog) Actions(role string) []string {
	mask, ok := c.roles.GetMask(role)
	if !ok {
		return []string{}
	}
	return c.registry.Names(mask)
}

// HasRole reports whether role is registered.
func (c *Catalog) HasRole(role string) bool {
	_, ok := c.roles.GetMask(role)
	return ok
}

// Allowed reports whether role may see action.
func (c *Catalog) Allowed(role, action string) bool {
	bit, ok := c.registry.Bit(action)
	if !ok {
		return false
	}
	mask, ok := c.roles.GetMask(role)
	if !ok {
		return false
	}
	return mask.Has(bit)
}
