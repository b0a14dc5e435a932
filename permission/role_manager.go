package permission

import (
	"errors"
	"strings"
	"sync"
)

// RoleManager holds one [Mask64] per role name. Role names are matched
// case-insensitively because the platform returns them as free text.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask64
	frozen bool
}

// NewRoleManager returns a RoleManager resolving action names through registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask64),
	}
}

// RegisterRole composes roleName from the named actions.
func (rm *RoleManager) RegisterRole(roleName string, actions []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}

	key := normalizeRole(roleName)
	if key == "" {
		return errors.New("role name empty")
	}

	if _, exists := rm.roles[key]; exists {
		return errors.New("role already registered")
	}

	var mask Mask64
	for _, action := range actions {
		bit, ok := rm.registry.Bit(action)
		if !ok {
			return errors.New("permission not registered: " + action)
		}
		mask.Set(bit)
	}

	rm.roles[key] = mask
	return nil
}

/*
====================================
GET MASK FOR ROLE
*/

// GetMask returns the mask for roleName.
func (rm *RoleManager) GetMask(roleName string) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	mask, ok := rm.roles[normalizeRole(roleName)]
	return mask, ok
}

/*
====================================
FREEZE
*/

func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
