package chamaWeb

import (
	"context"

	"github.com/MrEthical07/chamaWeb/apiclient"
)

// ChamaView is one membership plus the actions the member's role unlocks.
type ChamaView struct {
	apiclient.Chama
	Actions []string `json:"actions"`
}

// MyChamas lists the token holder's chamas with role-gated actions. A 401 or
// 403 from the platform returns [ErrUnauthorized].
func (e *Engine) MyChamas(ctx context.Context, token string) ([]ChamaView, error) {
	if e == nil || e.closed.Load() {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		return nil, ErrUnauthorized
	}

	chamas, err := e.api.MyChamas(ctx, token)
	if err != nil {
		if apiclient.IsUnauthorized(err) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	out := make([]ChamaView, 0, len(chamas))
	for _, c := range chamas {
		out = append(out, ChamaView{Chama: c, Actions: e.catalog.Actions(c.Role)})
	}
	return out, nil
}

// Allowed reports whether role may perform action.
func (e *Engine) Allowed(role, action string) bool {
	return e.catalog.Allowed(role, action)
}
