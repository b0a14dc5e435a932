package web

import (
	"sync"

	chamaWeb "github.com/MrEthical07/chamaWeb"
)

// registry tracks the live handshake of each browser session. Starting a new
// one cancels the previous one.
type registry struct {
	mu         sync.Mutex
	handshakes map[string]*chamaWeb.Handshake
}

func newRegistry() *registry {
	return &registry{handshakes: make(map[string]*chamaWeb.Handshake)}
}

func (r *registry) start(sessionID string, h *chamaWeb.Handshake) {
	r.mu.Lock()
	prev := r.handshakes[sessionID]
	r.handshakes[sessionID] = h
	r.mu.Unlock()

	if prev != nil && prev != h {
		prev.Cancel()
	}
}

func (r *registry) current(sessionID string, h *chamaWeb.Handshake) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handshakes[sessionID] == h
}

// release forgets h if it is still the session's handshake.
func (r *registry) release(sessionID string, h *chamaWeb.Handshake) {
	r.mu.Lock()
	if r.handshakes[sessionID] == h {
		delete(r.handshakes, sessionID)
	}
	r.mu.Unlock()
}

func (r *registry) cancel(sessionID string) bool {
	r.mu.Lock()
	h := r.handshakes[sessionID]
	delete(r.handshakes, sessionID)
	r.mu.Unlock()

	if h == nil {
		return false
	}
	h.Cancel()
	return true
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handshakes)
}

func (r *registry) cancelAll() {
	r.mu.Lock()
	all := r.handshakes
	r.handshakes = make(map[string]*chamaWeb.Handshake)
	r.mu.Unlock()

	for _, h := range all {
		h.Cancel()
	}
}
