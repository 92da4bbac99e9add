package gateway

import (
	"sort"
	"sync"
)

// Registry maps connected device IMEIs to their live sessions.
//
// A device that reconnects gets a fresh session; Register replaces the old
// entry so commands always reach the newest connection. Deregister only
// removes the entry if it still points at the caller's session, so a
// replaced session tearing down cannot evict its successor.
//
// All public methods are thread-safe.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register binds an IMEI to a session, replacing any previous session for
// the same IMEI.
func (r *Registry) Register(imei string, s *Session) {
	r.mu.Lock()
	prev := r.sessions[imei]
	r.sessions[imei] = s
	r.mu.Unlock()

	if prev != nil && prev != s {
		r.logger.Info("session replaced", "imei", imei)
	} else {
		r.logger.Info("device registered", "imei", imei)
	}
}

// Lookup returns the live session for an IMEI, or nil if the device is
// not connected.
func (r *Registry) Lookup(imei string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[imei]
}

// List returns the registered IMEIs in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	imeis := make([]string, 0, len(r.sessions))
	for imei := range r.sessions {
		imeis = append(imeis, imei)
	}
	r.mu.RUnlock()

	sort.Strings(imeis)
	return imeis
}

// Deregister removes the entry for an IMEI if it still maps to s.
// A session that was replaced by a reconnect deregisters as a no-op.
func (r *Registry) Deregister(imei string, s *Session) {
	r.mu.Lock()
	current, ok := r.sessions[imei]
	if ok && current == s {
		delete(r.sessions, imei)
	}
	r.mu.Unlock()

	if ok && current == s {
		r.logger.Info("device deregistered", "imei", imei)
	}
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
