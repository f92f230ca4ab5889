// ABOUTME: Session lifecycle for agent records: login, logout, call tracking and state queries
// ABOUTME: Deferred removal of dead records happens here once their last session ends

package agent

import (
	"errors"
	"fmt"
	"time"
)

// Session errors
var (
	ErrAgentNotFound      = errors.New("agent not found")
	ErrAgentUnavailable   = errors.New("agent unavailable")
	ErrLoginLimitExceeded = errors.New("agent login limit exceeded")
	ErrNoActiveCall       = errors.New("agent has no active call")
)

// LoginRequest carries the per-session inputs to Login.
type LoginRequest struct {
	// Overrides replace definition defaults for this session only.
	Overrides Overrides
	// Attempts is the number of failed login attempts the caller has seen
	// for this agent. The counter itself lives with the caller.
	Attempts uint
}

// Login attaches a new session to the agent with the given id.
func (r *Registry) Login(id string, req LoginRequest) (SessionHandle, error) {
	rec, ok := r.Find(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}

	rec.mu.Lock()
	for rec.dead {
		// A swept record may already have been replaced by a fresh one for the same id.
		rec.mu.Unlock()
		current, ok := r.Find(id)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrAgentNotFound, id)
		}
		if current == rec {
			return "", fmt.Errorf("%w: %s is no longer configured", ErrAgentUnavailable, id)
		}
		rec = current
		rec.mu.Lock()
	}

	if rec.session != "" {
		rec.mu.Unlock()
		return "", fmt.Errorf("%w: %s is already logged in", ErrAgentUnavailable, id)
	}

	maxTries := req.Overrides.MaxLoginTries.Or(rec.def.MaxLoginTries)
	if maxTries > 0 && req.Attempts > maxTries {
		rec.mu.Unlock()
		return "", fmt.Errorf("%w: %d attempts, %d allowed", ErrLoginLimitExceeded, req.Attempts, maxTries)
	}

	handle := newSessionHandle()
	rec.session = handle
	rec.overrides = req.Overrides
	rec.state = StateLoggedIn
	rec.loginStart = r.now()
	rec.callStart = time.Time{}

	r.sessMu.Lock()
	r.sessions[handle] = rec
	r.sessMu.Unlock()

	change := r.changeLocked(rec, EventLogin)
	rec.mu.Unlock()

	r.logger.Info("agent logged in", "agent_id", id, "session", handle)
	r.notify(change)
	return handle, nil
}

// Logout ends the active session of the agent with the given id.
func (r *Registry) Logout(id string, soft bool) error {
	rec, ok := r.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return r.logoutRecord(rec, "", soft)
}

// LogoutSession ends the session identified by handle.
func (r *Registry) LogoutSession(handle SessionHandle, soft bool) error {
	rec, ok := r.FindBySession(handle)
	if !ok {
		return fmt.Errorf("%w: no session %s", ErrAgentNotFound, handle)
	}
	return r.logoutRecord(rec, handle, soft)
}

// logoutRecord clears the session on rec. When want is non-empty the record
// must still hold that exact session.
func (r *Registry) logoutRecord(rec *Record, want SessionHandle, soft bool) error {
	rec.mu.Lock()
	handle := rec.session
	if handle == "" || (want != "" && handle != want) {
		rec.mu.Unlock()
		return fmt.Errorf("%w: %s is not logged in", ErrAgentNotFound, rec.id)
	}

	r.sessMu.Lock()
	delete(r.sessions, handle)
	r.sessMu.Unlock()

	inCall := !rec.callStart.IsZero()
	rec.session = ""
	rec.overrides = Overrides{}
	rec.state = StateLoggedOut
	rec.loginStart = time.Time{}
	rec.callStart = time.Time{}
	rec.lastDisconnect = r.now()
	dead := rec.dead

	change := r.changeLocked(rec, EventLogout)
	change.Session = handle
	change.Soft = soft
	rec.mu.Unlock()

	r.logger.Info("agent logged out", "agent_id", rec.id, "session", handle, "soft", soft, "dead", dead)

	if !soft && inCall && r.bridge != nil {
		r.bridge.Hangup(rec.id, handle)
	}
	r.notify(change)

	if dead {
		removed := r.removeOne(rec, func(rec *Record) bool {
			return rec.dead && rec.session == ""
		})
		if removed {
			r.logger.Info("removed dead agent after logout", "agent_id", rec.id)
			r.notify(r.removedChange(rec))
		}
	}
	return nil
}

// BeginCall records that the agent's session has started a call.
func (r *Registry) BeginCall(id string) error {
	rec, ok := r.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}

	rec.mu.Lock()
	if rec.session == "" {
		rec.mu.Unlock()
		return fmt.Errorf("%w: %s is not logged in", ErrAgentNotFound, id)
	}
	if !rec.callStart.IsZero() {
		rec.mu.Unlock()
		return fmt.Errorf("%w: %s is already on a call", ErrAgentUnavailable, id)
	}
	rec.callStart = r.now()
	change := r.changeLocked(rec, EventCallStart)
	rec.mu.Unlock()

	r.notify(change)
	return nil
}

// EndCall records that the agent's call has ended.
func (r *Registry) EndCall(id string) error {
	rec, ok := r.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}

	rec.mu.Lock()
	if rec.callStart.IsZero() {
		rec.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoActiveCall, id)
	}
	rec.callStart = time.Time{}
	rec.lastDisconnect = r.now()
	change := r.changeLocked(rec, EventCallEnd)
	rec.mu.Unlock()

	r.notify(change)
	return nil
}

// StateOf returns the device state for id, or StateInvalid if unknown.
func (r *Registry) StateOf(id string) DeviceState {
	rec, ok := r.Find(id)
	if !ok {
		return StateInvalid
	}
	return rec.State()
}

// Describe returns a status view of the agent with the given id.
func (r *Registry) Describe(id string) (Info, bool) {
	rec, ok := r.Find(id)
	if !ok {
		return Info{}, false
	}
	return rec.Info(), true
}

// List returns status views of every agent whose id starts with prefix, ordered by id.
func (r *Registry) List(prefix string) []Info {
	var out []Info
	r.Prefix(prefix, func(rec *Record) {
		out = append(out, rec.infoLocked())
	})
	return out
}
