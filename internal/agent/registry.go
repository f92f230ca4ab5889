// ABOUTME: Concurrent ordered registry of agent records keyed by id with a session index
// ABOUTME: Structural lock guards membership; each record's own lock guards its fields

package agent

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
)

// btreeDegree is the fan-out of the id tree.
const btreeDegree = 16

// StateNotifier receives every record transition after locks are released.
type StateNotifier interface {
	AgentStateChanged(change StateChange)
}

// CallBridge tears down the call in progress on a session at non-soft logout.
type CallBridge interface {
	Hangup(agentID string, session SessionHandle)
}

// Event names a record transition.
type Event string

const (
	EventAdded     Event = "added"
	EventDead      Event = "dead"
	EventRevived   Event = "revived"
	EventRemoved   Event = "removed"
	EventLogin     Event = "login"
	EventLogout    Event = "logout"
	EventCallStart Event = "call_start"
	EventCallEnd   Event = "call_end"
)

// StateChange describes one transition.
type StateChange struct {
	AgentID string        `json:"agent_id"`
	Event   Event         `json:"event"`
	State   DeviceState   `json:"state"`
	Session SessionHandle `json:"session,omitempty"`
	Soft    bool          `json:"soft,omitempty"`
	At      time.Time     `json:"at"`
}

// Registry is the set of live agent records.
type Registry struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[*Record]

	sessMu   sync.Mutex
	sessions map[SessionHandle]*Record

	notifier StateNotifier
	bridge   CallBridge
	logger   *slog.Logger
	now      func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tree:     btree.NewG(btreeDegree, lessByID),
		sessions: make(map[SessionHandle]*Record),
		logger:   logger,
		now:      time.Now,
	}
}

// SetNotifier sets the transition observer. Call before the registry is shared.
func (r *Registry) SetNotifier(n StateNotifier) {
	r.notifier = n
}

// SetCallBridge sets the call teardown collaborator. Call before the registry is shared.
func (r *Registry) SetCallBridge(b CallBridge) {
	r.bridge = b
}

// Find returns the record for id.
func (r *Registry) Find(id string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Get(pivot(id))
}

// FindBySession returns the record holding the given session.
func (r *Registry) FindBySession(handle SessionHandle) (*Record, bool) {
	if handle == "" {
		return nil, false
	}
	r.sessMu.Lock()
	defer r.sessMu.Unlock()
	rec, ok := r.sessions[handle]
	return rec, ok
}

// InsertIfAbsent adds rec unless its id is already present.
func (r *Registry) InsertIfAbsent(rec *Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tree.Has(rec) {
		return false
	}
	r.tree.ReplaceOrInsert(rec)
	return true
}

// RemoveIf unlinks every record for which pred returns true and returns them.
// pred runs with the structural lock and the candidate's lock held, so it
// may update the candidate's fields and its verdict cannot be raced by a
// concurrent login on that record.
func (r *Registry) RemoveIf(pred func(rec *Record) bool) []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := make([]*Record, 0, r.tree.Len())
	r.tree.Ascend(func(rec *Record) bool {
		candidates = append(candidates, rec)
		return true
	})

	var removed []*Record
	for _, rec := range candidates {
		rec.mu.Lock()
		if pred(rec) {
			r.tree.Delete(rec)
			removed = append(removed, rec)
		}
		rec.mu.Unlock()
	}
	return removed
}

// removeOne unlinks rec if it is still the registered record for its id and
// pred accepts it under both locks.
func (r *Registry) removeOne(rec *Record, pred func(rec *Record) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.tree.Get(rec)
	if !ok || current != rec {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !pred(rec) {
		return false
	}
	r.tree.Delete(rec)
	return true
}

// members copies the current membership. The returned records may be
// unlinked by the time the caller looks at them.
func (r *Registry) members(prefix string) []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Record, 0, r.tree.Len())
	visit := func(rec *Record) bool {
		if !strings.HasPrefix(rec.id, prefix) {
			return false
		}
		out = append(out, rec)
		return true
	}
	if prefix == "" {
		r.tree.Ascend(visit)
	} else {
		r.tree.AscendGreaterOrEqual(pivot(prefix), visit)
	}
	return out
}

// ForEach visits a point-in-time set of records in id order. fn runs with
// the record locked and must not call back into the Registry.
func (r *Registry) ForEach(fn func(rec *Record)) {
	r.Prefix("", fn)
}

// Prefix is ForEach restricted to ids starting with prefix.
func (r *Registry) Prefix(prefix string, fn func(rec *Record)) {
	for _, rec := range r.members(prefix) {
		rec.mu.Lock()
		fn(rec)
		rec.mu.Unlock()
	}
}

// Len returns the number of registered records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Len()
}

// Counts tallies registered, logged in and dead records.
type Counts struct {
	Registered int
	LoggedIn   int
	Dead       int
}

// Counts walks the registry and tallies record states.
func (r *Registry) Counts() Counts {
	var c Counts
	r.ForEach(func(rec *Record) {
		c.Registered++
		if rec.state == StateLoggedIn {
			c.LoggedIn++
		}
		if rec.dead {
			c.Dead++
		}
	})
	return c
}

// notify reports changes to the notifier, if any. Must be called without locks held.
func (r *Registry) notify(changes ...StateChange) {
	if r.notifier == nil {
		return
	}
	for _, c := range changes {
		r.notifier.AgentStateChanged(c)
	}
}

// changeLocked builds a StateChange for rec. Must be called with rec.mu held.
func (r *Registry) changeLocked(rec *Record, event Event) StateChange {
	return StateChange{
		AgentID: rec.id,
		Event:   event,
		State:   rec.state,
		Session: rec.session,
		At:      r.now(),
	}
}

// removedChange builds the StateChange for an unlinked record.
func (r *Registry) removedChange(rec *Record) StateChange {
	return StateChange{
		AgentID: rec.id,
		Event:   EventRemoved,
		State:   StateInvalid,
		At:      r.now(),
	}
}
