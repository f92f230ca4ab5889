// ABOUTME: Runtime record for one agent id: bound definition, session, overrides and state
// ABOUTME: All mutable fields are guarded by the record's own mutex

package agent

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/agentpool/internal/definition"
)

// ErrInvalidDefinition is returned when a record cannot be built from a definition.
var ErrInvalidDefinition = errors.New("invalid agent definition")

// DeviceState is the externally visible state of an agent.
type DeviceState int

const (
	StateInvalid DeviceState = iota
	StateLoggedOut
	StateLoggedIn
)

func (s DeviceState) String() string {
	switch s {
	case StateLoggedOut:
		return "LOGGED_OUT"
	case StateLoggedIn:
		return "LOGGED_IN"
	default:
		return "INVALID"
	}
}

// MarshalText encodes the state as its name.
func (s DeviceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SessionHandle identifies one login session.
type SessionHandle string

func newSessionHandle() SessionHandle {
	return SessionHandle(uuid.New().String())
}

// Overrides are per-session replacements for definition defaults.
type Overrides struct {
	AcceptDTMF    Opt[string] `json:"accept_dtmf"`
	EndDTMF       Opt[string] `json:"end_dtmf"`
	MaxLoginTries Opt[uint]   `json:"max_login_tries"`
	AutoLogoff    Opt[uint]   `json:"auto_logoff"`
	WrapupTime    Opt[uint]   `json:"wrapup_time"`
	AckCall       Opt[bool]   `json:"ack_call"`
	EndCall       Opt[bool]   `json:"end_call"`
}

// Settings are the effective call handling values for a session.
type Settings struct {
	AcceptDTMF    string `json:"accept_dtmf"`
	EndDTMF       string `json:"end_dtmf"`
	MaxLoginTries uint   `json:"max_login_tries"`
	AutoLogoff    uint   `json:"auto_logoff"`
	WrapupTime    uint   `json:"wrapup_time"`
	AckCall       bool   `json:"ack_call"`
	EndCall       bool   `json:"end_call"`
}

// Resolve applies the overrides on top of a definition.
func (o Overrides) Resolve(def *definition.Agent) Settings {
	return Settings{
		AcceptDTMF:    o.AcceptDTMF.Or(def.AcceptDTMF),
		EndDTMF:       o.EndDTMF.Or(def.EndDTMF),
		MaxLoginTries: o.MaxLoginTries.Or(def.MaxLoginTries),
		AutoLogoff:    o.AutoLogoff.Or(def.AutoLogoff),
		WrapupTime:    o.WrapupTime.Or(def.WrapupTime),
		AckCall:       o.AckCall.Or(def.AckCall),
		EndCall:       o.EndCall.Or(def.EndCall),
	}
}

// Record is the runtime entity for one agent id.
type Record struct {
	id string

	mu        sync.Mutex
	def       *definition.Agent
	session   SessionHandle
	overrides Overrides
	mark      bool
	dead      bool
	state     DeviceState

	loginStart     time.Time
	callStart      time.Time
	lastDisconnect time.Time
}

// NewRecord creates a logged out record bound to def.
func NewRecord(def *definition.Agent) (*Record, error) {
	if def == nil || def.ID == "" {
		return nil, ErrInvalidDefinition
	}
	return &Record{
		id:    def.ID,
		def:   def,
		state: StateLoggedOut,
	}, nil
}

// pivot returns a key-only record for tree lookups.
func pivot(id string) *Record {
	return &Record{id: id}
}

func lessByID(a, b *Record) bool {
	return a.id < b.id
}

// ID returns the agent id. It never changes.
func (r *Record) ID() string {
	return r.id
}

// Definition returns the bound definition.
func (r *Record) Definition() *definition.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.def
}

// State returns the current device state.
func (r *Record) State() DeviceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Session returns the active session handle, or "" if logged out.
func (r *Record) Session() SessionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Dead reports whether the id is absent from the latest snapshot.
func (r *Record) Dead() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dead
}

// Info returns a point-in-time view of the record.
func (r *Record) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infoLocked()
}

// infoLocked must be called with mu held.
func (r *Record) infoLocked() Info {
	return Info{
		ID:             r.id,
		FullName:       r.def.FullName,
		MusicOnHold:    r.def.MusicOnHold,
		HasPassword:    r.def.HasPassword(),
		Groups:         definition.FormatGroups(r.def.Groups),
		State:          r.state,
		Session:        r.session,
		Dead:           r.dead,
		Settings:       r.overrides.Resolve(r.def),
		LoginStart:     r.loginStart,
		CallStart:      r.callStart,
		LastDisconnect: r.lastDisconnect,
	}
}
