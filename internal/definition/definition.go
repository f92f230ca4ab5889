// ABOUTME: Immutable agent definitions and the snapshot that groups one loaded generation of them
// ABOUTME: Snapshots are built once, checked for duplicate ids, then shared read-only by reference

package definition

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrDuplicateID is returned when two definitions in one snapshot share an id.
var ErrDuplicateID = errors.New("duplicate agent id")

// ErrInvalidField is matched by every *FieldError.
var ErrInvalidField = errors.New("invalid field value")

// ErrMalformed is returned when the agents file cannot be decoded at all.
var ErrMalformed = errors.New("malformed agents file")

// FieldError describes a single rejected option value.
type FieldError struct {
	AgentID string
	Field   string
	Value   string
	Reason  string
}

func (e *FieldError) Error() string {
	if e.AgentID == "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("agent %s: invalid %s %q: %s", e.AgentID, e.Field, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidField) true for any FieldError.
func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidField
}

// Agent is one configured agent. It is never modified after loading.
type Agent struct {
	ID       string
	Password string
	FullName string

	AcceptDTMF   string
	EndDTMF      string
	BeepSound    string
	MusicOnHold  string
	SaveCallsIn  string
	RecordFormat string

	// Groups is a bitmask of call groups 0-63.
	Groups uint64

	// MaxLoginTries is the number of failed logins allowed. Zero means unlimited.
	MaxLoginTries uint
	// AutoLogoff is the number of seconds to ack a call before being logged off. Zero disables.
	AutoLogoff uint
	// WrapupTime is the time in milliseconds after a call before the next one.
	WrapupTime uint

	AckCall     bool
	EndCall     bool
	RecordCalls bool
}

// WrapupDuration returns WrapupTime as a time.Duration.
func (a *Agent) WrapupDuration() time.Duration {
	return time.Duration(a.WrapupTime) * time.Millisecond
}

// InGroup reports whether the agent belongs to call group n.
func (a *Agent) InGroup(n uint) bool {
	if n > maxGroup {
		return false
	}
	return a.Groups&(1<<n) != 0
}

// HasPassword reports whether a password is required to log in.
func (a *Agent) HasPassword() bool {
	return a.Password != ""
}

// CheckPassword compares a candidate against the configured password.
// Passwords that look like bcrypt hashes are verified with bcrypt, anything
// else with a constant-time comparison. An empty configured password accepts
// any candidate.
func (a *Agent) CheckPassword(candidate string) bool {
	if a.Password == "" {
		return true
	}
	if isBcryptHash(a.Password) {
		return bcrypt.CompareHashAndPassword([]byte(a.Password), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(a.Password), []byte(candidate)) == 1
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// Snapshot is one generation of agent definitions.
type Snapshot struct {
	agents   []*Agent
	byID     map[string]*Agent
	source   string
	loadedAt time.Time
}

// NewSnapshot builds a snapshot from the given definitions.
// Returns ErrDuplicateID if any id appears twice.
func NewSnapshot(source string, agents []*Agent) (*Snapshot, error) {
	byID := make(map[string]*Agent, len(agents))
	sorted := make([]*Agent, 0, len(agents))
	for _, a := range agents {
		if a == nil {
			continue
		}
		if _, exists := byID[a.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, a.ID)
		}
		byID[a.ID] = a
		sorted = append(sorted, a)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	return &Snapshot{
		agents:   sorted,
		byID:     byID,
		source:   source,
		loadedAt: time.Now(),
	}, nil
}

// Agents returns the definitions ordered by id. The slice is a copy; the
// definitions it points to are shared.
func (s *Snapshot) Agents() []*Agent {
	out := make([]*Agent, len(s.agents))
	copy(out, s.agents)
	return out
}

// Get returns the definition with the given id.
func (s *Snapshot) Get(id string) (*Agent, bool) {
	a, ok := s.byID[id]
	return a, ok
}

// Len returns the number of definitions.
func (s *Snapshot) Len() int {
	return len(s.agents)
}

// Source returns the path the snapshot was loaded from.
func (s *Snapshot) Source() string {
	return s.source
}

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}
