// ABOUTME: Store interface and data types for agent pool persistence
// ABOUTME: Defines SessionEvent and ReloadRecord and the operations over them

package store

import (
	"context"
	"time"
)

// SessionEvent is one recorded agent transition.
type SessionEvent struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Event     string    `json:"event"`
	State     string    `json:"state"`
	Session   string    `json:"session,omitempty"`
	Soft      bool      `json:"soft,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionEventFilter selects session events.
type SessionEventFilter struct {
	AgentID string     // empty means every agent
	Since   *time.Time // events at or after this time
	Limit   int        // max results (default 100, max 1000)
}

// ReloadRecord is the outcome of one agents file reload.
type ReloadRecord struct {
	ID          string        `json:"id"`
	Source      string        `json:"source"`
	Trigger     string        `json:"trigger"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Definitions int           `json:"definitions"`
	Added       int           `json:"added"`
	Kept        int           `json:"kept"`
	Resurrected int           `json:"resurrected"`
	Removed     int           `json:"removed"`
	Deferred    int           `json:"deferred"`
	Skipped     []string      `json:"skipped,omitempty"`
	Duration    time.Duration `json:"duration"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Store is the persistence interface used by the pool.
type Store interface {
	RecordSessionEvent(ctx context.Context, e *SessionEvent) error
	ListSessionEvents(ctx context.Context, f SessionEventFilter) ([]SessionEvent, error)

	RecordReload(ctx context.Context, r *ReloadRecord) error
	ListReloads(ctx context.Context, limit int) ([]ReloadRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// timestampLayout is fixed width so stored timestamps compare correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// normalizeLimit applies default (100) and cap (1000) to a listing limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
