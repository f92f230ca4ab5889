// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrStoreClosed is returned by MockStore after Close.
var ErrStoreClosed = errors.New("store closed")

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	events  []SessionEvent // in insertion order
	reloads []ReloadRecord // in insertion order
	closed  bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// RecordSessionEvent appends an event.
func (m *MockStore) RecordSessionEvent(ctx context.Context, e *SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.events = append(m.events, *e)
	return nil
}

// ListSessionEvents returns events matching the filter, newest first.
func (m *MockStore) ListSessionEvents(ctx context.Context, f SessionEventFilter) ([]SessionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := normalizeLimit(f.Limit)
	var out []SessionEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.events[i]
		if f.AgentID != "" && e.AgentID != f.AgentID {
			continue
		}
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// RecordReload appends a reload outcome.
func (m *MockStore) RecordReload(ctx context.Context, r *ReloadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	rec := *r
	rec.Skipped = append([]string(nil), r.Skipped...)
	m.reloads = append(m.reloads, rec)
	return nil
}

// ListReloads returns the most recent reloads, newest first.
func (m *MockStore) ListReloads(ctx context.Context, limit int) ([]ReloadRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = normalizeLimit(limit)
	var out []ReloadRecord
	for i := len(m.reloads) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.reloads[i])
	}
	return out, nil
}

// Ping fails once the store is closed.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
