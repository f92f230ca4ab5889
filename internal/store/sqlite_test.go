// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers schema creation, session event and reload persistence, ordering and filtering

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestNewSQLiteStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.RecordSessionEvent(ctx, &SessionEvent{AgentID: "1001", Event: "login", State: "LOGGED_IN"}))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	events, err := store.ListSessionEvents(ctx, SessionEventFilter{AgentID: "1001"})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSessionEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	inputs := []SessionEvent{
		{AgentID: "1001", Event: "login", State: "LOGGED_IN", Session: "s-1", Timestamp: base},
		{AgentID: "1002", Event: "login", State: "LOGGED_IN", Session: "s-2", Timestamp: base.Add(time.Second)},
		{AgentID: "1001", Event: "logout", State: "LOGGED_OUT", Session: "s-1", Soft: true, Timestamp: base.Add(2 * time.Second)},
	}
	for i := range inputs {
		require.NoError(t, store.RecordSessionEvent(ctx, &inputs[i]))
		assert.NotEmpty(t, inputs[i].ID)
	}

	t.Run("by agent newest first", func(t *testing.T) {
		events, err := store.ListSessionEvents(ctx, SessionEventFilter{AgentID: "1001"})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "logout", events[0].Event)
		assert.True(t, events[0].Soft)
		assert.Equal(t, "s-1", events[0].Session)
		assert.True(t, base.Add(2*time.Second).Equal(events[0].Timestamp))
		assert.Equal(t, "login", events[1].Event)
		assert.False(t, events[1].Soft)
	})

	t.Run("all agents", func(t *testing.T) {
		events, err := store.ListSessionEvents(ctx, SessionEventFilter{})
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})

	t.Run("since", func(t *testing.T) {
		since := base.Add(time.Second)
		events, err := store.ListSessionEvents(ctx, SessionEventFilter{Since: &since})
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("limit", func(t *testing.T) {
		events, err := store.ListSessionEvents(ctx, SessionEventFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "logout", events[0].Event)
	})

	t.Run("unknown agent", func(t *testing.T) {
		events, err := store.ListSessionEvents(ctx, SessionEventFilter{AgentID: "9999"})
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestSessionEvents_SinceFractionalSeconds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 5, 0, time.UTC)
	for _, ts := range []time.Time{base, base.Add(100 * time.Millisecond), base.Add(time.Second)} {
		require.NoError(t, store.RecordSessionEvent(ctx, &SessionEvent{
			AgentID: "1001", Event: "call_start", State: "LOGGED_IN", Timestamp: ts,
		}))
	}

	// A whole-second timestamp must not sort after a fractional one in the same second.
	since := base.Add(100 * time.Millisecond)
	events, err := store.ListSessionEvents(ctx, SessionEventFilter{Since: &since})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, base.Add(time.Second).Equal(events[0].Timestamp))
	assert.True(t, since.Equal(events[1].Timestamp))
}

func TestReloads(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ok := &ReloadRecord{
		Source:      "/etc/agentpool/agents.toml",
		Trigger:     "startup",
		Success:     true,
		Definitions: 3,
		Added:       2,
		Kept:        1,
		Removed:     1,
		Deferred:    1,
		Skipped:     []string{"bad"},
		Duration:    42 * time.Millisecond,
	}
	require.NoError(t, store.RecordReload(ctx, ok))

	failed := &ReloadRecord{
		Source:  "/etc/agentpool/agents.toml",
		Trigger: "watch",
		Error:   `duplicate agent id: "1001"`,
	}
	require.NoError(t, store.RecordReload(ctx, failed))

	reloads, err := store.ListReloads(ctx, 0)
	require.NoError(t, err)
	require.Len(t, reloads, 2)

	assert.False(t, reloads[0].Success)
	assert.Equal(t, "watch", reloads[0].Trigger)
	assert.Equal(t, failed.Error, reloads[0].Error)
	assert.Nil(t, reloads[0].Skipped)

	got := reloads[1]
	assert.Equal(t, ok.ID, got.ID)
	assert.True(t, got.Success)
	assert.Equal(t, []string{"bad"}, got.Skipped)
	assert.Equal(t, 42*time.Millisecond, got.Duration)
	assert.Equal(t, 2, got.Added)
	assert.Equal(t, 1, got.Deferred)
	assert.Empty(t, got.Error)
}

func TestReloads_Limit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordReload(ctx, &ReloadRecord{Source: fmt.Sprintf("file-%d", i), Trigger: "api", Success: true}))
	}

	reloads, err := store.ListReloads(ctx, 2)
	require.NoError(t, err)
	require.Len(t, reloads, 2)
	assert.Equal(t, "file-4", reloads[0].Source)
	assert.Equal(t, "file-3", reloads[1].Source)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeLimit(0))
	assert.Equal(t, 100, normalizeLimit(-5))
	assert.Equal(t, 50, normalizeLimit(50))
	assert.Equal(t, 1000, normalizeLimit(5000))
}
