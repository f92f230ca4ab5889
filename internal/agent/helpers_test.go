// ABOUTME: Shared fixtures for agent package tests
// ABOUTME: Builds snapshots and records transitions emitted by the registry

package agent

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/2389/agentpool/internal/definition"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAgent(id string) *definition.Agent {
	return &definition.Agent{
		ID:            id,
		FullName:      "Agent " + id,
		AcceptDTMF:    "#",
		EndDTMF:       "*",
		BeepSound:     "beep",
		MusicOnHold:   "default",
		RecordFormat:  "wav",
		MaxLoginTries: 3,
		EndCall:       true,
	}
}

func snapshotOf(t *testing.T, ids ...string) *definition.Snapshot {
	t.Helper()
	agents := make([]*definition.Agent, 0, len(ids))
	for _, id := range ids {
		agents = append(agents, newTestAgent(id))
	}
	snap, err := definition.NewSnapshot("test", agents)
	require.NoError(t, err)
	return snap
}

func newTestRegistry() (*Registry, *Engine, *recorder) {
	rec := &recorder{}
	reg := NewRegistry(discardLogger())
	reg.SetNotifier(rec)
	reg.SetCallBridge(rec)
	return reg, NewEngine(reg, discardLogger()), rec
}

type hangup struct {
	agentID string
	session SessionHandle
}

// recorder captures notifications and hangups.
type recorder struct {
	mu      sync.Mutex
	changes []StateChange
	hangups []hangup
}

func (r *recorder) AgentStateChanged(c StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) Hangup(agentID string, session SessionHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hangups = append(r.hangups, hangup{agentID: agentID, session: session})
}

func (r *recorder) events(agentID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, c := range r.changes {
		if c.AgentID == agentID {
			out = append(out, c.Event)
		}
	}
	return out
}

func (r *recorder) hangupCalls() []hangup {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hangup(nil), r.hangups...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = nil
	r.hangups = nil
}

func ids(infos []Info) []string {
	out := make([]string, 0, len(infos))
	for _, i := range infos {
		out = append(out, i.ID)
	}
	return out
}
