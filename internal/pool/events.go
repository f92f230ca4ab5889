// ABOUTME: Registry collaborators implemented by the pool: state notifier and call bridge
// ABOUTME: Transitions are persisted to the store and fanned out to event subscribers

package pool

import (
	"context"

	"github.com/2389/agentpool/internal/agent"
	"github.com/2389/agentpool/internal/store"
)

// AgentStateChanged persists and broadcasts a registry transition.
func (p *Pool) AgentStateChanged(change agent.StateChange) {
	p.events.AgentStateChanged(change)
	p.recordEvent(&store.SessionEvent{
		AgentID:   change.AgentID,
		Event:     string(change.Event),
		State:     change.State.String(),
		Session:   string(change.Session),
		Soft:      change.Soft,
		Timestamp: change.At,
	})
}

// Hangup is called for non-soft logouts during a call. There is no media layer attached,
// so the request is logged and audited.
func (p *Pool) Hangup(agentID string, session agent.SessionHandle) {
	p.logger.Info("hanging up agent call", "agent_id", agentID, "session", session)
	p.recordEvent(&store.SessionEvent{
		AgentID: agentID,
		Event:   "hangup",
		State:   agent.StateLoggedOut.String(),
		Session: string(session),
	})
}

func (p *Pool) recordEvent(e *store.SessionEvent) {
	if p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := p.store.RecordSessionEvent(ctx, e); err != nil {
		p.logger.Warn("failed to record session event", "agent_id", e.AgentID, "event", e.Event, "error", err)
	}
}

// Subscribe streams transitions for agentID, or for every agent when agentID
// is empty, until ctx is cancelled.
func (p *Pool) Subscribe(ctx context.Context, agentID string) <-chan agent.StateChange {
	ch, _ := p.events.Subscribe(ctx, agentID)
	if p.metrics == nil {
		return ch
	}

	p.metrics.SubscriberAdded()
	out := make(chan agent.StateChange)
	go func() {
		defer close(out)
		defer p.metrics.SubscriberRemoved()
		for c := range ch {
			select {
			case out <- c:
			case <-ctx.Done():
			}
		}
	}()
	return out
}
