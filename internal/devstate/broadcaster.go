// ABOUTME: In-memory fan-out of agent state changes to per-agent and wildcard subscribers
// ABOUTME: Implements agent.StateNotifier so the registry can publish without blocking

package devstate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/agentpool/internal/agent"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// AllAgents subscribes to changes for every agent id.
const AllAgents = ""

// Broadcaster provides in-memory pub/sub for agent state changes.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan agent.StateChange // agentID -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan agent.StateChange),
		logger:      logger.With("component", "devstate"),
	}
}

// Subscribe registers for changes to agentID, or to every agent when agentID
// is AllAgents. The subscription ends when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, agentID string) (<-chan agent.StateChange, string) {
	subID := uuid.New().String()
	ch := make(chan agent.StateChange, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[agentID]; !ok {
		b.subscribers[agentID] = make(map[string]chan agent.StateChange)
	}
	b.subscribers[agentID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "agent_id", agentID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(agentID, subID)
	}()

	return ch, subID
}

// AgentStateChanged publishes change to the agent's subscribers and to
// wildcard subscribers. Full subscriber channels drop the event.
func (b *Broadcaster) AgentStateChanged(change agent.StateChange) {
	b.mu.RLock()
	targets := make([]chan agent.StateChange, 0, len(b.subscribers[change.AgentID])+len(b.subscribers[AllAgents]))
	for _, ch := range b.subscribers[change.AgentID] {
		targets = append(targets, ch)
	}
	if change.AgentID != AllAgents {
		for _, ch := range b.subscribers[AllAgents] {
			targets = append(targets, ch)
		}
	}

	// Sends happen under the read lock so Unsubscribe cannot close a channel mid-send.
	for _, ch := range targets {
		select {
		case ch <- change:
		default:
			b.logger.Debug("dropped state change for slow subscriber",
				"agent_id", change.AgentID,
				"event", change.Event)
		}
	}
	b.mu.RUnlock()
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(agentID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[agentID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, agentID)
	}

	b.logger.Debug("subscriber removed", "agent_id", agentID, "sub_id", subID)
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subscribers {
		n += len(subs)
	}
	return n
}

// Close closes every subscriber channel. Later subscriptions are closed immediately.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for agentID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, agentID)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
