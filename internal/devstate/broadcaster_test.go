// ABOUTME: Tests for the device-state Broadcaster fan-out
// ABOUTME: Covers per-agent and wildcard delivery, slow subscribers, cancellation and registry wiring

package devstate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentpool/internal/agent"
	"github.com/2389/agentpool/internal/definition"
)

func change(agentID string, event agent.Event) agent.StateChange {
	return agent.StateChange{AgentID: agentID, Event: event, State: agent.StateLoggedIn, At: time.Now()}
}

func receive(t *testing.T, ch <-chan agent.StateChange) agent.StateChange {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "channel closed")
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state change")
		return agent.StateChange{}
	}
}

func TestBroadcaster_DeliversToAgentSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "1001")
	other, _ := b.Subscribe(t.Context(), "1002")

	b.AgentStateChanged(change("1001", agent.EventLogin))

	assert.Equal(t, agent.EventLogin, receive(t, ch).Event)
	select {
	case c := <-other:
		t.Fatalf("unexpected change for other agent: %+v", c)
	default:
	}
}

func TestBroadcaster_WildcardReceivesEverything(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	all, _ := b.Subscribe(t.Context(), AllAgents)

	b.AgentStateChanged(change("1001", agent.EventLogin))
	b.AgentStateChanged(change("1002", agent.EventLogout))

	assert.Equal(t, "1001", receive(t, all).AgentID)
	assert.Equal(t, "1002", receive(t, all).AgentID)
}

func TestBroadcaster_DropsForSlowSubscriber(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "1001")
	for i := 0; i < subscriberBufferSize+10; i++ {
		b.AgentStateChanged(change("1001", agent.EventCallStart))
	}

	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "1001")
	require.Equal(t, 1, b.Subscribers())

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestBroadcaster_UnsubscribeTwice(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	_, subID := b.Subscribe(t.Context(), "1001")
	b.Unsubscribe("1001", subID)
	b.Unsubscribe("1001", subID)
	b.Unsubscribe("missing", subID)

	assert.Equal(t, 0, b.Subscribers())
}

func TestBroadcaster_SubscribeAfterClose(t *testing.T) {
	b := NewBroadcaster(nil)
	b.Close()

	ch, _ := b.Subscribe(t.Context(), "1001")
	_, ok := <-ch
	assert.False(t, ok)
}

func TestBroadcaster_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithCancel(context.Background())
			ch, _ := b.Subscribe(ctx, AllAgents)
			cancel()
			for range ch {
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.AgentStateChanged(change("1001", agent.EventLogin))
			}
		}()
	}
	wg.Wait()
}

func TestBroadcaster_WiredToRegistry(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	reg := agent.NewRegistry(nil)
	reg.SetNotifier(b)
	ch, _ := b.Subscribe(t.Context(), "1001")

	snap, err := definition.NewSnapshot("test", []*definition.Agent{{ID: "1001", BeepSound: "beep"}})
	require.NoError(t, err)
	agent.NewEngine(reg, nil).Reconcile(snap)
	_, err = reg.Login("1001", agent.LoginRequest{})
	require.NoError(t, err)

	assert.Equal(t, agent.EventAdded, receive(t, ch).Event)
	got := receive(t, ch)
	assert.Equal(t, agent.EventLogin, got.Event)
	assert.Equal(t, agent.StateLoggedIn, got.State)
}
