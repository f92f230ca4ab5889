// ABOUTME: Tests for login, logout and call tracking on agent records
// ABOUTME: Includes a race test interleaving logins and logouts with reconciles

package agent

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	t.Run("unknown agent", func(t *testing.T) {
		reg, engine, _ := newTestRegistry()
		engine.Reconcile(snapshotOf(t, "1001"))

		_, err := reg.Login("9999", LoginRequest{})
		assert.ErrorIs(t, err, ErrAgentNotFound)
	})

	t.Run("already logged in", func(t *testing.T) {
		reg, engine, _ := newTestRegistry()
		engine.Reconcile(snapshotOf(t, "1001"))
		_, err := reg.Login("1001", LoginRequest{})
		require.NoError(t, err)

		_, err = reg.Login("1001", LoginRequest{})
		assert.ErrorIs(t, err, ErrAgentUnavailable)
	})

	t.Run("dead agent", func(t *testing.T) {
		reg, engine, _ := newTestRegistry()
		engine.Reconcile(snapshotOf(t, "1001"))
		_, err := reg.Login("1001", LoginRequest{})
		require.NoError(t, err)
		engine.Reconcile(snapshotOf(t))

		_, err = reg.Login("1001", LoginRequest{})
		assert.ErrorIs(t, err, ErrAgentUnavailable)
	})

	t.Run("login limit", func(t *testing.T) {
		reg, engine, _ := newTestRegistry()
		engine.Reconcile(snapshotOf(t, "1001"))

		_, err := reg.Login("1001", LoginRequest{Attempts: 4})
		assert.ErrorIs(t, err, ErrLoginLimitExceeded)

		_, err = reg.Login("1001", LoginRequest{Attempts: 3})
		assert.NoError(t, err)
	})

	t.Run("override lifts limit", func(t *testing.T) {
		reg, engine, _ := newTestRegistry()
		engine.Reconcile(snapshotOf(t, "1001"))

		_, err := reg.Login("1001", LoginRequest{
			Attempts:  50,
			Overrides: Overrides{MaxLoginTries: Some[uint](0)},
		})
		assert.NoError(t, err)
	})

	t.Run("emits login event", func(t *testing.T) {
		reg, engine, rec := newTestRegistry()
		engine.Reconcile(snapshotOf(t, "1001"))
		rec.reset()

		handle, err := reg.Login("1001", LoginRequest{})
		require.NoError(t, err)
		assert.NotEmpty(t, handle)
		assert.Equal(t, []Event{EventLogin}, rec.events("1001"))
		assert.Equal(t, StateLoggedIn, reg.StateOf("1001"))
	})
}

func TestOverridesAreSessionScoped(t *testing.T) {
	reg, engine, _ := newTestRegistry()
	engine.Reconcile(snapshotOf(t, "1001"))

	_, err := reg.Login("1001", LoginRequest{Overrides: Overrides{
		AcceptDTMF: Some("5"),
		WrapupTime: Some[uint](2000),
		AckCall:    Some(true),
	}})
	require.NoError(t, err)

	info, ok := reg.Describe("1001")
	require.True(t, ok)
	assert.Equal(t, "5", info.Settings.AcceptDTMF)
	assert.Equal(t, "*", info.Settings.EndDTMF)
	assert.Equal(t, uint(2000), info.Settings.WrapupTime)
	assert.True(t, info.Settings.AckCall)

	require.NoError(t, reg.Logout("1001", true))

	info, _ = reg.Describe("1001")
	assert.Equal(t, "#", info.Settings.AcceptDTMF)
	assert.Equal(t, uint(0), info.Settings.WrapupTime)
	assert.False(t, info.Settings.AckCall)
	assert.False(t, info.LastDisconnect.IsZero())
}

func TestLogout(t *testing.T) {
	t.Run("not logged in", func(t *testing.T) {
		reg, engine, _ := newTestRegistry()
		engine.Reconcile(snapshotOf(t, "1001"))

		assert.ErrorIs(t, reg.Logout("1001", false), ErrAgentNotFound)
		assert.ErrorIs(t, reg.Logout("9999", false), ErrAgentNotFound)
	})

	t.Run("hard logout hangs up call", func(t *testing.T) {
		reg, engine, rec := newTestRegistry()
		engine.Reconcile(snapshotOf(t, "1001"))
		handle, err := reg.Login("1001", LoginRequest{})
		require.NoError(t, err)
		require.NoError(t, reg.BeginCall("1001"))

		require.NoError(t, reg.Logout("1001", false))
		assert.Equal(t, []hangup{{agentID: "1001", session: handle}}, rec.hangupCalls())
	})

	t.Run("hard logout without call", func(t *testing.T) {
		reg, engine, rec := newTestRegistry()
		engine.Reconcile(snapshotOf(t, "1001"))
		_, err := reg.Login("1001", LoginRequest{})
		require.NoError(t, err)
		require.NoError(t, reg.BeginCall("1001"))
		require.NoError(t, reg.EndCall("1001"))

		require.NoError(t, reg.Logout("1001", false))
		assert.Empty(t, rec.hangupCalls())

		_, err = reg.Login("1001", LoginRequest{})
		require.NoError(t, err)
		require.NoError(t, reg.Logout("1001", false))
		assert.Empty(t, rec.hangupCalls())
	})

	t.Run("soft logout leaves call", func(t *testing.T) {
		reg, engine, rec := newTestRegistry()
		engine.Reconcile(snapshotOf(t, "1001"))
		_, err := reg.Login("1001", LoginRequest{})
		require.NoError(t, err)
		require.NoError(t, reg.BeginCall("1001"))

		require.NoError(t, reg.Logout("1001", true))
		assert.Empty(t, rec.hangupCalls())
	})

	t.Run("by session handle", func(t *testing.T) {
		reg, engine, _ := newTestRegistry()
		engine.Reconcile(snapshotOf(t, "1001"))
		handle, err := reg.Login("1001", LoginRequest{})
		require.NoError(t, err)

		require.NoError(t, reg.LogoutSession(handle, true))
		assert.Equal(t, StateLoggedOut, reg.StateOf("1001"))

		assert.ErrorIs(t, reg.LogoutSession(handle, true), ErrAgentNotFound)
		_, ok := reg.FindBySession(handle)
		assert.False(t, ok)
	})

	t.Run("stale session handle", func(t *testing.T) {
		reg, engine, _ := newTestRegistry()
		engine.Reconcile(snapshotOf(t, "1001"))
		old, err := reg.Login("1001", LoginRequest{})
		require.NoError(t, err)
		require.NoError(t, reg.Logout("1001", true))
		_, err = reg.Login("1001", LoginRequest{})
		require.NoError(t, err)

		assert.ErrorIs(t, reg.LogoutSession(old, true), ErrAgentNotFound)
		assert.Equal(t, StateLoggedIn, reg.StateOf("1001"))
	})
}

func TestCalls(t *testing.T) {
	reg, engine, rec := newTestRegistry()
	engine.Reconcile(snapshotOf(t, "1001"))

	assert.ErrorIs(t, reg.BeginCall("1001"), ErrAgentNotFound)

	_, err := reg.Login("1001", LoginRequest{})
	require.NoError(t, err)
	assert.ErrorIs(t, reg.EndCall("1001"), ErrNoActiveCall)

	require.NoError(t, reg.BeginCall("1001"))
	assert.ErrorIs(t, reg.BeginCall("1001"), ErrAgentUnavailable)

	info, _ := reg.Describe("1001")
	assert.True(t, info.InCall())

	require.NoError(t, reg.EndCall("1001"))
	info, _ = reg.Describe("1001")
	assert.False(t, info.InCall())
	assert.Equal(t,
		[]Event{EventAdded, EventLogin, EventCallStart, EventCallEnd},
		rec.events("1001"))
}

func TestListByPrefix(t *testing.T) {
	reg, engine, _ := newTestRegistry()
	engine.Reconcile(snapshotOf(t, "2001", "1002", "1001", "10", "3000"))

	assert.Equal(t, []string{"10", "1001", "1002", "2001", "3000"}, ids(reg.List("")))
	assert.Equal(t, []string{"10", "1001", "1002"}, ids(reg.List("10")))
	assert.Equal(t, []string{"1001", "1002"}, ids(reg.List("100")))
	assert.Empty(t, reg.List("9"))
}

func TestCounts(t *testing.T) {
	reg, engine, _ := newTestRegistry()
	engine.Reconcile(snapshotOf(t, "1001", "1002", "1003"))
	_, err := reg.Login("1001", LoginRequest{})
	require.NoError(t, err)
	_, err = reg.Login("1002", LoginRequest{})
	require.NoError(t, err)
	engine.Reconcile(snapshotOf(t, "1002", "1003"))

	assert.Equal(t, Counts{Registered: 3, LoggedIn: 2, Dead: 1}, reg.Counts())
}

func TestInfoItem(t *testing.T) {
	reg, engine, _ := newTestRegistry()
	engine.Reconcile(snapshotOf(t, "1001"))

	info, _ := reg.Describe("1001")
	status, err := info.Item("status")
	require.NoError(t, err)
	assert.Equal(t, "LOGGEDOUT", status)

	handle, err := reg.Login("1001", LoginRequest{})
	require.NoError(t, err)
	info, _ = reg.Describe("1001")

	tests := []struct {
		item string
		want string
	}{
		{"", "LOGGEDIN"},
		{"status", "LOGGEDIN"},
		{"name", "Agent 1001"},
		{"mohclass", "default"},
		{"channel", string(handle)[:8]},
		{"fullchannel", string(handle)},
	}
	for _, tt := range tests {
		got, err := info.Item(tt.item)
		require.NoError(t, err, tt.item)
		assert.Equal(t, tt.want, got, tt.item)
	}

	_, err = info.Item("password")
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestOverridesJSON(t *testing.T) {
	var o Overrides
	require.NoError(t, json.Unmarshal([]byte(`{"accept_dtmf":"5","ack_call":false,"wrapup_time":null}`), &o))

	assert.True(t, o.AcceptDTMF.IsSet())
	assert.True(t, o.AckCall.IsSet())
	assert.False(t, o.AckCall.Or(true))
	assert.False(t, o.WrapupTime.IsSet())
	assert.False(t, o.EndDTMF.IsSet())

	data, err := json.Marshal(Overrides{EndCall: Some(true)})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"end_call":true`)
	assert.Contains(t, string(data), `"accept_dtmf":null`)
}

func TestConcurrentSessionsAndReloads(t *testing.T) {
	reg, engine, _ := newTestRegistry()

	all := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		all = append(all, fmt.Sprintf("%04d", i))
	}
	full := snapshotOf(t, all...)
	half := snapshotOf(t, all[:10]...)
	engine.Reconcile(full)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := all[(w*7+i)%len(all)]
				if _, err := reg.Login(id, LoginRequest{}); err == nil {
					_ = reg.BeginCall(id)
					_ = reg.EndCall(id)
					_ = reg.Logout(id, i%2 == 0)
				}
				_ = reg.StateOf(id)
				_ = reg.List("00")
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if i%2 == 0 {
				engine.Reconcile(half)
			} else {
				engine.Reconcile(full)
			}
		}
	}()
	wg.Wait()

	// Every session has ended, so one more pass leaves exactly the configured set.
	engine.Reconcile(half)
	assert.Equal(t, all[:10], ids(reg.List("")))
	for _, info := range reg.List("") {
		assert.Equal(t, StateLoggedOut, info.State)
		assert.False(t, info.Dead)
	}
	assert.Equal(t, Counts{Registered: 10}, reg.Counts())
}
