// ABOUTME: Login, logout and call operations exposed by the pool
// ABOUTME: Adds password checks and failed attempt counting on top of the registry

package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/agentpool/internal/agent"
	"github.com/2389/agentpool/internal/metrics"
	"github.com/2389/agentpool/internal/store"
)

// LoginParams are the caller supplied inputs to Login.
type LoginParams struct {
	Password  string
	Overrides agent.Overrides
}

// Login authenticates and logs in the agent with the given id.
//
// The configured max login tries is enforced here: once an agent has that
// many failed password checks inside the attempt window, Login refuses before
// checking the password. The failure count is also passed to the registry,
// whose own check (count above the session's effective limit) never fires
// first because the count cannot pass the configured limit. Requested
// overrides therefore cannot lift the configured limit.
func (p *Pool) Login(id string, params LoginParams) (agent.SessionHandle, error) {
	rec, ok := p.registry.Find(id)
	if !ok {
		p.observeLogin(metrics.LoginNotFound)
		return "", fmt.Errorf("%w: %s", agent.ErrAgentNotFound, id)
	}
	def := rec.Definition()

	failures := p.attempts.Count(id)
	if def.MaxLoginTries > 0 && failures >= def.MaxLoginTries {
		p.observeLogin(metrics.LoginLimitExceeded)
		p.logger.Warn("login refused, too many failed attempts", "agent_id", id, "failures", failures)
		return "", fmt.Errorf("%w: %d failed attempts", agent.ErrLoginLimitExceeded, failures)
	}

	if !def.CheckPassword(params.Password) {
		n := p.attempts.Increment(id)
		p.observeLogin(metrics.LoginBadPassword)
		p.logger.Warn("login failed, bad password", "agent_id", id, "failures", n)
		return "", ErrInvalidPassword
	}

	handle, err := p.registry.Login(id, agent.LoginRequest{
		Overrides: params.Overrides,
		Attempts:  failures,
	})
	if err != nil {
		p.observeLogin(loginResult(err))
		return "", err
	}

	p.attempts.Reset(id)
	p.observeLogin(metrics.LoginOK)
	return handle, nil
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, agent.ErrAgentNotFound):
		return metrics.LoginNotFound
	case errors.Is(err, agent.ErrLoginLimitExceeded):
		return metrics.LoginLimitExceeded
	default:
		return metrics.LoginUnavailable
	}
}

func (p *Pool) observeLogin(result string) {
	if p.metrics != nil {
		p.metrics.ObserveLogin(result)
	}
}

// Logout ends the session of the agent with the given id. A soft logout
// leaves any call in progress alone.
func (p *Pool) Logout(id string, soft bool) error {
	if err := p.registry.Logout(id, soft); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.ObserveLogout(soft)
	}
	return nil
}

// LogoutSession ends the session with the given handle.
func (p *Pool) LogoutSession(handle agent.SessionHandle, soft bool) error {
	if err := p.registry.LogoutSession(handle, soft); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.ObserveLogout(soft)
	}
	return nil
}

// BeginCall marks the agent as on a call.
func (p *Pool) BeginCall(id string) error {
	return p.registry.BeginCall(id)
}

// EndCall marks the agent's call as finished.
func (p *Pool) EndCall(id string) error {
	return p.registry.EndCall(id)
}

// StateOf returns the device state for id.
func (p *Pool) StateOf(id string) agent.DeviceState {
	return p.registry.StateOf(id)
}

// Describe returns the status view of one agent.
func (p *Pool) Describe(id string) (agent.Info, bool) {
	return p.registry.Describe(id)
}

// List returns status views of agents whose id starts with prefix.
func (p *Pool) List(prefix string) []agent.Info {
	return p.registry.List(prefix)
}

// History returns recorded transitions for one agent, newest first.
func (p *Pool) History(ctx context.Context, id string, limit int) ([]store.SessionEvent, error) {
	if p.store == nil {
		return nil, nil
	}
	return p.store.ListSessionEvents(ctx, store.SessionEventFilter{AgentID: id, Limit: limit})
}

// Reloads returns recent reload outcomes, newest first.
func (p *Pool) Reloads(ctx context.Context, limit int) ([]store.ReloadRecord, error) {
	if p.store == nil {
		return nil, nil
	}
	return p.store.ListReloads(ctx, limit)
}
