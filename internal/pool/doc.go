// Package pool is the agent pool service: it owns the registry, the current
// definition snapshot and every collaborator around them.
//
// # Lifecycle
//
//	p, err := pool.New(pool.Options{AgentsFile: "agents.toml", Store: st})
//	if _, err := p.Reload(ctx, pool.TriggerStartup); err != nil { ... }
//	defer p.Close()
//
// Reload is all-or-nothing: a file that fails to parse or validate leaves the
// previous snapshot and the registry untouched. Every attempt, successful or
// not, is written to the store.
//
// # Logins
//
// Login verifies the agent's password against the definition bound to its
// record and counts failures per agent in a sliding window. Once an agent's
// configured limit is reached further attempts are refused without checking
// the password until the window passes.
//
// # Events
//
// Every registry transition is written to the store and fanned out to
// Subscribe callers.
package pool
