// ABOUTME: Mark-and-sweep reconciliation of a definition snapshot into the live registry
// ABOUTME: Keeps logged-in agents alive across reloads and unlinks departed idle agents

package agent

import (
	"log/slog"
	"sync"
	"time"

	"github.com/2389/agentpool/internal/definition"
)

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Added       int
	Kept        int
	Resurrected int
	Removed     int
	// Deferred counts departed records kept alive by an active session.
	Deferred int
	// Skipped lists definition ids whose record could not be constructed.
	Skipped  []string
	Duration time.Duration
}

// Engine merges snapshots into a Registry. Passes are serialized.
type Engine struct {
	registry  *Registry
	logger    *slog.Logger
	mu        sync.Mutex
	newRecord func(def *definition.Agent) (*Record, error)
}

// NewEngine creates an Engine for reg.
func NewEngine(reg *Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry:  reg,
		logger:    logger,
		newRecord: NewRecord,
	}
}

// Reconcile merges snap into the registry and returns a summary.
func (e *Engine) Reconcile(snap *definition.Snapshot) ReconcileResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	reg := e.registry
	var result ReconcileResult
	var changes []StateChange

	// Mark
	reg.ForEach(func(rec *Record) {
		rec.mark = true
	})

	// Match or insert
	for _, def := range snap.Agents() {
		if found, revived := e.match(def.ID); found {
			result.Kept++
			if revived != nil {
				result.Resurrected++
				changes = append(changes, *revived)
			}
			continue
		}

		rec, err := e.newRecord(def)
		if err != nil {
			e.logger.Warn("skipping agent definition", "agent_id", def.ID, "error", err)
			result.Skipped = append(result.Skipped, def.ID)
			continue
		}
		if !reg.InsertIfAbsent(rec) {
			e.logger.Warn("agent appeared during reconcile, skipping", "agent_id", def.ID)
			result.Skipped = append(result.Skipped, def.ID)
			continue
		}
		result.Added++
		changes = append(changes, StateChange{
			AgentID: rec.id,
			Event:   EventAdded,
			State:   StateLoggedOut,
			At:      reg.now(),
		})
	}

	// Sweep
	removed := reg.RemoveIf(func(rec *Record) bool {
		if !rec.mark {
			return false
		}

		rec.mark = false
		wasDead := rec.dead
		rec.dead = true
		if rec.session == "" {
			return true
		}
		result.Deferred++
		if !wasDead {
			e.logger.Info("agent removed from config while logged in, deferring removal",
				"agent_id", rec.id,
				"session", rec.session,
			)
			changes = append(changes, reg.changeLocked(rec, EventDead))
		}
		return false
	})

	for _, rec := range removed {
		changes = append(changes, reg.removedChange(rec))
	}
	result.Removed = len(removed)
	result.Duration = time.Since(start)

	e.logger.Info("reconciled agents",
		"source", snap.Source(),
		"definitions", snap.Len(),
		"added", result.Added,
		"kept", result.Kept,
		"resurrected", result.Resurrected,
		"removed", result.Removed,
		"deferred", result.Deferred,
		"skipped", len(result.Skipped),
		"total_agents", reg.Len(),
	)

	reg.notify(changes...)
	return result
}

// match unmarks the record registered for id and revives it if it was dead.
// Both happen under the structural read lock, so a deferred removal cannot
// unlink the record between lookup and unmarking, nor after it.
func (e *Engine) match(id string) (bool, *StateChange) {
	reg := e.registry
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	rec, ok := reg.tree.Get(pivot(id))
	if !ok {
		return false, nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.mark = false
	if !rec.dead {
		return true, nil
	}
	rec.dead = false
	e.logger.Info("agent configured again", "agent_id", rec.id, "session", rec.session)
	change := reg.changeLocked(rec, EventRevived)
	return true, &change
}
