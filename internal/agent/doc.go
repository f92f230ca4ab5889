// Package agent tracks the runtime state of configured call-center agents.
//
// # Overview
//
// Agent definitions come from reloadable configuration (see package
// definition). This package keeps one Record per agent id and merges every
// newly loaded Snapshot into the live set without disturbing agents that are
// logged in.
//
// # Registry
//
// The Registry holds Records ordered by id:
//
//	reg := agent.NewRegistry(logger)
//	engine := agent.NewEngine(reg, logger)
//	engine.Reconcile(snapshot)
//
// Key operations:
//
//   - Find(id) / FindBySession(handle): lookup
//   - InsertIfAbsent(rec): add a record unless the id is taken
//   - RemoveIf(pred): unlink every record the predicate accepts
//   - ForEach(fn) / Prefix(prefix, fn): point-in-time traversal
//   - Login / Logout / LogoutSession: session lifecycle
//   - StateOf(id): device state query (INVALID when unknown)
//   - Describe(id) / List(prefix): status views for admin tools
//
// # Reconciliation
//
// Engine.Reconcile runs a mark-and-sweep pass:
//
//  1. Mark every existing record.
//  2. For every definition in the snapshot, unmark the matching record or
//     create a new LOGGED_OUT record bound to the definition. A matched
//     record that was dead stops being dead in the same step, under the
//     structural read lock, so a concurrent logout cannot unlink it.
//  3. Sweep: a record still marked is absent from the snapshot. It becomes
//     dead and is unlinked right away unless it has a session, in which case
//     it is unlinked when the session logs out.
//
// Records that survive keep their bound definition. New option values for an
// existing id apply once the record is recreated.
//
// # Locking
//
// Two granularities: a structural RWMutex on the registry guards membership,
// and each Record has its own mutex for its fields. Lock order is structural,
// then record, then the session index. Session operations never take the
// structural lock while holding a record lock; deferred removal after logout
// releases the record and goes back through the structural lock.
//
// # Notifications
//
// Every transition is reported to an optional StateNotifier after locks are
// released. A non-soft logout during a call asks the optional CallBridge to
// hang it up. Neither collaborator may call back into the Registry
// synchronously.
package agent
