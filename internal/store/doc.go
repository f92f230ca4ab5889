// Package store persists the agent pool's audit trail using SQLite.
//
// # Architecture
//
// Store is the interface the pool writes through. SQLiteStore is the
// production implementation; MockStore keeps everything in memory for tests.
//
// # Data Models
//
//   - SessionEvent: one agent transition (login, logout, call start/end,
//     added, dead, revived, removed)
//   - ReloadRecord: the outcome of one agents file reload, successful or not
//
// Both are append-only. Listings return the newest entries first.
//
// # Schema
//
// Tables are created on open with CREATE TABLE IF NOT EXISTS and the
// database runs in WAL mode.
package store
