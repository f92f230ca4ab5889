// Package server exposes the agent pool over HTTP.
//
// # Endpoints
//
// Health:
//
//	GET  /health                          liveness
//	GET  /health/ready                    agents loaded and store reachable
//
// Agents:
//
//	GET  /api/agents?prefix=P             status of every agent, ordered by id
//	GET  /api/agents/{id}                 status of one agent (?item=NAME for a single value)
//	GET  /api/agents/{id}/state           device state
//	GET  /api/agents/{id}/history         recorded transitions, newest first
//	POST /api/agents/{id}/login           {"password": "...", "overrides": {...}}
//	POST /api/agents/{id}/logout?soft=1
//	POST /api/sessions/{handle}/logout?soft=1
//	POST /api/agents/{id}/call/start
//	POST /api/agents/{id}/call/end
//	GET  /api/events?agent=ID             server-sent device state changes
//
// Admin (bearer token required when auth.jwt_secret is set):
//
//	POST /api/reload
//	GET  /api/reloads
//	POST /api/agents/{id}/logoff?soft=1
//
// Errors are returned as {"error": "..."} with 404 for unknown agents, 409
// for agents that are busy or not on a call, 429 once the login limit is
// reached, 403 for a wrong agent password and 400 for a rejected agents file.
package server
