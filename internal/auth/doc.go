// Package auth protects the agent pool's admin endpoints with bearer tokens.
//
// Tokens are HS256 JWTs signed with the configured jwt_secret. The subject
// claim names the operator and is attached to the request context so handlers
// and audit logs can report who acted:
//
//	verifier := auth.NewJWTVerifier([]byte(secret))
//	mux.Handle("POST /api/reload", auth.RequireToken(verifier)(handler))
//
// The agentpool token command mints tokens for operators.
package auth
