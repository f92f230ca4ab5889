// Package attempts counts failed login attempts per agent within a sliding
// time window, bounded in size, so the session layer can enforce an agent's
// login limit.
package attempts
