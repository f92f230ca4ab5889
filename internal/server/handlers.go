// ABOUTME: HTTP handlers for agent status, sessions, calls, reloads and health
// ABOUTME: Maps pool and agent sentinel errors onto HTTP status codes

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/2389/agentpool/internal/agent"
	"github.com/2389/agentpool/internal/auth"
	"github.com/2389/agentpool/internal/definition"
	"github.com/2389/agentpool/internal/pool"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// LoginRequest is the JSON request body for POST /api/agents/{id}/login.
type LoginRequest struct {
	Password  string          `json:"password"`
	Overrides agent.Overrides `json:"overrides"`
}

// LoginResponse is the JSON response for a successful login.
type LoginResponse struct {
	AgentID string              `json:"agent_id"`
	Session agent.SessionHandle `json:"session"`
}

// StateResponse is the JSON response for GET /api/agents/{id}/state.
type StateResponse struct {
	AgentID string            `json:"agent_id"`
	State   agent.DeviceState `json:"state"`
}

// ReloadResponse is the JSON response for POST /api/reload.
type ReloadResponse struct {
	Definitions int      `json:"definitions"`
	Added       int      `json:"added"`
	Kept        int      `json:"kept"`
	Resurrected int      `json:"resurrected"`
	Removed     int      `json:"removed"`
	Deferred    int      `json:"deferred"`
	Skipped     []string `json:"skipped,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.pool.Ready(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents)", s.pool.Registry().Len())
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	infos := s.pool.List(r.URL.Query().Get("prefix"))
	if infos == nil {
		infos = []agent.Info{}
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"agents": infos})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, ok := s.pool.Describe(id)
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, "agent not found: "+id)
		return
	}

	if r.URL.Query().Has("item") {
		value, err := info.Item(r.URL.Query().Get("item"))
		if err != nil {
			s.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.sendJSON(w, http.StatusOK, map[string]string{"value": value})
		return
	}

	s.sendJSON(w, http.StatusOK, info)
}

// handleAgentState answers for any id; unknown ids report INVALID.
func (s *Server) handleAgentState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.sendJSON(w, http.StatusOK, StateResponse{AgentID: id, State: s.pool.StateOf(id)})
}

func (s *Server) handleAgentHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.pool.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.logger.Error("listing agent history", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	handle, err := s.pool.Login(id, pool.LoginParams{
		Password:  req.Password,
		Overrides: req.Overrides,
	})
	if err != nil {
		s.sendPoolError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, LoginResponse{AgentID: id, Session: handle})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	soft, err := queryBool(r, "soft")
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.pool.Logout(r.PathValue("id"), soft); err != nil {
		s.sendPoolError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	soft, err := queryBool(r, "soft")
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	handle := agent.SessionHandle(r.PathValue("handle"))
	if err := s.pool.LogoutSession(handle, soft); err != nil {
		s.sendPoolError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLogoff is the operator variant of logout.
func (s *Server) handleLogoff(w http.ResponseWriter, r *http.Request) {
	soft, err := queryBool(r, "soft")
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	if err := s.pool.Logout(id, soft); err != nil {
		s.sendPoolError(w, err)
		return
	}
	s.logger.Info("agent logged off by operator",
		"agent_id", id,
		"soft", soft,
		"operator", auth.SubjectFromContext(r.Context()),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCallStart(w http.ResponseWriter, r *http.Request) {
	if err := s.pool.BeginCall(r.PathValue("id")); err != nil {
		s.sendPoolError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCallEnd(w http.ResponseWriter, r *http.Request) {
	if err := s.pool.EndCall(r.PathValue("id")); err != nil {
		s.sendPoolError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("reload requested", "operator", auth.SubjectFromContext(r.Context()))

	result, err := s.pool.Reload(r.Context(), pool.TriggerAPI)
	if err != nil {
		s.sendPoolError(w, err)
		return
	}

	var definitions int
	if snap := s.pool.Snapshot(); snap != nil {
		definitions = snap.Len()
	}
	s.sendJSON(w, http.StatusOK, ReloadResponse{
		Definitions: definitions,
		Added:       result.Added,
		Kept:        result.Kept,
		Resurrected: result.Resurrected,
		Removed:     result.Removed,
		Deferred:    result.Deferred,
		Skipped:     result.Skipped,
	})
}

func (s *Server) handleListReloads(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	reloads, err := s.pool.Reloads(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing reloads", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"reloads": nonNil(reloads)})
}

// statusForError maps sentinel errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, agent.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, agent.ErrAgentUnavailable), errors.Is(err, agent.ErrNoActiveCall):
		return http.StatusConflict
	case errors.Is(err, agent.ErrLoginLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, pool.ErrInvalidPassword):
		return http.StatusForbidden
	case errors.Is(err, definition.ErrDuplicateID),
		errors.Is(err, definition.ErrInvalidField),
		errors.Is(err, definition.ErrMalformed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendPoolError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.sendJSONError(w, status, msg)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body")
	}
	return nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
