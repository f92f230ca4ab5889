// ABOUTME: Server-sent event stream of agent device state changes
// ABOUTME: One "state" event per transition until the client disconnects or the server shuts down

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// keepaliveInterval is how often an idle stream sends a comment line.
const keepaliveInterval = 30 * time.Second

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	agentID := r.URL.Query().Get("agent")
	ctx := r.Context()
	changes := s.pool.Subscribe(ctx, agentID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	s.logger.Debug("event stream opened", "agent_id", agentID)
	defer s.logger.Debug("event stream closed", "agent_id", agentID)

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case change, ok := <-changes:
			if !ok {
				return
			}
			s.writeSSEEvent(w, "state", change)
			flusher.Flush()
		}
	}
}

func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	_, _ = fmt.Fprintf(w, "event: %s\n", event)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
