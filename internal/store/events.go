// ABOUTME: Session event persistence: append and list agent transitions
// ABOUTME: Events are append-only and listed newest first

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordSessionEvent appends an event. Generates ID and Timestamp if not set.
func (s *SQLiteStore) RecordSessionEvent(ctx context.Context, e *SessionEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var session *string
	if e.Session != "" {
		session = &e.Session
	}

	query := `
		INSERT INTO session_events (event_id, agent_id, event, state, session, soft, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.AgentID,
		e.Event,
		e.State,
		session,
		e.Soft,
		e.Timestamp.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting session event: %w", err)
	}

	s.logger.Debug("recorded session event", "id", e.ID, "agent_id", e.AgentID, "event", e.Event)
	return nil
}

const sessionEventsQuery = `
	SELECT event_id, agent_id, event, state, session, soft, ts
	FROM session_events
	WHERE (? = '' OR agent_id = ?)
	  AND (? IS NULL OR ts >= ?)
	ORDER BY seq DESC
	LIMIT ?
`

// ListSessionEvents returns events matching the filter, newest first.
func (s *SQLiteStore) ListSessionEvents(ctx context.Context, f SessionEventFilter) ([]SessionEvent, error) {
	var since *string
	if f.Since != nil {
		str := f.Since.UTC().Format(timestampLayout)
		since = &str
	}

	rows, err := s.db.QueryContext(ctx, sessionEventsQuery,
		f.AgentID, f.AgentID,
		since, since,
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying session events: %w", err)
	}
	defer rows.Close()

	var events []SessionEvent
	for rows.Next() {
		var e SessionEvent
		var session *string
		var ts string
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Event, &e.State, &session, &e.Soft, &ts); err != nil {
			return nil, fmt.Errorf("scanning session event: %w", err)
		}
		if session != nil {
			e.Session = *session
		}
		if e.Timestamp, err = time.Parse(timestampLayout, ts); err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session events: %w", err)
	}
	return events, nil
}
