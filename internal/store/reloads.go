// ABOUTME: Reload history persistence: one row per agents file reload attempt
// ABOUTME: Failed reloads are recorded with their error so operators can see why config was rejected

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordReload appends a reload outcome. Generates ID and Timestamp if not set.
func (s *SQLiteStore) RecordReload(ctx context.Context, r *ReloadRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	var skipped *string
	if len(r.Skipped) > 0 {
		data, err := json.Marshal(r.Skipped)
		if err != nil {
			return fmt.Errorf("marshaling skipped ids: %w", err)
		}
		str := string(data)
		skipped = &str
	}
	var errText *string
	if r.Error != "" {
		errText = &r.Error
	}

	query := `
		INSERT INTO reloads (reload_id, source, trigger_name, success, error, definitions,
			added, kept, resurrected, removed, deferred, skipped_json, duration_ms, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID,
		r.Source,
		r.Trigger,
		r.Success,
		errText,
		r.Definitions,
		r.Added,
		r.Kept,
		r.Resurrected,
		r.Removed,
		r.Deferred,
		skipped,
		r.Duration.Milliseconds(),
		r.Timestamp.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting reload: %w", err)
	}

	s.logger.Debug("recorded reload", "id", r.ID, "source", r.Source, "success", r.Success)
	return nil
}

const reloadsQuery = `
	SELECT reload_id, source, trigger_name, success, error, definitions,
		added, kept, resurrected, removed, deferred, skipped_json, duration_ms, ts
	FROM reloads
	ORDER BY seq DESC
	LIMIT ?
`

// ListReloads returns the most recent reloads, newest first.
func (s *SQLiteStore) ListReloads(ctx context.Context, limit int) ([]ReloadRecord, error) {
	rows, err := s.db.QueryContext(ctx, reloadsQuery, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying reloads: %w", err)
	}
	defer rows.Close()

	var out []ReloadRecord
	for rows.Next() {
		r, err := scanReload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reloads: %w", err)
	}
	return out, nil
}

// scanReload scans a row into a ReloadRecord.
func scanReload(scanner interface{ Scan(dest ...any) error }) (ReloadRecord, error) {
	var r ReloadRecord
	var errText, skipped *string
	var durationMS int64
	var ts string

	if err := scanner.Scan(
		&r.ID,
		&r.Source,
		&r.Trigger,
		&r.Success,
		&errText,
		&r.Definitions,
		&r.Added,
		&r.Kept,
		&r.Resurrected,
		&r.Removed,
		&r.Deferred,
		&skipped,
		&durationMS,
		&ts,
	); err != nil {
		return r, fmt.Errorf("scanning reload: %w", err)
	}

	if errText != nil {
		r.Error = *errText
	}
	if skipped != nil {
		if err := json.Unmarshal([]byte(*skipped), &r.Skipped); err != nil {
			return r, fmt.Errorf("unmarshaling skipped ids: %w", err)
		}
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond

	var err error
	if r.Timestamp, err = time.Parse(timestampLayout, ts); err != nil {
		return r, fmt.Errorf("parsing timestamp: %w", err)
	}
	return r, nil
}
