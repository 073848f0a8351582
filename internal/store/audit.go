package store

import (
	"context"
	"fmt"
	"time"
)

// AuditEntry is one row of the append-only audit_log table.
type AuditEntry struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	Meta       string    `json:"meta"` // JSON object, "{}" if empty
}

// AppendAuditLog inserts one audit record. Failures here are logged by the
// caller, never surfaced to the originating request.
func (s *Store) AppendAuditLog(ctx context.Context, e AuditEntry) error {
	if e.Meta == "" {
		e.Meta = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (actor, action, target_type, target_id, meta)
		VALUES (?, ?, ?, ?, ?)`,
		e.Actor, e.Action, e.TargetType, e.TargetID, e.Meta)
	if err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}

// ListRecentAuditLog returns the most recent audit entries, newest first.
func (s *Store) ListRecentAuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, timestamp, actor, action, target_type, target_id, meta FROM audit_log ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Actor, &e.Action, &e.TargetType, &e.TargetID, &e.Meta); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
