package store

import (
	"context"
	"encoding/json"

	"github.com/easycicd/agent/internal/audit"
)

// CreateAuditEntry adapts audit.Entry onto AppendAuditLog, satisfying
// audit.Store so internal/audit.Logger can run directly against the
// agent's own database.
func (s *Store) CreateAuditEntry(ctx context.Context, e *audit.Entry) error {
	meta := "{}"
	if len(e.Meta) > 0 {
		if b, err := json.Marshal(e.Meta); err == nil {
			meta = string(b)
		}
	}
	return s.AppendAuditLog(ctx, AuditEntry{
		Timestamp:  e.Timestamp,
		Actor:      e.Actor,
		Action:     string(e.Action),
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		Meta:       meta,
	})
}

// GetAuditEntries adapts ListRecentAuditLog onto audit.Entry.
func (s *Store) GetAuditEntries(ctx context.Context, limit int) ([]audit.Entry, error) {
	rows, err := s.ListRecentAuditLog(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		var meta map[string]interface{}
		_ = json.Unmarshal([]byte(r.Meta), &meta)
		out = append(out, audit.Entry{
			ID:         r.ID,
			Timestamp:  r.Timestamp,
			Actor:      r.Actor,
			Action:     audit.Action(r.Action),
			TargetType: r.TargetType,
			TargetID:   r.TargetID,
			Meta:       meta,
		})
	}
	return out, nil
}
