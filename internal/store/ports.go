package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetPortAllocation retrieves the allocation record for a port, if any.
func (s *Store) GetPortAllocation(ctx context.Context, port int) (PortAllocation, error) {
	var p PortAllocation
	var status, ownerType string
	var lastChecked sql.NullTime

	err := s.db.QueryRowContext(ctx,
		"SELECT port, status, owner_type, owner_id, last_checked_at FROM port_allocations WHERE port = ?", port,
	).Scan(&p.Port, &status, &ownerType, &p.OwnerID, &lastChecked)
	if err == sql.ErrNoRows {
		return PortAllocation{}, ErrNotFound
	}
	if err != nil {
		return PortAllocation{}, fmt.Errorf("failed to get port allocation: %w", err)
	}

	p.Status = PortStatus(status)
	p.OwnerType = ownerType
	if lastChecked.Valid {
		t := lastChecked.Time
		p.LastCheckedAt = &t
	}
	return p, nil
}

// ListPortAllocations returns every tracked port allocation.
func (s *Store) ListPortAllocations(ctx context.Context) ([]PortAllocation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT port, status, owner_type, owner_id, last_checked_at FROM port_allocations ORDER BY port")
	if err != nil {
		return nil, fmt.Errorf("failed to list port allocations: %w", err)
	}
	defer rows.Close()

	var out []PortAllocation
	for rows.Next() {
		var p PortAllocation
		var status, ownerType string
		var lastChecked sql.NullTime
		if err := rows.Scan(&p.Port, &status, &ownerType, &p.OwnerID, &lastChecked); err != nil {
			return nil, fmt.Errorf("failed to scan port allocation: %w", err)
		}
		p.Status = PortStatus(status)
		p.OwnerType = ownerType
		if lastChecked.Valid {
			t := lastChecked.Time
			p.LastCheckedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertAllocatedPort reserves port for ownerType/ownerID outside of the
// CreateProject/CreateContainer transactions.
func (s *Store) InsertAllocatedPort(ctx context.Context, port int, ownerType string, ownerID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO port_allocations (port, status, owner_type, owner_id) VALUES (?, ?, ?, ?)",
		port, string(PortAllocated), ownerType, ownerID)
	if err != nil {
		return fmt.Errorf("failed to allocate port %d: %w", port, err)
	}
	return nil
}

// MarkPortUsedBySystem records that a port is occupied by something
// outside the agent's management, so future allocation attempts skip it.
func (s *Store) MarkPortUsedBySystem(ctx context.Context, port int) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO port_allocations (port, status, owner_type, owner_id, last_checked_at)
		VALUES (?, ?, 'external', 0, ?)
		ON CONFLICT(port) DO UPDATE SET status = excluded.status, last_checked_at = excluded.last_checked_at
		WHERE owner_type = 'external'`,
		port, string(PortUsedBySystem), now)
	if err != nil {
		return fmt.Errorf("failed to mark port %d used by system: %w", port, err)
	}
	return nil
}

// ReleasePort removes a port's allocation row entirely, freeing it for
// reuse. The port scanner never calls this for allocated rows: only the
// owning project/container deletion path does.
func (s *Store) ReleasePort(ctx context.Context, port int) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM port_allocations WHERE port = ?", port)
	if err != nil {
		return fmt.Errorf("failed to release port %d: %w", port, err)
	}
	return nil
}

// TouchPortLastChecked updates the last-checked timestamp on an existing
// allocation row without altering its status or ownership.
func (s *Store) TouchPortLastChecked(ctx context.Context, port int) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, "UPDATE port_allocations SET last_checked_at = ? WHERE port = ?", now, port)
	if err != nil {
		return fmt.Errorf("failed to touch port %d: %w", port, err)
	}
	return nil
}
