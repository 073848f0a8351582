package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ContainerSpec is the user-supplied input to CreateContainer.
type ContainerSpec struct {
	Name          string
	Image         string
	ContainerPort int
	EnvVars       string // JSON object, "{}" if empty
	Command       string
	PersistData   bool
	ProtocolType  ProtocolType
}

// CreateContainer inserts a standalone container, atomically allocating
// its host port as the lowest free port in the container range. Fails
// with ErrPortExhausted if none is free, and ErrNameTaken if the name
// is already in use.
func (s *Store) CreateContainer(ctx context.Context, portStart, portEnd int, spec ContainerSpec) (Container, error) {
	if spec.EnvVars == "" {
		spec.EnvVars = "{}"
	}
	if spec.ProtocolType == "" {
		spec.ProtocolType = ProtocolHTTP
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Container{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM containers WHERE name = ?", spec.Name).Scan(&exists); err != nil {
		return Container{}, fmt.Errorf("failed to check container name: %w", err)
	}
	if exists > 0 {
		return Container{}, ErrNameTaken
	}

	port, err := allocateLowestFreePort(ctx, tx, portStart, portEnd)
	if err != nil {
		return Container{}, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO containers (
			name, image, host_port, container_port, env_vars, command,
			persist_data, protocol_type, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		spec.Name, spec.Image, port, spec.ContainerPort, spec.EnvVars, spec.Command,
		boolToInt(spec.PersistData), string(spec.ProtocolType), string(ContainerStopped),
	)
	if err != nil {
		return Container{}, fmt.Errorf("failed to create container: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Container{}, fmt.Errorf("failed to get container id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO port_allocations (port, status, owner_type, owner_id) VALUES (?, ?, 'container', ?)",
		port, string(PortAllocated), id,
	); err != nil {
		return Container{}, fmt.Errorf("failed to reserve port %d: %w", port, err)
	}

	if err := tx.Commit(); err != nil {
		return Container{}, fmt.Errorf("failed to commit container creation: %w", err)
	}

	return s.GetContainer(ctx, id)
}

// allocateLowestFreePort scans [portStart, portEnd] for the first port with
// no port_allocations row at all, skipping allocated and used_by_system
// ports alike. Callers must hold it inside the same transaction that
// inserts the owning row, to avoid a race between two concurrent creates.
func allocateLowestFreePort(ctx context.Context, tx *sql.Tx, portStart, portEnd int) (int, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT port FROM port_allocations WHERE port >= ? AND port <= ? ORDER BY port", portStart, portEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to scan port allocations: %w", err)
	}
	defer rows.Close()

	taken := make(map[int]bool)
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return 0, fmt.Errorf("failed to scan port: %w", err)
		}
		taken[p] = true
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for p := portStart; p <= portEnd; p++ {
		if !taken[p] {
			return p, nil
		}
	}
	return 0, ErrPortExhausted
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const containerColumns = `id, name, image, host_port, container_port, env_vars, command,
	persist_data, protocol_type, status, container_id, created_at`

func scanContainer(row interface {
	Scan(dest ...interface{}) error
}) (Container, error) {
	var c Container
	var persist int
	var protocol, status string
	var containerID sql.NullString

	err := row.Scan(
		&c.ID, &c.Name, &c.Image, &c.HostPort, &c.ContainerPort, &c.EnvVars, &c.Command,
		&persist, &protocol, &status, &containerID, &c.CreatedAt,
	)
	if err != nil {
		return Container{}, err
	}

	c.PersistData = persist != 0
	c.ProtocolType = ProtocolType(protocol)
	c.Status = ContainerStatus(status)
	if containerID.Valid {
		c.ContainerID = &containerID.String
	}
	return c, nil
}

// GetContainer retrieves a standalone container by id.
func (s *Store) GetContainer(ctx context.Context, id int64) (Container, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+containerColumns+" FROM containers WHERE id = ?", id)
	c, err := scanContainer(row)
	if err == sql.ErrNoRows {
		return Container{}, ErrNotFound
	}
	if err != nil {
		return Container{}, fmt.Errorf("failed to get container: %w", err)
	}
	return c, nil
}

// GetContainerByName retrieves a standalone container by its unique name.
func (s *Store) GetContainerByName(ctx context.Context, name string) (Container, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+containerColumns+" FROM containers WHERE name = ?", name)
	c, err := scanContainer(row)
	if err == sql.ErrNoRows {
		return Container{}, ErrNotFound
	}
	if err != nil {
		return Container{}, fmt.Errorf("failed to get container by name: %w", err)
	}
	return c, nil
}

// ListContainers returns all standalone containers, most recently created first.
func (s *Store) ListContainers(ctx context.Context) ([]Container, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+containerColumns+" FROM containers ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	defer rows.Close()

	var out []Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan container: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetContainerStatus updates a standalone container's lifecycle state.
func (s *Store) SetContainerStatus(ctx context.Context, id int64, status ContainerStatus) error {
	res, err := s.db.ExecContext(ctx, "UPDATE containers SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("failed to set container status: %w", err)
	}
	return requireRowsAffected(res)
}

// SetContainerRuntimeID records (or clears, with nil) the runtime-assigned
// container id backing this standalone container.
func (s *Store) SetContainerRuntimeID(ctx context.Context, id int64, runtimeID *string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE containers SET container_id = ? WHERE id = ?", runtimeID, id)
	if err != nil {
		return fmt.Errorf("failed to set container runtime id: %w", err)
	}
	return requireRowsAffected(res)
}

// DeleteContainer removes a standalone container's record. Callers must
// release its port_allocations row and stop/remove the runtime container
// themselves.
func (s *Store) DeleteContainer(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM containers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete container: %w", err)
	}
	return requireRowsAffected(res)
}
