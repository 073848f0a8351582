package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ProjectSpec is the user-supplied input to CreateProject.
type ProjectSpec struct {
	Name             string
	Repo             string
	Branch           string
	PathFilter       string
	BuildImage       string
	BuildCommand     string
	CacheType        CacheType
	WorkingDirectory string
	RuntimeImage     string
	RuntimeCommand   string
	RuntimePort      int
	HealthCheckURL   string
}

// CreateProject inserts a project and atomically allocates its blue/green
// port pair from the application port range: blue_port is one past the
// highest green_port in use (or the range start+2 the first time),
// green_port is blue_port+1. Fails with ErrPortExhausted if either port
// is recorded as used_by_system or the pair would exceed the range.
func (s *Store) CreateProject(ctx context.Context, appPortStart, appPortEnd int, spec ProjectSpec) (Project, error) {
	if spec.Name == "" {
		return Project{}, fmt.Errorf("invalid project name: must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Project{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxGreen sql.NullInt64
	if err := tx.QueryRowContext(ctx, "SELECT MAX(green_port) FROM projects").Scan(&maxGreen); err != nil {
		return Project{}, fmt.Errorf("failed to inspect existing ports: %w", err)
	}

	bluePort := appPortStart + 2
	if maxGreen.Valid {
		bluePort = int(maxGreen.Int64) + 1
	}
	greenPort := bluePort + 1

	if greenPort > appPortEnd {
		return Project{}, ErrPortExhausted
	}

	for _, p := range []int{bluePort, greenPort} {
		var status string
		err := tx.QueryRowContext(ctx, "SELECT status FROM port_allocations WHERE port = ?", p).Scan(&status)
		if err == nil && status == string(PortUsedBySystem) {
			return Project{}, ErrPortExhausted
		}
		if err != nil && err != sql.ErrNoRows {
			return Project{}, fmt.Errorf("failed to check port %d: %w", p, err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO projects (
			name, repo, branch, path_filter,
			build_image, build_command, cache_type, working_directory,
			runtime_image, runtime_command, runtime_port, health_check_url,
			blue_port, green_port, active_slot, network_name
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		spec.Name, spec.Repo, orDefault(spec.Branch, "main"), orDefault(spec.PathFilter, "**"),
		spec.BuildImage, spec.BuildCommand, string(orDefaultCache(spec.CacheType)), spec.WorkingDirectory,
		spec.RuntimeImage, spec.RuntimeCommand, spec.RuntimePort, spec.HealthCheckURL,
		bluePort, greenPort, string(SlotBlue), "",
	)
	if err != nil {
		return Project{}, fmt.Errorf("failed to create project: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Project{}, fmt.Errorf("failed to get project id: %w", err)
	}

	networkName := fmt.Sprintf("easycicd-project-%d", id)
	if _, err := tx.ExecContext(ctx, "UPDATE projects SET network_name = ? WHERE id = ?", networkName, id); err != nil {
		return Project{}, fmt.Errorf("failed to set project network name: %w", err)
	}

	for _, p := range []int{bluePort, greenPort} {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO port_allocations (port, status, owner_type, owner_id) VALUES (?, ?, 'project', ?)",
			p, string(PortAllocated), id,
		); err != nil {
			return Project{}, fmt.Errorf("failed to reserve port %d: %w", p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Project{}, fmt.Errorf("failed to commit project creation: %w", err)
	}

	return s.GetProject(ctx, id)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultCache(c CacheType) CacheType {
	if c == "" {
		return CacheNone
	}
	return c
}

const projectColumns = `id, name, repo, branch, path_filter,
	build_image, build_command, cache_type, working_directory,
	runtime_image, runtime_command, runtime_port, health_check_url,
	blue_port, green_port, active_slot, blue_container_id, green_container_id,
	network_name, created_at`

func scanProject(row interface {
	Scan(dest ...interface{}) error
}) (Project, error) {
	var p Project
	var cacheType, activeSlot string
	var blueID, greenID sql.NullString

	err := row.Scan(
		&p.ID, &p.Name, &p.Repo, &p.Branch, &p.PathFilter,
		&p.BuildImage, &p.BuildCommand, &cacheType, &p.WorkingDirectory,
		&p.RuntimeImage, &p.RuntimeCommand, &p.RuntimePort, &p.HealthCheckURL,
		&p.BluePort, &p.GreenPort, &activeSlot, &blueID, &greenID,
		&p.NetworkName, &p.CreatedAt,
	)
	if err != nil {
		return Project{}, err
	}

	p.CacheType = CacheType(cacheType)
	p.ActiveSlot = Slot(activeSlot)
	if blueID.Valid {
		p.BlueContainerID = &blueID.String
	}
	if greenID.Valid {
		p.GreenContainerID = &greenID.String
	}
	return p, nil
}

// GetProject retrieves a project by id.
func (s *Store) GetProject(ctx context.Context, id int64) (Project, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// GetProjectByName retrieves a project by its unique name.
func (s *Store) GetProjectByName(ctx context.Context, name string) (Project, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE name = ?", name)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("failed to get project by name: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects ordered by creation time descending.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetActiveSlot atomically switches which slot is active. This is the
// cutover write a blue/green deployment depends on.
func (s *Store) SetActiveSlot(ctx context.Context, projectID int64, slot Slot) error {
	res, err := s.db.ExecContext(ctx, "UPDATE projects SET active_slot = ? WHERE id = ?", string(slot), projectID)
	if err != nil {
		return fmt.Errorf("failed to set active slot: %w", err)
	}
	return requireRowsAffected(res)
}

// SetSlotContainerID records (or clears, with nil) the runtime container id
// backing a project's slot.
func (s *Store) SetSlotContainerID(ctx context.Context, projectID int64, slot Slot, containerID *string) error {
	col := "blue_container_id"
	if slot == SlotGreen {
		col = "green_container_id"
	}
	res, err := s.db.ExecContext(ctx, "UPDATE projects SET "+col+" = ? WHERE id = ?", containerID, projectID)
	if err != nil {
		return fmt.Errorf("failed to set slot container id: %w", err)
	}
	return requireRowsAffected(res)
}

// DeleteProject removes a project. Cascading removal of builds is
// enforced by the builds table's ON DELETE CASCADE; callers are
// responsible for stopping/removing the slot containers and releasing
// ports first.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return requireRowsAffected(res)
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
