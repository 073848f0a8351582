package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BuildSpec is the input to CreateBuild.
type BuildSpec struct {
	ProjectID     int64
	CommitHash    string
	CommitMessage string
	Author        string
	LogPath       string
	DeployLogPath string
}

// CreateBuild inserts a build row, atomically assigning the next
// build_number for the project (max(build_number)+1 where project_id=?,
// starting at 1). Initial status is Queued.
func (s *Store) CreateBuild(ctx context.Context, spec BuildSpec) (Build, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Build{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxNum sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		"SELECT MAX(build_number) FROM builds WHERE project_id = ?", spec.ProjectID,
	).Scan(&maxNum); err != nil {
		return Build{}, fmt.Errorf("failed to inspect build numbers: %w", err)
	}

	buildNumber := int64(1)
	if maxNum.Valid {
		buildNumber = maxNum.Int64 + 1
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO builds (
			project_id, build_number, commit_hash, commit_message, author,
			log_path, deploy_log_path, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		spec.ProjectID, buildNumber, spec.CommitHash, spec.CommitMessage, spec.Author,
		spec.LogPath, spec.DeployLogPath, string(BuildQueued),
	)
	if err != nil {
		return Build{}, fmt.Errorf("failed to create build: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Build{}, fmt.Errorf("failed to get build id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Build{}, fmt.Errorf("failed to commit build creation: %w", err)
	}

	return s.GetBuild(ctx, id)
}

const buildColumns = `id, project_id, build_number, commit_hash, commit_message, author,
	started_at, log_path, deploy_log_path, status, output_path, deployed_slot, finished_at`

func scanBuild(row interface {
	Scan(dest ...interface{}) error
}) (Build, error) {
	var b Build
	var status string
	var outputPath, deployedSlot sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(
		&b.ID, &b.ProjectID, &b.BuildNumber, &b.CommitHash, &b.CommitMessage, &b.Author,
		&b.StartedAt, &b.LogPath, &b.DeployLogPath, &status, &outputPath, &deployedSlot, &finishedAt,
	)
	if err != nil {
		return Build{}, err
	}

	b.Status = NormalizeBuildStatus(BuildStatus(status))
	if outputPath.Valid {
		b.OutputPath = &outputPath.String
	}
	if deployedSlot.Valid {
		slot := Slot(deployedSlot.String)
		b.DeployedSlot = &slot
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		b.FinishedAt = &t
	}
	return b, nil
}

// GetBuild retrieves a build by id.
func (s *Store) GetBuild(ctx context.Context, id int64) (Build, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+buildColumns+" FROM builds WHERE id = ?", id)
	b, err := scanBuild(row)
	if err == sql.ErrNoRows {
		return Build{}, ErrNotFound
	}
	if err != nil {
		return Build{}, fmt.Errorf("failed to get build: %w", err)
	}
	return b, nil
}

// ListBuildsForProject returns a project's builds, most recent first.
func (s *Store) ListBuildsForProject(ctx context.Context, projectID int64, limit int) ([]Build, error) {
	query := "SELECT " + buildColumns + " FROM builds WHERE project_id = ? ORDER BY build_number DESC"
	args := []interface{}{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	var out []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SetBuildBuilding transitions a queued build to Building.
func (s *Store) SetBuildBuilding(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE builds SET status = ? WHERE id = ?", string(BuildBuilding), id)
	if err != nil {
		return fmt.Errorf("failed to mark build building: %w", err)
	}
	return requireRowsAffected(res)
}

// FinishBuild records the terminal outcome of a build (Success or Failed),
// its output path (when successful), and its finish time. The deployed
// slot is recorded separately, by SetBuildDeployedSlot.
func (s *Store) FinishBuild(ctx context.Context, id int64, status BuildStatus, outputPath *string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"UPDATE builds SET status = ?, output_path = ?, finished_at = ? WHERE id = ?",
		string(status), outputPath, now, id)
	if err != nil {
		return fmt.Errorf("failed to finish build: %w", err)
	}
	return requireRowsAffected(res)
}

// UpdateBuildLogPaths rewrites a build's log paths once the build_number
// they're derived from is known (the handler creates the row before it can
// compute a build_number-keyed path, then patches it in immediately after).
func (s *Store) UpdateBuildLogPaths(ctx context.Context, id int64, logPath, deployLogPath string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE builds SET log_path = ?, deploy_log_path = ? WHERE id = ?", logPath, deployLogPath, id)
	if err != nil {
		return fmt.Errorf("failed to update build log paths: %w", err)
	}
	return requireRowsAffected(res)
}

// SetBuildDeployedSlot records which slot a build's artifact was deployed to.
func (s *Store) SetBuildDeployedSlot(ctx context.Context, id int64, slot Slot) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE builds SET deployed_slot = ? WHERE id = ?", string(slot), id)
	if err != nil {
		return fmt.Errorf("failed to set deployed slot: %w", err)
	}
	return requireRowsAffected(res)
}

// DeleteBuild removes a single build record.
func (s *Store) DeleteBuild(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM builds WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete build: %w", err)
	}
	return requireRowsAffected(res)
}
