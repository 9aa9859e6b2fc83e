package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
)

const runColumns = `
	id, sequence, started_at, finished_at, since, cursor_after,
	target_playlist_id, target_playlist_name, playlists_scanned, playlists_failed,
	tracks_found, tracks_added, batches_failed, dry_run, error, created_at, updated_at`

// RunRepository implements models.Repository[*models.Run] for tracker run history.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a run with a generated ID and the next sequence number.
func (r *RunRepository) Create(run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := NextSequence(tx, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	query := `INSERT INTO runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.Exec(query,
		id,
		sequence,
		run.StartedAt,
		nullTime(run.FinishedAt),
		run.Since,
		nullTime(run.CursorAfter),
		nullString(run.TargetPlaylistID),
		nullString(run.TargetPlaylistName),
		run.PlaylistsScanned,
		run.PlaylistsFailed,
		run.TracksFound,
		run.TracksAdded,
		run.BatchesFailed,
		run.DryRun,
		nullString(run.Error),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	run.SetID(id)
	run.SetSequence(sequence)
	return nil
}

// Get retrieves a run by ID.
func (r *RunRepository) Get(id string) (*models.Run, error) {
	row := r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", shared.ErrNotFound, id)
	}
	return run, err
}

// Latest returns the most recent run.
func (r *RunRepository) Latest() (*models.Run, error) {
	row := r.db.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY sequence DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no runs recorded", shared.ErrNotFound)
	}
	return run, err
}

// Update rewrites the outcome fields of an existing run.
func (r *RunRepository) Update(run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	query := `
		UPDATE runs
		SET finished_at = ?, cursor_after = ?, target_playlist_id = ?, target_playlist_name = ?,
			playlists_scanned = ?, playlists_failed = ?, tracks_found = ?, tracks_added = ?,
			batches_failed = ?, error = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		nullTime(run.FinishedAt),
		nullTime(run.CursorAfter),
		nullString(run.TargetPlaylistID),
		nullString(run.TargetPlaylistName),
		run.PlaylistsScanned,
		run.PlaylistsFailed,
		run.TracksFound,
		run.TracksAdded,
		run.BatchesFailed,
		nullString(run.Error),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: run %s", shared.ErrNotFound, run.ID())
	}

	run.SetUpdatedAt(now)
	return nil
}

// Delete removes a run by ID.
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: run %s", shared.ErrNotFound, id)
	}
	return nil
}

// List retrieves runs newest first. Supported criteria:
//   - "since" (time.Time): runs started at or after
//   - "dry_run" (bool): only dry runs, or only real runs
//   - "failed" (bool): only runs with an error or failed playlists/batches
//   - "limit" (int): maximum number of rows
func (r *RunRepository) List(criteria map[string]any) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1 = 1`
	args := []any{}

	if since, ok := criteria["since"].(time.Time); ok && !since.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, since)
	}

	if dryRun, ok := criteria["dry_run"].(bool); ok {
		query += " AND dry_run = ?"
		args = append(args, dryRun)
	}

	if failed, ok := criteria["failed"].(bool); ok && failed {
		query += " AND (error IS NOT NULL OR playlists_failed > 0 OR batches_failed > 0)"
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// scanRun scans a single row into a [models.Run]. [sql.ErrNoRows] is returned unwrapped.
func scanRun(row scanner) (*models.Run, error) {
	var (
		id                 string
		sequence           int
		startedAt          time.Time
		finishedAt         sql.NullTime
		since              time.Time
		cursorAfter        sql.NullTime
		targetPlaylistID   sql.NullString
		targetPlaylistName sql.NullString
		errorMessage       sql.NullString
		createdAt          time.Time
		updatedAt          time.Time
		run                models.Run
	)

	err := row.Scan(
		&id, &sequence, &startedAt, &finishedAt, &since, &cursorAfter,
		&targetPlaylistID, &targetPlaylistName, &run.PlaylistsScanned, &run.PlaylistsFailed,
		&run.TracksFound, &run.TracksAdded, &run.BatchesFailed, &run.DryRun, &errorMessage,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.SetID(id)
	run.SetSequence(sequence)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)
	run.StartedAt = startedAt
	run.Since = since
	run.FinishedAt = finishedAt.Time
	run.CursorAfter = cursorAfter.Time
	run.TargetPlaylistID = targetPlaylistID.String
	run.TargetPlaylistName = targetPlaylistName.String
	run.Error = errorMessage.String

	return &run, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
