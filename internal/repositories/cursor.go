package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultCursorName names the cursor used by `crate track run`.
const DefaultCursorName = "tracker"

// CursorRepository stores a tracker cursor in the cursors table. It satisfies tracker.CursorStore.
type CursorRepository struct {
	db   *sql.DB
	name string
}

// NewCursorRepository creates a cursor stored under name; an empty name uses [DefaultCursorName].
func NewCursorRepository(db *sql.DB, name string) *CursorRepository {
	if name == "" {
		name = DefaultCursorName
	}
	return &CursorRepository{db: db, name: name}
}

// LastRun returns the stored cursor. ok is false when no row exists.
func (r *CursorRepository) LastRun(ctx context.Context) (time.Time, bool, error) {
	var t time.Time
	err := r.db.QueryRowContext(ctx, `SELECT last_run FROM cursors WHERE name = ?`, r.name).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read cursor %s: %w", r.name, err)
	}
	return t, true, nil
}

// SetLastRun upserts the cursor.
func (r *CursorRepository) SetLastRun(ctx context.Context, t time.Time) error {
	query := `
		INSERT INTO cursors (name, last_run, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET last_run = excluded.last_run, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, r.name, t, time.Now()); err != nil {
		return fmt.Errorf("failed to save cursor %s: %w", r.name, err)
	}
	return nil
}
