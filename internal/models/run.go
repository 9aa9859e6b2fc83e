package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/crate/internal/shared"
)

// Run is one execution of the playlist tracker.
//
// Since is the cursor the run filtered against; CursorAfter is the cursor it stored, zero for dry
// runs and runs that failed before advancing it.
type Run struct {
	id        string
	sequence  int
	createdAt time.Time
	updatedAt time.Time

	StartedAt          time.Time
	FinishedAt         time.Time
	Since              time.Time
	CursorAfter        time.Time
	TargetPlaylistID   string
	TargetPlaylistName string
	PlaylistsScanned   int
	PlaylistsFailed    int
	TracksFound        int
	TracksAdded        int
	BatchesFailed      int
	DryRun             bool
	Error              string
}

// NewRun creates a run that started at startedAt and reads entries newer than since.
func NewRun(startedAt, since time.Time) *Run {
	now := time.Now()
	return &Run{
		createdAt: now,
		updatedAt: now,
		StartedAt: startedAt,
		Since:     since,
	}
}

func (r *Run) ID() string           { return r.id }
func (r *Run) Sequence() int        { return r.sequence }
func (r *Run) CreatedAt() time.Time { return r.createdAt }
func (r *Run) UpdatedAt() time.Time { return r.updatedAt }

func (r *Run) SetID(id string)          { r.id = id }
func (r *Run) SetSequence(seq int)      { r.sequence = seq }
func (r *Run) SetCreatedAt(t time.Time) { r.createdAt = t }
func (r *Run) SetUpdatedAt(t time.Time) { r.updatedAt = t }

// Finish stamps the end of the run.
func (r *Run) Finish(at time.Time, err error) {
	r.FinishedAt = at
	r.updatedAt = at
	if err != nil {
		r.Error = err.Error()
	}
}

func (r *Run) Finished() bool          { return !r.FinishedAt.IsZero() }
func (r *Run) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }
func (r *Run) CursorAdvanced() bool    { return !r.CursorAfter.IsZero() }
func (r *Run) PlaylistURL() string     { return PlaylistURL(r.TargetPlaylistID) }

// Run statuses reported by [Run.Status].
const (
	StatusRunning = "running"
	StatusFailed  = "failed"
	StatusDryRun  = "dry-run"
	StatusPartial = "partial"
	StatusOK      = "ok"
)

// Status summarizes the outcome of the run.
func (r *Run) Status() string {
	switch {
	case !r.Finished():
		return StatusRunning
	case r.Error != "":
		return StatusFailed
	case r.DryRun:
		return StatusDryRun
	case r.PlaylistsFailed > 0 || r.BatchesFailed > 0:
		return StatusPartial
	default:
		return StatusOK
	}
}

// Validate checks counters and timestamps for consistency.
func (r *Run) Validate() error {
	if r.StartedAt.IsZero() {
		return fmt.Errorf("%w: run start time is required", shared.ErrInvalidInput)
	}
	if r.Since.IsZero() {
		return fmt.Errorf("%w: run cursor is required", shared.ErrInvalidInput)
	}
	if !r.FinishedAt.IsZero() && r.FinishedAt.Before(r.StartedAt) {
		return fmt.Errorf("%w: run finished before it started", shared.ErrInvalidInput)
	}
	for name, n := range map[string]int{
		"playlists_scanned": r.PlaylistsScanned,
		"playlists_failed":  r.PlaylistsFailed,
		"tracks_found":      r.TracksFound,
		"tracks_added":      r.TracksAdded,
		"batches_failed":    r.BatchesFailed,
	} {
		if n < 0 {
			return fmt.Errorf("%w: %s is negative", shared.ErrInvalidInput, name)
		}
	}
	if r.PlaylistsFailed > r.PlaylistsScanned {
		return fmt.Errorf("%w: more playlists failed than were scanned", shared.ErrInvalidInput)
	}
	if r.TracksAdded > r.TracksFound {
		return fmt.Errorf("%w: more tracks added than found", shared.ErrInvalidInput)
	}
	return nil
}

// PlaylistURL returns the web player link for a playlist id.
func PlaylistURL(id string) string {
	if id == "" {
		return ""
	}
	return "https://open.spotify.com/playlist/" + id
}
