package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
)

// Recorder stores a finished run. The sqlite RunRepository satisfies it.
type Recorder interface {
	Create(run *models.Run) error
}

// Options configures an [Engine].
type Options struct {
	Sources          []string // playlist ids or links
	TargetPlaylistID string
	CreatePlaylist   bool
	NameTemplate     string
	Description      string
	Public           bool
	BatchSize        int
	LookbackDays     int
	DryRun           bool

	SongLog  *SongLog // nil disables the song log
	Recorder Recorder // nil disables run history
	Logger   *log.Logger
	Now      func() time.Time
}

// PlaylistResult is the outcome of reading one source playlist.
type PlaylistResult struct {
	Source   string
	ID       string
	Name     string
	Total    int
	New      []services.PlaylistItem
	Err      error
	Playlist *services.PlaylistItems
}

// BatchResult is the outcome of one add request.
type BatchResult struct {
	Index      int
	Size       int
	SnapshotID string
	Err        error
}

// RunResult contains everything a run did.
type RunResult struct {
	StartedAt      time.Time
	FinishedAt     time.Time
	Since          time.Time
	CursorAfter    time.Time // zero when the cursor was not moved
	Playlists      []PlaylistResult
	Failures       []PlaylistResult
	Entry          Entry
	URIs           []string
	Target         *services.Playlist
	TargetErr      error
	Batches        []BatchResult
	Added          int
	DryRun         bool
	CursorAdvanced bool
}

// FailedBatches counts batches whose add request failed.
func (r *RunResult) FailedBatches() int {
	n := 0
	for _, b := range r.Batches {
		if b.Err != nil {
			n++
		}
	}
	return n
}

// Record converts the result into a run history record.
func (r *RunResult) Record() *models.Run {
	run := models.NewRun(r.StartedAt, r.Since)
	run.PlaylistsScanned = len(r.Playlists)
	run.PlaylistsFailed = len(r.Failures)
	run.TracksFound = len(r.URIs)
	run.TracksAdded = r.Added
	run.BatchesFailed = r.FailedBatches()
	run.DryRun = r.DryRun
	if r.CursorAdvanced {
		run.CursorAfter = r.CursorAfter
	}
	if r.Target != nil {
		run.TargetPlaylistID = r.Target.ID
		run.TargetPlaylistName = r.Target.Name
	}
	run.Finish(r.FinishedAt, r.TargetErr)
	return run
}

// Engine polls source playlists for tracks added since the stored cursor and copies them into a
// target playlist.
type Engine struct {
	svc    services.Service
	cursor CursorStore
	opts   Options
	logger *log.Logger
}

// NewEngine creates an engine reading through svc and storing its cursor in cursor.
func NewEngine(svc services.Service, cursor CursorStore, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{svc: svc, cursor: cursor, opts: opts, logger: opts.Logger}
}

// Run performs one tracker pass.
//
// A failing source playlist is recorded in [RunResult.Failures] and skipped. Add batches are
// independent: a failed batch is reported and later batches still run. The cursor advances to the
// run's start time unless this is a dry run, and never moves backwards.
func (e *Engine) Run(ctx context.Context, progress chan<- ProgressUpdate) (*RunResult, error) {
	if e.svc == nil {
		return nil, fmt.Errorf("%w: music service not initialized", shared.ErrServiceUnavailable)
	}
	if e.cursor == nil {
		return nil, fmt.Errorf("%w: no cursor store", shared.ErrInvalidConfig)
	}
	if len(e.opts.Sources) == 0 {
		return nil, fmt.Errorf("%w: no source playlists", shared.ErrInvalidConfig)
	}

	started := e.opts.Now()
	since, err := ResolveCursor(ctx, e.cursor, started, e.opts.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor: %w", err)
	}

	result := &RunResult{StartedAt: started, Since: since, DryRun: e.opts.DryRun}
	result.Entry.Timestamp = started
	sendProgress(progress, cursorUpdate(since))
	e.logger.Info("checking for new songs", "since", since, "playlists", len(e.opts.Sources))

	if err := e.collect(ctx, progress, result); err != nil {
		return nil, err
	}

	if len(result.URIs) > 0 && !e.opts.DryRun {
		if e.opts.SongLog != nil {
			if err := e.opts.SongLog.Append(result.Entry); err != nil {
				return nil, fmt.Errorf("failed to write song log: %w", err)
			}
			sendProgress(progress, songLogUpdate(e.opts.SongLog.Path, len(result.URIs)))
		}

		result.Target, result.TargetErr = e.resolveTarget(ctx, started)
		switch {
		case result.TargetErr != nil:
			e.logger.Error("no target playlist, tracks were not added", "error", result.TargetErr)
		case result.Target != nil:
			sendProgress(progress, targetUpdate(result.Target, e.opts.CreatePlaylist))
			result.Batches = AddInBatches(ctx, e.svc, result.Target.ID, result.URIs, e.opts.BatchSize, progress)
			for _, b := range result.Batches {
				if b.Err == nil {
					result.Added += b.Size
				}
			}
		}
	}

	if !e.opts.DryRun {
		if err := e.advance(ctx, result); err != nil {
			return nil, err
		}
		if result.CursorAdvanced {
			sendProgress(progress, cursorSavedUpdate(result.CursorAfter))
		}
	}

	result.FinishedAt = e.opts.Now()
	if e.opts.Recorder != nil {
		if err := e.opts.Recorder.Create(result.Record()); err != nil {
			e.logger.Warn("failed to record run", "error", err)
		}
	}

	return result, nil
}

// collect reads every source playlist and fills the song log entry and URI list.
func (e *Engine) collect(ctx context.Context, progress chan<- ProgressUpdate, result *RunResult) error {
	total := len(e.opts.Sources)
	for i, source := range e.opts.Sources {
		if err := ctx.Err(); err != nil {
			return err
		}

		id := ExtractPlaylistID(source)
		pr := PlaylistResult{Source: source, ID: id}
		sendProgress(progress, fetchPlaylistUpdate(i+1, total, id))

		items, err := e.svc.PlaylistWithItems(ctx, id)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			e.logger.Error("failed to read playlist", "id", id, "error", err)
			pr.Err = err
			result.Playlists = append(result.Playlists, pr)
			result.Failures = append(result.Failures, pr)
			sendProgress(progress, playlistFailedUpdate(i+1, total, id, err))
			continue
		}

		pr.Name = items.Playlist.Name
		pr.Total = len(items.Items)
		pr.Playlist = items
		pr.New = FilterSince(items.Items, result.Since)
		result.Playlists = append(result.Playlists, pr)

		e.logger.Debug("scanned playlist", "id", id, "name", pr.Name, "total", pr.Total, "new", len(pr.New))
		sendProgress(progress, foundTracksUpdate(i+1, total, items, len(pr.New)))

		if len(pr.New) == 0 {
			continue
		}

		block := NewPlaylistLog(items.Playlist, len(result.URIs), pr.New)
		result.Entry.Playlists = append(result.Entry.Playlists, block)
		for _, it := range pr.New {
			result.URIs = append(result.URIs, it.Track.URI)
		}
	}
	return nil
}

// resolveTarget returns the configured target playlist or creates a new one. Both nil means no
// target is configured.
func (e *Engine) resolveTarget(ctx context.Context, now time.Time) (*services.Playlist, error) {
	if !e.opts.CreatePlaylist {
		if e.opts.TargetPlaylistID == "" {
			e.logger.Warn("no target playlist specified in config")
			return nil, nil
		}
		id := ExtractPlaylistID(e.opts.TargetPlaylistID)
		return &services.Playlist{ID: id, URL: models.PlaylistURL(id)}, nil
	}

	user, err := e.svc.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	template := e.opts.NameTemplate
	if template == "" {
		template = "New Songs - {date}"
	}

	p, err := e.svc.CreatePlaylist(ctx, user.ID, services.NewPlaylist{
		Name:        RenderName(template, now),
		Description: e.opts.Description,
		Public:      e.opts.Public,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}
	if p.URL == "" {
		p.URL = models.PlaylistURL(p.ID)
	}
	e.logger.Info("created playlist", "id", p.ID, "name", p.Name)
	return p, nil
}

// advance stores the run start as the new cursor unless the stored cursor is already later.
func (e *Engine) advance(ctx context.Context, result *RunResult) error {
	next := result.StartedAt
	if !next.After(result.Since) {
		e.logger.Warn("cursor is ahead of the clock, keeping it", "cursor", result.Since, "now", next)
		return nil
	}
	if err := e.cursor.SetLastRun(ctx, next); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	result.CursorAfter = next
	result.CursorAdvanced = true
	return nil
}

// AddInBatches adds uris to playlistID in chunks of at most size, one request per chunk.
// Every chunk is attempted; failures are reported in the returned results and nothing is rolled back.
func AddInBatches(ctx context.Context, svc services.Service, playlistID string, uris []string, size int, progress chan<- ProgressUpdate) []BatchResult {
	batches := Batches(uris, size)
	results := make([]BatchResult, 0, len(batches))

	for i, batch := range batches {
		res := BatchResult{Index: i, Size: len(batch)}
		if err := ctx.Err(); err != nil {
			res.Err = err
		} else {
			res.SnapshotID, res.Err = svc.AddItems(ctx, playlistID, batch)
		}
		results = append(results, res)
		sendProgress(progress, batchUpdate(res, len(batches)))
	}
	return results
}
