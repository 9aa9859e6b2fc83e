package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/crate/internal/formatter"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/tracker"
	"github.com/urfave/cli/v3"
)

// runView is the JSON shape of a recorded run.
type runView struct {
	ID                 string     `json:"id"`
	Sequence           int        `json:"sequence"`
	Status             string     `json:"status"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	Since              time.Time  `json:"since"`
	CursorAfter        *time.Time `json:"cursor_after,omitempty"`
	TargetPlaylistID   string     `json:"target_playlist_id,omitempty"`
	TargetPlaylistName string     `json:"target_playlist_name,omitempty"`
	TargetURL          string     `json:"target_url,omitempty"`
	PlaylistsScanned   int        `json:"playlists_scanned"`
	PlaylistsFailed    int        `json:"playlists_failed"`
	TracksFound        int        `json:"tracks_found"`
	TracksAdded        int        `json:"tracks_added"`
	BatchesFailed      int        `json:"batches_failed"`
	DryRun             bool       `json:"dry_run"`
	Error              string     `json:"error,omitempty"`
}

func newRunView(run *models.Run) runView {
	v := runView{
		ID:                 run.ID(),
		Sequence:           run.Sequence(),
		Status:             run.Status(),
		StartedAt:          run.StartedAt,
		Since:              run.Since,
		TargetPlaylistID:   run.TargetPlaylistID,
		TargetPlaylistName: run.TargetPlaylistName,
		TargetURL:          run.PlaylistURL(),
		PlaylistsScanned:   run.PlaylistsScanned,
		PlaylistsFailed:    run.PlaylistsFailed,
		TracksFound:        run.TracksFound,
		TracksAdded:        run.TracksAdded,
		BatchesFailed:      run.BatchesFailed,
		DryRun:             run.DryRun,
		Error:              run.Error,
	}
	if run.Finished() {
		v.FinishedAt = &run.FinishedAt
	}
	if run.CursorAdvanced() {
		v.CursorAfter = &run.CursorAfter
	}
	return v
}

// cursorStore picks the cursor backend named by tracker.cursor_backend.
func (r *Runner) cursorStore(ctx context.Context) (tracker.CursorStore, error) {
	switch r.config.Tracker.CursorBackend {
	case "sqlite":
		db, err := r.database(ctx)
		if err != nil {
			return nil, err
		}
		return repositories.NewCursorRepository(db, repositories.DefaultCursorName), nil
	default:
		return tracker.NewFileCursor(r.config.Tracker.CursorFile), nil
	}
}

// runRepository returns the run history store, or nil when no database is configured.
func (r *Runner) runRepository(ctx context.Context) (*repositories.RunRepository, error) {
	if r.db == nil && r.config.Database.Path == "" {
		return nil, nil
	}
	db, err := r.database(ctx)
	if err != nil {
		return nil, err
	}
	return repositories.NewRunRepository(db), nil
}

// newEngine wires the tracker engine from config, with flags already applied to r.config.
func (r *Runner) newEngine(ctx context.Context, svc services.Service, dryRun, record bool) (*tracker.Engine, error) {
	cfg := r.config.Tracker
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cursor, err := r.cursorStore(ctx)
	if err != nil {
		return nil, err
	}

	opts := tracker.Options{
		Sources:          cfg.SourcePlaylists,
		TargetPlaylistID: cfg.TargetPlaylistID,
		CreatePlaylist:   cfg.CreateNewPlaylist,
		NameTemplate:     cfg.PlaylistNameTemplate,
		Description:      cfg.PlaylistDescription,
		Public:           cfg.PlaylistPublic,
		BatchSize:        cfg.BatchSize,
		LookbackDays:     cfg.LookbackDays,
		DryRun:           dryRun,
		Logger:           shared.WithLogger(r.logger, "component", "tracker"),
	}
	if cfg.SongLogFile != "" {
		opts.SongLog = tracker.NewSongLog(cfg.SongLogFile)
	}

	if record {
		repo, err := r.runRepository(ctx)
		if err != nil {
			r.logger.Warn("run history disabled", "error", err)
		} else if repo != nil {
			opts.Recorder = repo
		}
	}

	return tracker.NewEngine(svc, cursor, opts), nil
}

// TrackRun checks the source playlists for songs added since the last run.
func (r *Runner) TrackRun(ctx context.Context, cmd *cli.Command) error {
	dryRun := cmd.Bool("dry-run")

	if sources := cmd.StringSlice("source"); len(sources) > 0 {
		r.config.Tracker.SourcePlaylists = sources
	}
	if cmd.IsSet("target") {
		r.config.Tracker.TargetPlaylistID = cmd.String("target")
		r.config.Tracker.CreateNewPlaylist = false
	}
	if cmd.Bool("create") {
		r.config.Tracker.CreateNewPlaylist = true
	}

	if err := r.config.Tracker.Validate(); err != nil {
		return err
	}

	connect := r.spotifyService
	if dryRun {
		connect = r.readOnlySpotify
	}
	svc, err := connect(ctx)
	if err != nil {
		return err
	}

	engine, err := r.newEngine(ctx, svc, dryRun, !cmd.Bool("no-history"))
	if err != nil {
		return err
	}

	progressCh := make(chan tracker.ProgressUpdate, 50)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for update := range progressCh {
			switch update.Phase {
			case tracker.LoadCursor:
				r.writePlain("%s\n\n", update.Message)
			case tracker.FetchPlaylists:
				r.writePlain("📥 %s\n", update.Message)
			case tracker.AddTracks:
				r.writePlain("   %s\n", update.Message)
			default:
				r.writePlain("\n%s\n", update.Message)
			}
		}
	}()

	result, err := engine.Run(ctx, progressCh)
	close(progressCh)
	<-printed

	if err != nil {
		return err
	}

	r.printRunSummary(result)
	return nil
}

func (r *Runner) printRunSummary(result *tracker.RunResult) {
	r.writePlain("\n")
	r.writePlainHeader("Run Complete")

	if len(result.URIs) == 0 {
		r.writePlain("No new songs found since %s\n", result.Since.Format("2006-01-02 15:04:05"))
	} else {
		r.writePlain("Found %d new songs\n", len(result.URIs))
		formatter.WriteSummary(r.output, result.Entry)
	}

	if len(result.Failures) > 0 {
		r.writePlain("\nFailed to read %d playlists:\n", len(result.Failures))
		for _, f := range result.Failures {
			r.writePlain("  - %s: %v\n", f.Source, f.Err)
		}
	}

	switch {
	case result.DryRun:
		r.writePlain("\nDry run: nothing was written\n")
	case result.TargetErr != nil:
		r.writePlain("\n✗ %v\n", result.TargetErr)
	case result.Target != nil:
		r.writePlain("\nAdded %d/%d songs to %s\n", result.Added, len(result.URIs), result.Target.URL)
		if n := result.FailedBatches(); n > 0 {
			r.writePlain("⚠ %d of %d batches failed\n", n, len(result.Batches))
		}
	case len(result.URIs) > 0:
		r.writePlain("\nNo target playlist configured; songs were only logged\n")
	}

	if result.CursorAdvanced {
		r.writePlain("Cursor saved: %s\n", result.CursorAfter.Format("2006-01-02 15:04:05"))
	}
}

// TrackHistory lists recorded runs, falling back to song log entries when there is no database.
func (r *Runner) TrackHistory(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("tui") {
		return r.launchTUI(ctx, false)
	}

	repo, err := r.runRepository(ctx)
	if err != nil {
		return err
	}

	if repo == nil {
		return r.printSongLogHistory(cmd.Int("limit"), cmd.Bool("json"), cmd.Bool("pretty"))
	}

	criteria := map[string]any{"limit": cmd.Int("limit")}
	if cmd.Bool("failed") {
		criteria["failed"] = true
	}

	runs, err := repo.List(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]runView, len(runs))
		for i, run := range runs {
			views[i] = newRunView(run)
		}
		return r.writeJSON(views, cmd.Bool("pretty"))
	}

	if len(runs) == 0 {
		r.writePlain("No runs recorded yet\n")
		return nil
	}
	for _, run := range runs {
		r.writePlain("%s\n", formatter.RunLine(run))
		if run.Error != "" {
			r.writePlain("    error: %s\n", run.Error)
		}
	}
	return nil
}

func (r *Runner) printSongLogHistory(limit int, useJSON, pretty bool) error {
	entries, err := tracker.NewSongLog(r.config.Tracker.SongLogFile).Entries()
	if err != nil {
		return err
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}

	if useJSON {
		return r.writeJSON(entries, pretty)
	}

	if len(entries) == 0 {
		r.writePlain("Song log is empty\n")
		return nil
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		r.writePlain("%s  %d songs from %d playlists\n", e.Timestamp.Format("2006-01-02 15:04"), e.TrackCount(), len(e.Playlists))
	}
	return nil
}

// TrackExport writes the song log, or the run history with --runs, to a file.
func (r *Runner) TrackExport(ctx context.Context, cmd *cli.Command) error {
	output := cmd.String("output")

	if cmd.Bool("runs") {
		repo, err := r.runRepository(ctx)
		if err != nil {
			return err
		}
		if repo == nil {
			return fmt.Errorf("%w: run history needs database.path", shared.ErrMissingConfig)
		}
		runs, err := repo.List(nil)
		if err != nil {
			return err
		}
		data, err := formatter.RunsToCSV(runs)
		if err != nil {
			return err
		}
		if output == "" {
			output = "runs.csv"
		}
		path, err := formatter.WriteExport(output, formatter.FormatCSV, data)
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported %d runs to %s\n", len(runs), path)
		return nil
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	entries, err := tracker.NewSongLog(r.config.Tracker.SongLogFile).Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: song log %s is empty", shared.ErrInvalidInput, r.config.Tracker.SongLogFile)
	}

	data, err := formatter.Export(format, entries)
	if err != nil {
		return err
	}

	path, err := formatter.WriteExport(output, format, data)
	if err != nil {
		return err
	}

	r.logger.Info("song log exported", "path", path, "entries", len(entries))
	r.writePlain("✓ Exported %d entries to %s\n", len(entries), path)
	return nil
}

// TrackCursor prints the stored cursor, or replaces it with --set.
func (r *Runner) TrackCursor(ctx context.Context, cmd *cli.Command) error {
	store, err := r.cursorStore(ctx)
	if err != nil {
		return err
	}

	if value := strings.TrimSpace(cmd.String("set")); value != "" {
		t, err := tracker.ParseCursor(value)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		if err := store.SetLastRun(ctx, t); err != nil {
			return err
		}
		r.writePlain("✓ Cursor set to %s\n", t.Format(time.RFC3339))
		return nil
	}

	t, ok, err := store.LastRun(ctx)
	if err != nil {
		return err
	}
	if !ok {
		days := r.config.Tracker.LookbackDays
		if days <= 0 {
			days = tracker.DefaultLookbackDays
		}
		r.writePlain("No cursor stored; the next run looks back %d days\n", days)
		return nil
	}

	r.writePlain("Last run: %s\n", t.Format(time.RFC3339))
	return nil
}
