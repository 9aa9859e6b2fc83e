package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/tracker"
	"github.com/desertthunder/crate/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for the song log and run history.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	return r.launchTUI(ctx, cmd.Bool("dry-run"))
}

// launchTUI builds the UI model. Runs can only be started when the tracker config is valid and
// Spotify is reachable; otherwise the UI is read-only.
func (r *Runner) launchTUI(ctx context.Context, dryRun bool) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/crate-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	model, err := r.newModel(ctx, dryRun)
	if err != nil {
		return err
	}

	p := tea.NewProgram(model, tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

func (r *Runner) newModel(ctx context.Context, dryRun bool) (*ui.Model, error) {
	opts := ui.Options{
		Log:    tracker.NewSongLog(r.config.Tracker.SongLogFile),
		DryRun: dryRun,
	}

	repo, err := r.runRepository(ctx)
	if err != nil {
		r.logger.Warn("run history unavailable", "error", err)
	} else if repo != nil {
		opts.Runs = repo
	}

	if err := r.config.Tracker.Validate(); err != nil {
		r.logger.Warn("runs disabled", "error", err)
		return ui.NewModel(ctx, opts), nil
	}

	svc, err := r.spotifyService(ctx)
	if err != nil {
		r.logger.Warn("runs disabled", "error", err)
		return ui.NewModel(ctx, opts), nil
	}

	engine, err := r.newEngine(ctx, svc, dryRun, true)
	if err != nil {
		return nil, err
	}
	opts.Engine = engine

	return ui.NewModel(ctx, opts), nil
}
