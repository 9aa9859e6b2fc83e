// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write a config.toml template",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// spotifyCommand handles Spotify operations
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Spotify account operations",
		Commands: []*cli.Command{
			{
				Name:   "auth",
				Usage:  "Authenticate with Spotify using OAuth2",
				Action: r.SpotifyAuth,
			},
			{
				Name:  "playlists",
				Usage: "List your Spotify playlists",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of playlists to return",
						Value: 50,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.SpotifyPlaylists,
			},
		},
	}
}

// trackCommand handles the playlist delta tracker.
func trackCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "track",
		Usage: "Collect songs newly added to source playlists",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Check source playlists for songs added since the last run",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Report new songs without writing the log, the target playlist or the cursor",
					},
					&cli.StringSliceFlag{
						Name:    "source",
						Aliases: []string{"s"},
						Usage:   "Source playlist ID or link (repeatable, replaces tracker.source_playlists)",
					},
					&cli.StringFlag{
						Name:    "target",
						Aliases: []string{"t"},
						Usage:   "Target playlist ID or link (replaces tracker.target_playlist_id)",
					},
					&cli.BoolFlag{
						Name:  "create",
						Usage: "Create a new target playlist from tracker.playlist_name_template",
					},
					&cli.BoolFlag{
						Name:  "no-history",
						Usage: "Do not record the run in the database",
					},
				},
				Action: r.TrackRun,
			},
			{
				Name:  "history",
				Usage: "Show previous runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to show",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "failed",
						Usage: "Only show failed or partial runs",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
					&cli.BoolFlag{
						Name:  "tui",
						Usage: "Browse history interactively",
					},
				},
				Action: r.TrackHistory,
			},
			{
				Name:  "export",
				Usage: "Export the song log",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: csv, markdown, txt or json",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default song_log_export.<ext>)",
					},
					&cli.BoolFlag{
						Name:  "runs",
						Usage: "Export run history as CSV instead of the song log",
					},
				},
				Action: r.TrackExport,
			},
			{
				Name:  "cursor",
				Usage: "Show or move the last-run cursor",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "set",
						Usage: "New cursor value (RFC3339 or YYYY-MM-DDTHH:MM:SS)",
					},
				},
				Action: r.TrackCursor,
			},
		},
	}
}

// mosaicCommand builds a color-sorted image collage.
func mosaicCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "mosaic",
		Usage: "Arrange a directory of images into a grid sorted by dominant color",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Directory of images",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output image path; the extension picks the format",
				Value:   "collage.jpg",
			},
			&cli.IntFlag{
				Name:    "clusters",
				Aliases: []string{"k"},
				Usage:   "Color clusters per image",
			},
			&cli.IntFlag{
				Name:  "height",
				Usage: "Final collage height in pixels (0 keeps the canvas size)",
			},
			&cli.IntFlag{
				Name:    "per-axis",
				Aliases: []string{"p"},
				Usage:   "Cells per column, or per row with --by-row",
			},
			&cli.StringFlag{
				Name:  "cell",
				Usage: "Cell size WxH (default: size of the first image)",
			},
			&cli.StringFlag{
				Name:  "process-size",
				Usage: "Downsample size WxH used for clustering",
			},
			&cli.BoolFlag{
				Name:  "by-row",
				Usage: "Fill rows first instead of columns",
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "Random seed for cluster initialization",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Images analysed concurrently",
			},
			&cli.StringFlag{
				Name:  "require-size",
				Usage: "Only use images of exactly WxH",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Use at most this many images (0 for all)",
			},
			&cli.StringFlag{
				Name:  "space",
				Usage: "Color space for clustering: hsv or rgb",
			},
			&cli.BoolFlag{
				Name:  "label",
				Usage: "Print each image's dominant color in its cell",
			},
			&cli.BoolFlag{
				Name:  "reverse",
				Usage: "Sort ascending instead of the configured direction",
			},
		},
		Action: r.Mosaic,
	}
}

// tuiCommand returns the top-level TUI command for browsing tracker history.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Browse the song log and run history, and start new runs",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Runs started from the TUI do not write anything",
			},
		},
		Action: r.TUI,
	}
}
