package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"image/color"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/crate/internal/repositories"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
	tu "github.com/desertthunder/crate/internal/testing"
	"github.com/desertthunder/crate/internal/testing/spotifytest"
	"github.com/desertthunder/crate/internal/tracker"
	"github.com/disintegration/imaging"
	"golang.org/x/oauth2"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.OpenDatabase(context.Background(), shared.DatabaseConfig{Path: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testConfig points every file the tracker touches into dir and disables the database.
func testConfig(dir string) *shared.Config {
	config := shared.DefaultConfig()
	config.Tracker.SourcePlaylists = []string{"src"}
	config.Tracker.TargetPlaylistID = "target"
	config.Tracker.CursorFile = filepath.Join(dir, "last_run.json")
	config.Tracker.SongLogFile = filepath.Join(dir, "song_log.json")
	config.Database.Path = ""
	return config
}

func run(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	return newApp(r).Run(context.Background(), append([]string{"crate"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			spotify := tu.NewMockService()

			runner := NewRunner(RunnerOpts{
				Config:      config,
				Logger:      logger,
				Output:      output,
				HTTPClient:  httpClient,
				Spotify:     spotify,
				AuthTimeout: time.Second,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if !runner.loaded {
				t.Error("expected a provided config to count as loaded")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.spotify != spotify {
				t.Error("expected spotify to be set")
			}
			if runner.authTimeout != time.Second {
				t.Errorf("expected auth timeout 1s, got %v", runner.authTimeout)
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.loaded {
				t.Error("expected default config to be reloaded by before")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{HTTPClient: nil})

			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("with zero auth timeout uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.authTimeout != DefaultAuthTimeout {
				t.Errorf("expected %v, got %v", DefaultAuthTimeout, runner.authTimeout)
			}
			if runner.openBrowser == nil {
				t.Error("expected a browser opener")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("writePlainln surrounds with newlines", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlainln("done"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "\ndone\n" {
				t.Errorf("expected %q, got %q", "\ndone\n", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		want := []string{"setup", "spotify", "track", "mosaic", "tui"}
		if len(commands) != len(want) {
			t.Fatalf("expected %d commands, got %d", len(want), len(commands))
		}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			if cmd.Name != want[i] {
				t.Errorf("command %d: expected %s, got %s", i, want[i], cmd.Name)
			}
		}
	})

	t.Run("database", func(t *testing.T) {
		t.Run("empty path", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Database.Path = ""
			runner := NewRunner(RunnerOpts{Config: config})

			if _, err := runner.database(context.Background()); !errors.Is(err, shared.ErrMissingConfig) {
				t.Errorf("expected ErrMissingConfig, got %v", err)
			}
		})

		t.Run("opens once", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Database.Path = filepath.Join(t.TempDir(), "crate.db")
			runner := NewRunner(RunnerOpts{Config: config})
			defer runner.Close()

			first, err := runner.database(context.Background())
			if err != nil {
				t.Fatalf("database() error = %v", err)
			}
			second, _ := runner.database(context.Background())
			if first != second {
				t.Error("expected the handle to be reused")
			}
			if err := runner.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
			if runner.db != nil {
				t.Error("expected Close to drop the handle")
			}
		})
	})
}

func TestBefore(t *testing.T) {
	t.Run("loads the config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")

		config := testConfig(dir)
		config.Credentials.Spotify.ClientID = "file-id"
		config.Tracker.LookbackDays = 7
		if err := shared.SaveConfig(path, config); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output, Logger: shared.NopLogger()})
		if err := run(t, runner, "--config", path, "--env-file", filepath.Join(dir, "missing.env"), "track", "cursor"); err != nil {
			t.Fatalf("run error = %v", err)
		}

		if runner.configPath != path {
			t.Errorf("expected config path %s, got %s", path, runner.configPath)
		}
		if runner.config.Credentials.Spotify.ClientID != "file-id" {
			t.Errorf("expected client id from file, got %q", runner.config.Credentials.Spotify.ClientID)
		}
		if !strings.Contains(output.String(), "looks back 7 days") {
			t.Errorf("expected lookback from file, got %q", output.String())
		}
	})

	t.Run("environment overrides file credentials", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")

		config := testConfig(dir)
		config.Credentials.Spotify.ClientID = "file-id"
		if err := shared.SaveConfig(path, config); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		t.Setenv(shared.EnvSpotifyClientID, "env-id")

		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}, Logger: shared.NopLogger()})
		if err := run(t, runner, "--config", path, "--env-file", filepath.Join(dir, "missing.env"), "track", "cursor"); err != nil {
			t.Fatalf("run error = %v", err)
		}

		if got := runner.config.Credentials.Spotify.ClientID; got != "env-id" {
			t.Errorf("expected env-id, got %q", got)
		}
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		tu.MustChdir(t, t.TempDir())

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output, Logger: shared.NopLogger()})
		if err := run(t, runner, "--config", "nope.toml", "--env-file", "nope.env", "track", "cursor"); err != nil {
			t.Fatalf("run error = %v", err)
		}

		if runner.config.Tracker.CursorFile != "last_run.json" {
			t.Errorf("expected default cursor file, got %q", runner.config.Tracker.CursorFile)
		}
		if !strings.Contains(output.String(), "No cursor stored") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("[tracker\nbroken"), 0644); err != nil {
			t.Fatal(err)
		}

		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}, Logger: shared.NopLogger()})
		if err := run(t, runner, "--config", path, "track", "cursor"); err == nil {
			t.Fatal("expected an error for a malformed config")
		}
	})
}

func TestTrackCommands(t *testing.T) {
	ctx := context.Background()
	since := time.Now().Add(-24 * time.Hour).Truncate(time.Second)

	newFixture := func(t *testing.T) (*Runner, *tu.MockService, *bytes.Buffer, *shared.Config, *sql.DB) {
		t.Helper()
		dir := t.TempDir()
		config := testConfig(dir)

		if err := tracker.NewFileCursor(config.Tracker.CursorFile).SetLastRun(ctx, since); err != nil {
			t.Fatalf("failed to seed cursor: %v", err)
		}

		svc := tu.NewMockService()
		svc.AddPlaylist("src", "Weekly", since.Add(-time.Hour), since.Add(time.Hour), since.Add(2*time.Hour))

		db := setupTestDB(t)
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{
			Config:  config,
			Spotify: svc,
			DB:      db,
			Logger:  shared.NopLogger(),
			Output:  output,
		})
		return runner, svc, output, config, db
	}

	t.Run("run adds new songs and records the run", func(t *testing.T) {
		runner, svc, output, config, db := newFixture(t)

		if err := run(t, runner, "track", "run"); err != nil {
			t.Fatalf("track run error = %v", err)
		}

		out := output.String()
		for _, want := range []string{"Found 2 new songs", "Weekly:", "Added 2/2 songs", "Cursor saved"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}

		if sizes := svc.AddSizes(); len(sizes) != 1 || sizes[0] != 2 {
			t.Errorf("expected one add of 2 songs, got %v", sizes)
		}
		if svc.Adds[0].PlaylistID != "target" {
			t.Errorf("expected adds to target, got %s", svc.Adds[0].PlaylistID)
		}

		entries, err := tracker.NewSongLog(config.Tracker.SongLogFile).Entries()
		if err != nil || len(entries) != 1 || entries[0].TrackCount() != 2 {
			t.Errorf("expected one song log entry with 2 songs, got %v (err %v)", entries, err)
		}

		cursor, ok, err := tracker.NewFileCursor(config.Tracker.CursorFile).LastRun(ctx)
		if err != nil || !ok || !cursor.After(since) {
			t.Errorf("expected cursor after %v, got %v ok=%v err=%v", since, cursor, ok, err)
		}

		runs, err := repositories.NewRunRepository(db).List(nil)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(runs) != 1 || runs[0].TracksAdded != 2 {
			t.Errorf("expected one recorded run with 2 tracks added, got %v", runs)
		}
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		runner, svc, output, config, db := newFixture(t)

		if err := run(t, runner, "track", "run", "--dry-run", "--no-history"); err != nil {
			t.Fatalf("track run error = %v", err)
		}

		if !strings.Contains(output.String(), "Dry run: nothing was written") {
			t.Errorf("unexpected output:\n%s", output.String())
		}
		if len(svc.Adds) != 0 {
			t.Errorf("expected no adds, got %v", svc.Adds)
		}
		if _, err := os.Stat(config.Tracker.SongLogFile); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected no song log, stat error %v", err)
		}
		cursor, _, _ := tracker.NewFileCursor(config.Tracker.CursorFile).LastRun(ctx)
		if !cursor.Equal(since) {
			t.Errorf("expected cursor to stay at %v, got %v", since, cursor)
		}
		if runs, _ := repositories.NewRunRepository(db).List(nil); len(runs) != 0 {
			t.Errorf("expected --no-history to skip recording, got %d runs", len(runs))
		}
	})

	t.Run("flags replace sources and target", func(t *testing.T) {
		runner, svc, output, _, _ := newFixture(t)
		svc.AddPlaylist("other", "Other", since.Add(time.Hour))

		if err := run(t, runner, "track", "run", "-s", "https://open.spotify.com/playlist/other?si=x", "--create"); err != nil {
			t.Fatalf("track run error = %v", err)
		}

		if len(svc.Created) != 1 {
			t.Fatalf("expected a created playlist, got %v", svc.Created)
		}
		if sizes := svc.AddSizes(); len(sizes) != 1 || sizes[0] != 1 || svc.Adds[0].PlaylistID != "created-1" {
			t.Errorf("unexpected adds %v", svc.Adds)
		}
		if !strings.Contains(output.String(), "Found 1 new songs") {
			t.Errorf("unexpected output:\n%s", output.String())
		}
	})

	t.Run("unreadable source is reported", func(t *testing.T) {
		runner, svc, output, _, _ := newFixture(t)
		svc.FailPlaylists["src"] = shared.ErrServiceUnavailable

		if err := run(t, runner, "track", "run"); err != nil {
			t.Fatalf("track run error = %v", err)
		}

		out := output.String()
		if !strings.Contains(out, "Failed to read 1 playlists") || !strings.Contains(out, "No new songs found") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("empty source list is an invalid config", func(t *testing.T) {
		runner, _, _, config, _ := newFixture(t)
		config.Tracker.SourcePlaylists = nil

		if err := run(t, runner, "track", "run"); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("sqlite cursor backend", func(t *testing.T) {
		runner, _, _, config, db := newFixture(t)
		config.Tracker.CursorBackend = "sqlite"

		if err := run(t, runner, "track", "run"); err != nil {
			t.Fatalf("track run error = %v", err)
		}

		_, ok, err := repositories.NewCursorRepository(db, repositories.DefaultCursorName).LastRun(ctx)
		if err != nil || !ok {
			t.Errorf("expected a cursor in the database, ok=%v err=%v", ok, err)
		}
	})

	t.Run("history", func(t *testing.T) {
		runner, _, output, _, _ := newFixture(t)
		if err := run(t, runner, "track", "run"); err != nil {
			t.Fatalf("track run error = %v", err)
		}

		output.Reset()
		if err := run(t, runner, "track", "history"); err != nil {
			t.Fatalf("track history error = %v", err)
		}
		if !strings.Contains(output.String(), "#1 ") || !strings.Contains(output.String(), "2/2 tracks added") {
			t.Errorf("unexpected history:\n%s", output.String())
		}

		output.Reset()
		if err := run(t, runner, "track", "history", "--json"); err != nil {
			t.Fatalf("track history --json error = %v", err)
		}
		var views []runView
		if err := json.Unmarshal(output.Bytes(), &views); err != nil {
			t.Fatalf("invalid JSON %q: %v", output.String(), err)
		}
		if len(views) != 1 || views[0].Sequence != 1 || views[0].Status != "ok" || views[0].TargetURL == "" {
			t.Errorf("unexpected views %+v", views)
		}

		output.Reset()
		if err := run(t, runner, "track", "history", "--failed"); err != nil {
			t.Fatalf("track history --failed error = %v", err)
		}
		if !strings.Contains(output.String(), "No runs recorded yet") {
			t.Errorf("expected no failed runs, got:\n%s", output.String())
		}
	})

	t.Run("history without a database reads the song log", func(t *testing.T) {
		dir := t.TempDir()
		config := testConfig(dir)
		log := tracker.NewSongLog(config.Tracker.SongLogFile)
		log.Append(tracker.Entry{
			Timestamp: since,
			Playlists: []tracker.PlaylistLog{{PlaylistID: "p", PlaylistName: "Weekly", Count: 3, EndIndex: 3}},
		})

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NopLogger(), Output: output})
		if err := run(t, runner, "track", "history"); err != nil {
			t.Fatalf("track history error = %v", err)
		}
		if !strings.Contains(output.String(), "3 songs from 1 playlists") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("export", func(t *testing.T) {
		runner, _, output, _, _ := newFixture(t)
		if err := run(t, runner, "track", "run"); err != nil {
			t.Fatalf("track run error = %v", err)
		}

		dir := t.TempDir()
		md := filepath.Join(dir, "log.md")
		if err := run(t, runner, "track", "export", "-f", "markdown", "-o", md); err != nil {
			t.Fatalf("track export error = %v", err)
		}
		if content := tu.MustReadFile(t, md); !strings.Contains(content, "Weekly") {
			t.Errorf("expected playlist in export, got %q", content)
		}

		runsCSV := filepath.Join(dir, "runs.csv")
		if err := run(t, runner, "track", "export", "--runs", "-o", runsCSV); err != nil {
			t.Fatalf("track export --runs error = %v", err)
		}
		lines := strings.Split(strings.TrimSpace(tu.MustReadFile(t, runsCSV)), "\n")
		if len(lines) != 2 || !strings.HasPrefix(lines[0], "Sequence,") {
			t.Errorf("unexpected runs CSV %q", lines)
		}

		if !strings.Contains(output.String(), "Exported 1 runs") {
			t.Errorf("unexpected output:\n%s", output.String())
		}

		if err := run(t, runner, "track", "export", "-f", "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for xml, got %v", err)
		}
	})

	t.Run("export with empty log", func(t *testing.T) {
		runner, _, _, _, _ := newFixture(t)

		if err := run(t, runner, "track", "export"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("cursor", func(t *testing.T) {
		runner, _, output, _, _ := newFixture(t)

		if err := run(t, runner, "track", "cursor", "--set", "2024-01-02T03:04:05"); err != nil {
			t.Fatalf("track cursor --set error = %v", err)
		}

		output.Reset()
		if err := run(t, runner, "track", "cursor"); err != nil {
			t.Fatalf("track cursor error = %v", err)
		}
		if !strings.Contains(output.String(), "Last run: 2024-01-02T03:04:05") {
			t.Errorf("unexpected output %q", output.String())
		}

		if err := run(t, runner, "track", "cursor", "--set", "yesterday"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig(), ConfigPath: path, Logger: shared.NopLogger(), Output: output})

		if err := run(t, runner, "setup", "config"); err != nil {
			t.Fatalf("setup config error = %v", err)
		}
		tu.AssertFileExists(t, path)

		if err := run(t, runner, "setup", "config"); err == nil {
			t.Error("expected an error when the file exists")
		}
		if err := run(t, runner, "setup", "config", "--force"); err != nil {
			t.Errorf("setup config --force error = %v", err)
		}

		if _, err := shared.LoadConfig(path); err != nil {
			t.Errorf("written config does not load: %v", err)
		}
	})

	t.Run("database", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig(), DB: setupTestDB(t), Logger: shared.NopLogger(), Output: output})

		if err := run(t, runner, "setup", "database"); err != nil {
			t.Fatalf("setup database error = %v", err)
		}
		if !strings.Contains(output.String(), "✓ 0000") {
			t.Errorf("expected the first migration applied, got:\n%s", output.String())
		}

		output.Reset()
		if err := run(t, runner, "setup", "database", "--rollback"); err != nil {
			t.Fatalf("setup database --rollback error = %v", err)
		}
		if !strings.Contains(output.String(), "✗") {
			t.Errorf("expected a pending migration after rollback, got:\n%s", output.String())
		}
	})
}

func TestMosaicCommand(t *testing.T) {
	dir := t.TempDir()
	for name, c := range map[string]color.Color{
		"a.png": color.RGBA{255, 0, 0, 255},
		"b.png": color.RGBA{0, 255, 0, 255},
		"c.png": color.RGBA{0, 0, 255, 255},
	} {
		if err := imaging.Save(tu.SolidImage(10, 10, c), filepath.Join(dir, name)); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "collage.png")
	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig(), Logger: shared.NopLogger(), Output: output})

	err := run(t, runner, "mosaic", "-i", dir, "-o", out, "-p", "2", "-k", "2", "--process-size", "8x8", "--height", "0", "--seed", "7")
	if err != nil {
		t.Fatalf("mosaic error = %v", err)
	}

	tu.AssertFileExists(t, out)
	img, err := imaging.Open(out)
	if err != nil {
		t.Fatalf("failed to open collage: %v", err)
	}
	if size := img.Bounds().Size(); size.X != 20 || size.Y != 20 {
		t.Errorf("expected a 20x20 collage, got %v", size)
	}

	got := output.String()
	for _, want := range []string{"skipped broken.jpg", "Placed 3 of 3 images", "(20x20)"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output:\n%s", want, got)
		}
	}

	t.Run("bad dimensions", func(t *testing.T) {
		err := run(t, runner, "mosaic", "-i", dir, "--cell", "big")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("empty directory", func(t *testing.T) {
		err := run(t, runner, "mosaic", "-i", t.TempDir(), "-o", filepath.Join(t.TempDir(), "x.png"))
		if !errors.Is(err, shared.ErrNoImages) {
			t.Errorf("expected ErrNoImages, got %v", err)
		}
	})
}

func TestSpotifyCommands(t *testing.T) {
	t.Run("playlists", func(t *testing.T) {
		svc := tu.NewMockService()
		svc.AddPlaylist("p1", "Weekly", time.Now())

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig(), Spotify: svc, Logger: shared.NopLogger(), Output: output})

		if err := run(t, runner, "spotify", "playlists"); err != nil {
			t.Fatalf("spotify playlists error = %v", err)
		}
		if !strings.Contains(output.String(), "1. Weekly") || !strings.Contains(output.String(), "Tracks: 1") {
			t.Errorf("unexpected output:\n%s", output.String())
		}

		output.Reset()
		if err := run(t, runner, "spotify", "playlists", "--json"); err != nil {
			t.Fatalf("spotify playlists --json error = %v", err)
		}
		var playlists []services.Playlist
		if err := json.Unmarshal(output.Bytes(), &playlists); err != nil || len(playlists) != 1 {
			t.Errorf("unexpected JSON %q (err %v)", output.String(), err)
		}
	})

	t.Run("transport failures", func(t *testing.T) {
		tests := []struct {
			name      string
			transport http.RoundTripper
			want      string
		}{
			{
				name:      "request error",
				transport: tu.NewMockRoundTripper(nil, errors.New("connection refused")),
				want:      "connection refused",
			},
			{
				name: "body read error",
				transport: tu.NewMockRoundTripper(&http.Response{
					StatusCode: http.StatusOK,
					Header:     http.Header{},
					Body:       &tu.FCloser{},
				}, nil),
				want: "failed to decode response",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				store := &services.MemoryTokenStore{}
				store.Save(&oauth2.Token{AccessToken: "valid", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)})

				svc, err := services.NewSpotifyService(services.SpotifyOptions{
					ClientID:     "id",
					ClientSecret: "secret",
					HTTPClient:   &http.Client{Transport: tt.transport},
					Store:        store,
				})
				if err != nil {
					t.Fatal(err)
				}
				if err := svc.Authenticate(context.Background()); err != nil {
					t.Fatalf("Authenticate() error = %v", err)
				}

				runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig(), Spotify: svc, Logger: shared.NopLogger(), Output: &bytes.Buffer{}})
				err = run(t, runner, "spotify", "playlists")
				if err == nil || !strings.Contains(err.Error(), tt.want) {
					t.Errorf("expected error containing %q, got %v", tt.want, err)
				}
			})
		}
	})

	t.Run("dry run without a cached token uses client credentials", func(t *testing.T) {
		fake := spotifytest.New(t)
		since := time.Now().Add(-24 * time.Hour).Truncate(time.Second)
		fake.AddPlaylist(spotifytest.Playlist{ID: "src", Name: "Weekly", Public: true, Items: []spotifytest.Item{
			{AddedAt: since.Add(-time.Hour).UTC().Format(time.RFC3339), URI: "spotify:track:old", Name: "Old"},
			{AddedAt: since.Add(time.Hour).UTC().Format(time.RFC3339), URI: "spotify:track:new", Name: "New"},
		}})

		dir := t.TempDir()
		config := testConfig(dir)
		config.Credentials.Spotify.ClientID = "id"
		config.Credentials.Spotify.ClientSecret = "secret"
		config.Credentials.Spotify.TokenCache = filepath.Join(dir, "token.json")
		if err := tracker.NewFileCursor(config.Tracker.CursorFile).SetLastRun(context.Background(), since); err != nil {
			t.Fatal(err)
		}

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{
			Config:     config,
			Logger:     shared.NopLogger(),
			Output:     output,
			HTTPClient: fake.Rewriting(),
			OpenBrowser: func(string) error {
				t.Error("dry run should not start the browser flow")
				return errors.New("no browser")
			},
		})

		if err := run(t, runner, "track", "run", "--dry-run"); err != nil {
			t.Fatalf("track run --dry-run error = %v", err)
		}

		out := output.String()
		for _, want := range []string{"only public playlists", "Found 1 new songs", "Dry run"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}

		reqs := fake.TokenRequests()
		if len(reqs) != 1 || reqs[0].Get("grant_type") != "client_credentials" {
			t.Errorf("expected one client credentials grant, got %v", reqs)
		}
		if runner.spotify != nil {
			t.Error("client credentials service should not be kept for later writes")
		}
	})

	t.Run("auth without credentials", func(t *testing.T) {
		config := shared.DefaultConfig()
		runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NopLogger(), Output: &bytes.Buffer{}})

		if err := run(t, runner, "spotify", "auth"); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestDoOAuth(t *testing.T) {
	freePort := func(t *testing.T) int {
		t.Helper()
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		defer ln.Close()
		return ln.Addr().(*net.TCPAddr).Port
	}

	newService := func(t *testing.T, fake *spotifytest.Server, redirect string, store services.TokenStore) *services.SpotifyService {
		t.Helper()
		svc, err := services.NewSpotifyService(services.SpotifyOptions{
			ClientID:     "id",
			ClientSecret: "secret",
			RedirectURI:  redirect,
			AuthURL:      fake.AuthURL(),
			TokenURL:     fake.TokenURL(),
			BaseURL:      fake.APIURL(),
			HTTPClient:   fake.Client(),
			Store:        store,
		})
		if err != nil {
			t.Fatal(err)
		}
		return svc
	}

	t.Run("browser round trip", func(t *testing.T) {
		fake := spotifytest.New(t)
		port := freePort(t)

		config := shared.DefaultConfig()
		config.Server.Host = "127.0.0.1"
		config.Server.Port = port

		store := &services.MemoryTokenStore{}
		svc := newService(t, fake, "http://127.0.0.1:"+strconv.Itoa(port)+"/callback", store)

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{
			Config: config,
			Logger: shared.NopLogger(),
			Output: output,
			OpenBrowser: func(u string) error {
				go func() {
					if resp, err := http.Get(u); err == nil {
						resp.Body.Close()
					}
				}()
				return nil
			},
			AuthTimeout: 5 * time.Second,
		})

		token, err := runner.doOAuth(context.Background(), svc, "authorization")
		if err != nil {
			t.Fatalf("doOAuth() error = %v", err)
		}
		if token.RefreshToken != spotifytest.RefreshToken {
			t.Errorf("expected refresh token %s, got %s", spotifytest.RefreshToken, token.RefreshToken)
		}
		if cached, err := store.Load(); err != nil || cached.AccessToken != token.AccessToken {
			t.Errorf("expected the token to be cached, got %v (err %v)", cached, err)
		}

		user, err := svc.CurrentUser(context.Background())
		if err != nil || user.ID != fake.UserID {
			t.Errorf("expected authenticated user %s, got %v (err %v)", fake.UserID, user, err)
		}
	})

	t.Run("browser failure prints the URL and times out", func(t *testing.T) {
		fake := spotifytest.New(t)
		port := freePort(t)

		config := shared.DefaultConfig()
		config.Server.Host = "127.0.0.1"
		config.Server.Port = port

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{
			Config:      config,
			Logger:      shared.NopLogger(),
			Output:      output,
			OpenBrowser: func(string) error { return errors.New("no display") },
			AuthTimeout: 50 * time.Millisecond,
		})

		svc := newService(t, fake, "http://127.0.0.1:"+strconv.Itoa(port)+"/callback", nil)
		if _, err := runner.doOAuth(context.Background(), svc, "authorization"); !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
		if !strings.Contains(output.String(), fake.AuthURL()) {
			t.Errorf("expected the auth URL to be printed, got:\n%s", output.String())
		}
	})
}
