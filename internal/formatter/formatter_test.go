package formatter

import (
	"bytes"
	"encoding/csv"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
	th "github.com/desertthunder/crate/internal/testing"
	"github.com/desertthunder/crate/internal/tracker"
)

func testEntries() []tracker.Entry {
	at := func(d int) time.Time { return time.Date(2024, 6, d, 10, 0, 0, 0, time.UTC) }
	indie := tracker.PlaylistLog{
		PlaylistID:   "p1",
		PlaylistName: "Indie",
		StartIndex:   0,
		Count:        5,
		EndIndex:     5,
	}
	for i, name := range []string{"One", "Two", "Three", "Four", "Five"} {
		indie.Tracks = append(indie.Tracks, tracker.LoggedTrack{
			URI:     "spotify:track:" + strings.ToLower(name),
			Name:    "Song " + name,
			Artist:  "Artist " + name,
			AddedAt: at(i + 1),
		})
	}
	jazz := tracker.PlaylistLog{
		PlaylistID:   "p2",
		PlaylistName: "Jazz, Mostly",
		StartIndex:   5,
		Count:        1,
		EndIndex:     6,
		Tracks:       []tracker.LoggedTrack{{URI: "spotify:track:blue", Name: "Blue", Artist: "Trio", AddedAt: at(9)}},
	}
	return []tracker.Entry{{Timestamp: at(10), Playlists: []tracker.PlaylistLog{indie, jazz}}}
}

func TestExporters(t *testing.T) {
	entries := testEntries()

	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(entries)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		if err != nil {
			t.Fatalf("CSV does not parse: %v", err)
		}
		if len(records) != 7 {
			t.Fatalf("expected header + 6 rows, got %d", len(records))
		}
		if strings.Join(records[0], ",") != "Timestamp,Playlist ID,Playlist,Index,URI,Name,Artist,Added At" {
			t.Errorf("CSV missing headers, got: %v", records[0])
		}
		last := records[6]
		if last[2] != "Jazz, Mostly" || last[3] != "5" || last[4] != "spotify:track:blue" {
			t.Errorf("unexpected last row %v", last)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(entries)
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}
		output := string(data)

		for _, want := range []string{
			"# Song Log",
			"**Runs**: 1",
			"## 2024-06-10 10:00",
			"### [Indie](https://open.spotify.com/playlist/p1) (5 new)",
			"1. Artist One - Song One (added 2024-06-01)",
			"6. Trio - Blue (added 2024-06-09)",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got: %s", want, output)
			}
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(entries)
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}
		output := string(data)

		for _, want := range []string{"Run: 2024-06-10 10:00:00", "Tracks: 6", "Indie:", "2. Artist Two - Song Two", "6. Trio - Blue"} {
			if !strings.Contains(output, want) {
				t.Errorf("Text missing %q", want)
			}
		}
	})

	t.Run("Export dispatches by format", func(t *testing.T) {
		for _, f := range []Format{FormatCSV, FormatMarkdown, FormatText, FormatJSON} {
			data, err := Export(f, entries)
			if err != nil || len(data) == 0 {
				t.Errorf("Export(%s) = %d bytes, %v", f, len(data), err)
			}
		}
		if _, err := Export(Format("xml"), entries); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("empty log", func(t *testing.T) {
		data, err := ExportToCSV(nil)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}
		if strings.Count(string(data), "\n") != 1 {
			t.Errorf("expected only the header, got %q", data)
		}
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{"Markdown", FormatMarkdown, false},
		{"md", FormatMarkdown, false},
		{"txt", FormatText, false},
		{"text", FormatText, false},
		{"json", FormatJSON, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
	if FormatMarkdown.Ext() != ".md" || FormatCSV.Ext() != ".csv" {
		t.Error("unexpected extensions")
	}
}

func TestWriteSummary(t *testing.T) {
	t.Run("previews three tracks", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteSummary(&buf, testEntries()[0]); err != nil {
			t.Fatalf("WriteSummary failed: %v", err)
		}
		output := buf.String()

		for _, want := range []string{
			"Indie:",
			"  Index range: 0 to 4 (5 songs)",
			"    • Song Three - Artist Three",
			"    ... and 2 more",
			"  Index range: 5 to 5 (1 songs)",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("summary missing %q, got:\n%s", want, output)
			}
		}
		if strings.Contains(output, "Song Four") {
			t.Error("summary should stop after three tracks")
		}
		if strings.Count(output, "more") != 1 {
			t.Error("only playlists with more than three tracks get a remainder line")
		}
	})

	t.Run("write error", func(t *testing.T) {
		if err := WriteSummary(&th.FWriter{}, testEntries()[0]); err == nil {
			t.Error("expected write error")
		}
	})
}

func TestRuns(t *testing.T) {
	started := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	run := models.NewRun(started, started.AddDate(0, 0, -30))
	run.SetSequence(7)
	run.PlaylistsScanned = 2
	run.TracksFound = 5
	run.TracksAdded = 5
	run.TargetPlaylistID = "t1"
	run.TargetPlaylistName = "New Songs - 2024-06-01"
	run.Finish(started.Add(time.Second), nil)

	t.Run("RunLine", func(t *testing.T) {
		want := "#7 2024-06-01 09:30 [ok] 5/5 tracks added from 2 playlists -> New Songs - 2024-06-01"
		if got := RunLine(run); got != want {
			t.Errorf("RunLine() = %q, want %q", got, want)
		}
	})

	t.Run("RunsToCSV", func(t *testing.T) {
		data, err := RunsToCSV([]*models.Run{run})
		if err != nil {
			t.Fatalf("RunsToCSV failed: %v", err)
		}
		records, _ := csv.NewReader(bytes.NewReader(data)).ReadAll()
		if len(records) != 2 || records[1][0] != "7" || records[1][4] != "ok" || records[1][10] != "t1" {
			t.Errorf("unexpected records %v", records)
		}
	})
}

func TestWriteExport(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out", "log.csv")
		got, err := WriteExport(path, FormatCSV, []byte("a,b\n"))
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		th.AssertFileExists(t, got)
		if th.MustReadFile(t, got) != "a,b\n" {
			t.Error("unexpected file content")
		}
	})

	t.Run("default path", func(t *testing.T) {
		th.MustChdir(t, t.TempDir())
		got, err := WriteExport("", FormatMarkdown, []byte("# x"))
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != "song_log_export.md" {
			t.Errorf("default path = %s", got)
		}
		th.AssertFileExists(t, got)
	})
}
