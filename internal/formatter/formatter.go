// package formatter renders the song log and tracker runs as CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/desertthunder/crate/internal/tracker"
)

// Format names an export format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
)

// SummaryPreview is how many tracks per playlist [WriteSummary] lists before "... and N more".
const SummaryPreview = 3

// ParseFormat accepts csv, markdown (md) and txt (text).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (csv, markdown, txt, json)", shared.ErrInvalidArgument, s)
	}
}

// Ext is the file extension for the format.
func (f Format) Ext() string {
	if f == FormatMarkdown {
		return ".md"
	}
	return "." + string(f)
}

// Export renders entries in format.
func Export(format Format, entries []tracker.Entry) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(entries)
	case FormatMarkdown:
		return ExportToMarkdown(entries)
	case FormatText:
		return ExportToText(entries)
	case FormatJSON:
		return shared.MarshalJSON(entries, true)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// ExportToCSV writes one row per logged track with columns: Timestamp, Playlist ID, Playlist, Index, URI, Name, Artist, Added At
func ExportToCSV(entries []tracker.Entry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Timestamp", "Playlist ID", "Playlist", "Index", "URI", "Name", "Artist", "Added At"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, entry := range entries {
		for _, p := range entry.Playlists {
			for i, track := range p.Tracks {
				record := []string{
					entry.Timestamp.Format(time.RFC3339),
					p.PlaylistID,
					p.PlaylistName,
					strconv.Itoa(p.StartIndex + i),
					track.URI,
					track.Name,
					track.Artist,
					track.AddedAt.Format(time.RFC3339),
				}
				if err := writer.Write(record); err != nil {
					return nil, fmt.Errorf("failed to write CSV record: %w", err)
				}
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders each run as a section with one numbered list per playlist.
func ExportToMarkdown(entries []tracker.Entry) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Song Log\n\n")
	buf.WriteString(fmt.Sprintf("**Runs**: %d\n\n", len(entries)))

	for _, entry := range entries {
		buf.WriteString(fmt.Sprintf("## %s\n\n", entry.Timestamp.Format("2006-01-02 15:04")))
		for _, p := range entry.Playlists {
			buf.WriteString(fmt.Sprintf("### [%s](%s) (%d new)\n\n", p.PlaylistName, models.PlaylistURL(p.PlaylistID), p.Count))
			for i, track := range p.Tracks {
				buf.WriteString(fmt.Sprintf("%d. %s - %s (added %s)\n", p.StartIndex+i+1, track.Artist, track.Name, track.AddedAt.Format("2006-01-02")))
			}
			buf.WriteString("\n")
		}
	}

	return buf.Bytes(), nil
}

// ExportToText renders the song log as plain text
func ExportToText(entries []tracker.Entry) ([]byte, error) {
	var buf bytes.Buffer

	for _, entry := range entries {
		buf.WriteString(fmt.Sprintf("Run: %s\n", entry.Timestamp.Format("2006-01-02 15:04:05")))
		buf.WriteString(fmt.Sprintf("Tracks: %d\n", entry.TrackCount()))
		for _, p := range entry.Playlists {
			buf.WriteString(fmt.Sprintf("\n%s:\n", p.PlaylistName))
			for i, track := range p.Tracks {
				buf.WriteString(fmt.Sprintf("%d. %s - %s\n", p.StartIndex+i+1, track.Artist, track.Name))
			}
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// WriteSummary prints each playlist of entry with its index range and the first few tracks.
func WriteSummary(w io.Writer, entry tracker.Entry) error {
	var buf bytes.Buffer

	for _, p := range entry.Playlists {
		buf.WriteString(fmt.Sprintf("\n%s:\n", p.PlaylistName))
		buf.WriteString(fmt.Sprintf("  Index range: %d to %d (%d songs)\n", p.StartIndex, p.EndIndex-1, p.Count))
		for _, track := range p.Tracks[:min(SummaryPreview, len(p.Tracks))] {
			buf.WriteString(fmt.Sprintf("    • %s - %s\n", track.Name, track.Artist))
		}
		if extra := len(p.Tracks) - SummaryPreview; extra > 0 {
			buf.WriteString(fmt.Sprintf("    ... and %d more\n", extra))
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// RunsToCSV writes run history with one row per run.
func RunsToCSV(runs []*models.Run) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Sequence", "ID", "Started", "Since", "Status", "Playlists", "Failed Playlists", "Found", "Added", "Failed Batches", "Target"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, run := range runs {
		record := []string{
			strconv.Itoa(run.Sequence()),
			run.ID(),
			run.StartedAt.Format(time.RFC3339),
			run.Since.Format(time.RFC3339),
			run.Status(),
			strconv.Itoa(run.PlaylistsScanned),
			strconv.Itoa(run.PlaylistsFailed),
			strconv.Itoa(run.TracksFound),
			strconv.Itoa(run.TracksAdded),
			strconv.Itoa(run.BatchesFailed),
			run.TargetPlaylistID,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// RunLine is the one-line history description of run.
func RunLine(run *models.Run) string {
	line := fmt.Sprintf("#%d %s [%s] %d/%d tracks added from %d playlists",
		run.Sequence(), run.StartedAt.Format("2006-01-02 15:04"), run.Status(),
		run.TracksAdded, run.TracksFound, run.PlaylistsScanned)
	if run.TargetPlaylistName != "" {
		line += fmt.Sprintf(" -> %s", run.TargetPlaylistName)
	}
	return line
}

// WriteExport writes data to path, creating parent directories. An empty path defaults to song_log_export{ext}.
func WriteExport(path string, format Format, data []byte) (string, error) {
	if path == "" {
		path = "song_log_export" + format.Ext()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}
