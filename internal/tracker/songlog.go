package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
)

// LoggedTrack is a track as written to the song log.
type LoggedTrack struct {
	URI     string    `json:"uri"`
	Name    string    `json:"name"`
	Artist  string    `json:"artist"`
	AddedAt time.Time `json:"added_at"`
}

// PlaylistLog lists the new tracks of one source playlist. StartIndex and EndIndex locate them
// in the run's combined track list, EndIndex exclusive.
type PlaylistLog struct {
	PlaylistID   string        `json:"playlist_id"`
	PlaylistName string        `json:"playlist_name"`
	StartIndex   int           `json:"start_index"`
	Count        int           `json:"count"`
	EndIndex     int           `json:"end_index"`
	Tracks       []LoggedTrack `json:"tracks"`
}

// Entry is one run in the song log.
type Entry struct {
	Timestamp time.Time     `json:"timestamp"`
	Playlists []PlaylistLog `json:"playlists"`
}

// TrackCount is the number of tracks across all playlists of the entry.
func (e Entry) TrackCount() int {
	n := 0
	for _, p := range e.Playlists {
		n += p.Count
	}
	return n
}

// URIs returns the entry's track URIs in log order.
func (e Entry) URIs() []string {
	uris := make([]string, 0, e.TrackCount())
	for _, p := range e.Playlists {
		for _, tr := range p.Tracks {
			uris = append(uris, tr.URI)
		}
	}
	return uris
}

// NewPlaylistLog builds the log block for items found in playlist, starting at offset start.
func NewPlaylistLog(playlist services.Playlist, start int, items []services.PlaylistItem) PlaylistLog {
	tracks := make([]LoggedTrack, 0, len(items))
	for _, it := range items {
		tracks = append(tracks, LoggedTrack{
			URI:     it.Track.URI,
			Name:    it.Track.Name,
			Artist:  it.Track.Artist,
			AddedAt: it.AddedAt,
		})
	}
	return PlaylistLog{
		PlaylistID:   playlist.ID,
		PlaylistName: playlist.Name,
		StartIndex:   start,
		Count:        len(tracks),
		EndIndex:     start + len(tracks),
		Tracks:       tracks,
	}
}

// SongLog is an append-only JSON array of [Entry] values.
type SongLog struct {
	Path string
	mu   sync.Mutex
}

// NewSongLog creates a log backed by path.
func NewSongLog(path string) *SongLog {
	return &SongLog{Path: path}
}

// Entries reads every entry. A missing file is an empty log.
func (l *SongLog) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

func (l *SongLog) read() ([]Entry, error) {
	data, err := os.ReadFile(l.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read song log: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: corrupt song log %s: %v", shared.ErrInvalidInput, l.Path, err)
	}
	return entries, nil
}

// Append adds entry to the end of the log.
func (l *SongLog) Append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return err
	}
	return shared.WriteJSONFile(l.Path, append(entries, entry))
}
