package tracker

import (
	"fmt"
	"time"

	"github.com/desertthunder/crate/internal/services"
)

// ProgressUpdate represents a progress event during a tracker run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	LoadCursor Phase = iota
	FetchPlaylists
	WriteLog
	ResolveTarget
	AddTracks
	SaveCursor
)

func (p Phase) String() string {
	switch p {
	case LoadCursor:
		return "load_cursor"
	case FetchPlaylists:
		return "fetch_playlists"
	case WriteLog:
		return "write_log"
	case ResolveTarget:
		return "resolve_target"
	case AddTracks:
		return "add_tracks"
	case SaveCursor:
		return "save_cursor"
	default:
		return ""
	}
}

func cursorUpdate(since time.Time) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LoadCursor,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Checking for songs added since %s", since.Format("2006-01-02 15:04:05")),
		Data:    since,
	}
}

func fetchPlaylistUpdate(step, total int, id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching playlist %s...", step, total, id),
	}
}

func foundTracksUpdate(step, total int, p *services.PlaylistItems, fresh int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s: %d tracks, %d new", step, total, p.Playlist.Name, len(p.Items), fresh),
		Data:    p,
	}
}

func playlistFailedUpdate(step, total int, id string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, id, err),
	}
}

func songLogUpdate(path string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteLog,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Logged %d tracks to %s", count, path),
	}
}

func targetUpdate(p *services.Playlist, created bool) ProgressUpdate {
	verb := "Using"
	if created {
		verb = "Created"
	}
	return ProgressUpdate{
		Phase:   ResolveTarget,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%s playlist: %s (ID: %s)", verb, p.Name, p.ID),
		Data:    p,
	}
}

func batchUpdate(res BatchResult, total int) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✓ Added %d tracks", res.Index+1, total, res.Size)
	if res.Err != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ Failed to add batch of %d: %v", res.Index+1, total, res.Size, res.Err)
	}
	return ProgressUpdate{
		Phase:   AddTracks,
		Step:    res.Index + 1,
		Total:   total,
		Message: msg,
		Data:    res,
	}
}

func cursorSavedUpdate(t time.Time) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SaveCursor,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Cursor advanced to %s", t.Format(time.RFC3339)),
		Data:    t,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
