package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/tracker"
)

var (
	_ list.Item = entryItem{}
	_ list.Item = runItem{}
	_ list.Item = trackItem{}
)

const timeLayout = "2006-01-02 15:04"

// entryItem wraps a song log [tracker.Entry] to implement [list.Item].
type entryItem struct {
	entry tracker.Entry
}

func (i entryItem) FilterValue() string { return i.entry.Timestamp.Format(timeLayout) }
func (i entryItem) Title() string       { return i.entry.Timestamp.Local().Format(timeLayout) }
func (i entryItem) Description() string {
	return fmt.Sprintf("%d songs from %d playlists", i.entry.TrackCount(), len(i.entry.Playlists))
}

// runItem wraps [models.Run] to implement [list.Item].
type runItem struct {
	run *models.Run
}

func (i runItem) FilterValue() string { return i.run.TargetPlaylistName }
func (i runItem) Title() string {
	status := i.run.Status()
	return fmt.Sprintf("#%d %s %s", i.run.Sequence(), i.run.StartedAt.Local().Format(timeLayout), styles.statusStyle(status).Render(status))
}
func (i runItem) Description() string {
	desc := fmt.Sprintf("%d/%d tracks added from %d playlists", i.run.TracksAdded, i.run.TracksFound, i.run.PlaylistsScanned)
	if i.run.TargetPlaylistName != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.run.TargetPlaylistName)
	}
	return desc
}

// trackItem wraps a [tracker.LoggedTrack] with the playlist it was found in.
type trackItem struct {
	track    tracker.LoggedTrack
	playlist string
}

func (i trackItem) FilterValue() string { return i.track.Name }
func (i trackItem) Title() string       { return i.track.Name }
func (i trackItem) Description() string {
	desc := i.track.Artist
	if i.playlist != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.playlist)
	}
	return fmt.Sprintf("%s • added %s", desc, i.track.AddedAt.Local().Format(timeLayout))
}

func entryItems(entries []tracker.Entry) []list.Item {
	items := make([]list.Item, len(entries))
	for i := range entries {
		// newest first
		items[i] = entryItem{entry: entries[len(entries)-1-i]}
	}
	return items
}

func runItems(runs []*models.Run) []list.Item {
	items := make([]list.Item, len(runs))
	for i, r := range runs {
		items[i] = runItem{run: r}
	}
	return items
}

func trackItems(entry tracker.Entry) []list.Item {
	items := make([]list.Item, 0, entry.TrackCount())
	for _, p := range entry.Playlists {
		for _, tr := range p.Tracks {
			items = append(items, trackItem{track: tr, playlist: p.PlaylistName})
		}
	}
	return items
}
