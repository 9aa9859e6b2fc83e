package tracker

import (
	"strings"
	"time"

	"github.com/desertthunder/crate/internal/services"
)

// FilterSince returns the items added strictly after cursor, in playlist order.
// Items without a track (local files, removed tracks) are dropped.
func FilterSince(items []services.PlaylistItem, cursor time.Time) []services.PlaylistItem {
	var out []services.PlaylistItem
	for _, it := range items {
		if it.Track == nil || it.Track.URI == "" {
			continue
		}
		if it.AddedAt.After(cursor) {
			out = append(out, it)
		}
	}
	return out
}

// ExtractPlaylistID accepts a playlist id, an open.spotify.com link or a spotify:playlist: URI.
func ExtractPlaylistID(link string) string {
	link = strings.TrimSpace(link)
	if _, rest, ok := strings.Cut(link, "playlist/"); ok {
		link = rest
	} else if _, rest, ok := strings.Cut(link, "playlist:"); ok {
		link = rest
	}
	id, _, _ := strings.Cut(link, "?")
	return strings.TrimSuffix(id, "/")
}

// Batches splits uris into consecutive chunks of at most size. Non-positive sizes and sizes above
// [services.MaxItemsPerRequest] use the API limit.
func Batches(uris []string, size int) [][]string {
	if size <= 0 || size > services.MaxItemsPerRequest {
		size = services.MaxItemsPerRequest
	}

	var out [][]string
	for start := 0; start < len(uris); start += size {
		end := min(start+size, len(uris))
		out = append(out, uris[start:end])
	}
	return out
}

// RenderName expands {date}, {datetime}, {month} and {year} in a playlist name template.
func RenderName(template string, now time.Time) string {
	return strings.NewReplacer(
		"{date}", now.Format("2006-01-02"),
		"{datetime}", now.Format("2006-01-02 15:04"),
		"{month}", now.Format("January 2006"),
		"{year}", now.Format("2006"),
	).Replace(template)
}
