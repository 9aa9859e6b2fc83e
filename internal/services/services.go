// package services defines interface Service for interacting with music streaming HTTP APIs
//
// Spotify Web API
package services

import (
	"context"
	"time"
)

// Service defines the playlist operations the tracker and CLI need from a music provider.
type Service interface {
	// Name returns the name of the service (e.g., "Spotify")
	Name() string

	// GetPlaylists retrieves all playlists for the authenticated user.
	GetPlaylists(ctx context.Context) ([]Playlist, error)

	// PlaylistWithItems retrieves a playlist and every item in it, following pagination.
	PlaylistWithItems(ctx context.Context, playlistID string) (*PlaylistItems, error)

	// CurrentUser returns the profile that owns the access token.
	CurrentUser(ctx context.Context) (*User, error)

	// CreatePlaylist creates an empty playlist owned by userID.
	CreatePlaylist(ctx context.Context, userID string, p NewPlaylist) (*Playlist, error)

	// AddItems appends at most [MaxItemsPerRequest] URIs to a playlist in a single request.
	AddItems(ctx context.Context, playlistID string, uris []string) (string, error)
}

// MaxItemsPerRequest is the provider limit on URIs per add request.
const MaxItemsPerRequest = 100

// Playlist represents a music playlist from any service
type Playlist struct {
	ID          string
	Name        string
	Description string
	TrackCount  int
	Public      bool
	URL         string
}

// Track represents a music track from any service
type Track struct {
	URI    string
	ID     string
	Name   string
	Artist string // first credited artist, "Unknown" when none
	Album  string
}

// PlaylistItem is one entry of a playlist. Track is nil for local or unavailable tracks.
type PlaylistItem struct {
	AddedAt time.Time
	Track   *Track
}

// PlaylistItems is a playlist together with all of its entries in playlist order.
type PlaylistItems struct {
	Playlist Playlist
	Items    []PlaylistItem
}

// User is the authenticated account.
type User struct {
	ID          string
	DisplayName string
}

// NewPlaylist describes a playlist to create.
type NewPlaylist struct {
	Name        string
	Description string
	Public      bool
}
