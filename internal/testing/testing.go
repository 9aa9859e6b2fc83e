// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
)

// MockService is a test double for [services.Service].
//
// Playlists are served from the Playlists map; every AddItems call is recorded in Adds.
// FailAdds makes the n-th AddItems call (1-based) fail.
type MockService struct {
	mu sync.Mutex

	User      services.User
	Playlists map[string]*services.PlaylistItems

	FailPlaylists map[string]error
	FailAdds      map[int]error
	FailCreate    error
	FailUser      error

	Adds    []AddCall
	Created []services.NewPlaylist
	Reads   []string
}

// AddCall is one recorded AddItems request.
type AddCall struct {
	PlaylistID string
	URIs       []string
}

// NewMockService creates a mock with no playlists.
func NewMockService() *MockService {
	return &MockService{
		User:          services.User{ID: "mock-user", DisplayName: "Mock User"},
		Playlists:     map[string]*services.PlaylistItems{},
		FailPlaylists: map[string]error{},
		FailAdds:      map[int]error{},
	}
}

// AddPlaylist registers a playlist whose items were added at the given times, one track per time.
func (m *MockService) AddPlaylist(id, name string, addedAt ...time.Time) *services.PlaylistItems {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := &services.PlaylistItems{Playlist: services.Playlist{ID: id, Name: name, TrackCount: len(addedAt)}}
	for i, at := range addedAt {
		p.Items = append(p.Items, services.PlaylistItem{
			AddedAt: at,
			Track: &services.Track{
				URI:    fmt.Sprintf("spotify:track:%s-%d", id, i),
				Name:   fmt.Sprintf("%s track %d", name, i),
				Artist: "Artist",
			},
		})
	}
	m.Playlists[id] = p
	return p
}

func (m *MockService) Name() string { return "mock" }

func (m *MockService) GetPlaylists(ctx context.Context) ([]services.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]services.Playlist, 0, len(m.Playlists))
	for _, p := range m.Playlists {
		out = append(out, p.Playlist)
	}
	return out, nil
}

func (m *MockService) PlaylistWithItems(ctx context.Context, playlistID string) (*services.PlaylistItems, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Reads = append(m.Reads, playlistID)
	if err := m.FailPlaylists[playlistID]; err != nil {
		return nil, err
	}
	p, ok := m.Playlists[playlistID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	return p, nil
}

func (m *MockService) CurrentUser(ctx context.Context) (*services.User, error) {
	if m.FailUser != nil {
		return nil, m.FailUser
	}
	u := m.User
	return &u, nil
}

func (m *MockService) CreatePlaylist(ctx context.Context, userID string, p services.NewPlaylist) (*services.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreate != nil {
		return nil, m.FailCreate
	}
	m.Created = append(m.Created, p)

	pl := services.Playlist{ID: fmt.Sprintf("created-%d", len(m.Created)), Name: p.Name, Description: p.Description, Public: p.Public}
	m.Playlists[pl.ID] = &services.PlaylistItems{Playlist: pl}
	return &pl, nil
}

func (m *MockService) AddItems(ctx context.Context, playlistID string, uris []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Adds = append(m.Adds, AddCall{PlaylistID: playlistID, URIs: append([]string(nil), uris...)})
	if len(uris) > services.MaxItemsPerRequest {
		return "", shared.ErrBatchTooLarge
	}
	if err := m.FailAdds[len(m.Adds)]; err != nil {
		return "", err
	}
	return fmt.Sprintf("snap-%d", len(m.Adds)), nil
}

// AddSizes returns the number of URIs sent in each AddItems call.
func (m *MockService) AddSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	sizes := make([]int, len(m.Adds))
	for i, c := range m.Adds {
		sizes[i] = len(c.URIs)
	}
	return sizes
}

// SolidImage returns a w x h image filled with c.
func SolidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
