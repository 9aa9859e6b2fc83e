// Package spotifytest provides an in-process fake of the Spotify Web API and token endpoint.
package spotifytest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	AuthCode     = "good-code"
	RefreshToken = "refresh-1"
)

// Item is a playlist entry. A Local item is served with a null track.
type Item struct {
	AddedAt string
	URI     string
	Name    string
	Artist  string
	Local   bool
}

// Playlist is a playlist held by the fake.
type Playlist struct {
	ID     string
	Name   string
	Public bool
	Items  []Item
}

// Request is a recorded API call.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

// Server is a fake Spotify API. Fields may be changed between requests under the test's control.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	playlists map[string]*Playlist
	order     []string
	added     map[string][][]string
	requests  []Request
	tokens    []url.Values
	issued    int
	created   int

	UserID        string
	PageSize      int
	ExpiresIn     int
	RefreshFails  bool
	FailPlaylists map[string]int // playlist id -> status returned on read
	FailBatches   map[int]bool   // 1-based add call number -> fail with 500
	FailCreate    bool
}

// New starts a fake server that is closed when the test ends.
func New(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		playlists:     map[string]*Playlist{},
		added:         map[string][][]string{},
		UserID:        "user-1",
		PageSize:      100,
		ExpiresIn:     3600,
		FailPlaylists: map[string]int{},
		FailBatches:   map[int]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /authorize", s.handleAuthorize)
	mux.HandleFunc("POST /api/token", s.handleToken)
	mux.HandleFunc("GET /v1/me", s.authed(s.handleMe))
	mux.HandleFunc("GET /v1/me/playlists", s.authed(s.handleMyPlaylists))
	mux.HandleFunc("GET /v1/playlists/{id}", s.authed(s.handlePlaylist))
	mux.HandleFunc("GET /v1/playlists/{id}/tracks", s.authed(s.handleTracks))
	mux.HandleFunc("POST /v1/playlists/{id}/tracks", s.authed(s.handleAdd))
	mux.HandleFunc("POST /v1/users/{user}/playlists", s.authed(s.handleCreate))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Rewriting returns a client that sends every request to the fake whatever its host, for code that
// only knows the real Spotify endpoints.
func (s *Server) Rewriting() *http.Client {
	return &http.Client{Transport: rewriteTransport{
		host: strings.TrimPrefix(s.URL, "http://"),
		base: s.Client().Transport,
	}}
}

type rewriteTransport struct {
	host string
	base http.RoundTripper
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = "http"
	out.URL.Host = rt.host
	out.Host = ""
	return rt.base.RoundTrip(out)
}

func (s *Server) APIURL() string   { return s.URL + "/v1" }
func (s *Server) TokenURL() string { return s.URL + "/api/token" }
func (s *Server) AuthURL() string  { return s.URL + "/authorize" }

// AddPlaylist registers or replaces a playlist.
func (s *Server) AddPlaylist(p Playlist) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.playlists[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	cp := p
	s.playlists[p.ID] = &cp
}

// Added returns every add call made against playlistID, in order.
func (s *Server) Added(playlistID string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.added[playlistID]...)
}

// Requests returns the recorded API calls.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// TokenRequests returns the form bodies posted to the token endpoint.
func (s *Server) TokenRequests() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.tokens...)
}

// CountRequests counts recorded calls matching method and a path prefix.
func (s *Server) CountRequests(method, prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Body: body})
		s.mu.Unlock()

		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"status": 401, "message": "No token provided"}})
			return
		}
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		next(w, r)
	}
}

// handleAuthorize approves every request, redirecting to redirect_uri with [AuthCode] and the given state.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || target.Host == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	v := target.Query()
	v.Set("code", AuthCode)
	v.Set("state", q.Get("state"))
	target.RawQuery = v.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, r.PostForm)

	switch r.PostForm.Get("grant_type") {
	case "client_credentials":
		s.issued++
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": fmt.Sprintf("cc-%d", s.issued),
			"token_type":   "Bearer",
			"expires_in":   s.ExpiresIn,
		})
	case "authorization_code":
		if r.PostForm.Get("code") != AuthCode {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		s.issued++
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  fmt.Sprintf("access-%d", s.issued),
			"refresh_token": RefreshToken,
			"token_type":    "Bearer",
			"expires_in":    s.ExpiresIn,
		})
	case "refresh_token":
		if s.RefreshFails || r.PostForm.Get("refresh_token") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		s.issued++
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": fmt.Sprintf("refreshed-%d", s.issued),
			"token_type":   "Bearer",
			"expires_in":   s.ExpiresIn,
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"id": s.UserID, "display_name": "Test User"})
}

func (s *Server) handleMyPlaylists(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]map[string]any, 0, len(s.order))
	for _, id := range s.order {
		p := s.playlists[id]
		items = append(items, map[string]any{
			"id":     p.ID,
			"name":   p.Name,
			"public": p.Public,
			"tracks": map[string]any{"total": len(p.Items)},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items), "next": nil})
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	if status, ok := s.FailPlaylists[id]; ok {
		writeJSON(w, status, map[string]any{"error": map[string]any{"status": status, "message": "failure"}})
		return
	}
	p, ok := s.playlists[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"status": 404, "message": "Not found."}})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":            p.ID,
		"name":          p.Name,
		"public":        p.Public,
		"external_urls": map[string]string{"spotify": "https://open.spotify.com/playlist/" + p.ID},
		"tracks":        s.page(p, 0),
	})
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.playlists[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"status": 404}})
		return
	}
	writeJSON(w, http.StatusOK, s.page(p, offset))
}

// page must be called with mu held.
func (s *Server) page(p *Playlist, offset int) map[string]any {
	size := s.PageSize
	if size <= 0 {
		size = 100
	}
	end := min(offset+size, len(p.Items))

	items := make([]map[string]any, 0, end-offset)
	for _, it := range p.Items[offset:end] {
		entry := map[string]any{"added_at": it.AddedAt, "track": nil}
		if !it.Local {
			artists := []map[string]string{}
			if it.Artist != "" {
				artists = append(artists, map[string]string{"name": it.Artist})
			}
			entry["track"] = map[string]any{
				"id":      strings.TrimPrefix(it.URI, "spotify:track:"),
				"uri":     it.URI,
				"name":    it.Name,
				"artists": artists,
				"album":   map[string]string{"name": "Album"},
			}
		}
		items = append(items, entry)
	}

	var next any
	if end < len(p.Items) {
		next = fmt.Sprintf("%s/v1/playlists/%s/tracks?offset=%d&limit=%d", s.URL, p.ID, end, size)
	}
	return map[string]any{"items": items, "total": len(p.Items), "limit": size, "offset": offset, "next": next}
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		URIs []string `json:"uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.added[id] = append(s.added[id], body.URIs)
	call := len(s.added[id])

	if len(body.URIs) > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "too many uris"})
		return
	}
	if s.FailBatches[call] {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"snapshot_id": fmt.Sprintf("snap-%d", call)})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Public      bool   `json:"public"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailCreate || r.PathValue("user") != s.UserID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	s.created++
	p := &Playlist{ID: fmt.Sprintf("created-%d", s.created), Name: body.Name, Public: body.Public}
	s.playlists[p.ID] = p
	s.order = append(s.order, p.ID)

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": body.Description,
		"public":      p.Public,
	})
}
