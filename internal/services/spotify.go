// Spotify API implementation of [Service]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	DefaultRedirectURI = "http://localhost:8888/callback"

	maxRetries = 3
)

// DefaultScopes covers reading source playlists and writing the target playlist.
var DefaultScopes = []string{
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-public",
	"playlist-modify-private",
	"user-read-private",
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	Product     string `json:"product"` // premium, free, etc.
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
	Album   SpotifyAlbum    `json:"album"`
	URI     string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyPlaylistTrackPage is one page of playlist items. Next is nil on the last page.
type SpotifyPlaylistTrackPage struct {
	Items  []SpotifyPlaylistTrack `json:"items"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
	Next   *string                `json:"next"`
}

// SpotifyPlaylist represents a Spotify playlist with its first page of items.
type SpotifyPlaylist struct {
	ID           string                   `json:"id"`
	Name         string                   `json:"name"`
	Description  string                   `json:"description"`
	Owner        Owner                    `json:"owner"`
	Public       bool                     `json:"public"`
	Tracks       SpotifyPlaylistTrackPage `json:"tracks"`
	ExternalURLs externalURLs             `json:"external_urls"`
	URI          string                   `json:"uri"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
//
// Track is null for local files and tracks removed from the catalog.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items  []SpotifySimplePlaylist `json:"items"`
	Total  int                     `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
	Next   *string                 `json:"next"`
}

type simplePlaylistTrack struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Owner        Owner               `json:"owner"`
	Public       bool                `json:"public"`
	Tracks       simplePlaylistTrack `json:"tracks"`
	ExternalURLs externalURLs        `json:"external_urls"`
}

type snapshotResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

// SpotifyOptions configures [NewSpotifyService]. Empty URLs default to the public Spotify endpoints.
type SpotifyOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	AuthURL  string
	TokenURL string
	BaseURL  string

	HTTPClient *http.Client  // transport for token and API requests
	Limiter    *rate.Limiter // nil means unlimited
	Store      TokenStore    // nil disables the token cache
	Logger     *log.Logger
}

// SpotifyService implements the Service interface for Spotify API interactions.
// Uses [oauth2] for authentication and provides methods for playlist and track operations.
type SpotifyService struct {
	config         *oauth2.Config
	baseURL        string
	base           *http.Client
	httpClient     *http.Client
	source         oauth2.TokenSource
	limiter        *rate.Limiter
	store          TokenStore
	logger         *log.Logger
	onTokenRefresh func(*oauth2.Token)
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(opts SpotifyOptions) (*SpotifyService, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if opts.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	s := &SpotifyService{
		baseURL: strings.TrimRight(orDefault(opts.BaseURL, spotifyBaseURL), "/"),
		base:    opts.HTTPClient,
		limiter: opts.Limiter,
		store:   opts.Store,
		logger:  opts.Logger,
	}
	if s.base == nil {
		s.base = http.DefaultClient
	}
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if s.logger == nil {
		s.logger = shared.NopLogger()
	}

	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	s.config = &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		RedirectURL:  orDefault(opts.RedirectURI, DefaultRedirectURI),
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  orDefault(opts.AuthURL, spotifyAuthURL),
			TokenURL: orDefault(opts.TokenURL, spotifyTokenURL),
		},
	}

	return s, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// SetTokenRefreshCallback registers fn to receive every new access token.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.onTokenRefresh = fn
}

// oauthContext carries the configured HTTP client into oauth2 token requests.
func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.base)
}

// sourceContext is the context held by long-lived token sources. It keeps ctx's values but not its
// cancellation, so a source created during a request outlives that request.
func (s *SpotifyService) sourceContext(ctx context.Context) context.Context {
	return s.oauthContext(context.WithoutCancel(ctx))
}

// Exchange trades an authorization code for a token, caches it and authenticates the service.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}

	if s.store != nil {
		if err := s.store.Save(token); err != nil {
			s.logger.Warn("failed to cache token", "error", err)
		}
	}

	s.useToken(ctx, token)
	return token, nil
}

// Authenticate loads the cached user token, refreshing it when it is within [ExpiryBuffer] of expiry.
//
// Returns [shared.ErrNotAuthenticated] when nothing is cached. When the refresh fails the cache is
// cleared and [shared.ErrRefreshFailed] is returned, so the next run starts a fresh authorization.
func (s *SpotifyService) Authenticate(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("%w: no token store configured", shared.ErrNotAuthenticated)
	}

	token, err := s.store.Load()
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: run `crate spotify auth` first", shared.ErrNotAuthenticated)
	}
	if err != nil {
		return err
	}

	s.useToken(ctx, token)
	if _, err := s.source.Token(); err != nil {
		return err
	}
	return nil
}

// AuthenticateClientCredentials uses the app-only grant. It can read public playlists but not
// create playlists or add items.
func (s *SpotifyService) AuthenticateClientCredentials(ctx context.Context) error {
	cc := &clientcredentials.Config{
		ClientID:     s.config.ClientID,
		ClientSecret: s.config.ClientSecret,
		TokenURL:     s.config.Endpoint.TokenURL,
	}

	octx := s.sourceContext(ctx)
	source := cc.TokenSource(octx)
	if _, err := source.Token(); err != nil {
		return fmt.Errorf("%w: client credentials: %v", shared.ErrAuthFailed, err)
	}

	s.source = source
	s.httpClient = oauth2.NewClient(octx, source)
	return nil
}

// useToken installs token behind a source that refreshes early and reports new tokens to the store.
func (s *SpotifyService) useToken(ctx context.Context, token *oauth2.Token) {
	octx := s.sourceContext(ctx)
	inner := oauth2.ReuseTokenSourceWithExpiry(token, &refresher{
		ctx:          octx,
		config:       s.config,
		refreshToken: token.RefreshToken,
	}, ExpiryBuffer)

	rts := &refreshableTokenSource{
		source: inner,
		last:   token.AccessToken,
		callback: func(t *oauth2.Token) {
			if s.store != nil {
				if err := s.store.Save(t); err != nil {
					s.logger.Warn("failed to cache refreshed token", "error", err)
				}
			}
			if s.onTokenRefresh != nil {
				s.onTokenRefresh(t)
			}
		},
		onError: func(err error) {
			if !errors.Is(err, shared.ErrRefreshFailed) || s.store == nil {
				return
			}
			s.logger.Warn("token refresh failed, clearing cache", "error", err)
			if cerr := s.store.Clear(); cerr != nil {
				s.logger.Error("failed to clear token cache", "error", cerr)
			}
		},
	}

	s.source = rts
	s.httpClient = oauth2.NewClient(octx, rts)
}

// Token returns the current access token, refreshing it if needed.
func (s *SpotifyService) Token() (*oauth2.Token, error) {
	if s.source == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return s.source.Token()
}

// doRequest performs an authenticated request. endpoint is a path below the API base URL or an
// absolute URL taken from a pagination link.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	if s.httpClient == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	apiURL := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		apiURL = s.baseURL + endpoint
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, method, apiURL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, shared.ErrRefreshFailed) {
				return err
			}
			return fmt.Errorf("%w: %s %s: %v", shared.ErrAPIRequest, method, endpoint, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries {
			wait := retryAfter(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			s.logger.Warn("rate limited", "endpoint", endpoint, "retry_after", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		return decodeResponse(resp, method, endpoint, result)
	}
}

func decodeResponse(resp *http.Response, method, endpoint string, result any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		base := shared.ErrAPIRequest
		switch resp.StatusCode {
		case http.StatusNotFound:
			if strings.HasPrefix(endpoint, "/playlists/") {
				base = shared.ErrPlaylistNotFound
			}
		case http.StatusUnauthorized:
			base = shared.ErrTokenExpired
		case http.StatusServiceUnavailable:
			base = shared.ErrServiceUnavailable
		}
		return fmt.Errorf("%w: %s %s: status %d: %s", base, method, endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// retryAfter parses a Retry-After header in seconds, defaulting to one second.
func retryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UserPlaylists retrieves the current user's playlists with pagination.
func (s *SpotifyService) UserPlaylists(ctx context.Context, limit, offset int) (*SpotifyPaginatedPlaylists, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)

	var response SpotifyPaginatedPlaylists
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Playlist retrieves a playlist and its first page of items.
func (s *SpotifyService) Playlist(ctx context.Context, playlistID string) (*SpotifyPlaylist, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	var playlist SpotifyPlaylist
	if err := s.doRequest(ctx, http.MethodGet, "/playlists/"+url.PathEscape(playlistID), nil, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// Service interface implementation

// GetPlaylists retrieves all playlists for the authenticated user.
func (s *SpotifyService) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	var all []Playlist
	limit, offset := 50, 0

	for {
		response, err := s.UserPlaylists(ctx, limit, offset)
		if err != nil {
			return nil, err
		}

		for _, sp := range response.Items {
			all = append(all, Playlist{
				ID:          sp.ID,
				Name:        sp.Name,
				Description: sp.Description,
				TrackCount:  sp.Tracks.Total,
				Public:      sp.Public,
				URL:         sp.ExternalURLs.Spotify,
			})
		}

		if response.Next == nil || len(response.Items) == 0 {
			break
		}
		offset += limit
	}

	return all, nil
}

// PlaylistWithItems retrieves a playlist and follows `next` links until every item is loaded.
func (s *SpotifyService) PlaylistWithItems(ctx context.Context, playlistID string) (*PlaylistItems, error) {
	sp, err := s.Playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	out := &PlaylistItems{
		Playlist: Playlist{
			ID:          sp.ID,
			Name:        sp.Name,
			Description: sp.Description,
			TrackCount:  sp.Tracks.Total,
			Public:      sp.Public,
			URL:         sp.ExternalURLs.Spotify,
		},
		Items: make([]PlaylistItem, 0, sp.Tracks.Total),
	}

	page := sp.Tracks
	for {
		for _, it := range page.Items {
			item, err := toPlaylistItem(it)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, item)
		}

		if page.Next == nil || *page.Next == "" {
			break
		}

		next := *page.Next
		page = SpotifyPlaylistTrackPage{}
		if err := s.doRequest(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch page of %s: %w", playlistID, err)
		}
	}

	s.logger.Debug("fetched playlist", "id", playlistID, "name", out.Playlist.Name, "items", len(out.Items))
	return out, nil
}

func toPlaylistItem(it SpotifyPlaylistTrack) (PlaylistItem, error) {
	var item PlaylistItem
	if it.AddedAt != "" {
		t, err := time.Parse(time.RFC3339, it.AddedAt)
		if err != nil {
			return item, fmt.Errorf("%w: added_at %q: %v", shared.ErrAPIRequest, it.AddedAt, err)
		}
		item.AddedAt = t
	}

	if it.Track == nil || it.Track.URI == "" {
		return item, nil
	}

	artist := "Unknown"
	if len(it.Track.Artists) > 0 {
		artist = it.Track.Artists[0].Name
	}
	item.Track = &Track{
		URI:    it.Track.URI,
		ID:     it.Track.ID,
		Name:   it.Track.Name,
		Artist: artist,
		Album:  it.Track.Album.Name,
	}
	return item, nil
}

// CurrentUser returns the owner of the access token.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*User, error) {
	u, err := s.UserProfile(ctx)
	if err != nil {
		return nil, err
	}
	return &User{ID: u.ID, DisplayName: u.DisplayName}, nil
}

// CreatePlaylist creates an empty playlist for userID.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, userID string, p NewPlaylist) (*Playlist, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}

	body := map[string]any{
		"name":        p.Name,
		"description": p.Description,
		"public":      p.Public,
	}

	var sp SpotifySimplePlaylist
	endpoint := "/users/" + url.PathEscape(userID) + "/playlists"
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &sp); err != nil {
		return nil, err
	}

	return &Playlist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		Public:      sp.Public,
		URL:         sp.ExternalURLs.Spotify,
	}, nil
}

// AddItems appends uris to a playlist in one request and returns the new snapshot id.
//
// Callers batch larger lists; more than [MaxItemsPerRequest] URIs is [shared.ErrBatchTooLarge].
func (s *SpotifyService) AddItems(ctx context.Context, playlistID string, uris []string) (string, error) {
	if len(uris) == 0 {
		return "", fmt.Errorf("%w: no uris", shared.ErrInvalidInput)
	}
	if len(uris) > MaxItemsPerRequest {
		return "", fmt.Errorf("%w: %d uris", shared.ErrBatchTooLarge, len(uris))
	}

	var resp snapshotResponse
	endpoint := "/playlists/" + url.PathEscape(playlistID) + "/tracks"
	if err := s.doRequest(ctx, http.MethodPost, endpoint, map[string]any{"uris": uris}, &resp); err != nil {
		return "", err
	}
	return resp.SnapshotID, nil
}
