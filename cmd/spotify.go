package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/desertthunder/crate/internal/server"
	"github.com/desertthunder/crate/internal/services"
	"github.com/desertthunder/crate/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// oauthService is the part of [services.SpotifyService] the authorization flow needs.
type oauthService interface {
	server.Exchanger
	GetAuthURL(state string) string
}

// SpotifyAuth performs OAuth2 authentication flow for Spotify.
//
// Starts a local HTTP server, opens browser for user authorization, and exchanges auth code for tokens.
// The token is cached in credentials.spotify.token_cache.
func (r *Runner) SpotifyAuth(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.newSpotify()
	if err != nil {
		return err
	}

	if _, err := r.doOAuth(ctx, svc, "authorization"); err != nil {
		return err
	}

	user, err := svc.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Logged in as %s (%s)\n", user.DisplayName, user.ID)
	r.writePlain("✓ Token cached in %s\n\n", r.config.Credentials.Spotify.TokenCache)
	r.writePlain("You can now use: crate track run\n")
	return nil
}

// SpotifyPlaylists lists Spotify playlists with optional limit.
func (r *Runner) SpotifyPlaylists(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	svc, err := r.spotifyService(ctx)
	if err != nil {
		return err
	}

	r.logger.Infof("listing spotify playlists with limit %v", limit)

	playlists, err := svc.GetPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if useJSON {
		return r.writeJSON(playlists, pretty)
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", p.Description)
		}
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n", p.TrackCount)
		if p.Public {
			r.writePlain("   Visibility: Public\n")
		} else {
			r.writePlain("   Visibility: Private\n")
		}
		r.writePlain("\n")
	}

	return nil
}

// newSpotify builds a Spotify client from the loaded credentials.
func (r *Runner) newSpotify() (*services.SpotifyService, error) {
	creds := r.config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET in .env or [credentials.spotify] in config.toml", shared.ErrMissingCredentials)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps := r.config.Tracker.RateLimit; rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	var store services.TokenStore
	if creds.TokenCache != "" {
		store = services.NewFileTokenStore(creds.TokenCache)
	}

	svc, err := services.NewSpotifyService(services.SpotifyOptions{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURI:  creds.RedirectURI,
		HTTPClient:   r.httpClient,
		Limiter:      limiter,
		Store:        store,
		Logger:       shared.WithLogger(r.logger, "service", "spotify"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify service: %w", err)
	}
	svc.SetTokenRefreshCallback(func(t *oauth2.Token) {
		r.logger.Debug("refreshed Spotify token", "expiry", t.Expiry)
	})
	return svc, nil
}

// spotifyService returns an authenticated Spotify client, starting the browser flow when no usable
// token is cached.
func (r *Runner) spotifyService(ctx context.Context) (services.Service, error) {
	if r.spotify != nil {
		return r.spotify, nil
	}

	svc, err := r.newSpotify()
	if err != nil {
		return nil, err
	}

	if err := svc.Authenticate(ctx); err != nil {
		if !errors.Is(err, shared.ErrNotAuthenticated) && !errors.Is(err, shared.ErrRefreshFailed) {
			return nil, err
		}
		r.logger.Warn("no usable Spotify token", "error", err)
		r.writePlainln("⚠ Spotify authorization required.")
		if _, err := r.doOAuth(ctx, svc, "authorization"); err != nil {
			return nil, err
		}
	}

	r.spotify = svc
	return svc, nil
}

// readOnlySpotify returns a client for commands that only read playlists. Without a usable user token
// it authenticates with the client credentials grant instead of opening the browser; that client is
// not kept on the runner since it cannot write.
func (r *Runner) readOnlySpotify(ctx context.Context) (services.Service, error) {
	if r.spotify != nil {
		return r.spotify, nil
	}

	svc, err := r.newSpotify()
	if err != nil {
		return nil, err
	}

	if err := svc.Authenticate(ctx); err != nil {
		if !errors.Is(err, shared.ErrNotAuthenticated) && !errors.Is(err, shared.ErrRefreshFailed) {
			return nil, err
		}
		r.logger.Info("no user token, using client credentials", "error", err)
		if err := svc.AuthenticateClientCredentials(ctx); err != nil {
			return nil, err
		}
		r.writePlainln("⚠ Not logged in to Spotify: only public playlists can be read.")
		return svc, nil
	}

	r.spotify = svc
	return svc, nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, svc oauthService, prefix string) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	authURL := svc.GetAuthURL(state)
	handler := server.NewOAuthHandler(svc, state)
	router := server.NewCallbackRouter(handler, authURL, r.logger)

	addr := net.JoinHostPort(r.config.Server.Host, strconv.Itoa(r.config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	r.logger.Infof("starting OAuth server for %s at %v", prefix, ln.Addr())

	r.writePlain("→ Opening browser for Spotify %s...\n", prefix)
	if err := r.openBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", r.authTimeout)

	wctx, cancel := context.WithTimeout(ctx, r.authTimeout)
	defer cancel()

	return server.WaitForToken(wctx, ln, router, handler)
}
