// Package services defines the [Service] interface for music streaming providers and implements it for Spotify.
//
// # Service Interface
//
// The tracker only needs to read playlists with their "added at" timestamps, look up the current
// user, create a playlist and append items to it. [Service] captures exactly that.
//
// # Spotify Implementation
//
// [SpotifyService] talks to the Spotify Web API through an [oauth2] client. Three grants are supported:
//   - authorization code, via [SpotifyService.Exchange] after the browser callback
//   - refresh token, used transparently once a cached token is within [ExpiryBuffer] of expiry
//   - client credentials, via [SpotifyService.AuthenticateClientCredentials], for read-only runs
//
// Every request waits on a [rate.Limiter] and 429 responses are retried after Retry-After.
// Playlist reads follow the `next` link until the last page.
//
// # Token Cache
//
// A [TokenStore] persists the user token between runs. [FileTokenStore] writes
// {access_token, refresh_token, token_type, expires_at} as JSON. New tokens are saved through a
// refreshableTokenSource callback; when a refresh fails the cache is cleared so the next run starts
// a new authorization.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called or nothing cached
//   - [shared.ErrRefreshFailed] : refresh grant rejected, cache cleared
//   - [shared.ErrAPIRequest] : non-2xx response or transport failure
//   - [shared.ErrPlaylistNotFound] : playlist ID not found
//   - [shared.ErrBatchTooLarge] : more than [MaxItemsPerRequest] URIs in one add call
package services
