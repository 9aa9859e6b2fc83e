// Package server provides HTTP routing, middleware, and the OAuth callback used to authorize crate with Spotify.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback flow.
//
// The handler validates the state parameter (CSRF protection), hands the authorization code to an [Exchanger],
// and sends the result through a channel.
//
// It only processes one callback to prevent replay attacks.
//
// # Usage
//
// `crate spotify auth` listens on the configured host and port (localhost:8888 by default, matching the
// redirect URI registered with Spotify), opens the browser, and calls [WaitForToken], which returns once
// the callback fires or the context times out.
package server
