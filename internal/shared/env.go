package shared

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvSpotifyClientID     = "SPOTIFY_CLIENT_ID"
	EnvSpotifyClientSecret = "SPOTIFY_CLIENT_SECRET"
	EnvSpotifyRedirectURI  = "SPOTIFY_REDIRECT_URI"
)

// LoadEnv loads variables from the given .env files into the process environment.
// Files that do not exist are skipped. Variables already set are not overwritten.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("%w: failed to load %s: %v", ErrInvalidConfig, p, err)
		}
	}
	return nil
}

// ApplyEnv copies credentials found in the environment over the values in config.
func ApplyEnv(config *Config) {
	apply := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	apply(EnvSpotifyClientID, &config.Credentials.Spotify.ClientID)
	apply(EnvSpotifyClientSecret, &config.Credentials.Spotify.ClientSecret)
	apply(EnvSpotifyRedirectURI, &config.Credentials.Spotify.RedirectURI)
}
