package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Tracker     TrackerConfig     `toml:"tracker"`
	Mosaic      MosaicConfig      `toml:"mosaic"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and the token cache location.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	TokenCache   string `toml:"token_cache"`
}

// TrackerConfig drives `crate track run`.
type TrackerConfig struct {
	SourcePlaylists      []string `toml:"source_playlists"`
	TargetPlaylistID     string   `toml:"target_playlist_id"`
	CreateNewPlaylist    bool     `toml:"create_new_playlist"`
	PlaylistNameTemplate string   `toml:"playlist_name_template"`
	PlaylistDescription  string   `toml:"playlist_description"`
	PlaylistPublic       bool     `toml:"playlist_public"`
	CursorBackend        string   `toml:"cursor_backend"` // file or sqlite
	CursorFile           string   `toml:"cursor_file"`
	SongLogFile          string   `toml:"song_log_file"`
	LookbackDays         int      `toml:"lookback_days"`
	BatchSize            int      `toml:"batch_size"`
	RateLimit            float64  `toml:"rate_limit"` // requests per second
}

// MosaicConfig holds defaults for `crate mosaic`; every field can be overridden by a flag.
type MosaicConfig struct {
	Clusters       int    `toml:"clusters"`
	ProcessingSize string `toml:"processing_size"`
	CellSize       string `toml:"cell_size"`
	PerAxis        int    `toml:"per_axis"`
	ByRow          bool   `toml:"by_row"`
	OutputHeight   int    `toml:"output_height"`
	Seed           int64  `toml:"seed"`
	Workers        int    `toml:"workers"`
	RequireSize    string `toml:"require_size"`
	Limit          int    `toml:"limit"`
	Descending     bool   `toml:"descending"`
	ColorSpace     string `toml:"color_space"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains the local OAuth callback server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig sets the minimum log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the settings `crate track run` depends on.
func (c *TrackerConfig) Validate() error {
	if len(c.SourcePlaylists) == 0 {
		return fmt.Errorf("%w: tracker.source_playlists is empty", ErrInvalidConfig)
	}
	switch c.CursorBackend {
	case "", "file", "sqlite":
	default:
		return fmt.Errorf("%w: unknown cursor_backend %q", ErrInvalidConfig, c.CursorBackend)
	}
	if c.BatchSize > 100 {
		return fmt.Errorf("%w: batch_size %d exceeds the API limit of 100", ErrInvalidConfig, c.BatchSize)
	}
	return nil
}

// ParseDimensions parses "WxH" into an [image.Point]. The empty string yields the zero point.
func ParseDimensions(s string) (image.Point, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return image.Point{}, nil
	}

	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return image.Point{}, fmt.Errorf("%w: dimensions %q must look like WxH", ErrInvalidArgument, s)
	}

	x, err := strconv.Atoi(w)
	if err != nil || x <= 0 {
		return image.Point{}, fmt.Errorf("%w: bad width in %q", ErrInvalidArgument, s)
	}
	y, err := strconv.Atoi(h)
	if err != nil || y <= 0 {
		return image.Point{}, fmt.Errorf("%w: bad height in %q", ErrInvalidArgument, s)
	}

	return image.Pt(x, y), nil
}
