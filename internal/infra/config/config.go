// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Admin    AdminConfig             `yaml:"admin"`
	Cache    CacheConfig             `yaml:"cache"`
	Download DownloadConfig          `yaml:"download"`
	Playback PlaybackConfig          `yaml:"playback"`
	Store    StoreConfig             `yaml:"store"`
	Request  RequestConfig           `yaml:"request"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Messages MessagesConfig          `yaml:"messages"`
	Spotify  SpotifyConfig           `yaml:"spotify"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// CacheConfig represents the content cache configuration.
type CacheConfig struct {
	Dir            string        `yaml:"dir" default:"./cache"`
	TTL            time.Duration `yaml:"ttl" default:"30m" validate:"gt=0"`
	SweepInterval  time.Duration `yaml:"sweep_interval" default:"5m" validate:"gt=0"`
	MaxTitleLength int           `yaml:"max_title_length" default:"50" validate:"gte=1,lte=200"`
	Extensions     []string      `yaml:"extensions" default:"[\".mp3\",\".webm\",\".m4a\",\".opus\"]"`
}

// DownloadConfig represents search and download configuration.
type DownloadConfig struct {
	TempDir       string        `yaml:"temp_dir"`
	AudioFormat   string        `yaml:"audio_format" default:"mp3" validate:"oneof=mp3 m4a opus webm"`
	Proxy         string        `yaml:"proxy"`
	SearchTimeout time.Duration `yaml:"search_timeout" default:"15s"`
	Timeout       time.Duration `yaml:"timeout" default:"5m"`
	Binary        string        `yaml:"binary"`
}

// PlaybackConfig represents playback configuration.
type PlaybackConfig struct {
	Transport     string   `yaml:"transport" default:"exec" validate:"oneof=exec clock"`
	PlayerCommand []string `yaml:"player_command"`
	DefaultVolume float64  `yaml:"default_volume" default:"1.0" validate:"gte=0,lte=1"`
	VolumeStep    float64  `yaml:"volume_step" default:"0.1" validate:"gt=0,lte=1"`
	// ResolveTimeout bounds each pending resolution; a negative value disables the bound.
	ResolveTimeout   time.Duration `yaml:"resolve_timeout" default:"2m"`
	FallbackDuration time.Duration `yaml:"fallback_duration" default:"3m"`
}

// StoreConfig represents the persisted store configuration.
type StoreConfig struct {
	Type     string `yaml:"type" default:"file" validate:"oneof=file redis sqlite none"`
	Path     string `yaml:"path" default:"./data/music_data.json"`
	RedisURL string `yaml:"redis_url" validate:"required_if=Type redis"`
	Key      string `yaml:"key" default:"guildbox:data"`
}

// RequestConfig represents request handling configuration.
type RequestConfig struct {
	Cooldown time.Duration `yaml:"cooldown" default:"5s"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	NowPlaying            string `yaml:"now_playing" default:"🎵 Now playing: **%s**"`
	PlaybackError         string `yaml:"playback_error" default:"An error occurred while playing music."`
	Stopped               string `yaml:"stopped" default:"⏹️ Music stopped and queue cleared!"`
	Added                 string `yaml:"added" default:"✅ Added to queue: **%s**"`
	DefaultError          string `yaml:"default_error" default:"❌ Could not add the song."`
	Cooldown              string `yaml:"cooldown" default:"Please wait before sending another request."`
	TrackNotFound         string `yaml:"track_not_found" default:"❌ No results found."`
	UserPending           string `yaml:"user_pending" default:"❌ You already have songs waiting in the queue."`
	DuplicateTrack        string `yaml:"duplicate_track" default:"❌ That song is already in the queue."`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"❌ That song is too long."`
	ResolveTimeout        string `yaml:"resolve_timeout" default:"❌ Timed out while fetching the song."`
}

// SpotifyConfig represents Spotify API configuration. Spotify links are only
// resolved when both credentials are set.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// Enabled reports whether Spotify credentials are configured.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Store.RedisURL = v
	}
	if v := os.Getenv("YOUTUBE_PROXY"); v != "" {
		c.Download.Proxy = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// ResolveTimeout returns the per-resolution bound; zero means unbounded.
func (c *Config) ResolveTimeout() time.Duration {
	if c.Playback.ResolveTimeout < 0 {
		return 0
	}
	return c.Playback.ResolveTimeout
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "cooldown":
		return c.Messages.Cooldown
	case "track_not_found":
		return c.Messages.TrackNotFound
	case "user_pending":
		return c.Messages.UserPending
	case "duplicate_track":
		return c.Messages.DuplicateTrack
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	case "resolve_timeout":
		return c.Messages.ResolveTimeout
	default:
		return c.Messages.DefaultError
	}
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// EnabledFilters returns the settings of every enabled filter, keyed by name.
func (c *Config) EnabledFilters() map[string]map[string]any {
	enabled := make(map[string]map[string]any)
	for name, f := range c.Filters {
		if f.Enabled {
			enabled[name] = f.Settings
		}
	}
	return enabled
}
