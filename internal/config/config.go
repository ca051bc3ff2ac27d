package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen         = "127.0.0.1:8080"
	defaultTimezone       = "America/Bogota"
	defaultRefreshCron    = "*/15 * * * *"
	defaultLogLevel       = "info"
	defaultTimeoutSeconds = 15
	defaultCacheDir       = "./var/feed-cache"
	defaultCacheTTL       = "15m"
	defaultPerPage        = 5
)

// DefaultFeedURLs are the known locations of the events feed, tried in order.
var DefaultFeedURLs = []string{
	"https://consejeria.example.edu/ce/eventos/eventos.json",
	"https://consejeria.example.edu/ce/visualizador-eventos/eventos.json",
	"https://consejeria.example.edu/ce/visualizerv2/eventos.json",
}

// FeedConfig describes where the events feed lives and how it is cached.
type FeedConfig struct {
	// URLs are candidate feed locations, tried in sequence until one succeeds.
	URLs []string `yaml:"urls" json:"urls"`
	// TimeoutSeconds bounds each candidate request.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
	// CacheDir holds the last successfully fetched feed.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	// CacheTTL is a Go duration string ("15m", "24h"). A younger cache is
	// served without touching the network.
	CacheTTL string `yaml:"cache_ttl" json:"cache_ttl"`
}

// CalendarConfig tunes the rendered views.
type CalendarConfig struct {
	// PerPage is the page size of the selected-day event list.
	PerPage int `yaml:"per_page" json:"per_page"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used to interpret feed dates and schedules.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is the cron schedule for re-fetching the feed.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// PublicURL is the externally visible base URL, used in share links
	// and ICS URL fields. Defaults to http://<listen>.
	PublicURL string `yaml:"public_url" json:"public_url"`

	// PreviewPath is where the share-preview PNG is written by -snapshot
	// and served from at /share/preview.png. Empty means the built-in
	// default for the run mode.
	PreviewPath string `yaml:"preview_path,omitempty" json:"preview_path,omitempty"`

	Feed     FeedConfig     `yaml:"feed" json:"feed"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		WeekStart:   "monday",
		RefreshCron: defaultRefreshCron,
		LogLevel:    defaultLogLevel,
		Feed: FeedConfig{
			URLs:           append([]string(nil), DefaultFeedURLs...),
			TimeoutSeconds: defaultTimeoutSeconds,
			CacheDir:       defaultCacheDir,
			CacheTTL:       defaultCacheTTL,
		},
		Calendar: CalendarConfig{PerPage: defaultPerPage},
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = "monday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.PublicURL == "" {
		c.PublicURL = "http://" + c.Listen
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")

	urls := c.Feed.URLs[:0]
	for _, u := range c.Feed.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	c.Feed.URLs = urls
	if len(c.Feed.URLs) == 0 {
		c.Feed.URLs = append([]string(nil), DefaultFeedURLs...)
	}
	if c.Feed.TimeoutSeconds <= 0 {
		c.Feed.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Feed.CacheDir == "" {
		c.Feed.CacheDir = defaultCacheDir
	}
	if d, err := time.ParseDuration(c.Feed.CacheTTL); err != nil || d <= 0 {
		c.Feed.CacheTTL = defaultCacheTTL
	}
	if c.Calendar.PerPage <= 0 {
		c.Calendar.PerPage = defaultPerPage
	}
}

// CacheTTL returns the parsed feed cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Feed.CacheTTL)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultCacheTTL)
	}
	return d
}

// FeedTimeout returns the per-candidate request timeout.
func (c *Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feed.TimeoutSeconds) * time.Second
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

// WeekStartDay maps WeekStart to a time.Weekday.
func (c *Config) WeekStartDay() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - If the file exists, it is unmarshalled and normalized.
//   - In both cases a .env file next to the config (if any) and the
//     process environment are applied on top.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg, err := loadFile(path)
	if err != nil {
		return cfg, err
	}

	// Missing .env is the common case.
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	cfg.ApplyEnv(os.Getenv)

	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// ApplyEnv overrides fields from CECAL_* variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("CECAL_LISTEN"); v != "" {
		if c.PublicURL == "http://"+c.Listen {
			c.PublicURL = ""
		}
		c.Listen = v
	}
	if v := getenv("CECAL_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := getenv("CECAL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("CECAL_PUBLIC_URL"); v != "" {
		c.PublicURL = v
	}
	if v := getenv("CECAL_FEED_URLS"); v != "" {
		c.Feed.URLs = strings.Split(v, ",")
	}
	c.Normalize()
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".cecal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
