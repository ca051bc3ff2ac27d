package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, DefaultFeedURLs, cfg.Feed.URLs)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
listen: ":9090"
week_start: tuesday
feed:
  urls: ["  https://a.example/eventos.json ", ""]
  cache_ttl: "nonsense"
calendar:
  per_page: 0
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "monday", cfg.WeekStart)
	assert.Equal(t, time.Monday, cfg.WeekStartDay())
	assert.Equal(t, []string{"https://a.example/eventos.json"}, cfg.Feed.URLs)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL())
	assert.Equal(t, defaultPerPage, cfg.Calendar.PerPage)
	assert.Equal(t, "http://:9090", cfg.PublicURL)
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{
		"CECAL_LISTEN":    "0.0.0.0:80",
		"CECAL_FEED_URLS": "https://one.example/f.json,https://two.example/f.json",
		"CECAL_LOG_LEVEL": "debug",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "0.0.0.0:80", cfg.Listen)
	assert.Equal(t, "http://0.0.0.0:80", cfg.PublicURL)
	assert.Equal(t, []string{"https://one.example/f.json", "https://two.example/f.json"}, cfg.Feed.URLs)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.WeekStart = "sunday"
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}
	require.NoError(t, cfg.Save(path))

	back, err := loadFile(path)
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, back.WeekStartDay())
	require.NotNil(t, back.BasicAuth)
	assert.Equal(t, "u", back.BasicAuth.Username)
}

func TestLocationFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Not/AZone"
	loc, err := cfg.Location()
	assert.Error(t, err)
	assert.Equal(t, time.Local, loc)
}
