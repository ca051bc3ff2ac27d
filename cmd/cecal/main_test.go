package main

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cecal/internal/feed"
	"cecal/internal/ics"
	"cecal/internal/model"
)

func TestLocalBaseURL(t *testing.T) {
	tests := map[string]string{
		":8080":          "http://127.0.0.1:8080",
		"0.0.0.0:8080":   "http://127.0.0.1:8080",
		"[::]:8080":      "http://127.0.0.1:8080",
		"127.0.0.1:9000": "http://127.0.0.1:9000",
		"cal.local:80":   "http://cal.local:80",
		"[::1]:8080":     "http://[::1]:8080",
	}
	for listen, want := range tests {
		assert.Equal(t, want, localBaseURL(listen), listen)
	}
}

func TestSeedFromCache(t *testing.T) {
	dir := t.TempDir()
	fetched := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Second)

	body := `{"eventos":[{"id":7,"titulo":"Grupo de apoyo","fechaInicio":"2025-04-02"}]}`
	meta := `{"url":"https://consejeria.example.edu/ce/eventos/eventos.json","fetched_at":"` + fetched.Format(time.RFC3339) + `"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feed.json"), []byte(body), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.json"), []byte(meta), 0o600))

	fetcher := feed.NewFetcher(feed.Options{CacheDir: dir, CacheTTL: time.Hour})
	store := feed.NewStore(fetcher)
	seedFromCache(fetcher, store)

	snap := store.Snapshot()
	assert.True(t, snap.Loaded())
	assert.True(t, snap.Stale)
	require.Len(t, snap.Events, 1)
	ev, ok := store.Find("7")
	require.True(t, ok)
	assert.Equal(t, "Grupo de apoyo", ev.Title)
}

func TestSeedFromCacheWithoutCache(t *testing.T) {
	fetcher := feed.NewFetcher(feed.Options{CacheDir: t.TempDir()})
	store := feed.NewStore(fetcher)
	seedFromCache(fetcher, store)
	assert.False(t, store.Snapshot().Loaded())
	assert.Empty(t, store.Events())
}

func TestDumpICS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dump")
	d := model.NewDate(2025, time.March, 15)
	events := []model.Event{
		{ID: "1", Title: "Taller A", Start: d, End: d, Schedule: "10:00-11:00am"},
		{ID: "2", Title: "Taller A", Start: d, End: d},
		{ID: "3", Title: "Curso de duelo", Start: d, End: d.AddDays(2)},
	}

	require.NoError(t, dumpICS(events, ics.Exporter{Location: time.UTC}, dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	assert.Equal(t, []string{"curso-de-duelo.ics", "taller-a-2.ics", "taller-a.ics"}, names)

	body, err := os.ReadFile(filepath.Join(dir, "taller-a.ics"))
	require.NoError(t, err)
	parsed, err := ics.Parse(body)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "1@cecal", parsed[0].UID)
}
