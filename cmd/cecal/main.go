package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"cecal/internal/capture"
	"cecal/internal/config"
	"cecal/internal/feed"
	"cecal/internal/ics"
	appLog "cecal/internal/log"
	"cecal/internal/model"
	"cecal/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	dumpDir    string
	snapshot   string
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		if conf.PublicURL == "http://"+conf.Listen {
			conf.PublicURL = ""
		}
		conf.Listen = flags.listen
		conf.Normalize()
	}

	level, ok := appLog.ParseLevel(conf.LogLevel)
	if !ok {
		appLog.Warn("unknown log level; using info", "log_level", conf.LogLevel)
	}
	if flags.debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	appLog.Info("cecal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"public_url", conf.PublicURL,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"feed_urls", len(conf.Feed.URLs),
		"cache_dir", conf.Feed.CacheDir,
		"cache_ttl", conf.CacheTTL(),
		"once", flags.once,
		"dump", flags.dumpDir,
		"debug", flags.debug,
	)

	loc, err := conf.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", conf.Timezone)
	}

	fetcher := feed.NewFetcher(feed.Options{
		URLs:     conf.Feed.URLs,
		Timeout:  conf.FeedTimeout(),
		CacheDir: conf.Feed.CacheDir,
		CacheTTL: conf.CacheTTL(),
	})
	store := feed.NewStore(fetcher)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.once {
		if err := runOnce(ctx, store, ics.Exporter{Location: loc, BaseURL: conf.PublicURL}, flags.dumpDir); err != nil {
			appLog.Error("single run failed", err)
			os.Exit(1)
		}
		return
	}

	// Serve the last cached feed right away, flagged stale if it is old, so
	// the pages are usable while the network refresh runs.
	seedFromCache(fetcher, store)

	// A failed first load is not fatal; the UI shows the error state and
	// the next scheduled refresh retries.
	_ = store.Refresh(ctx)

	if flags.snapshot != "" {
		conf.PreviewPath = flags.snapshot
	}
	srv := web.NewServer(conf, store, flags.debug)
	base := localBaseURL(conf.Listen)
	snapshotURL := base + "/calendar"

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		refreshCtx, refreshCancel := context.WithTimeout(ctx, 2*time.Minute)
		defer refreshCancel()
		if err := store.Refresh(refreshCtx); err != nil {
			return
		}
		if flags.snapshot != "" {
			captureSnapshot(ctx, snapshotURL, srv.PreviewPath())
		}
	}); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	if flags.snapshot != "" {
		go func() {
			if waitForServer(ctx, base+"/health") {
				captureSnapshot(ctx, snapshotURL, srv.PreviewPath())
			}
		}()
	}

	if err := srv.Run(ctx); err != nil {
		appLog.Error("http server failed", err)
		os.Exit(1)
	}

	appLog.Info("cecal exiting")
}

// runOnce loads the feed a single time and logs what was ingested. When
// dumpDir is set every event is also written there as an .ics file and read
// back to make sure it parses.
func runOnce(ctx context.Context, store *feed.Store, exporter ics.Exporter, dumpDir string) error {
	if err := store.Refresh(ctx); err != nil {
		return err
	}
	snap := store.Snapshot()

	perCategory := map[model.Category]int{}
	for _, ev := range snap.Events {
		perCategory[ev.Category]++
	}
	kv := []any{"events", len(snap.Events), "skipped", len(snap.Skipped), "source", snap.Source, "stale", snap.Stale}
	for _, c := range model.Categories {
		if n := perCategory[c]; n > 0 {
			kv = append(kv, string(c), n)
		}
	}
	appLog.Info("feed loaded", kv...)
	for _, sk := range snap.Skipped {
		appLog.Warn("event skipped", "id", sk.ID, "title", sk.Title, "reason", sk.Reason)
	}

	if dumpDir == "" {
		return nil
	}
	return dumpICS(snap.Events, exporter, dumpDir)
}

func dumpICS(events []model.Event, exporter ics.Exporter, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	used := map[string]int{}
	names := make([]string, 0, len(events))
	for _, ev := range events {
		base := ics.Filename(ev)
		name := base
		if n := used[base]; n > 0 {
			name = fmt.Sprintf("%s-%d.ics", strings.TrimSuffix(base, ".ics"), n+1)
		}
		used[base]++

		body := exporter.Export(ev)
		entries, err := ics.Parse([]byte(body))
		if err != nil {
			return fmt.Errorf("event %s: exported ICS does not parse: %w", ev.ID, err)
		}
		if len(entries) != 1 {
			return fmt.Errorf("event %s: expected 1 VEVENT, got %d", ev.ID, len(entries))
		}

		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return err
		}
		names = append(names, name)
	}

	sort.Strings(names)
	appLog.Info("ICS files written", "dir", dir, "count", len(names))
	for _, n := range names {
		appLog.Debug("ICS file", "name", n)
	}
	return nil
}

// seedFromCache installs the on-disk feed, if any, before the first fetch.
func seedFromCache(fetcher *feed.Fetcher, store *feed.Store) {
	res, err := fetcher.LoadCache()
	if err != nil {
		if !errors.Is(err, feed.ErrNoCache) {
			appLog.Error("feed cache unreadable at startup", err)
		}
		return
	}
	store.Replace(res)
	appLog.Info("store seeded from cache", "events", len(res.Events), "fetched_at", res.FetchedAt.Format(time.RFC3339), "stale", res.Stale)
}

// localBaseURL turns a listen address into a URL this process can reach
// itself on. Wildcard hosts (":8080", "0.0.0.0:8080", "[::]:8080") map to
// loopback.
func localBaseURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func waitForServer(ctx context.Context, healthURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	for i := 0; i < 20; i++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(500 * time.Millisecond):
		}
		resp, err := client.Get(healthURL)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return true
		}
	}
	appLog.Warn("HTTP server did not become ready; skipping share preview", "url", healthURL)
	return false
}

func captureSnapshot(ctx context.Context, url, path string) {
	err := capture.Snapshot(ctx, capture.Options{URL: url, OutputPath: path})
	if err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("share preview capture failed", err, "url", url)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/cecal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Fetch and normalize the feed once, log a summary and exit")
	flag.StringVar(&cfg.dumpDir, "dump", "", "With -once, write one .ics file per event into this directory")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Capture a share-preview PNG of /calendar to this path after startup and each refresh; /share/preview.png serves it")
	flag.BoolVar(&cfg.debug, "debug", false, "Debug logging and ./cache paths")

	flag.Parse()

	return cfg
}
