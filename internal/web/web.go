package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cecal/internal/config"
	"cecal/internal/feed"
	"cecal/internal/ics"
	appLog "cecal/internal/log"
	"cecal/internal/model"
)

// Server serves the calendar pages, the JSON API and ICS downloads from a
// single feed.Store.
type Server struct {
	cfg      *config.Config
	store    *feed.Store
	loc      *time.Location
	exporter ics.Exporter
	debug    bool
	preview  string
	mux      *http.ServeMux
	now      func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, store *feed.Store, debug bool) *Server {
	loc := resolveLocationOrLocal(cfg)
	s := &Server{
		cfg:   cfg,
		store: store,
		loc:   loc,
		exporter: ics.Exporter{
			Location: loc,
			BaseURL:  cfg.PublicURL,
		},
		debug:   debug,
		preview: cfg.PreviewPath,
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	if s.preview == "" {
		s.preview = DefaultPreviewPath(debug)
	}
	s.registerRoutes()
	return s
}

// DefaultPreviewPath is the share-preview location used when the config
// does not name one.
func DefaultPreviewPath(debug bool) string {
	if debug {
		return "./cache/preview.png"
	}
	return "/var/lib/cecal/preview.png"
}

// PreviewPath is where the share-preview snapshot is served from; the
// snapshot job writes to the same path.
func (s *Server) PreviewPath() string {
	return s.preview
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return logRequests(h)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Consejeria", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start).Round(time.Microsecond))
	})
}

// Run serves HTTP on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "debug", s.debug)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/events/day", s.handleEventsDay)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleEvent)
	s.mux.HandleFunc("GET /api/events/{id}/ics", s.handleEventICS)
	s.mux.HandleFunc("GET /api/events/{id}/share", s.handleEventShare)
	s.mux.HandleFunc("GET /api/calendar.ics", s.handleCalendarICS)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)

	s.mux.HandleFunc("GET /share/preview.png", s.handlePreview)
	s.mux.Handle("GET /static/", staticHandler())

	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/calendar", http.StatusFound)
	})
	s.mux.HandleFunc("GET /calendar", s.handleMonthPage)
	s.mux.HandleFunc("GET /calendar/week", s.handleWeekPage)
	s.mux.HandleFunc("GET /calendar/day", s.handleDayPage)
	s.mux.HandleFunc("GET /events/{id}", s.handleEventPage)
	s.mux.HandleFunc("POST /refresh", s.handleRefreshPage)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview serves the last share-preview snapshot from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.preview)
}

func (s *Server) today() model.Date {
	return model.DateOf(s.now().In(s.loc))
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func resolveLocationOrLocal(cfg *config.Config) *time.Location {
	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", cfg.Timezone)
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
