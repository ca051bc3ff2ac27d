package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cecal/internal/calendar"
	"cecal/internal/feed"
	"cecal/internal/ics"
	appLog "cecal/internal/log"
	"cecal/internal/model"
	"cecal/internal/share"
)

const refreshTimeout = 60 * time.Second

// statusDTO describes where the current events came from, for the UI's
// offline and error indicators.
type statusDTO struct {
	Loaded    bool           `json:"loaded"`
	Source    string         `json:"source,omitempty"`
	FetchedAt *time.Time     `json:"fetched_at,omitempty"`
	FromCache bool           `json:"from_cache"`
	Stale     bool           `json:"stale"`
	LastError string         `json:"last_error,omitempty"`
	Skipped   []feed.Skipped `json:"skipped,omitempty"`
}

func newStatus(snap feed.Snapshot) statusDTO {
	st := statusDTO{
		Loaded:    snap.Loaded(),
		Source:    snap.Source,
		FromCache: snap.FromCache,
		Stale:     snap.Stale,
		LastError: snap.LastError,
		Skipped:   snap.Skipped,
	}
	if snap.Loaded() {
		t := snap.FetchedAt
		st.FetchedAt = &t
	}
	return st
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events   []model.Event `json:"eventos"`
	Category string        `json:"categoria,omitempty"`
	Month    string        `json:"month,omitempty"`
	Status   statusDTO     `json:"status"`
}

// dayResponse is the JSON response shape for /api/events/day.
type dayResponse struct {
	Date       model.Date    `json:"date"`
	Events     []model.Event `json:"eventos"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	Total      int           `json:"total"`
	TotalPages int           `json:"total_pages"`
	Status     statusDTO     `json:"status"`
}

// handleEvents returns the event list, optionally narrowed. upcoming=N
// keeps the next N events that have not ended, soonest first.
//
// GET /api/events?category=taller&month=2025-03&upcoming=5
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	q := r.URL.Query()

	events := snap.Events
	resp := eventsResponse{Status: newStatus(snap)}

	if raw := q.Get("category"); raw != "" {
		c, ok := parseCategory(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown category")
			return
		}
		events = feed.FilterCategory(events, c)
		resp.Category = string(c)
	}
	if raw := q.Get("month"); raw != "" {
		t, err := time.Parse("2006-01", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
		events = feed.EventsInMonth(events, t.Year(), t.Month())
		resp.Month = raw
	}
	if raw := q.Get("upcoming"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "upcoming must be a positive integer")
			return
		}
		events = feed.Upcoming(events, s.today(), n)
	}

	resp.Events = events
	writeJSON(w, http.StatusOK, resp)
}

// handleEventsDay returns the events on one date, paginated.
//
// GET /api/events/day?date=2025-03-15&page=1&per_page=5
func (s *Server) handleEventsDay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d, err := s.parseDateParam(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := s.store.Snapshot()
	events := feed.EventsOn(snap.Events, d)
	if raw := q.Get("category"); raw != "" {
		c, ok := parseCategory(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown category")
			return
		}
		events = feed.FilterCategory(events, c)
	}

	page := calendar.Paginate(events, parseIntDefault(q.Get("page"), 1), parseIntDefault(q.Get("per_page"), s.cfg.Calendar.PerPage))
	writeJSON(w, http.StatusOK, dayResponse{
		Date:       d,
		Events:     page.Items,
		Page:       page.Page,
		PerPage:    page.PerPage,
		Total:      page.Total,
		TotalPages: page.TotalPages,
		Status:     newStatus(snap),
	})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.store.Find(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleEventICS serves a single event as a downloadable .ics file.
func (s *Server) handleEventICS(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.store.Find(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	s.writeICS(w, ics.Filename(ev), s.exporter.Export(ev))
}

// handleCalendarICS serves every (optionally category-filtered) event in
// one calendar.
func (s *Server) handleCalendarICS(w http.ResponseWriter, r *http.Request) {
	events := s.store.Events()
	name := "consejeria-eventos.ics"
	if raw := r.URL.Query().Get("category"); raw != "" {
		c, ok := parseCategory(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown category")
			return
		}
		events = feed.FilterCategory(events, c)
		name = "consejeria-" + string(c) + ".ics"
	}
	s.writeICS(w, name, s.exporter.ExportAll(events))
}

func (s *Server) writeICS(w http.ResponseWriter, filename, body string) {
	w.Header().Set("Content-Type", ics.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		appLog.Error("failed to write ICS response", err, "filename", filename)
	}
}

func (s *Server) handleEventShare(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.store.Find(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, share.For(ev, s.cfg.PublicURL))
}

// handleRefresh re-fetches the feed now. A failed refresh answers 502 with
// the current status; previously loaded events stay in place.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.refresh(r.Context())
	snap := s.store.Snapshot()
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  "refresh failed",
			"status": newStatus(snap),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": len(snap.Events),
		"status": newStatus(snap),
	})
}

func (s *Server) refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	return s.store.Refresh(ctx)
}

// parseDateParam parses a YYYY-MM-DD query value; empty means today.
func (s *Server) parseDateParam(raw string) (model.Date, error) {
	if raw == "" {
		return s.today(), nil
	}
	var d model.Date
	if err := d.UnmarshalText([]byte(raw)); err != nil {
		return model.Date{}, errors.New("date must be YYYY-MM-DD")
	}
	return d, nil
}

// parseCategory accepts a category name ("taller") or any spelling the
// feed normalizer recognizes ("Talleres", "Activación"). Values that only
// normalize to the catch-all are rejected, except "otro" itself.
func parseCategory(raw string) (model.Category, bool) {
	c := model.Category(strings.ToLower(strings.TrimSpace(raw)))
	if c.Valid() {
		return c, true
	}
	c = feed.NormalizeCategory(raw)
	return c, c != model.CategoryOtro
}
