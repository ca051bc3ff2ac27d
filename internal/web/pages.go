package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cecal/internal/calendar"
	"cecal/internal/feed"
	appLog "cecal/internal/log"
	"cecal/internal/model"
	"cecal/internal/share"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pageNames = []string{"month", "week", "day", "event"}

var pages = parsePages()

func parsePages() map[string]*template.Template {
	funcs := template.FuncMap{
		"monthURL":  monthURL,
		"weekURL":   weekURL,
		"dayURL":    dayURL,
		"selectURL": selectURL,
		"pageURL":   pageURL,
		"eventURL":  eventURL,
		"longDate":  longDate,
		"monthName": calendar.MonthName,
	}
	out := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		out[name] = template.Must(template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
	return out
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.NotFoundHandler()
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// pageData is shared by every HTML page.
type pageData struct {
	Title      string
	Status     statusDTO
	Categories []model.Category
	Category   model.Category
	Today      model.Date
	PublicURL  string
	Data       any
}

func (s *Server) newPageData(title string, r *http.Request, snap feed.Snapshot) pageData {
	// Unknown categories on the HTML pages just drop the filter.
	var c model.Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		if parsed, ok := parseCategory(raw); ok {
			c = parsed
		}
	}
	return pageData{
		Title:      title,
		Status:     newStatus(snap),
		Categories: model.Categories,
		Category:   c,
		Today:      s.today(),
		PublicURL:  s.cfg.PublicURL,
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data pageData) {
	tmpl, ok := pages[name]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}
	// Render into a buffer so a template error does not leave a half page.
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		appLog.Error("template render failed", err, "page", name)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// upcomingOnMonthPage is how many upcoming events the month page lists.
const upcomingOnMonthPage = 5

type monthPage struct {
	Month     calendar.Month
	Selected  model.Date
	DayEvents []model.Event
	Upcoming  []model.Event
}

// handleMonthPage renders /calendar?year=2025&month=3&category=taller&date=2025-03-15.
func (s *Server) handleMonthPage(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	data := s.newPageData("Calendario", r, snap)
	q := r.URL.Query()

	today := data.Today
	year := parseIntDefault(q.Get("year"), today.Year)
	month := parseIntDefault(q.Get("month"), int(today.Month))
	if month < 1 || month > 12 {
		month = int(today.Month)
	}

	events := feed.FilterCategory(snap.Events, data.Category)
	m := calendar.BuildMonth(year, time.Month(month), s.cfg.WeekStartDay(), events, today)

	selected := model.NewDate(m.Year, m.Month, 1)
	if m.Year == today.Year && m.Month == today.Month {
		selected = today
	}
	if d, err := s.parseDateParam(q.Get("date")); err == nil && q.Get("date") != "" {
		selected = d
	}

	data.Title = fmt.Sprintf("Calendario · %s %d", calendar.MonthName(m.Month), m.Year)
	data.Data = monthPage{
		Month:     m,
		Selected:  selected,
		DayEvents: feed.EventsOn(events, selected),
		Upcoming:  feed.Upcoming(events, today, upcomingOnMonthPage),
	}
	s.render(w, "month", data)
}

func (s *Server) handleWeekPage(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	data := s.newPageData("Semana", r, snap)

	d, err := s.parseDateParam(r.URL.Query().Get("date"))
	if err != nil {
		d = data.Today
	}
	events := feed.FilterCategory(snap.Events, data.Category)
	week := calendar.BuildWeek(d, s.cfg.WeekStartDay(), events, data.Today)

	data.Title = "Semana del " + longDate(week.Start)
	data.Data = week
	s.render(w, "week", data)
}

type dayPage struct {
	Date model.Date
	Page calendar.Page[model.Event]
}

func (s *Server) handleDayPage(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	data := s.newPageData("Eventos del día", r, snap)
	q := r.URL.Query()

	d, err := s.parseDateParam(q.Get("date"))
	if err != nil {
		d = data.Today
	}
	events := feed.FilterCategory(feed.EventsOn(snap.Events, d), data.Category)

	data.Title = "Eventos del " + longDate(d)
	data.Data = dayPage{
		Date: d,
		Page: calendar.Paginate(events, parseIntDefault(q.Get("page"), 1), s.cfg.Calendar.PerPage),
	}
	s.render(w, "day", data)
}

type eventPage struct {
	Event model.Event
	Share share.Links
	Days  []model.Date
}

func (s *Server) handleEventPage(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.store.Find(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	data := s.newPageData(ev.Title, r, s.store.Snapshot())
	data.Data = eventPage{
		Event: ev,
		Share: share.For(ev, s.cfg.PublicURL),
		Days:  feed.Days(ev),
	}
	s.render(w, "event", data)
}

// handleRefreshPage is the retry button of the HTML error state.
func (s *Server) handleRefreshPage(w http.ResponseWriter, r *http.Request) {
	if err := s.refresh(r.Context()); err != nil {
		appLog.Warn("manual refresh failed", "reason", err.Error())
	}
	http.Redirect(w, r, refererPath(r), http.StatusSeeOther)
}

// refererPath returns the path and query of a same-host Referer, or
// /calendar for anything else.
func refererPath(r *http.Request) string {
	const fallback = "/calendar"
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Host != r.Host || ref.Path == "" {
		return fallback
	}
	back := ref.RequestURI()
	if !strings.HasPrefix(back, "/") || strings.HasPrefix(back, "//") || strings.HasPrefix(back, "/\\") {
		return fallback
	}
	return back
}

func withCategory(v url.Values, c model.Category) url.Values {
	if c != "" {
		v.Set("category", string(c))
	}
	return v
}

func monthURL(d model.Date, c model.Category) string {
	v := withCategory(url.Values{
		"year":  {strconv.Itoa(d.Year)},
		"month": {strconv.Itoa(int(d.Month))},
	}, c)
	return "/calendar?" + v.Encode()
}

// selectURL keeps the month grid of d and selects d in it.
func selectURL(d model.Date, c model.Category) string {
	v := withCategory(url.Values{
		"year":  {strconv.Itoa(d.Year)},
		"month": {strconv.Itoa(int(d.Month))},
		"date":  {d.String()},
	}, c)
	return "/calendar?" + v.Encode()
}

func dayURL(d model.Date, c model.Category) string {
	v := withCategory(url.Values{"date": {d.String()}}, c)
	return "/calendar/day?" + v.Encode()
}

func weekURL(d model.Date, c model.Category) string {
	v := withCategory(url.Values{"date": {d.String()}}, c)
	return "/calendar/week?" + v.Encode()
}

func pageURL(d model.Date, c model.Category, page int) string {
	v := withCategory(url.Values{"date": {d.String()}, "page": {strconv.Itoa(page)}}, c)
	return "/calendar/day?" + v.Encode()
}

func eventURL(id string) string {
	return "/events/" + url.PathEscape(id)
}

// longDate formats d as "15 de marzo de 2025".
func longDate(d model.Date) string {
	return fmt.Sprintf("%d de %s de %d", d.Day, calendar.MonthName(d.Month), d.Year)
}
