package ics

import (
	"net/url"
	"strings"
	"time"
	"unicode"

	ical "github.com/arran4/golang-ical"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"cecal/internal/model"
)

const (
	// ContentType is the MIME type of exported calendars.
	ContentType  = "text/calendar;charset=utf-8"
	ProductID    = "-//Consejeria Emocional//Calendario de Eventos//ES"
	CalendarName = "Consejería Emocional"
)

// Exporter renders events as iCalendar documents.
type Exporter struct {
	// Location interprets feed dates and schedule times. Defaults to time.Local.
	Location *time.Location
	// BaseURL, when set, is used for event URL fallbacks and the UID domain.
	BaseURL string
	// Now stamps DTSTAMP. Defaults to time.Now.
	Now func() time.Time
}

// Export returns a VCALENDAR holding a single VEVENT for ev.
func (x Exporter) Export(ev model.Event) string {
	return x.ExportAll([]model.Event{ev})
}

// ExportAll returns one VCALENDAR holding a VEVENT per event.
func (x Exporter) ExportAll(events []model.Event) string {
	return x.Calendar(events).Serialize()
}

// Calendar builds the calendar object for events.
func (x Exporter) Calendar(events []model.Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	cal.SetXWRCalName(CalendarName)
	if loc := x.location(); loc != time.Local {
		cal.SetXWRTimezone(loc.String())
	}

	now := x.now()
	for _, ev := range events {
		x.addEvent(cal, ev, now)
	}
	return cal
}

func (x Exporter) addEvent(cal *ical.Calendar, ev model.Event, now time.Time) {
	start, end := Times(ev, x.location())

	vev := cal.AddEvent(x.uid(ev))
	vev.SetDtStampTime(now)
	vev.SetStartAt(start)
	vev.SetEndAt(end)
	vev.SetSummary(ev.Title)
	if ev.Description != "" {
		vev.SetDescription(ev.Description)
	}
	if ev.Location != "" {
		vev.SetLocation(ev.Location)
	}
	vev.AddProperty(ical.ComponentPropertyCategories, ev.Category.Label())
	if u := x.eventURL(ev); u != "" {
		vev.SetURL(u)
	}
}

func (x Exporter) uid(ev model.Event) string {
	host := "cecal"
	if u, err := url.Parse(x.BaseURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return ev.ID + "@" + host
}

func (x Exporter) eventURL(ev model.Event) string {
	if ev.RegistrationURL != "" {
		return ev.RegistrationURL
	}
	if x.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(x.BaseURL, "/") + "/events/" + url.PathEscape(ev.ID)
}

func (x Exporter) location() *time.Location {
	if x.Location == nil {
		return time.Local
	}
	return x.Location
}

func (x Exporter) now() time.Time {
	if x.Now == nil {
		return time.Now()
	}
	return x.Now()
}

// Filename returns a download name such as "taller-de-ansiedad.ics".
func Filename(ev model.Event) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	title, _, err := transform.String(t, ev.Title)
	if err != nil {
		title = ev.Title
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		slug = "evento"
	}
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	return slug + ".ics"
}
