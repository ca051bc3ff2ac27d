// Package share builds the links behind the "compartir" actions of an event.
package share

import (
	"net/url"
	"strings"

	"cecal/internal/model"
)

// Payload is the object handed to the browser's Web Share API.
type Payload struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

// Links holds every share target for one event.
type Links struct {
	Page     string  `json:"page"`
	ICS      string  `json:"ics"`
	Mailto   string  `json:"mailto"`
	Facebook string  `json:"facebook"`
	X        string  `json:"x"`
	WhatsApp string  `json:"whatsapp"`
	LinkedIn string  `json:"linkedin"`
	Payload  Payload `json:"web_share"`
}

// For builds the share links of ev, with absolute URLs under baseURL.
func For(ev model.Event, baseURL string) Links {
	base := strings.TrimRight(baseURL, "/")
	page := base + "/events/" + url.PathEscape(ev.ID)
	text := Summary(ev)

	return Links{
		Page:     page,
		ICS:      base + "/api/events/" + url.PathEscape(ev.ID) + "/ics",
		Mailto:   mailto(ev.Title, text+"\n\n"+page),
		Facebook: "https://www.facebook.com/sharer/sharer.php?" + url.Values{"u": {page}}.Encode(),
		X:        "https://twitter.com/intent/tweet?" + url.Values{"text": {ev.Title}, "url": {page}}.Encode(),
		WhatsApp: "https://wa.me/?" + url.Values{"text": {ev.Title + " " + page}}.Encode(),
		LinkedIn: "https://www.linkedin.com/sharing/share-offsite/?" + url.Values{"url": {page}}.Encode(),
		Payload: Payload{
			Title: ev.Title,
			Text:  text,
			URL:   page,
		},
	}
}

// Summary is the plain-text blurb used in e-mails and the Web Share text.
func Summary(ev model.Event) string {
	lines := make([]string, 0, 4)
	if ev.Description != "" {
		lines = append(lines, ev.Description)
	}

	when := "Fecha: " + ev.Start.String()
	if !ev.SingleDay() {
		when += " al " + ev.End.String()
	}
	if ev.Schedule != "" {
		when += " (" + ev.Schedule + ")"
	}
	lines = append(lines, when)

	if ev.Location != "" {
		lines = append(lines, "Lugar: "+ev.Location)
	}
	return strings.Join(lines, "\n")
}

// mailto encodes subject and body with %20 for spaces; mail clients do not
// all decode '+'.
func mailto(subject, body string) string {
	q := url.Values{"subject": {subject}, "body": {body}}.Encode()
	return "mailto:?" + strings.ReplaceAll(q, "+", "%20")
}
