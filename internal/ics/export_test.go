package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cecal/internal/feed"
	"cecal/internal/model"
)

var fixedNow = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		in   string
		want [][2]int
	}{
		{"10:00-11:00am", [][2]int{{10, 0}, {11, 0}}},
		{"3:30-5:30pm", [][2]int{{15, 30}, {17, 30}}},
		{"11:00-1:00pm", [][2]int{{11, 0}, {13, 0}}},
		{"9:00 a.m. - 12:30 p.m.", [][2]int{{9, 0}, {12, 30}}},
		{"12:00am", [][2]int{{0, 0}}},
		{"14:00 a 16:00", [][2]int{{14, 0}, {16, 0}}},
		{"8:15 en el campus", [][2]int{{8, 15}}},
		{"10:00am-2:00", [][2]int{{10, 0}, {14, 0}}},
		{"10:00am-11:30", [][2]int{{10, 0}, {11, 30}}},
		{"2:00pm-3:00", [][2]int{{14, 0}, {15, 0}}},
		{"Por definir", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseSchedule(tt.in)
			require.Len(t, got, len(tt.want))
			for i, w := range tt.want {
				assert.Equal(t, w[0], got[i].hour, "hour %d", i)
				assert.Equal(t, w[1], got[i].minute, "minute %d", i)
			}
		})
	}
}

func TestTimes(t *testing.T) {
	base := model.Event{Start: model.NewDate(2025, 3, 15), End: model.NewDate(2025, 3, 15)}

	ev := base
	ev.Schedule = "3:30-5:30pm"
	start, end := Times(ev, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 15, 15, 30, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 3, 15, 17, 30, 0, 0, time.UTC), end)

	ev = base
	ev.Schedule = "10:00"
	start, end = Times(ev, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC), start)
	assert.Equal(t, start.Add(time.Hour), end)

	ev = base
	start, end = Times(ev, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, start.Add(time.Hour), end)

	ev = base
	ev.End = model.NewDate(2025, 3, 17)
	ev.Schedule = "9:00-13:00"
	start, end = Times(ev, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 3, 17, 13, 0, 0, 0, time.UTC), end)
}

func TestTimesConvertsToUTC(t *testing.T) {
	bogota := time.FixedZone("COT", -5*60*60)
	ev := model.Event{ID: "1", Title: "x", Start: model.NewDate(2025, 3, 15), End: model.NewDate(2025, 3, 15), Schedule: "10:00-11:00am"}

	out := Exporter{Location: bogota, Now: fixedNow}.Export(ev)
	assert.Contains(t, out, "DTSTART:20250315T150000Z")
	assert.Contains(t, out, "DTEND:20250315T160000Z")
}

func TestExportFeedScenario(t *testing.T) {
	body := []byte(`{"eventos":[{"id":1,"titulo":"Taller A","fechaInicio":"15/3/2025","fechaFin":"15/3/2025","horario":"10:00-11:00am","categoria":"Taller"}]}`)
	events, skipped, err := feed.DecodeFeed(body)
	require.NoError(t, err)
	require.Empty(t, skipped)

	onDay := feed.EventsOn(events, model.NewDate(2025, 3, 15))
	require.Len(t, onDay, 1)
	assert.Equal(t, "Taller A", onDay[0].Title)

	out := Exporter{Location: time.UTC, BaseURL: "https://consejeria.example.edu", Now: fixedNow}.Export(onDay[0])

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"BEGIN:VEVENT",
		"UID:1@consejeria.example.edu",
		"DTSTAMP:20250301T120000Z",
		"DTSTART:20250315T100000Z",
		"DTEND:20250315T110000Z",
		"SUMMARY:Taller A",
		"END:VEVENT",
		"END:VCALENDAR",
	} {
		assert.Contains(t, out, want)
	}
}

func TestExportRoundTrip(t *testing.T) {
	events := []model.Event{
		{
			ID: "a", Title: "Grupo de apoyo", Location: "Auditorio Central",
			Description: "Encuentro semanal", Category: model.CategoryGrupo,
			Start: model.NewDate(2025, 4, 2), End: model.NewDate(2025, 4, 2), Schedule: "3:30-5:30pm",
		},
		{
			ID: "b", Title: "Curso intensivo", Location: "Sala 4",
			Category: model.CategoryCurso,
			Start:    model.NewDate(2025, 4, 7), End: model.NewDate(2025, 4, 9),
		},
	}

	loc := time.FixedZone("COT", -5*60*60)
	out := Exporter{Location: loc, Now: fixedNow}.ExportAll(events)

	entries, err := Parse([]byte(out))
	require.NoError(t, err)
	require.Len(t, entries, len(events))

	for i, ev := range events {
		e := entries[i]
		assert.Equal(t, ev.ID+"@cecal", e.UID)
		assert.Equal(t, ev.Title, e.Summary)
		assert.Equal(t, ev.Location, e.Location)
		assert.Equal(t, ev.Start, model.DateOf(e.Start.In(loc)))
		assert.True(t, e.End.After(e.Start))
	}
}

func TestExportRoundTripEscapesText(t *testing.T) {
	ev := model.Event{
		ID:          "esc",
		Title:       "Taller: ansiedad, estrés; manejo",
		Location:    "Edificio B, piso 2; sala 3",
		Description: "Primera línea\nSegunda línea, con coma; y punto y coma\\fin",
		Category:    model.CategoryTaller,
		Start:       model.NewDate(2025, 5, 6),
		End:         model.NewDate(2025, 5, 6),
	}

	out := Exporter{Location: time.UTC, Now: fixedNow}.Export(ev)
	assert.Contains(t, out, `SUMMARY:Taller: ansiedad\, estrés\; manejo`)
	assert.NotContains(t, out, "Primera línea\nSegunda línea, con")

	entries, err := Parse([]byte(out))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ev.Title, entries[0].Summary)
	assert.Equal(t, ev.Location, entries[0].Location)
	assert.Equal(t, ev.Description, entries[0].Description)
}

func TestExportOmitsEmptyFields(t *testing.T) {
	ev := model.Event{ID: "x", Title: "Solo título", Start: model.NewDate(2025, 1, 1), End: model.NewDate(2025, 1, 1)}
	out := Exporter{Location: time.UTC, Now: fixedNow}.Export(ev)
	assert.NotContains(t, out, "LOCATION")
	assert.NotContains(t, out, "DESCRIPTION")
	assert.NotContains(t, out, "URL")
	assert.Equal(t, 1, strings.Count(out, "BEGIN:VEVENT"))
}

func TestExportURL(t *testing.T) {
	ev := model.Event{ID: "7", Title: "x", Start: model.NewDate(2025, 1, 1), End: model.NewDate(2025, 1, 1)}
	out := Exporter{Location: time.UTC, BaseURL: "https://c.example/", Now: fixedNow}.Export(ev)
	assert.Contains(t, out, "URL:https://c.example/events/7")

	ev.RegistrationURL = "https://forms.example/r"
	out = Exporter{Location: time.UTC, BaseURL: "https://c.example/", Now: fixedNow}.Export(ev)
	assert.Contains(t, out, "URL:https://forms.example/r")
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "taller-de-ansiedad-2025.ics", Filename(model.Event{Title: "Taller de Ansiedad (2025)"}))
	assert.Equal(t, "activacion-fisica.ics", Filename(model.Event{Title: "¡Activación física!"}))
	assert.Equal(t, "evento.ics", Filename(model.Event{Title: "???"}))
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse(nil)
	assert.Error(t, err)
}
