package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	appLog "cecal/internal/log"
	"cecal/internal/model"
)

// ErrMalformedFeed is returned when a payload is not {"eventos": [...]}.
var ErrMalformedFeed = errors.New("malformed feed")

const untitled = "Evento sin título"

// eventIDSpace namespaces the ids derived for entries that carry none.
var eventIDSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:cecal:evento"))

// Canonical field keys. Raw keys are folded (accents removed, lower-cased,
// spaces and underscores dropped) before lookup, so "Fecha Inicio",
// "fechaInicio" and "fecha_inicio" all resolve to keyStart.
const (
	keyID           = "id"
	keyTitle        = "titulo"
	keyDescription  = "descripcion"
	keyStart        = "fechainicio"
	keyEnd          = "fechafin"
	keySchedule     = "horario"
	keyLocation     = "ubicacion"
	keyCategory     = "categoria"
	keyModality     = "modalidad"
	keyFacilities   = "facilidades"
	keyStatus       = "estado"
	keyRegistration = "urlregistro"
)

// Skipped records a feed entry that could not be placed on the calendar.
type Skipped struct {
	ID     string `json:"id,omitempty"`
	Title  string `json:"titulo,omitempty"`
	Reason string `json:"reason"`
}

// rawFields is a feed object re-keyed by folded key.
type rawFields struct {
	values map[string]candidate
}

type candidate struct {
	key   string
	value string
}

func newRawFields(raw map[string]any) rawFields {
	rf := rawFields{values: make(map[string]candidate, len(raw))}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := stringify(raw[k])
		if v == "" {
			continue
		}
		fk := foldKey(k)
		prev, seen := rf.values[fk]
		// Plain keys ("titulo", "fechaInicio") beat accented or spaced
		// variants ("Título", "Fecha Inicio").
		if !seen || (!isPlainKey(prev.key) && isPlainKey(k)) {
			rf.values[fk] = candidate{key: k, value: v}
		}
	}
	return rf
}

func (rf rawFields) get(key string) string {
	return rf.values[key].value
}

func isPlainKey(k string) bool {
	return fold(k) == strings.ToLower(k) && !strings.ContainsAny(k, " _-")
}

func foldKey(k string) string {
	k = fold(k)
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(k)
}

// derivedID names an entry without an id by its content, so the same entry
// keeps its id across refreshes.
func derivedID(rf rawFields) string {
	parts := []string{
		rf.get(keyTitle),
		rf.get(keyStart),
		rf.get(keyEnd),
		rf.get(keySchedule),
		rf.get(keyLocation),
	}
	return uuid.NewSHA1(eventIDSpace, []byte(strings.Join(parts, "\x1f"))).String()
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// NormalizeEvent turns one raw feed object into the canonical record.
// Entries whose start or end date cannot be parsed are rejected with an
// error wrapping ErrInvalidDate.
func NormalizeEvent(raw map[string]any) (model.Event, error) {
	rf := newRawFields(raw)

	ev := model.Event{
		ID:              rf.get(keyID),
		Title:           rf.get(keyTitle),
		Description:     rf.get(keyDescription),
		Schedule:        rf.get(keySchedule),
		Location:        rf.get(keyLocation),
		Category:        NormalizeCategory(rf.get(keyCategory)),
		Modality:        rf.get(keyModality),
		Facilities:      rf.get(keyFacilities),
		Status:          rf.get(keyStatus),
		RegistrationURL: rf.get(keyRegistration),
	}
	if ev.ID == "" {
		ev.ID = derivedID(rf)
	}
	if ev.Title == "" {
		ev.Title = untitled
	}

	start, err := ParseDate(rf.get(keyStart))
	if err != nil {
		return ev, fmt.Errorf("fechaInicio: %w", err)
	}
	ev.Start = start
	ev.End = start

	if rawEnd := rf.get(keyEnd); rawEnd != "" {
		end, err := ParseDate(rawEnd)
		if err != nil {
			return ev, fmt.Errorf("fechaFin: %w", err)
		}
		if end.Before(start) {
			appLog.Debug("feed: end date before start, clamping", "id", ev.ID, "start", start, "end", end)
			end = start
		}
		ev.End = end
	}

	return ev, nil
}

// DecodeFeed parses a feed payload and normalizes every entry. Entries that
// cannot be normalized are returned in skipped and logged; they never abort
// the decode.
func DecodeFeed(body []byte) (events []model.Event, skipped []Skipped, err error) {
	var doc struct {
		Eventos *[]map[string]any `json:"eventos"`
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}
	if doc.Eventos == nil {
		return nil, nil, fmt.Errorf("%w: missing eventos array", ErrMalformedFeed)
	}

	events = make([]model.Event, 0, len(*doc.Eventos))
	for i, raw := range *doc.Eventos {
		ev, err := NormalizeEvent(raw)
		if err != nil {
			appLog.Warn("feed: skipping event", "index", i, "id", ev.ID, "title", ev.Title, "reason", err.Error())
			skipped = append(skipped, Skipped{ID: ev.ID, Title: ev.Title, Reason: err.Error()})
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}
