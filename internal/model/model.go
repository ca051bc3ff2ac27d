package model

import (
	"fmt"
	"time"
)

// Date is a calendar day without time of day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// NewDate builds a Date, normalizing overflowing components the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(int(d.Month) - int(o.Month))
	default:
		return sign(d.Day - o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }
func (d Date) Equal(o Date) bool  { return d.Compare(o) == 0 }

func (d Date) Weekday() time.Weekday {
	return d.In(time.UTC).Weekday()
}

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	t, err := time.Parse(time.DateOnly, string(b))
	if err != nil {
		return err
	}
	*d = DateOf(t)
	return nil
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// Event is the canonical record every feed entry is normalized into at
// ingestion. Nothing downstream of the feed package looks at raw keys.
type Event struct {
	ID          string   `json:"id"`
	Title       string   `json:"titulo"`
	Description string   `json:"descripcion,omitempty"`
	Category    Category `json:"categoria"`

	Start Date `json:"fechaInicio"`
	End   Date `json:"fechaFin"`

	// Schedule is the free-text time range from the feed, e.g. "3:30-5:30pm".
	Schedule string `json:"horario,omitempty"`

	Location        string `json:"ubicacion,omitempty"`
	Modality        string `json:"modalidad,omitempty"`
	Facilities      string `json:"facilidades,omitempty"`
	Status          string `json:"estado,omitempty"`
	RegistrationURL string `json:"urlRegistro,omitempty"`
}

// LastDay is the event's end date, or its start when no end is set.
func (e Event) LastDay() Date {
	if e.End.IsZero() || e.End.Before(e.Start) {
		return e.Start
	}
	return e.End
}

// SingleDay reports whether the event starts and ends on the same date.
func (e Event) SingleDay() bool {
	return e.Start.Equal(e.LastDay())
}
