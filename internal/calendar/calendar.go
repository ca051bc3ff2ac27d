// Package calendar builds the month and week grids and the paginated day
// list the web layer renders. It holds no state; callers pass in the
// current event list.
package calendar

import (
	"time"

	"cecal/internal/feed"
	"cecal/internal/model"
)

var monthNames = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

var weekdayNames = [...]string{"dom", "lun", "mar", "mié", "jue", "vie", "sáb"}

// MonthName returns the Spanish month name.
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthNames[m-1]
}

// Cell is one day in a grid.
type Cell struct {
	Date    model.Date
	InMonth bool
	IsToday bool
	Events  []model.Event
}

// Categories returns the distinct categories of the cell's events, in
// first-seen order.
func (c Cell) Categories() []model.Category {
	seen := make(map[model.Category]bool, len(c.Events))
	out := make([]model.Category, 0, len(c.Events))
	for _, ev := range c.Events {
		if !seen[ev.Category] {
			seen[ev.Category] = true
			out = append(out, ev.Category)
		}
	}
	return out
}

func (c Cell) HasEvents() bool { return len(c.Events) > 0 }

// Month is a month grid of whole weeks.
type Month struct {
	Year     int
	Month    time.Month
	Title    string
	Weekdays []string
	Weeks    [][]Cell
	Prev     model.Date
	Next     model.Date
}

// Week is a seven-day strip.
type Week struct {
	Start    model.Date
	End      model.Date
	Weekdays []string
	Days     []Cell
	Prev     model.Date
	Next     model.Date
}

// BuildMonth lays out the month containing (year, month) as full weeks
// starting on weekStart, attaching the events on each day.
func BuildMonth(year int, month time.Month, weekStart time.Weekday, events []model.Event, today model.Date) Month {
	first := model.NewDate(year, month, 1)
	last := model.NewDate(year, month+1, 0)

	gridStart := startOfWeek(first, weekStart)
	gridEnd := startOfWeek(last, weekStart).AddDays(6)

	inView := feed.EventsInRange(events, gridStart, gridEnd)

	m := Month{
		Year:     first.Year,
		Month:    first.Month,
		Title:    MonthName(first.Month),
		Weekdays: weekdayHeaders(weekStart),
		Prev:     first.AddDays(-1),
		Next:     last.AddDays(1),
	}

	for d := gridStart; !d.After(gridEnd); d = d.AddDays(7) {
		week := make([]Cell, 0, 7)
		for i := 0; i < 7; i++ {
			day := d.AddDays(i)
			week = append(week, Cell{
				Date:    day,
				InMonth: day.Month == first.Month,
				IsToday: day.Equal(today),
				Events:  feed.EventsOn(inView, day),
			})
		}
		m.Weeks = append(m.Weeks, week)
	}
	return m
}

// BuildWeek lays out the week containing date.
func BuildWeek(date model.Date, weekStart time.Weekday, events []model.Event, today model.Date) Week {
	start := startOfWeek(date, weekStart)
	end := start.AddDays(6)
	inView := feed.EventsInRange(events, start, end)

	w := Week{
		Start:    start,
		End:      end,
		Weekdays: weekdayHeaders(weekStart),
		Prev:     start.AddDays(-7),
		Next:     start.AddDays(7),
	}
	for i := 0; i < 7; i++ {
		day := start.AddDays(i)
		w.Days = append(w.Days, Cell{
			Date:    day,
			InMonth: day.Month == date.Month,
			IsToday: day.Equal(today),
			Events:  feed.EventsOn(inView, day),
		})
	}
	return w
}

func startOfWeek(d model.Date, weekStart time.Weekday) model.Date {
	offset := (int(d.Weekday()) - int(weekStart) + 7) % 7
	return d.AddDays(-offset)
}

func weekdayHeaders(weekStart time.Weekday) []string {
	out := make([]string, 7)
	for i := range out {
		out[i] = weekdayNames[(int(weekStart)+i)%7]
	}
	return out
}
