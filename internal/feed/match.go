package feed

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "cecal/internal/log"
	"cecal/internal/model"
)

// maxEventDays caps Days for events with absurd spans (bad feed data).
const maxEventDays = 366

// Matches reports whether ev is on date d: d equals the start, equals the
// end, or lies strictly between them.
func Matches(ev model.Event, d model.Date) bool {
	end := ev.LastDay()
	return d.Equal(ev.Start) || d.Equal(end) || (d.After(ev.Start) && d.Before(end))
}

// EventsOn returns the events on date d, in feed order.
func EventsOn(events []model.Event, d model.Date) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range events {
		if Matches(ev, d) {
			out = append(out, ev)
		}
	}
	return out
}

// EventsInRange returns events whose [Start, End] overlaps [from, to].
func EventsInRange(events []model.Event, from, to model.Date) []model.Event {
	out := make([]model.Event, 0)
	if to.Before(from) {
		return out
	}
	for _, ev := range events {
		if ev.LastDay().Before(from) || ev.Start.After(to) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// EventsInMonth returns events overlapping the given month.
func EventsInMonth(events []model.Event, year int, month time.Month) []model.Event {
	first := model.NewDate(year, month, 1)
	last := model.NewDate(year, month+1, 0)
	return EventsInRange(events, first, last)
}

// FilterCategory keeps events of category c. An empty c keeps everything.
func FilterCategory(events []model.Event, c model.Category) []model.Event {
	if c == "" {
		return events
	}
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.Category == c {
			out = append(out, ev)
		}
	}
	return out
}

// Upcoming returns up to n events that have not ended before from, ordered
// by start date. n <= 0 means no limit.
func Upcoming(events []model.Event, from model.Date, n int) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range events {
		if !ev.LastDay().Before(from) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Days lists every date ev covers, start and end included.
func Days(ev model.Event) []model.Date {
	start := ev.Start.In(time.UTC)
	end := ev.LastDay().In(time.UTC)
	if limit := start.AddDate(0, 0, maxEventDays-1); end.After(limit) {
		appLog.Warn("feed: event span truncated", "id", ev.ID, "start", ev.Start, "end", ev.End, "max_days", maxEventDays)
		end = limit
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: start,
		Until:   end,
	})
	if err != nil {
		appLog.Error("feed: failed to build day rule", err, "id", ev.ID)
		return []model.Date{ev.Start}
	}

	times := r.All()
	out := make([]model.Date, 0, len(times))
	for _, t := range times {
		out = append(out, model.DateOf(t))
	}
	return out
}
