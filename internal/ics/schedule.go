package ics

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cecal/internal/model"
)

var (
	clockRe    = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*(?:([aApP])\.?\s*[mM]\.?(?:[^a-zA-Z]|$))?`)
	meridiemRe = regexp.MustCompile(`(?:^|[^a-zA-Z])([aApP])\.?\s*[mM]\.?(?:[^a-zA-Z]|$)`)
)

type clock struct {
	hour, minute int
	// meridiem is 'a', 'p' or 0 when the token had no marker of its own.
	meridiem byte
}

func (c clock) minutes() int { return c.hour*60 + c.minute }

// parseSchedule extracts HH:MM tokens from free text such as "3:30-5:30pm"
// or "10:00 a.m. - 12:00 m". A marker trailing the last token applies to
// earlier tokens that lack one, unless that would put the start after the
// end ("11:00-1:00pm"). An unmarked end that would fall before a marked
// start is read as afternoon ("10:00am-2:00").
func parseSchedule(s string) []clock {
	idx := clockRe.FindAllStringSubmatchIndex(s, -1)
	if len(idx) == 0 {
		return nil
	}

	out := make([]clock, 0, len(idx))
	for _, m := range idx {
		h, _ := strconv.Atoi(s[m[2]:m[3]])
		mi, _ := strconv.Atoi(s[m[4]:m[5]])
		if h > 23 || mi > 59 {
			continue
		}
		c := clock{hour: h, minute: mi}
		if m[6] >= 0 {
			c.meridiem = lower(s[m[6]])
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}

	last := idx[len(idx)-1]
	shared := out[len(out)-1].meridiem
	if shared == 0 {
		if sub := meridiemRe.FindStringSubmatch(s[last[1]:]); sub != nil {
			shared = lower(sub[1][0])
		}
	}

	for i := range out {
		own := out[i].meridiem
		switch {
		case own != 0:
			out[i].hour = apply(out[i].hour, own)
		case shared != 0:
			h := apply(out[i].hour, shared)
			if i == 0 && len(out) > 1 && shared == 'p' {
				end := out[len(out)-1]
				endH := end.hour
				if end.meridiem != 0 {
					endH = apply(endH, end.meridiem)
				} else {
					endH = apply(endH, shared)
				}
				if h*60+out[i].minute >= endH*60+end.minute {
					h = out[i].hour
				}
			}
			out[i].hour = h
		}
	}

	if len(out) > 1 && shared == 0 && out[0].meridiem != 0 {
		end := &out[1]
		if end.meridiem == 0 && end.hour < 12 && end.minutes() <= out[0].minutes() {
			end.hour += 12
		}
	}
	return out
}

func apply(hour int, meridiem byte) int {
	if hour > 12 {
		return hour
	}
	switch meridiem {
	case 'p':
		if hour < 12 {
			return hour + 12
		}
	case 'a':
		if hour == 12 {
			return 0
		}
	}
	return hour
}

func lower(b byte) byte {
	return strings.ToLower(string(b))[0]
}

// Times derives the event's start and end instants in loc: the first
// schedule token sets the start time on the start date, the second the end
// time on the end date. Without a second token (or without any time text)
// the end is one hour after the start.
func Times(ev model.Event, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.Local
	}
	start = ev.Start.In(loc)
	clocks := parseSchedule(ev.Schedule)

	if len(clocks) > 0 {
		start = start.Add(time.Duration(clocks[0].minutes()) * time.Minute)
	}
	end = start.Add(time.Hour)

	if len(clocks) > 1 {
		candidate := ev.End.In(loc).Add(time.Duration(clocks[1].minutes()) * time.Minute)
		if candidate.After(start) {
			end = candidate
		}
	}
	return start, end
}
