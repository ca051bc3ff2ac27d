package feed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cecal/internal/model"
)

// ErrInvalidDate is returned for date strings that cannot be placed on a calendar.
var ErrInvalidDate = errors.New("invalid date")

var isoLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateTime,
}

// ParseDate parses the feed's date strings.
//
// Slash-delimited values with three parts are read as M/D/YYYY unless the
// first component exceeds 12 while the second does not, in which case they
// are read as D/M/YYYY. Two-digit years mean 20YY. Anything else must be an
// ISO date or date-time; only the date part is kept.
func ParseDate(s string) (model.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.Date{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}

	if strings.Contains(s, "/") {
		return parseSlashDate(s)
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.DateOf(t), nil
		}
	}
	return model.Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func parseSlashDate(s string) (model.Date, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return model.Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if !allDigits(p) {
			return model.Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return model.Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		nums[i] = n
	}

	month, day, year := nums[0], nums[1], nums[2]
	if month > 12 && day <= 12 {
		month, day = day, month
	}
	if len(strings.TrimSpace(parts[2])) <= 2 {
		year += 2000
	}
	return validDate(year, month, day, s)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func validDate(year, month, day int, raw string) (model.Date, error) {
	if year < 1 || year > 9999 || month < 1 || month > 12 || day < 1 {
		return model.Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	if day > daysIn(time.Month(month), year) {
		return model.Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return model.Date{Year: year, Month: time.Month(month), Day: day}, nil
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
