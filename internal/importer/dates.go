package importer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const dateFormat = "2006-01-02"

// DateRange is an inclusive performance period in UTC calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) String() string {
	return r.Start.Format(dateFormat) + " - " + r.End.Format(dateFormat)
}

// Equal compares calendar days, ignoring clock and zone.
func (r DateRange) Equal(start, end *time.Time) bool {
	if start == nil || end == nil {
		return false
	}
	return sameDay(r.Start, *start) && sameDay(r.End, *end)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func formatPeriod(start, end *time.Time) string {
	if start == nil || end == nil {
		return ""
	}
	return DateRange{Start: *start, End: *end}.String()
}

var rangeSeparators = []string{"–", "—", " - ", " to "}

// monthOnly reports whether a layout lacks a day component.
func monthOnly(layout string) bool {
	return !strings.Contains(strings.ReplaceAll(layout, "2006", ""), "2")
}

// parseDate tries each layout in order. Month-only values resolve to the
// first day of the month, or the last day when endOfMonth is set.
func parseDate(raw string, layouts []string, endOfMonth bool) (time.Time, error) {
	text := strings.Join(strings.Fields(raw), " ")
	if text == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, text)
		if err != nil {
			continue
		}
		if monthOnly(layout) && endOfMonth {
			t = t.AddDate(0, 1, -1)
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("no layout matched %q", text)
}

// ParseDatePair parses separate start and end values. Both must parse.
func ParseDatePair(startRaw, endRaw string, layouts []string) (DateRange, error) {
	start, err := parseDate(startRaw, layouts, false)
	if err != nil {
		return DateRange{}, &DateParseError{Value: startRaw, Err: err}
	}
	end, err := parseDate(endRaw, layouts, true)
	if err != nil {
		return DateRange{}, &DateParseError{Value: endRaw, Err: err}
	}
	if end.Before(start) {
		return DateRange{}, &DateParseError{Value: startRaw + " / " + endRaw, Err: errors.New("end precedes start")}
	}
	return DateRange{Start: start, End: end}, nil
}

// ParseDateRange parses a single "start – end" value.
func ParseDateRange(raw string, layouts []string) (DateRange, error) {
	for _, sep := range rangeSeparators {
		if startRaw, endRaw, ok := strings.Cut(raw, sep); ok {
			return ParseDatePair(startRaw, endRaw, layouts)
		}
	}
	return DateRange{}, &DateParseError{Value: raw, Err: errors.New("missing range separator")}
}
