package events

import (
	"slices"
	"strings"
	"time"
)

// Layouts accepted for API date strings, most specific first. Strings without
// a zone are read in the caller's location.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseInstant parses an ISO-8601 date or date-time.
func ParseInstant(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type datedString struct {
	raw string
	t   time.Time
	ok  bool
}

// SortDates returns dates ordered ascending with duplicate instants removed.
// The first spelling of an instant wins. Unparseable strings are kept once
// each and sort after every parseable date.
func SortDates(dates []string, loc *time.Location) []string {
	parsed := make([]datedString, 0, len(dates))
	for _, d := range dates {
		t, ok := ParseInstant(d, loc)
		parsed = append(parsed, datedString{raw: d, t: t, ok: ok})
	}

	slices.SortStableFunc(parsed, func(a, b datedString) int {
		switch {
		case a.ok && !b.ok:
			return -1
		case !a.ok && b.ok:
			return 1
		case a.ok && b.ok:
			return a.t.Compare(b.t)
		default:
			return strings.Compare(a.raw, b.raw)
		}
	})

	out := make([]string, 0, len(parsed))
	for i, p := range parsed {
		if i > 0 {
			prev := parsed[i-1]
			if p.ok && prev.ok && p.t.Equal(prev.t) {
				continue
			}
			if !p.ok && !prev.ok && p.raw == prev.raw {
				continue
			}
		}
		out = append(out, p.raw)
	}
	return out
}
