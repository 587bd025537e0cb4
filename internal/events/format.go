package events

import (
	"strings"
	"time"

	"whatson/internal/model"
)

// FormatDates renders occurrence dates as "Fri 1, Fri 8 & Fri 15 March 2024".
// Month and year come from the earliest date. Unparseable dates are skipped;
// with none left the result is "".
func FormatDates(dates []string, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var times []time.Time
	for _, d := range SortDates(dates, loc) {
		if t, ok := ParseInstant(d, loc); ok {
			times = append(times, t.In(loc))
		}
	}
	if len(times) == 0 {
		return ""
	}

	days := make([]string, 0, len(times))
	for _, t := range times {
		days = append(days, t.Format("Mon 2"))
	}

	label := days[0]
	if n := len(days); n > 1 {
		label = strings.Join(days[:n-1], ", ") + " & " + days[n-1]
	}
	return label + " " + times[0].Format(MonthLayout)
}

// FormatTime is the card time label: Panthers games carry a free-text time,
// everything else shows the occurrence's clock time, e.g. "7:00 PM".
func FormatTime(ev model.Event, loc *time.Location) string {
	if ev.IsPanthersGame {
		return ev.Time
	}
	if loc == nil {
		loc = time.Local
	}
	t, ok := ParseInstant(ev.Date, loc)
	if !ok {
		return ""
	}
	return t.In(loc).Format("3:04 PM")
}
