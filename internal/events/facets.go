package events

import (
	"time"
	"unicode"
	"unicode/utf8"

	"whatson/internal/model"
)

// Categories returns "all" followed by every category tag in order of first
// appearance.
func Categories(grouped []model.GroupedEvent) []string {
	seen := map[string]bool{CategoryAll: true}
	out := []string{CategoryAll}
	for _, g := range grouped {
		for _, c := range g.Category {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// Months returns "all" followed by the MonthLayout label of every occurrence
// month in order of first appearance. Unparseable dates contribute nothing.
func Months(grouped []model.GroupedEvent, loc *time.Location) []string {
	if loc == nil {
		loc = time.Local
	}
	seen := map[string]bool{MonthAll: true}
	out := []string{MonthAll}
	for _, g := range grouped {
		for _, d := range g.Occurrences() {
			t, ok := ParseInstant(d, loc)
			if !ok {
				continue
			}
			label := t.In(loc).Format(MonthLayout)
			if seen[label] {
				continue
			}
			seen[label] = true
			out = append(out, label)
		}
	}
	return out
}

// FacetLabel upper-cases the first letter of a facet value for display.
func FacetLabel(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
