// Package events groups normalized events by title and filters the grouped
// list by the caller's selection.
package events

import (
	"time"

	"whatson/internal/model"
)

// Group merges events sharing an exact, case-sensitive title into one
// GroupedEvent, in order of first appearance. Zone-less dates are read in
// time.Local.
func Group(events []model.Event) []model.GroupedEvent {
	return GroupIn(events, time.Local)
}

// GroupIn is Group with an explicit location for zone-less dates.
//
// The first event seen for a title supplies every field except Dates; each
// later event only contributes its Date. Dates are sorted and de-duplicated
// before returning.
func GroupIn(events []model.Event, loc *time.Location) []model.GroupedEvent {
	index := make(map[string]int, len(events))
	out := make([]model.GroupedEvent, 0, len(events))

	for _, ev := range events {
		if i, ok := index[ev.Title]; ok {
			out[i].Dates = append(out[i].Dates, ev.Date)
			continue
		}
		index[ev.Title] = len(out)
		out = append(out, model.GroupedEvent{
			Event: ev,
			Dates: []string{ev.Date},
		})
	}

	for i := range out {
		out[i].Dates = SortDates(out[i].Dates, loc)
	}
	return out
}

// Flatten expands grouped events back into one Event per date.
func Flatten(grouped []model.GroupedEvent) []model.Event {
	out := make([]model.Event, 0, len(grouped))
	for _, g := range grouped {
		for _, d := range g.Occurrences() {
			ev := g.Event
			ev.Date = d
			out = append(out, ev)
		}
	}
	return out
}
