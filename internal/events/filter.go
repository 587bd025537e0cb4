package events

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"whatson/internal/model"
)

// Category routing values. Any other category string is a pass-through.
const (
	CategoryAll         = "all"
	CategoryPanthers    = "panthers"
	CategoryHospitality = "hospitality"

	// MonthAll disables month filtering; "" does too.
	MonthAll = "all"

	// MonthLayout is the "<MonthName> <Year>" label used for month facets.
	MonthLayout = "January 2006"
)

const hospitalityKeyword = "hospitality"

// Criteria is the caller's current selection.
type Criteria struct {
	// Category is CategoryAll, CategoryPanthers, CategoryHospitality or any
	// other value (no restriction).
	Category string
	// Tag is the secondary category tag, applied only when Category is
	// CategoryAll. "" and "all" mean no tag.
	Tag string
	// SearchTerm must appear in the title, case-insensitively.
	SearchTerm string
	// Month is a MonthLayout label, or "" / MonthAll.
	Month string
	// Location anchors month boundaries and zone-less dates; nil is time.Local.
	Location *time.Location
}

// Predicate reports whether a grouped event passes one filter.
type Predicate func(model.GroupedEvent) bool

// Predicates returns the filter chain in evaluation order: on-sale window,
// search, category, month.
func (c Criteria) Predicates(now time.Time) []Predicate {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return []Predicate{
		onSaleAt(now, loc),
		matchesSearch(c.SearchTerm),
		matchesCategory(c.Category, c.Tag),
		inMonth(c.Month, loc),
	}
}

// Filter applies criteria as of time.Now.
func Filter(grouped []model.GroupedEvent, c Criteria) []model.GroupedEvent {
	return FilterAt(grouped, c, time.Now())
}

// FilterAt keeps the grouped events passing every predicate, preserving
// order. The first failing predicate excludes an event.
func FilterAt(grouped []model.GroupedEvent, c Criteria, now time.Time) []model.GroupedEvent {
	preds := c.Predicates(now)
	out := make([]model.GroupedEvent, 0, len(grouped))
	for _, g := range grouped {
		if matchAll(g, preds) {
			out = append(out, g)
		}
	}
	return out
}

func matchAll(g model.GroupedEvent, preds []Predicate) bool {
	for _, p := range preds {
		if !p(g) {
			return false
		}
	}
	return true
}

// onSaleAt requires now within [onsaleDate, offsaleDate]. Missing or
// unparseable bounds exclude the event.
func onSaleAt(now time.Time, loc *time.Location) Predicate {
	return func(g model.GroupedEvent) bool {
		start, ok := ParseInstant(g.OnsaleDate, loc)
		if !ok {
			return false
		}
		end, ok := ParseInstant(g.OffsaleDate, loc)
		if !ok {
			return false
		}
		return !now.Before(start) && !now.After(end)
	}
}

func matchesSearch(term string) Predicate {
	if term == "" {
		return func(model.GroupedEvent) bool { return true }
	}
	return func(g model.GroupedEvent) bool {
		return containsFold(g.Title, term)
	}
}

func matchesCategory(category, tag string) Predicate {
	switch category {
	case CategoryPanthers:
		return func(g model.GroupedEvent) bool { return g.IsPanthersGame }
	case CategoryHospitality:
		return isHospitality
	case CategoryAll:
		if tag == "" || tag == CategoryAll {
			break
		}
		return func(g model.GroupedEvent) bool {
			for _, c := range g.Category {
				if c == tag {
					return true
				}
			}
			return false
		}
	}
	return func(model.GroupedEvent) bool { return true }
}

func isHospitality(g model.GroupedEvent) bool {
	if containsFold(g.Title, hospitalityKeyword) ||
		containsFold(g.When, hospitalityKeyword) ||
		containsFold(g.Description, hospitalityKeyword) ||
		containsFold(g.ContentID, hospitalityKeyword) {
		return true
	}
	for _, p := range g.ProductTypes {
		if containsFold(p, hospitalityKeyword) {
			return true
		}
	}
	for _, genre := range g.Genre {
		if containsFold(genre, hospitalityKeyword) {
			return true
		}
	}
	return false
}

// inMonth requires at least one occurrence inside the selected calendar
// month, both ends inclusive. An unparseable label matches nothing.
func inMonth(month string, loc *time.Location) Predicate {
	if month == "" || month == MonthAll {
		return func(model.GroupedEvent) bool { return true }
	}
	start, err := time.ParseInLocation(MonthLayout, strings.TrimSpace(month), loc)
	if err != nil {
		return func(model.GroupedEvent) bool { return false }
	}
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)

	return func(g model.GroupedEvent) bool {
		for _, d := range g.Occurrences() {
			t, ok := ParseInstant(d, loc)
			if ok && !t.Before(start) && !t.After(end) {
				return true
			}
		}
		return false
	}
}

func containsFold(s, substr string) bool {
	if substr == "" {
		return true
	}
	fold := cases.Fold()
	return strings.Contains(fold.String(s), fold.String(substr))
}
