package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"whatson/internal/events"
	appLog "whatson/internal/log"
	"whatson/internal/model"
)

const (
	defaultProductID = "-//whatson//Event Listings//EN"
	defaultDuration  = 2 * time.Hour
	icalUTCLayout    = "20060102T150405Z"
)

// uidNamespace scopes the name-based UUIDs of exported events.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://whatson.local/events"))

// ExportConfig controls feed generation.
type ExportConfig struct {
	// Location reads zone-less dates. If nil, time.Local is used.
	Location *time.Location
	// Duration is the assumed length of each occurrence; the API carries no
	// end times. Zero means two hours.
	Duration time.Duration
	// ProductID is the PRODID of the calendar.
	ProductID string
	// Now stamps DTSTAMP. Zero means time.Now.
	Now time.Time
}

// Export renders grouped events as an iCalendar feed: one VEVENT per grouped
// event, its earliest occurrence as DTSTART and every later one as an RDATE.
// Events without a parseable date are left out.
func Export(grouped []model.GroupedEvent, cfg ExportConfig) string {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Duration <= 0 {
		cfg.Duration = defaultDuration
	}
	if cfg.ProductID == "" {
		cfg.ProductID = defaultProductID
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(cfg.ProductID)

	skipped := 0
	for _, g := range grouped {
		occ := occurrences(g, cfg.Location)
		if len(occ) == 0 {
			skipped++
			continue
		}

		ve := cal.AddEvent(EventUID(g))
		ve.SetDtStampTime(cfg.Now)
		ve.SetSummary(g.Title)
		ve.SetStartAt(occ[0])
		ve.SetEndAt(occ[0].Add(cfg.Duration))
		if g.Description != "" {
			ve.SetDescription(g.Description)
		}
		if g.URL != "" {
			ve.SetURL(g.URL)
		}
		// One CATEGORIES line per tag; the library escapes the text.
		for _, c := range g.Category {
			if c != "" {
				ve.AddProperty(ical.ComponentPropertyCategories, c)
			}
		}
		for _, t := range occ[1:] {
			ve.AddProperty(ical.ComponentProperty("RDATE"), t.UTC().Format(icalUTCLayout))
		}
	}

	if skipped > 0 {
		appLog.Debug("ics export skipped undated events", "skipped", skipped)
	}
	appLog.Debug("ics export completed", "event_count", len(grouped)-skipped)
	return cal.Serialize()
}

// EventUID is stable across exports for the same title.
func EventUID(g model.GroupedEvent) string {
	return uuid.NewSHA1(uidNamespace, []byte(g.Title)).String()
}

// occurrences returns the parseable occurrence instants in ascending order as
// computed by an rrule set of RDATEs.
func occurrences(g model.GroupedEvent, loc *time.Location) []time.Time {
	var set rrule.Set
	n := 0
	for _, d := range g.Occurrences() {
		t, ok := events.ParseInstant(d, loc)
		if !ok {
			continue
		}
		set.RDate(t.UTC())
		n++
	}
	if n == 0 {
		return nil
	}
	return set.All()
}
