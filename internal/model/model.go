package model

// Event is a single normalized occurrence as produced from one API record.
// Values are never mutated once normalized; grouping copies them.
type Event struct {
	ID    string `json:"id"`    // unique per raw record, not per grouped entity
	Title string `json:"title"` // grouping key
	Date  string `json:"date"`  // ISO-8601 date-time of this occurrence

	Image        string `json:"image"` // resolved CDN URL or ""
	LargeImage   string `json:"largeImage,omitempty"`
	FeatureImage string `json:"featureImage,omitempty"`

	// Category holds at least one tag; "Other" when the source had none.
	Category    []string `json:"category"`
	Description string   `json:"description"`
	URL         string   `json:"url"`

	IsPanthersGame bool `json:"isPanthersGame"`

	// OnsaleDate / OffsaleDate bound the inclusive on-sale window.
	OnsaleDate  string `json:"onsaleDate"`
	OffsaleDate string `json:"offsaleDate"`

	ContentID    string   `json:"contentId"`
	Genre        []string `json:"genre"`
	ProductTypes []string `json:"productTypes"`

	When string `json:"when,omitempty"`
	Time string `json:"time,omitempty"`
}

// GroupedEvent is one display entity: the first Event seen for a title plus
// every occurrence date sharing that title.
//
// Dates is sorted ascending and free of duplicate instants.
type GroupedEvent struct {
	Event
	Dates []string `json:"dates"`
}

// Occurrences returns Dates, or the single Date when Dates is empty.
func (g GroupedEvent) Occurrences() []string {
	if len(g.Dates) > 0 {
		return g.Dates
	}
	return []string{g.Date}
}
