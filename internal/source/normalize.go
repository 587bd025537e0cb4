package source

import (
	"strings"

	"golang.org/x/text/cases"

	"whatson/internal/model"
)

const (
	// DefaultCDNBase is where image file names from the API are served from.
	DefaultCDNBase = "https://d2gloyfobyb8yo.cloudfront.net/dbimages"

	untitledEvent   = "Untitled Event"
	defaultCategory = "Other"
)

// Normalize turns one raw API record into an Event. It never fails: absent or
// malformed fields take their documented defaults.
//
//	title          -> "Untitled Event" when absent or empty
//	image          -> <cdnBase>/<large_image|feature_image>, "" when neither
//	category       -> genre when it is a non-empty array, else ["Other"]
//	genre          -> genre when it is an array, else []
//	productTypes   -> product_types when it is an array, else []
//	isPanthersGame -> raw title contains "panthers", case-insensitively
//	other strings  -> ""
func Normalize(raw model.RawRecord, cdnBase string) model.Event {
	f := raw.Fields

	title := string(f.Title)
	if title == "" {
		title = untitledEvent
	}

	largeImage := string(f.LargeImage)
	featureImage := string(f.FeatureImage)

	category := []string{defaultCategory}
	genre := []string{}
	if f.Genre.Valid {
		genre = append(genre, f.Genre.Items...)
		if len(genre) > 0 {
			category = append([]string(nil), genre...)
		}
	}

	productTypes := []string{}
	if f.ProductTypes.Valid {
		productTypes = append(productTypes, f.ProductTypes.Items...)
	}

	return model.Event{
		ID:             string(raw.ID),
		Title:          title,
		Date:           string(f.Date),
		Image:          imageURL(cdnBase, largeImage, featureImage),
		LargeImage:     largeImage,
		FeatureImage:   featureImage,
		Category:       category,
		Description:    string(f.Description),
		URL:            string(f.Purchase),
		IsPanthersGame: containsFold(string(f.Title), "panthers"),
		OnsaleDate:     string(f.OnsaleDate),
		OffsaleDate:    string(f.OffsaleDate),
		ContentID:      string(f.ContentID),
		Genre:          genre,
		ProductTypes:   productTypes,
		When:           string(f.When),
		Time:           string(f.Time),
	}
}

// NormalizeAll normalizes records in order.
func NormalizeAll(raws []model.RawRecord, cdnBase string) []model.Event {
	out := make([]model.Event, 0, len(raws))
	for _, r := range raws {
		out = append(out, Normalize(r, cdnBase))
	}
	return out
}

// imageURL prefers the large image over the feature image.
func imageURL(cdnBase, largeImage, featureImage string) string {
	name := largeImage
	if name == "" {
		name = featureImage
	}
	if name == "" {
		return ""
	}
	if cdnBase == "" {
		cdnBase = DefaultCDNBase
	}
	return strings.TrimRight(cdnBase, "/") + "/" + strings.TrimLeft(name, "/")
}

func containsFold(s, substr string) bool {
	fold := cases.Fold()
	return strings.Contains(fold.String(s), fold.String(substr))
}
