package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// RawRecord is one record as returned by the listings API. Decoding is
// lenient: it never returns an error, so one malformed record cannot fail a
// whole payload.
type RawRecord struct {
	ID     LooseString `json:"id"`
	Fields RawFields   `json:"fields"`
}

// RawFields is the "fields" sub-object. Every field is optional.
type RawFields struct {
	Title        LooseString `json:"title"`
	Date         LooseString `json:"date"`
	LargeImage   LooseString `json:"large_image"`
	FeatureImage LooseString `json:"feature_image"`
	Purchase     LooseString `json:"purchase"`
	Genre        LooseList   `json:"genre"`
	Description  LooseString `json:"description"`
	OnsaleDate   LooseString `json:"onsale_date"`
	OffsaleDate  LooseString `json:"offsale_date"`
	ContentID    LooseString `json:"content_id"`
	When         LooseString `json:"when"`
	Time         LooseString `json:"time"`
	ProductTypes LooseList   `json:"product_types"`
}

// UnmarshalJSON decodes an object; any other JSON value leaves r zeroed.
func (r *RawRecord) UnmarshalJSON(data []byte) error {
	type plain RawRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*r = RawRecord{}
		return nil
	}
	*r = RawRecord(p)
	return nil
}

// UnmarshalJSON decodes an object; any other JSON value leaves f zeroed.
func (f *RawFields) UnmarshalJSON(data []byte) error {
	type plain RawFields
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*f = RawFields{}
		return nil
	}
	*f = RawFields(p)
	return nil
}

// LooseString accepts a JSON string or number. Anything else (null, bool,
// object, array) decodes as "".
type LooseString string

func (s *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*s = ""
		return nil
	}
	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			*s = ""
			return nil
		}
		*s = LooseString(v)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		if _, err := strconv.ParseFloat(string(data), 64); err != nil {
			*s = ""
			return nil
		}
		*s = LooseString(data)
	default:
		*s = ""
	}
	return nil
}

// LooseList accepts a JSON array. Valid reports whether the source value was
// an array at all; non-string elements are dropped.
type LooseList struct {
	Items []string
	Valid bool
}

func (l *LooseList) UnmarshalJSON(data []byte) error {
	*l = LooseList{}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil
	}
	l.Valid = true
	l.Items = make([]string, 0, len(raw))
	for _, item := range raw {
		var v *string
		if err := json.Unmarshal(item, &v); err != nil || v == nil {
			continue
		}
		l.Items = append(l.Items, *v)
	}
	return nil
}
