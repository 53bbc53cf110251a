package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// venueTimeLayout is the timestamp format used by the venue's REST payloads,
// e.g. "2024-03-29 21:00:00+0000".
const venueTimeLayout = "2006-01-02 15:04:05-0700"

// VenueTime is a timestamp in the venue's REST wire format.
type VenueTime struct {
	t time.Time
}

// NewVenueTime wraps a time.Time.
func NewVenueTime(t time.Time) VenueTime {
	return VenueTime{t: t.UTC()}
}

// Time returns the underlying time.
func (v VenueTime) Time() time.Time {
	return v.t
}

// IsZero reports whether the timestamp is unset.
func (v VenueTime) IsZero() bool {
	return v.t.IsZero()
}

// String formats the timestamp in the venue layout.
func (v VenueTime) String() string {
	if v.t.IsZero() {
		return ""
	}
	return v.t.Format(venueTimeLayout)
}

// MarshalJSON implements json.Marshaler.
func (v VenueTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON implements json.Unmarshaler. Accepts the venue layout with or
// without the time component, and null/empty as the zero value.
func (v *VenueTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		v.t = time.Time{}
		return nil
	}
	layout := venueTimeLayout
	if !strings.Contains(s, " ") {
		layout = "2006-01-02"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return fmt.Errorf("parse venue time %q: %w", s, err)
	}
	v.t = t.UTC()
	return nil
}
