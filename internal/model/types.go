package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date without time of day, always in UTC.
type Date struct{ time.Time }

// NewDate builds a date from its parts.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Date())
}

// ParseDate parses YYYY-MM-DD. A trailing time part (RFC 3339) is ignored.
func ParseDate(s string) (Date, error) {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	v, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Gender of a patient.
type Gender int

const (
	GenderUnspecified Gender = iota
	GenderMale
	GenderFemale
)

// Wire labels used by the records service.
const (
	genderMaleLabel   = "Мужской"
	genderFemaleLabel = "Женский"
)

// ParseGender accepts the service labels and English names (case-insensitive).
func ParseGender(s string) (Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return GenderUnspecified, nil
	case strings.ToLower(genderMaleLabel), "male", "m":
		return GenderMale, nil
	case strings.ToLower(genderFemaleLabel), "female", "f":
		return GenderFemale, nil
	}
	return GenderUnspecified, fmt.Errorf("unknown gender %q", s)
}

// Label is the value sent to the service.
func (g Gender) Label() string {
	switch g {
	case GenderMale:
		return genderMaleLabel
	case GenderFemale:
		return genderFemaleLabel
	}
	return ""
}

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	}
	return "unspecified"
}

func (g Gender) MarshalJSON() ([]byte, error) { return json.Marshal(g.Label()) }

func (g *Gender) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseGender(s)
	if err != nil {
		return err
	}
	*g = v
	return nil
}
