package habit

import (
	"fmt"
	"strings"
)

// Enumerations are stored as their string form. The Parse functions are
// strict and return the type's default together with an ErrValidation
// error; UnmarshalText falls back to the default without an error so that
// a corrupt stored value fails closed instead of leaking through.

type Type string

const (
	TypeBuild Type = "BUILD"
	TypeBreak Type = "BREAK"
)

func ParseType(s string) (Type, error) {
	switch Type(strings.ToUpper(strings.TrimSpace(s))) {
	case TypeBuild:
		return TypeBuild, nil
	case TypeBreak:
		return TypeBreak, nil
	}
	return TypeBuild, fmt.Errorf("habit type %q: %w", s, ErrValidation)
}

func (t *Type) UnmarshalText(b []byte) error {
	*t, _ = ParseType(string(b))
	return nil
}

type Frequency string

const (
	FrequencyDaily    Frequency = "DAILY"
	FrequencyWeekdays Frequency = "WEEKDAYS"
	FrequencyWeekends Frequency = "WEEKENDS"
	FrequencyCustom   Frequency = "CUSTOM"
)

func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToUpper(strings.TrimSpace(s))); f {
	case FrequencyDaily, FrequencyWeekdays, FrequencyWeekends, FrequencyCustom:
		return f, nil
	}
	return FrequencyDaily, fmt.Errorf("frequency %q: %w", s, ErrValidation)
}

func (f *Frequency) UnmarshalText(b []byte) error {
	*f, _ = ParseFrequency(string(b))
	return nil
}

// ActiveDays resolves the weekday set (1=Monday..7=Sunday) for a frequency.
// custom is only consulted for FrequencyCustom; it must hold at least one
// day in range and is returned sorted without duplicates.
func ActiveDays(f Frequency, custom []int) ([]int, error) {
	switch f {
	case FrequencyDaily:
		return []int{1, 2, 3, 4, 5, 6, 7}, nil
	case FrequencyWeekdays:
		return []int{1, 2, 3, 4, 5}, nil
	case FrequencyWeekends:
		return []int{6, 7}, nil
	case FrequencyCustom:
		var seen [8]bool
		for _, d := range custom {
			if d < 1 || d > 7 {
				return nil, fmt.Errorf("active day %d out of range 1-7: %w", d, ErrValidation)
			}
			seen[d] = true
		}
		out := make([]int, 0, len(custom))
		for d := 1; d <= 7; d++ {
			if seen[d] {
				out = append(out, d)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("custom frequency needs at least one active day: %w", ErrValidation)
		}
		return out, nil
	}
	return nil, fmt.Errorf("frequency %q: %w", f, ErrValidation)
}

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusSkipped Status = "SKIPPED"
	StatusPending Status = "PENDING"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusSuccess, StatusFailure, StatusSkipped, StatusPending:
		return st, nil
	}
	return StatusPending, fmt.Errorf("status %q: %w", s, ErrValidation)
}

func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusSkipped, StatusPending:
		return true
	}
	return false
}

func (s *Status) UnmarshalText(b []byte) error {
	*s, _ = ParseStatus(string(b))
	return nil
}

// Marked reports whether the status counts as a recorded outcome.
func (s Status) Marked() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusSkipped
}

type ItemType string

const (
	ItemResistance ItemType = "RESISTANCE"
	ItemAttraction ItemType = "ATTRACTION"
	ItemTrigger    ItemType = "TRIGGER"
)

func ParseItemType(s string) (ItemType, error) {
	switch it := ItemType(strings.ToUpper(strings.TrimSpace(s))); it {
	case ItemResistance, ItemAttraction, ItemTrigger:
		return it, nil
	}
	return ItemAttraction, fmt.Errorf("list item type %q: %w", s, ErrValidation)
}

// UnmarshalText fails closed to RESISTANCE rather than the parse default:
// an unreadable item type must never become partner visible.
func (t *ItemType) UnmarshalText(b []byte) error {
	v, err := ParseItemType(string(b))
	if err != nil {
		v = ItemResistance
	}
	*t = v
	return nil
}

type PartnershipStatus string

const (
	PartnershipPending PartnershipStatus = "PENDING"
	PartnershipActive  PartnershipStatus = "ACTIVE"
	PartnershipRevoked PartnershipStatus = "REVOKED"
)

func ParsePartnershipStatus(s string) (PartnershipStatus, error) {
	switch ps := PartnershipStatus(strings.ToUpper(strings.TrimSpace(s))); ps {
	case PartnershipPending, PartnershipActive, PartnershipRevoked:
		return ps, nil
	}
	return PartnershipRevoked, fmt.Errorf("partnership status %q: %w", s, ErrValidation)
}

func (p *PartnershipStatus) UnmarshalText(b []byte) error {
	*p, _ = ParsePartnershipStatus(string(b))
	return nil
}

// Terminal reports whether no further transition is possible.
func (p PartnershipStatus) Terminal() bool {
	return p == PartnershipRevoked
}
