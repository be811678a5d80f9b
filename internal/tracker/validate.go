package tracker

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/brk3/streakmate/pkg/habit"
)

const (
	MaxNameLen        = 40
	MaxDescriptionLen = 1024
	MaxNoteLen        = 1024
	MaxItemContentLen = 280
)

func validateName(s string) (string, error) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n == 0 || n > MaxNameLen {
		return "", fmt.Errorf("name must be 1-%d characters: %w", MaxNameLen, habit.ErrValidation)
	}
	return s, nil
}

func validateDescription(s string) error {
	if utf8.RuneCountInString(s) > MaxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters: %w", MaxDescriptionLen, habit.ErrValidation)
	}
	return nil
}

// ValidateNote checks a daily log note before it is handed to the streak
// engine.
func ValidateNote(note *string) error {
	if note != nil && utf8.RuneCountInString(*note) > MaxNoteLen {
		return fmt.Errorf("note exceeds %d characters: %w", MaxNoteLen, habit.ErrValidation)
	}
	return nil
}

func validateContent(s string) (string, error) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n == 0 || n > MaxItemContentLen {
		return "", fmt.Errorf("item content must be 1-%d characters: %w", MaxItemContentLen, habit.ErrValidation)
	}
	return s, nil
}

// normalizeClock accepts "HH:MM" (24h). A nil or empty value clears the
// time.
func normalizeClock(field string, v *string) (*string, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	t, err := time.Parse("15:04", strings.TrimSpace(*v))
	if err != nil {
		return nil, fmt.Errorf("%s %q is not HH:MM: %w", field, *v, habit.ErrValidation)
	}
	s := t.Format("15:04")
	return &s, nil
}
