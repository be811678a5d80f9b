// Package tracker owns the habit lifecycle, habit list items and user
// reminder settings. Streak arithmetic lives in package streak.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/brk3/streakmate/internal/logger"
	"github.com/brk3/streakmate/internal/storage"
	"github.com/brk3/streakmate/pkg/habit"
	"github.com/google/uuid"
)

type Service struct {
	store storage.Store
	now   func() time.Time
}

func New(store storage.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// NewWithClock is New with a fixed time source, for tests.
func NewWithClock(store storage.Store, now func() time.Time) *Service {
	return &Service{store: store, now: now}
}

type NewHabit struct {
	Name                string
	Description         string
	Type                habit.Type
	Frequency           habit.Frequency
	ActiveDays          []int
	TriggerTime         *string
	IsSharedWithPartner bool
}

// HabitPatch lists the editable fields; nil leaves a field unchanged. An
// empty TriggerTime clears it.
type HabitPatch struct {
	Name        *string
	Description *string
	Type        *habit.Type
	Frequency   *habit.Frequency
	ActiveDays  []int
	TriggerTime *string
}

func (s *Service) CreateHabit(ctx context.Context, userID string, in NewHabit) (habit.Habit, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return habit.Habit{}, err
	}
	if err := validateDescription(in.Description); err != nil {
		return habit.Habit{}, err
	}
	if in.Type == "" {
		in.Type = habit.TypeBuild
	}
	if in.Frequency == "" {
		in.Frequency = habit.FrequencyDaily
	}
	days, err := habit.ActiveDays(in.Frequency, in.ActiveDays)
	if err != nil {
		return habit.Habit{}, err
	}
	trigger, err := normalizeClock("trigger time", in.TriggerTime)
	if err != nil {
		return habit.Habit{}, err
	}

	now := s.now()
	h := habit.Habit{
		ID:                  uuid.NewString(),
		Name:                name,
		Description:         in.Description,
		Type:                in.Type,
		Frequency:           in.Frequency,
		ActiveDays:          days,
		TriggerTime:         trigger,
		IsSharedWithPartner: in.IsSharedWithPartner,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.Update(func(tx storage.Tx) error {
		return tx.PutHabit(userID, h)
	}); err != nil {
		return habit.Habit{}, err
	}

	logger.InfoContext(ctx, "Created habit", "user_id", userID, "habit_id", h.ID, "frequency", h.Frequency)
	return h, nil
}

func (s *Service) GetHabit(ctx context.Context, userID, habitID string) (habit.Habit, error) {
	var h habit.Habit
	err := s.store.View(func(tx storage.Tx) error {
		var err error
		h, err = mustHabit(tx, userID, habitID)
		return err
	})
	return h, err
}

// ListHabits returns the user's habits in creation order.
func (s *Service) ListHabits(ctx context.Context, userID string, includeArchived bool) ([]habit.Habit, error) {
	out := []habit.Habit{}
	err := s.store.View(func(tx storage.Tx) error {
		hs, err := tx.ListHabits(userID)
		if err != nil {
			return err
		}
		for _, h := range hs {
			if h.IsArchived && !includeArchived {
				continue
			}
			out = append(out, h)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	storage.SortHabits(out)
	return out, nil
}

func (s *Service) UpdateHabit(ctx context.Context, userID, habitID string, p HabitPatch) (habit.Habit, error) {
	h, err := s.modify(userID, habitID, func(h *habit.Habit) error {
		if p.Name != nil {
			name, err := validateName(*p.Name)
			if err != nil {
				return err
			}
			h.Name = name
		}
		if p.Description != nil {
			if err := validateDescription(*p.Description); err != nil {
				return err
			}
			h.Description = *p.Description
		}
		if p.Type != nil {
			h.Type = *p.Type
		}
		if p.Frequency != nil || p.ActiveDays != nil {
			freq := h.Frequency
			if p.Frequency != nil {
				freq = *p.Frequency
			}
			custom := p.ActiveDays
			if custom == nil {
				custom = h.ActiveDays
			}
			days, err := habit.ActiveDays(freq, custom)
			if err != nil {
				return err
			}
			h.Frequency = freq
			h.ActiveDays = days
		}
		if p.TriggerTime != nil {
			trigger, err := normalizeClock("trigger time", p.TriggerTime)
			if err != nil {
				return err
			}
			h.TriggerTime = trigger
		}
		return nil
	})
	if err != nil {
		return habit.Habit{}, err
	}
	logger.InfoContext(ctx, "Updated habit", "user_id", userID, "habit_id", habitID)
	return h, nil
}

// ArchiveHabit hides or restores a habit. Logs and counters are kept.
func (s *Service) ArchiveHabit(ctx context.Context, userID, habitID string, archived bool) (habit.Habit, error) {
	h, err := s.modify(userID, habitID, func(h *habit.Habit) error {
		h.IsArchived = archived
		return nil
	})
	if err != nil {
		return habit.Habit{}, err
	}
	logger.InfoContext(ctx, "Set habit archived", "user_id", userID, "habit_id", habitID, "archived", archived)
	return h, nil
}

// SetShared controls whether active partners can see the habit.
func (s *Service) SetShared(ctx context.Context, userID, habitID string, shared bool) (habit.Habit, error) {
	h, err := s.modify(userID, habitID, func(h *habit.Habit) error {
		h.IsSharedWithPartner = shared
		return nil
	})
	if err != nil {
		return habit.Habit{}, err
	}
	logger.InfoContext(ctx, "Set habit sharing", "user_id", userID, "habit_id", habitID, "shared", shared)
	return h, nil
}

// DeleteHabit removes the habit with all of its logs and list items.
func (s *Service) DeleteHabit(ctx context.Context, userID, habitID string) error {
	err := s.store.Update(func(tx storage.Tx) error {
		if _, err := mustHabit(tx, userID, habitID); err != nil {
			return err
		}
		return tx.DeleteHabit(userID, habitID)
	})
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "Deleted habit", "user_id", userID, "habit_id", habitID)
	return nil
}

func (s *Service) modify(userID, habitID string, fn func(h *habit.Habit) error) (habit.Habit, error) {
	var h habit.Habit
	err := s.store.Update(func(tx storage.Tx) error {
		var err error
		h, err = mustHabit(tx, userID, habitID)
		if err != nil {
			return err
		}
		if err := fn(&h); err != nil {
			return err
		}
		h.UpdatedAt = s.now()
		return tx.PutHabit(userID, h)
	})
	return h, err
}

func mustHabit(tx storage.Tx, userID, habitID string) (habit.Habit, error) {
	h, found, err := tx.GetHabit(userID, habitID)
	if err != nil {
		return habit.Habit{}, err
	}
	if !found {
		return habit.Habit{}, fmt.Errorf("habit %q: %w", habitID, habit.ErrNotFound)
	}
	return h, nil
}
