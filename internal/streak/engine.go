// Package streak keeps a habit's streak and total counters consistent with
// its daily log.
package streak

import (
	"context"
	"fmt"
	"time"

	"github.com/brk3/streakmate/internal/logger"
	"github.com/brk3/streakmate/internal/storage"
	"github.com/brk3/streakmate/pkg/habit"
)

type Engine struct {
	store storage.Store
	now   func() time.Time
}

func New(store storage.Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// NewWithClock is New with a fixed time source, for tests.
func NewWithClock(store storage.Store, now func() time.Time) *Engine {
	return &Engine{store: store, now: now}
}

// MarkStatus upserts the log entry for (habitID, date) and updates the
// habit's aggregates in the same transaction. Re-marking a date with the
// status it already holds only refreshes MarkedAt and Note.
func (e *Engine) MarkStatus(ctx context.Context, userID, habitID, date string, status habit.Status, note *string) (habit.Habit, habit.DailyLog, error) {
	d, err := habit.ParseDate(date)
	if err != nil {
		return habit.Habit{}, habit.DailyLog{}, err
	}
	if !status.Valid() {
		return habit.Habit{}, habit.DailyLog{}, fmt.Errorf("status %q: %w", status, habit.ErrValidation)
	}

	var (
		h     habit.Habit
		entry habit.DailyLog
		prev  = habit.StatusPending
	)
	err = e.store.Update(func(tx storage.Tx) error {
		var found bool
		var err error
		h, found, err = tx.GetHabit(userID, habitID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("habit %q: %w", habitID, habit.ErrNotFound)
		}

		prior, hasPrior, err := tx.GetLog(userID, habitID, d)
		if err != nil {
			return err
		}
		if hasPrior {
			prev = prior.Status
		}

		now := e.now()
		entry = habit.DailyLog{HabitID: habitID, Date: d, Status: status, MarkedAt: now, Note: note}
		if err := tx.PutLog(userID, entry); err != nil {
			return err
		}
		if prev == status {
			return nil
		}

		logs, err := tx.ListLogs(userID, habitID)
		if err != nil {
			return err
		}
		Apply(&h, d, prev, status, logs)
		h.UpdatedAt = now
		return tx.PutHabit(userID, h)
	})
	if err != nil {
		return habit.Habit{}, habit.DailyLog{}, err
	}

	logger.InfoContext(ctx, "Marked habit status", "user_id", userID, "habit_id", habitID, "date", d,
		"previous", prev, "status", status, "current_streak", h.CurrentStreak)
	return h, entry, nil
}

// IncrementStreak extends the current streak without touching the log or
// the totals.
func (e *Engine) IncrementStreak(ctx context.Context, userID, habitID string) (habit.Habit, error) {
	h, err := e.updateHabit(userID, habitID, func(h *habit.Habit) {
		h.CurrentStreak++
		h.LongestStreak = max(h.LongestStreak, h.CurrentStreak)
	})
	if err != nil {
		return habit.Habit{}, err
	}
	logger.InfoContext(ctx, "Incremented streak", "user_id", userID, "habit_id", habitID, "current_streak", h.CurrentStreak)
	return h, nil
}

// ResetStreak zeroes the current streak. Totals and logs are kept.
func (e *Engine) ResetStreak(ctx context.Context, userID, habitID string) (habit.Habit, error) {
	h, err := e.updateHabit(userID, habitID, func(h *habit.Habit) {
		h.CurrentStreak = 0
	})
	if err != nil {
		return habit.Habit{}, err
	}
	logger.InfoContext(ctx, "Reset streak", "user_id", userID, "habit_id", habitID)
	return h, nil
}

func (e *Engine) updateHabit(userID, habitID string, fn func(h *habit.Habit)) (habit.Habit, error) {
	var h habit.Habit
	err := e.store.Update(func(tx storage.Tx) error {
		var found bool
		var err error
		h, found, err = tx.GetHabit(userID, habitID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("habit %q: %w", habitID, habit.ErrNotFound)
		}
		fn(&h)
		h.UpdatedAt = e.now()
		return tx.PutHabit(userID, h)
	})
	return h, err
}

// SuccessCount returns the stored total; totals are not recomputed from
// the log.
func (e *Engine) SuccessCount(ctx context.Context, userID, habitID string) (int, error) {
	h, err := e.habit(userID, habitID)
	return h.TotalSuccessDays, err
}

func (e *Engine) FailureCount(ctx context.Context, userID, habitID string) (int, error) {
	h, err := e.habit(userID, habitID)
	return h.TotalFailureDays, err
}

func (e *Engine) habit(userID, habitID string) (habit.Habit, error) {
	var h habit.Habit
	err := e.store.View(func(tx storage.Tx) error {
		var found bool
		var err error
		h, found, err = tx.GetHabit(userID, habitID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("habit %q: %w", habitID, habit.ErrNotFound)
		}
		return nil
	})
	return h, err
}

// History returns the habit's logs ordered by date, limited to the
// inclusive range [from, to] when bounds are given.
func (e *Engine) History(ctx context.Context, userID, habitID string, from, to *habit.Date) ([]habit.DailyLog, error) {
	out := []habit.DailyLog{}
	err := e.store.View(func(tx storage.Tx) error {
		_, found, err := tx.GetHabit(userID, habitID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("habit %q: %w", habitID, habit.ErrNotFound)
		}
		logs, err := tx.ListLogs(userID, habitID)
		if err != nil {
			return err
		}
		for _, l := range logs {
			if from != nil && l.Date < *from {
				continue
			}
			if to != nil && l.Date > *to {
				continue
			}
			out = append(out, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
