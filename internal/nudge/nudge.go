// Package nudge reminds a user about habits that are scheduled today but
// not yet marked.
package nudge

import (
	"context"
	"fmt"

	"github.com/brk3/streakmate/internal/logger"
	"github.com/brk3/streakmate/pkg/habit"
)

// GetHabitsDue returns the names of non-archived habits scheduled on today
// that have no SUCCESS, FAILURE or SKIPPED entry for it.
func GetHabitsDue(ctx context.Context, q Querier, today habit.Date) ([]string, error) {
	habits, err := q.ListHabits(ctx)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}

	due := []string{}
	for _, h := range habits {
		if h.IsArchived || !h.ScheduledOn(today) {
			continue
		}
		logs, err := q.ListLogs(ctx, h.ID, &today, &today)
		if err != nil {
			return nil, fmt.Errorf("logs for %s: %w", h.ID, err)
		}
		marked := false
		for _, l := range logs {
			if l.Date == today && l.Status.Marked() {
				marked = true
			}
		}
		if !marked {
			due = append(due, h.Name)
		}
	}
	return due, nil
}

// Run sends one reminder for today's open habits. It returns the habits
// that were included; nothing is sent when the list is empty or the user
// has turned notifications off. A non-empty to overrides the profile email.
func Run(ctx context.Context, q Querier, n Notifier, to string, today habit.Date) ([]string, error) {
	user, err := q.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.NotificationsEnabled {
		logger.Info("Notifications disabled, skipping nudge", "user_id", user.ID)
		return nil, nil
	}
	if to == "" {
		to = user.Email
	}
	if to == "" {
		return nil, fmt.Errorf("no email address for user %s: %w", user.ID, habit.ErrValidation)
	}

	due, err := GetHabitsDue(ctx, q, today)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		logger.Info("Nothing due, skipping nudge", "user_id", user.ID, "date", today)
		return due, nil
	}
	if err := n.SendNudge(ctx, to, due, today); err != nil {
		return nil, fmt.Errorf("send nudge: %w", err)
	}
	logger.Info("Sent nudge", "user_id", user.ID, "habits", len(due), "date", today)
	return due, nil
}
