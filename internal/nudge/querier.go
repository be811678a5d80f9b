package nudge

import (
	"context"

	"github.com/brk3/streakmate/pkg/habit"
)

// Querier is the read side the nudge needs. apiclient.Client satisfies it.
type Querier interface {
	ListHabits(ctx context.Context) ([]habit.Habit, error)
	ListLogs(ctx context.Context, habitID string, from, to *habit.Date) ([]habit.DailyLog, error)
	GetMe(ctx context.Context) (habit.User, error)
}

// Notifier delivers a reminder listing the habits still open on day.
type Notifier interface {
	SendNudge(ctx context.Context, to string, habits []string, day habit.Date) error
}
