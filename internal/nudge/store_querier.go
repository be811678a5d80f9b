package nudge

import (
	"context"

	"github.com/brk3/streakmate/internal/storage"
	"github.com/brk3/streakmate/internal/streak"
	"github.com/brk3/streakmate/internal/tracker"
	"github.com/brk3/streakmate/pkg/habit"
)

// StoreQuerier reads one user's habits straight from a store, for running
// the nudge on the server host.
type StoreQuerier struct {
	userID  string
	tracker *tracker.Service
	streaks *streak.Engine
}

func NewStoreQuerier(store storage.Store, userID string) *StoreQuerier {
	return &StoreQuerier{userID: userID, tracker: tracker.New(store), streaks: streak.New(store)}
}

func (q *StoreQuerier) ListHabits(ctx context.Context) ([]habit.Habit, error) {
	return q.tracker.ListHabits(ctx, q.userID, false)
}

func (q *StoreQuerier) ListLogs(ctx context.Context, habitID string, from, to *habit.Date) ([]habit.DailyLog, error) {
	return q.streaks.History(ctx, q.userID, habitID, from, to)
}

func (q *StoreQuerier) GetMe(ctx context.Context) (habit.User, error) {
	return q.tracker.GetUser(ctx, q.userID)
}
