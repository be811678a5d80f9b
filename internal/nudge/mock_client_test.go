package nudge

import (
	"context"

	"github.com/brk3/streakmate/pkg/habit"
)

type mockClient struct {
	user   habit.User
	habits []habit.Habit
	logs   map[string][]habit.DailyLog
	err    error
}

func (f *mockClient) ListHabits(ctx context.Context) ([]habit.Habit, error) {
	return f.habits, f.err
}

func (f *mockClient) ListLogs(ctx context.Context, habitID string, from, to *habit.Date) ([]habit.DailyLog, error) {
	var out []habit.DailyLog
	for _, l := range f.logs[habitID] {
		if (from == nil || l.Date >= *from) && (to == nil || l.Date <= *to) {
			out = append(out, l)
		}
	}
	return out, f.err
}

func (f *mockClient) GetMe(ctx context.Context) (habit.User, error) {
	return f.user, f.err
}
