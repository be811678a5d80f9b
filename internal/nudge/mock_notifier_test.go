package nudge

import (
	"context"

	"github.com/brk3/streakmate/pkg/habit"
)

type mockNotifier struct {
	called bool
	to     string
	habits []string
	day    habit.Date
	err    error
}

func (m *mockNotifier) SendNudge(ctx context.Context, to string, habits []string, day habit.Date) error {
	m.called = true
	m.to = to
	m.habits = habits
	m.day = day
	return m.err
}
