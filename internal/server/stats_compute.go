package server

import (
	"strings"

	"github.com/brk3/streakmate/pkg/habit"
)

// computeSummary derives the read-only summary from the stored aggregates
// and the date-ordered log. Streaks and totals come from the habit record;
// they are not recomputed here.
func computeSummary(h habit.Habit, logs []habit.DailyLog, today habit.Date) habit.HabitSummary {
	sum := habit.HabitSummary{
		Name:             h.Name,
		CurrentStreak:    h.CurrentStreak,
		LongestStreak:    h.LongestStreak,
		TotalSuccessDays: h.TotalSuccessDays,
		TotalFailureDays: h.TotalFailureDays,
		LastWrite:        h.UpdatedAt.Unix(),
	}
	if marked := h.TotalSuccessDays + h.TotalFailureDays; marked > 0 {
		sum.SuccessRate = float64(h.TotalSuccessDays) / float64(marked)
	}

	month := today.String()[:len("2006-01")] + "-"
	for _, l := range logs {
		if sum.FirstLogged == "" && l.Status.Marked() {
			sum.FirstLogged = l.Date.String()
		}
		if l.Status == habit.StatusSuccess && strings.HasPrefix(l.Date.String(), month) {
			sum.ThisMonth++
		}
		if ts := l.MarkedAt.Unix(); ts > sum.LastWrite {
			sum.LastWrite = ts
		}
	}
	return sum
}
