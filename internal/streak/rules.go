package streak

import "github.com/brk3/streakmate/pkg/habit"

// Apply updates h's aggregates for date d changing from prev to next.
// logs is the habit's full history after the change, ordered by date.
//
// Totals move symmetrically: leaving SUCCESS or FAILURE gives back the
// count, entering one takes it. A forward mark (no later marked date) from
// an unmarked or skipped state moves the streak incrementally. A
// retroactive mark, or any change away from SUCCESS or FAILURE, recomputes
// the streak from the trailing history instead. A change between neutral
// states (unmarked, PENDING, SKIPPED) leaves the streak alone, so credit
// from IncrementStreak or a seeded value survives it.
func Apply(h *habit.Habit, d habit.Date, prev, next habit.Status, logs []habit.DailyLog) {
	if prev == next {
		return
	}

	switch prev {
	case habit.StatusSuccess:
		h.TotalSuccessDays = max(h.TotalSuccessDays-1, 0)
	case habit.StatusFailure:
		h.TotalFailureDays = max(h.TotalFailureDays-1, 0)
	}
	switch next {
	case habit.StatusSuccess:
		h.TotalSuccessDays++
	case habit.StatusFailure:
		h.TotalFailureDays++
	}

	undo := decisive(prev)
	if !undo && !decisive(next) {
		return
	}
	if isLatest(d, logs) && !undo {
		switch next {
		case habit.StatusSuccess:
			h.CurrentStreak++
		case habit.StatusFailure:
			h.CurrentStreak = 0
		}
	} else {
		h.CurrentStreak = TrailingStreak(logs)
	}

	h.LongestStreak = max(h.LongestStreak, h.CurrentStreak)
}

// TrailingStreak counts SUCCESS days after the most recent FAILURE.
// SKIPPED and PENDING days are neutral.
func TrailingStreak(logs []habit.DailyLog) int {
	n := 0
	for i := len(logs) - 1; i >= 0; i-- {
		switch logs[i].Status {
		case habit.StatusFailure:
			return n
		case habit.StatusSuccess:
			n++
		}
	}
	return n
}

func decisive(s habit.Status) bool {
	return s == habit.StatusSuccess || s == habit.StatusFailure
}

func isLatest(d habit.Date, logs []habit.DailyLog) bool {
	for _, l := range logs {
		if l.Date > d && l.Status.Marked() {
			return false
		}
	}
	return true
}
