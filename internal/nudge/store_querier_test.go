package nudge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/brk3/streakmate/internal/storage/bolt"
	"github.com/brk3/streakmate/internal/streak"
	"github.com/brk3/streakmate/internal/tracker"
	"github.com/brk3/streakmate/pkg/habit"
)

func TestStoreQuerier(t *testing.T) {
	ctx := context.Background()
	st, err := bolt.Open(filepath.Join(t.TempDir(), "nudge.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	svc := tracker.New(st)
	done, err := svc.CreateHabit(ctx, "u1", tracker.NewHabit{Name: "done"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateHabit(ctx, "u1", tracker.NewHabit{Name: "open"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateHabit(ctx, "u2", tracker.NewHabit{Name: "not mine"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := streak.New(st).MarkStatus(ctx, "u1", done.ID, wednesday.String(), habit.StatusSuccess, nil); err != nil {
		t.Fatal(err)
	}

	got, err := GetHabitsDue(ctx, NewStoreQuerier(st, "u1"), wednesday)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "open" {
		t.Fatalf("got %v, want [open]", got)
	}
}
