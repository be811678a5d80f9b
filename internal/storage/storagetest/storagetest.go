// Package storagetest holds a conformance suite run against every
// storage.Store backend.
package storagetest

import (
	"errors"
	"testing"
	"time"

	"github.com/brk3/streakmate/internal/storage"
	"github.com/brk3/streakmate/pkg/habit"
)

// Run exercises a fresh store from newStore in each subtest.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("HabitRoundTrip", func(t *testing.T) { testHabitRoundTrip(t, newStore(t)) })
	t.Run("UserIsolation", func(t *testing.T) { testUserIsolation(t, newStore(t)) })
	t.Run("LogUpsert", func(t *testing.T) { testLogUpsert(t, newStore(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
	t.Run("PartnerVisibleItems", func(t *testing.T) { testPartnerVisibleItems(t, newStore(t)) })
	t.Run("Partnerships", func(t *testing.T) { testPartnerships(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
}

func update(t *testing.T, s storage.Store, fn func(tx storage.Tx) error) {
	t.Helper()
	if err := s.Update(fn); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
}

func view(t *testing.T, s storage.Store, fn func(tx storage.Tx) error) {
	t.Helper()
	if err := s.View(fn); err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func sampleHabit(id string, created time.Time) habit.Habit {
	trigger := "07:30"
	return habit.Habit{
		ID:                  id,
		Name:                "guitar-" + id,
		Type:                habit.TypeBuild,
		Frequency:           habit.FrequencyCustom,
		ActiveDays:          []int{1, 3, 5},
		TriggerTime:         &trigger,
		CurrentStreak:       2,
		LongestStreak:       4,
		TotalSuccessDays:    9,
		TotalFailureDays:    1,
		IsSharedWithPartner: true,
		CreatedAt:           created.UTC(),
		UpdatedAt:           created.UTC(),
	}
}

func testHabitRoundTrip(t *testing.T, s storage.Store) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	update(t, s, func(tx storage.Tx) error {
		if err := tx.PutHabit("alice", sampleHabit("b", base.Add(time.Hour))); err != nil {
			return err
		}
		return tx.PutHabit("alice", sampleHabit("a", base))
	})

	view(t, s, func(tx storage.Tx) error {
		h, found, err := tx.GetHabit("alice", "b")
		if err != nil {
			return err
		}
		if !found {
			t.Fatal("expected habit b")
		}
		if h.Frequency != habit.FrequencyCustom || len(h.ActiveDays) != 3 || h.TriggerTime == nil || *h.TriggerTime != "07:30" {
			t.Fatalf("round trip lost fields: %+v", h)
		}
		if h.LongestStreak != 4 || h.TotalSuccessDays != 9 || !h.IsSharedWithPartner {
			t.Fatalf("round trip lost counters: %+v", h)
		}

		hs, err := tx.ListHabits("alice")
		if err != nil {
			return err
		}
		if len(hs) != 2 || hs[0].ID != "a" || hs[1].ID != "b" {
			t.Fatalf("expected habits ordered by creation [a b], got %v", hs)
		}
		return nil
	})
}

func testUserIsolation(t *testing.T, s storage.Store) {
	update(t, s, func(tx storage.Tx) error {
		return tx.PutHabit("alice", sampleHabit("h1", time.Now()))
	})
	view(t, s, func(tx storage.Tx) error {
		hs, err := tx.ListHabits("bob")
		if err != nil {
			return err
		}
		if len(hs) != 0 {
			t.Fatalf("bob should see no habits, got %v", hs)
		}
		if _, found, _ := tx.GetHabit("bob", "h1"); found {
			t.Fatal("bob should not read alice's habit")
		}
		return nil
	})
}

func testLogUpsert(t *testing.T, s storage.Store) {
	note := "first"
	update(t, s, func(tx storage.Tx) error {
		if err := tx.PutHabit("alice", sampleHabit("h1", time.Now())); err != nil {
			return err
		}
		for _, d := range []habit.Date{"2025-01-03", "2025-01-01", "2025-01-02"} {
			if err := tx.PutLog("alice", habit.DailyLog{HabitID: "h1", Date: d, Status: habit.StatusSuccess, MarkedAt: time.Now(), Note: &note}); err != nil {
				return err
			}
		}
		return tx.PutLog("alice", habit.DailyLog{HabitID: "h1", Date: "2025-01-02", Status: habit.StatusFailure, MarkedAt: time.Now()})
	})

	view(t, s, func(tx storage.Tx) error {
		logs, err := tx.ListLogs("alice", "h1")
		if err != nil {
			return err
		}
		if len(logs) != 3 {
			t.Fatalf("upsert must not duplicate: got %d logs", len(logs))
		}
		want := []habit.Date{"2025-01-01", "2025-01-02", "2025-01-03"}
		for i, l := range logs {
			if l.Date != want[i] {
				t.Fatalf("logs not ordered by date: %v", logs)
			}
		}
		l, found, err := tx.GetLog("alice", "h1", "2025-01-02")
		if err != nil {
			return err
		}
		if !found || l.Status != habit.StatusFailure || l.Note != nil {
			t.Fatalf("expected overwritten FAILURE entry without note, got %+v", l)
		}
		return nil
	})
}

func testDeleteCascades(t *testing.T, s storage.Store) {
	update(t, s, func(tx storage.Tx) error {
		for _, id := range []string{"h1", "h10"} {
			if err := tx.PutHabit("alice", sampleHabit(id, time.Now())); err != nil {
				return err
			}
			if err := tx.PutLog("alice", habit.DailyLog{HabitID: id, Date: "2025-01-01", Status: habit.StatusSuccess, MarkedAt: time.Now()}); err != nil {
				return err
			}
			if err := tx.PutItem("alice", habit.ListItem{ID: "i-" + id, HabitID: id, Type: habit.ItemAttraction, Content: "x"}); err != nil {
				return err
			}
		}
		return nil
	})
	update(t, s, func(tx storage.Tx) error { return tx.DeleteHabit("alice", "h1") })

	view(t, s, func(tx storage.Tx) error {
		if _, found, _ := tx.GetHabit("alice", "h1"); found {
			t.Fatal("habit h1 should be deleted")
		}
		logs, err := tx.ListLogs("alice", "h1")
		if err != nil {
			return err
		}
		items, err := tx.ListItems("alice", "h1")
		if err != nil {
			return err
		}
		if len(logs) != 0 || len(items) != 0 {
			t.Fatalf("delete should cascade, got %d logs %d items", len(logs), len(items))
		}
		logs, err = tx.ListLogs("alice", "h10")
		if err != nil {
			return err
		}
		if len(logs) != 1 {
			t.Fatalf("sibling habit h10 lost its logs: %v", logs)
		}
		return nil
	})
}

func testPartnerVisibleItems(t *testing.T, s storage.Store) {
	update(t, s, func(tx storage.Tx) error {
		h := sampleHabit("h1", time.Now())
		h.Type = habit.TypeBreak
		if err := tx.PutHabit("alice", h); err != nil {
			return err
		}
		items := []habit.ListItem{
			{ID: "r1", HabitID: "h1", Type: habit.ItemResistance, Content: "private", OrderIndex: 0},
			{ID: "a1", HabitID: "h1", Type: habit.ItemAttraction, Content: "health", OrderIndex: 0},
			{ID: "t1", HabitID: "h1", Type: habit.ItemTrigger, Content: "stress", OrderIndex: 0},
			{ID: "r2", HabitID: "h1", Type: habit.ItemResistance, Content: "private too", OrderIndex: 1},
		}
		for _, it := range items {
			if err := tx.PutItem("alice", it); err != nil {
				return err
			}
		}
		return nil
	})

	view(t, s, func(tx storage.Tx) error {
		all, err := tx.ListItems("alice", "h1")
		if err != nil {
			return err
		}
		if len(all) != 4 {
			t.Fatalf("owner should see 4 items, got %d", len(all))
		}
		shared, err := storage.PartnerVisibleItems(tx, "alice", "h1")
		if err != nil {
			return err
		}
		if len(shared) != 2 {
			t.Fatalf("partner should see 2 items, got %v", shared)
		}
		for _, it := range shared {
			if it.Type == habit.ItemResistance {
				t.Fatalf("resistance item leaked: %+v", it)
			}
		}
		return nil
	})
}

func testPartnerships(t *testing.T, s storage.Store) {
	exp := time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)
	p := habit.Partnership{
		ID:              "p1",
		OwnerID:         "alice",
		InviteCode:      "ABCD2345",
		InviteExpiresAt: &exp,
		Status:          habit.PartnershipPending,
		CreatedAt:       exp.Add(-7 * 24 * time.Hour),
	}
	update(t, s, func(tx storage.Tx) error { return tx.PutPartnership(p) })

	err := s.Update(func(tx storage.Tx) error {
		dup := p
		dup.ID = "p2"
		return tx.PutPartnership(dup)
	})
	if !errors.Is(err, storage.ErrDuplicateInviteCode) {
		t.Fatalf("expected ErrDuplicateInviteCode, got %v", err)
	}

	update(t, s, func(tx storage.Tx) error {
		got, found, err := tx.GetPartnershipByCode("ABCD2345")
		if err != nil {
			return err
		}
		if !found || got.ID != "p1" {
			t.Fatalf("lookup by code failed: %+v", got)
		}
		got.PartnerID = "bob"
		got.Status = habit.PartnershipActive
		return tx.PutPartnership(got)
	})

	view(t, s, func(tx storage.Tx) error {
		got, found, err := tx.GetPartnership("p1")
		if err != nil {
			return err
		}
		if !found || got.Status != habit.PartnershipActive || got.PartnerID != "bob" {
			t.Fatalf("unexpected partnership: %+v", got)
		}
		if got.InviteExpiresAt == nil || !got.InviteExpiresAt.Equal(exp) {
			t.Fatalf("expiry lost: %+v", got.InviteExpiresAt)
		}
		for _, user := range []string{"alice", "bob"} {
			ps, err := tx.ListPartnerships(user)
			if err != nil {
				return err
			}
			if len(ps) != 1 {
				t.Fatalf("%s should see 1 partnership, got %d", user, len(ps))
			}
		}
		ps, err := tx.ListPartnerships("carol")
		if err != nil {
			return err
		}
		if len(ps) != 0 {
			t.Fatalf("carol should see none, got %v", ps)
		}
		if _, found, _ := tx.GetPartnershipByCode("NOPE"); found {
			t.Fatal("unknown code should not be found")
		}
		return nil
	})
}

func testUsers(t *testing.T, s storage.Store) {
	morning := "08:00"
	update(t, s, func(tx storage.Tx) error {
		return tx.PutUser(habit.User{ID: "alice", Email: "a@example.com", MorningReminderTime: &morning, NotificationsEnabled: true})
	})
	view(t, s, func(tx storage.Tx) error {
		u, found, err := tx.GetUser("alice")
		if err != nil {
			return err
		}
		if !found || u.MorningReminderTime == nil || *u.MorningReminderTime != "08:00" || u.EveningReminderTime != nil || !u.NotificationsEnabled {
			t.Fatalf("unexpected user: %+v", u)
		}
		if _, found, _ := tx.GetUser("bob"); found {
			t.Fatal("bob has no profile")
		}
		return nil
	})
}
