package tracker

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brk3/streakmate/internal/storage"
	"github.com/brk3/streakmate/internal/storage/bolt"
	"github.com/brk3/streakmate/pkg/habit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const user = "alice"

func newTestService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tick := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	return NewWithClock(store, func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}), store
}

func ptr[T any](v T) *T { return &v }

func TestCreateHabit(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	h, err := s.CreateHabit(ctx, user, NewHabit{Name: "  guitar  ", Frequency: habit.FrequencyWeekdays, TriggerTime: ptr("7:05")})
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, "guitar", h.Name)
	assert.Equal(t, habit.TypeBuild, h.Type)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, h.ActiveDays)
	require.NotNil(t, h.TriggerTime)
	assert.Equal(t, "07:05", *h.TriggerTime)

	got, err := s.GetHabit(ctx, user, h.ID)
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)

	custom, err := s.CreateHabit(ctx, user, NewHabit{Name: "gym", Frequency: habit.FrequencyCustom, ActiveDays: []int{5, 1, 5, 3}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, custom.ActiveDays)
}

func TestCreateHabit_Validation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]NewHabit{
		"empty name":       {Name: "   "},
		"long name":        {Name: strings.Repeat("x", MaxNameLen+1)},
		"long description": {Name: "ok", Description: strings.Repeat("d", MaxDescriptionLen+1)},
		"custom no days":   {Name: "ok", Frequency: habit.FrequencyCustom},
		"day out of range": {Name: "ok", Frequency: habit.FrequencyCustom, ActiveDays: []int{8}},
		"bad trigger":      {Name: "ok", TriggerTime: ptr("25:00")},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.CreateHabit(ctx, user, in)
			assert.ErrorIs(t, err, habit.ErrValidation)
		})
	}

	_, err := s.CreateHabit(ctx, user, NewHabit{Name: strings.Repeat("é", MaxNameLen)})
	assert.NoError(t, err, "length is counted in characters")
}

func TestListHabits_ArchiveFilter(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	a, err := s.CreateHabit(ctx, user, NewHabit{Name: "a"})
	require.NoError(t, err)
	b, err := s.CreateHabit(ctx, user, NewHabit{Name: "b"})
	require.NoError(t, err)
	_, err = s.ArchiveHabit(ctx, user, a.ID, true)
	require.NoError(t, err)

	active, err := s.ListHabits(ctx, user, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)

	all, err := s.ListHabits(ctx, user, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID, "creation order")

	other, err := s.ListHabits(ctx, "bob", true)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUpdateHabit(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	h, err := s.CreateHabit(ctx, user, NewHabit{Name: "read", TriggerTime: ptr("21:00")})
	require.NoError(t, err)

	updated, err := s.UpdateHabit(ctx, user, h.ID, HabitPatch{
		Name:        ptr("read more"),
		Frequency:   ptr(habit.FrequencyWeekends),
		TriggerTime: ptr(""),
	})
	require.NoError(t, err)
	assert.Equal(t, "read more", updated.Name)
	assert.Equal(t, []int{6, 7}, updated.ActiveDays)
	assert.Nil(t, updated.TriggerTime)
	assert.True(t, updated.UpdatedAt.After(h.UpdatedAt))

	custom, err := s.UpdateHabit(ctx, user, h.ID, HabitPatch{Frequency: ptr(habit.FrequencyCustom), ActiveDays: []int{2}})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, custom.ActiveDays)

	_, err = s.UpdateHabit(ctx, user, h.ID, HabitPatch{Name: ptr("")})
	assert.ErrorIs(t, err, habit.ErrValidation)
	_, err = s.UpdateHabit(ctx, user, "missing", HabitPatch{})
	assert.ErrorIs(t, err, habit.ErrNotFound)

	after, err := s.GetHabit(ctx, user, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "read more", after.Name, "failed update is not persisted")
}

func TestSetShared(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	h, err := s.CreateHabit(ctx, user, NewHabit{Name: "walk"})
	require.NoError(t, err)
	assert.False(t, h.IsSharedWithPartner)

	h, err = s.SetShared(ctx, user, h.ID, true)
	require.NoError(t, err)
	assert.True(t, h.IsSharedWithPartner)
}

func TestDeleteHabit_Cascades(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	h, err := s.CreateHabit(ctx, user, NewHabit{Name: "walk"})
	require.NoError(t, err)
	_, err = s.AddItem(ctx, user, h.ID, habit.ItemTrigger, "after lunch")
	require.NoError(t, err)
	require.NoError(t, store.Update(func(tx storage.Tx) error {
		return tx.PutLog(user, habit.DailyLog{HabitID: h.ID, Date: "2025-03-01", Status: habit.StatusSuccess})
	}))

	require.NoError(t, s.DeleteHabit(ctx, user, h.ID))

	_, err = s.GetHabit(ctx, user, h.ID)
	assert.ErrorIs(t, err, habit.ErrNotFound)
	require.NoError(t, store.View(func(tx storage.Tx) error {
		logs, err := tx.ListLogs(user, h.ID)
		require.NoError(t, err)
		assert.Empty(t, logs)
		items, err := tx.ListItems(user, h.ID)
		assert.Empty(t, items)
		return err
	}))

	assert.ErrorIs(t, s.DeleteHabit(ctx, user, h.ID), habit.ErrNotFound)
}

func TestItems_DenseOrdering(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	h, err := s.CreateHabit(ctx, user, NewHabit{Name: "smoke less", Type: habit.TypeBreak})
	require.NoError(t, err)

	var ids []string
	for _, c := range []string{"one", "two", "three", "four"} {
		it, err := s.AddItem(ctx, user, h.ID, habit.ItemResistance, c)
		require.NoError(t, err)
		ids = append(ids, it.ID)
	}
	other, err := s.AddItem(ctx, user, h.ID, habit.ItemAttraction, "save money")
	require.NoError(t, err)
	assert.Equal(t, 0, other.OrderIndex, "order is per type")

	require.NoError(t, s.RemoveItem(ctx, user, h.ID, ids[1]))
	assertDense(t, s, h.ID, habit.ItemResistance, []string{ids[0], ids[2], ids[3]})

	_, err = s.ReorderItems(ctx, user, h.ID, habit.ItemResistance, []string{ids[3], ids[0], ids[2]})
	require.NoError(t, err)
	assertDense(t, s, h.ID, habit.ItemResistance, []string{ids[3], ids[0], ids[2]})

	all, err := s.ListItems(ctx, user, h.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestItems_Errors(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	h, err := s.CreateHabit(ctx, user, NewHabit{Name: "x"})
	require.NoError(t, err)
	a, err := s.AddItem(ctx, user, h.ID, habit.ItemTrigger, "a")
	require.NoError(t, err)
	b, err := s.AddItem(ctx, user, h.ID, habit.ItemTrigger, "b")
	require.NoError(t, err)

	_, err = s.AddItem(ctx, user, h.ID, habit.ItemTrigger, "")
	assert.ErrorIs(t, err, habit.ErrValidation)
	_, err = s.AddItem(ctx, user, h.ID, habit.ItemTrigger, strings.Repeat("c", MaxItemContentLen+1))
	assert.ErrorIs(t, err, habit.ErrValidation)
	_, err = s.AddItem(ctx, user, "missing", habit.ItemTrigger, "c")
	assert.ErrorIs(t, err, habit.ErrNotFound)

	assert.ErrorIs(t, s.RemoveItem(ctx, user, h.ID, "missing"), habit.ErrNotFound)

	_, err = s.ReorderItems(ctx, user, h.ID, habit.ItemTrigger, []string{a.ID})
	assert.ErrorIs(t, err, habit.ErrValidation, "partial list")
	_, err = s.ReorderItems(ctx, user, h.ID, habit.ItemTrigger, []string{a.ID, a.ID})
	assert.ErrorIs(t, err, habit.ErrValidation, "repeated id")
	assertDense(t, s, h.ID, habit.ItemTrigger, []string{a.ID, b.ID})
}

func assertDense(t *testing.T, s *Service, habitID string, typ habit.ItemType, want []string) {
	t.Helper()
	items, err := s.ListItems(context.Background(), user, habitID, &typ)
	require.NoError(t, err)
	require.Len(t, items, len(want))
	for i, it := range items {
		assert.Equal(t, i, it.OrderIndex)
		assert.Equal(t, want[i], it.ID)
	}
}

func TestUsers(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	u, err := s.GetUser(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, user, u.ID)
	assert.True(t, u.NotificationsEnabled)

	u, err = s.UpdateReminders(ctx, user, UserPatch{
		Email:               ptr("alice@example.com"),
		MorningReminderTime: ptr("08:30"),
		EveningReminderTime: ptr("21:15"),
	})
	require.NoError(t, err)
	require.NotNil(t, u.MorningReminderTime)
	assert.Equal(t, "08:30", *u.MorningReminderTime)

	u, err = s.UpdateReminders(ctx, user, UserPatch{EveningReminderTime: ptr(""), NotificationsEnabled: ptr(false)})
	require.NoError(t, err)
	assert.Nil(t, u.EveningReminderTime)
	assert.NotNil(t, u.MorningReminderTime, "untouched fields are kept")
	assert.False(t, u.NotificationsEnabled)

	_, err = s.UpdateReminders(ctx, user, UserPatch{MorningReminderTime: ptr("8am")})
	assert.ErrorIs(t, err, habit.ErrValidation)
	_, err = s.UpdateReminders(ctx, user, UserPatch{Email: ptr("not an email")})
	assert.ErrorIs(t, err, habit.ErrValidation)

	stored, err := s.GetUser(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", stored.Email)
}

func TestValidateNote(t *testing.T) {
	assert.NoError(t, ValidateNote(nil))
	assert.NoError(t, ValidateNote(ptr("fine")))
	assert.ErrorIs(t, ValidateNote(ptr(strings.Repeat("n", MaxNoteLen+1))), habit.ErrValidation)
}
