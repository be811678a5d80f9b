package storage

import (
	"errors"
	"sort"

	"github.com/brk3/streakmate/pkg/habit"
	"golang.org/x/oauth2"
)

var ErrDuplicateInviteCode = errors.New("invite code already in use")

// Store is the persistence collaborator shared by the engines and the HTTP
// layer. Update runs fn in one read-write transaction: writers are
// serialized, and an error returned from fn discards every write made in it.
type Store interface {
	Update(fn func(tx Tx) error) error
	View(fn func(tx Tx) error) error

	PutAPIKey(keyHash, userID string) error
	GetAPIKey(keyHash string) (userID string, found bool, err error)
	ListAPIKeyHashes(userID string) ([]string, error)
	DeleteAPIKey(keyHash string) error

	PutRefreshToken(userID string, tok *oauth2.Token) error
	GetRefreshToken(userID string) (*oauth2.Token, bool, error)
	DeleteRefreshToken(userID string) error

	Close() error
}

// Tx is a view of the store bound to one transaction. Habits, logs, items
// and user profiles are scoped to a user; partnerships are global.
type Tx interface {
	GetHabit(userID, habitID string) (habit.Habit, bool, error)
	ListHabits(userID string) ([]habit.Habit, error)
	PutHabit(userID string, h habit.Habit) error
	// DeleteHabit removes the habit together with its logs and list items.
	DeleteHabit(userID, habitID string) error

	GetLog(userID, habitID string, d habit.Date) (habit.DailyLog, bool, error)
	// ListLogs returns the habit's logs ordered by date.
	ListLogs(userID, habitID string) ([]habit.DailyLog, error)
	// PutLog upserts the (habit, date) entry.
	PutLog(userID string, l habit.DailyLog) error

	// ListItems returns every list item of a habit, including RESISTANCE
	// items. Partner-facing reads must go through PartnerVisibleItems.
	ListItems(userID, habitID string) ([]habit.ListItem, error)
	PutItem(userID string, it habit.ListItem) error
	DeleteItem(userID, habitID, itemID string) error

	GetPartnership(id string) (habit.Partnership, bool, error)
	GetPartnershipByCode(code string) (habit.Partnership, bool, error)
	ListPartnerships(userID string) ([]habit.Partnership, error)
	PutPartnership(p habit.Partnership) error

	GetUser(userID string) (habit.User, bool, error)
	PutUser(u habit.User) error
}

// PartnerVisibleItems is the only read path for list items served to a
// partner. RESISTANCE items are dropped unconditionally, whatever the
// habit's sharing flag says.
func PartnerVisibleItems(tx Tx, ownerID, habitID string) ([]habit.ListItem, error) {
	items, err := tx.ListItems(ownerID, habitID)
	if err != nil {
		return nil, err
	}
	out := make([]habit.ListItem, 0, len(items))
	for _, it := range items {
		if it.Type == habit.ItemResistance {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func SortHabits(hs []habit.Habit) {
	sort.SliceStable(hs, func(i, j int) bool {
		if !hs[i].CreatedAt.Equal(hs[j].CreatedAt) {
			return hs[i].CreatedAt.Before(hs[j].CreatedAt)
		}
		return hs[i].ID < hs[j].ID
	})
}

func SortItems(items []habit.ListItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Type != items[j].Type {
			return items[i].Type < items[j].Type
		}
		if items[i].OrderIndex != items[j].OrderIndex {
			return items[i].OrderIndex < items[j].OrderIndex
		}
		return items[i].ID < items[j].ID
	})
}

func SortPartnerships(ps []habit.Partnership) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}
