package tracker

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/brk3/streakmate/internal/logger"
	"github.com/brk3/streakmate/internal/storage"
	"github.com/brk3/streakmate/pkg/habit"
)

// UserPatch lists the editable profile fields; nil leaves a field
// unchanged. An empty reminder time clears it.
type UserPatch struct {
	DisplayName          *string
	Email                *string
	MorningReminderTime  *string
	EveningReminderTime  *string
	NotificationsEnabled *bool
}

// GetUser returns the stored profile, or a default one for a user that has
// never saved settings.
func (s *Service) GetUser(ctx context.Context, userID string) (habit.User, error) {
	var u habit.User
	err := s.store.View(func(tx storage.Tx) error {
		var err error
		u, err = loadUser(tx, userID)
		return err
	})
	return u, err
}

// UpdateReminders applies p to the user's profile.
func (s *Service) UpdateReminders(ctx context.Context, userID string, p UserPatch) (habit.User, error) {
	var u habit.User
	err := s.store.Update(func(tx storage.Tx) error {
		var err error
		u, err = loadUser(tx, userID)
		if err != nil {
			return err
		}
		if p.DisplayName != nil {
			u.DisplayName = strings.TrimSpace(*p.DisplayName)
		}
		if p.Email != nil {
			email := strings.TrimSpace(*p.Email)
			if email != "" {
				if _, err := mail.ParseAddress(email); err != nil {
					return fmt.Errorf("email %q: %w", email, habit.ErrValidation)
				}
			}
			u.Email = email
		}
		if p.MorningReminderTime != nil {
			if u.MorningReminderTime, err = normalizeClock("morning reminder", p.MorningReminderTime); err != nil {
				return err
			}
		}
		if p.EveningReminderTime != nil {
			if u.EveningReminderTime, err = normalizeClock("evening reminder", p.EveningReminderTime); err != nil {
				return err
			}
		}
		if p.NotificationsEnabled != nil {
			u.NotificationsEnabled = *p.NotificationsEnabled
		}
		return tx.PutUser(u)
	})
	if err != nil {
		return habit.User{}, err
	}
	logger.InfoContext(ctx, "Updated user settings", "user_id", userID, "notifications", u.NotificationsEnabled)
	return u, nil
}

func loadUser(tx storage.Tx, userID string) (habit.User, error) {
	u, found, err := tx.GetUser(userID)
	if err != nil {
		return habit.User{}, err
	}
	if !found {
		return habit.User{ID: userID, NotificationsEnabled: true}, nil
	}
	return u, nil
}
