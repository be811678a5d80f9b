package habit

import "time"

type Habit struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	Type                Type      `json:"type"`
	Frequency           Frequency `json:"frequency"`
	ActiveDays          []int     `json:"active_days"`
	TriggerTime         *string   `json:"trigger_time,omitempty"`
	CurrentStreak       int       `json:"current_streak"`
	LongestStreak       int       `json:"longest_streak"`
	TotalSuccessDays    int       `json:"total_success_days"`
	TotalFailureDays    int       `json:"total_failure_days"`
	IsArchived          bool      `json:"is_archived"`
	IsSharedWithPartner bool      `json:"is_shared_with_partner"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ScheduledOn reports whether the habit is active on the weekday of d.
func (h Habit) ScheduledOn(d Date) bool {
	wd := d.ISOWeekday()
	for _, a := range h.ActiveDays {
		if a == wd {
			return true
		}
	}
	return false
}

type DailyLog struct {
	HabitID  string    `json:"habit_id"`
	Date     Date      `json:"date"`
	Status   Status    `json:"status"`
	MarkedAt time.Time `json:"marked_at"`
	Note     *string   `json:"note,omitempty"`
}

type ListItem struct {
	ID         string    `json:"id"`
	HabitID    string    `json:"habit_id"`
	Type       ItemType  `json:"type"`
	Content    string    `json:"content"`
	OrderIndex int       `json:"order_index"`
	CreatedAt  time.Time `json:"created_at"`
}

type Partnership struct {
	ID              string            `json:"id"`
	OwnerID         string            `json:"owner_id"`
	PartnerID       string            `json:"partner_id,omitempty"`
	InviteCode      string            `json:"invite_code"`
	InviteExpiresAt *time.Time        `json:"invite_expires_at,omitempty"`
	Status          PartnershipStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	AcceptedAt      *time.Time        `json:"accepted_at,omitempty"`
	RevokedAt       *time.Time        `json:"revoked_at,omitempty"`
}

// Involves reports whether userID is the owner or the accepted partner.
func (p Partnership) Involves(userID string) bool {
	return userID != "" && (p.OwnerID == userID || p.PartnerID == userID)
}

type User struct {
	ID                   string  `json:"id"`
	DisplayName          string  `json:"display_name,omitempty"`
	Email                string  `json:"email,omitempty"`
	MorningReminderTime  *string `json:"morning_reminder_time,omitempty"`
	EveningReminderTime  *string `json:"evening_reminder_time,omitempty"`
	NotificationsEnabled bool    `json:"notifications_enabled"`
}

type HabitSummary struct {
	Name             string  `json:"name"`
	CurrentStreak    int     `json:"current_streak"`
	LongestStreak    int     `json:"longest_streak"`
	TotalSuccessDays int     `json:"total_success_days"`
	TotalFailureDays int     `json:"total_failure_days"`
	SuccessRate      float64 `json:"success_rate"`
	FirstLogged      string  `json:"first_logged,omitempty"`
	ThisMonth        int     `json:"this_month"`
	LastWrite        int64   `json:"last_write"`
}

// SharedHabit is a partner's view of a habit. Items never contain
// RESISTANCE entries.
type SharedHabit struct {
	Habit Habit      `json:"habit"`
	Logs  []DailyLog `json:"logs"`
	Items []ListItem `json:"items"`
}
