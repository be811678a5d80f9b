package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/brk3/streakmate/internal/logger"
	"github.com/brk3/streakmate/pkg/habit"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateHabitRequest struct {
	Name                string  `json:"name"`
	Description         string  `json:"description"`
	Type                string  `json:"type"`
	Frequency           string  `json:"frequency"`
	ActiveDays          []int   `json:"active_days"`
	TriggerTime         *string `json:"trigger_time"`
	IsSharedWithPartner bool    `json:"is_shared_with_partner"`
}

type UpdateHabitRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Type        *string `json:"type"`
	Frequency   *string `json:"frequency"`
	ActiveDays  []int   `json:"active_days"`
	TriggerTime *string `json:"trigger_time"`
}

type ArchiveRequest struct {
	Archived bool `json:"archived"`
}

type ShareRequest struct {
	Shared bool `json:"shared"`
}

type MarkStatusRequest struct {
	Status string  `json:"status"`
	Note   *string `json:"note"`
}

type MarkStatusResponse struct {
	Habit habit.Habit    `json:"habit"`
	Log   habit.DailyLog `json:"log"`
}

type AddItemRequest struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type ReorderItemsRequest struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

type UpdateUserRequest struct {
	DisplayName          *string `json:"display_name"`
	Email                *string `json:"email"`
	MorningReminderTime  *string `json:"morning_reminder_time"`
	EveningReminderTime  *string `json:"evening_reminder_time"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
}

type AcceptInviteRequest struct {
	Code string `json:"code"`
}

type HabitListResponse struct {
	Habits []habit.Habit `json:"habits"`
}

type LogListResponse struct {
	HabitID string           `json:"habit_id"`
	Logs    []habit.DailyLog `json:"logs"`
}

type ItemListResponse struct {
	HabitID string           `json:"habit_id"`
	Items   []habit.ListItem `json:"items"`
}

type HabitSummaryResponse struct {
	HabitID      string             `json:"habit_id"`
	HabitSummary habit.HabitSummary `json:"habit_summary"`
}

type PartnershipListResponse struct {
	Partnerships []habit.Partnership `json:"partnerships"`
}

type PartnerViewResponse struct {
	OwnerID string              `json:"owner_id"`
	Habits  []habit.SharedHabit `json:"habits"`
}

type APIKeyResponse struct {
	APIKey string `json:"api_key"`
}

type APIKeyInfo struct {
	KeyHash string `json:"key_hash"`
	Display string `json:"display"`
}

type APIKeyListResponse struct {
	Keys []APIKeyInfo `json:"keys"`
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

// statusFor maps domain sentinels to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, habit.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, habit.ErrExpiredInvite):
		return http.StatusGone
	case errors.Is(err, habit.ErrInvalidPartner):
		return http.StatusForbidden
	case errors.Is(err, habit.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, habit.ErrInvalidDate), errors.Is(err, habit.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the client. Unmapped errors are logged and
// answered with a generic body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	_ = writeJSON(w, code, ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Warn("Invalid JSON in request", "path", r.URL.Path, "error", err)
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return false
	}
	return true
}

func respond(w http.ResponseWriter, code int, v any) {
	if err := writeJSON(w, code, v); err != nil {
		logger.Error("Failed to serialize response", "error", err)
	}
}
