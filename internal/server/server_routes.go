package server

import (
	"net/http"

	"github.com/brk3/streakmate/internal/logger"
	"github.com/brk3/streakmate/internal/tracker"
	"github.com/brk3/streakmate/pkg/habit"
	"github.com/brk3/streakmate/pkg/versioninfo"
	"github.com/go-chi/chi/v5"
)

func (s *Server) getVersionInfo(w http.ResponseWriter, _ *http.Request) {
	info := versioninfo.VersionInfo{
		Version:   versioninfo.Version,
		BuildDate: versioninfo.BuildDate,
	}
	if err := writeJSON(w, http.StatusOK, info); err != nil {
		logger.Error("Failed to serialize version info response", "error", err)
	}
}

// requireUser resolves the caller. It writes a 400 and returns "" when no
// user can be determined.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := userIDFromContext(s.cfg.AuthEnabled, r)
	if userID == "" {
		logger.Warn("Missing user ID", "path", r.URL.Path)
		http.Error(w, `{"error":"user id is required"}`, http.StatusBadRequest)
	}
	return userID
}

func (s *Server) listHabits(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	includeArchived := r.URL.Query().Get("archived") == "true"
	habits, err := s.tracker.ListHabits(r.Context(), userID, includeArchived)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.Debug("Listed habits", "user_id", userID, "count", len(habits))
	respond(w, http.StatusOK, HabitListResponse{Habits: habits})
}

func (s *Server) createHabit(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	var req CreateHabitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := tracker.NewHabit{
		Name:                req.Name,
		Description:         req.Description,
		ActiveDays:          req.ActiveDays,
		TriggerTime:         req.TriggerTime,
		IsSharedWithPartner: req.IsSharedWithPartner,
	}
	var err error
	if req.Type != "" {
		if in.Type, err = habit.ParseType(req.Type); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.Frequency != "" {
		if in.Frequency, err = habit.ParseFrequency(req.Frequency); err != nil {
			writeError(w, r, err)
			return
		}
	}

	h, err := s.tracker.CreateHabit(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.refreshActiveHabits(r, userID)
	respond(w, http.StatusCreated, h)
}

func (s *Server) getHabit(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	h, err := s.tracker.GetHabit(r.Context(), userID, chi.URLParam(r, "habit_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, h)
}

func (s *Server) updateHabit(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	var req UpdateHabitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	patch := tracker.HabitPatch{
		Name:        req.Name,
		Description: req.Description,
		ActiveDays:  req.ActiveDays,
		TriggerTime: req.TriggerTime,
	}
	if req.Type != nil {
		t, err := habit.ParseType(*req.Type)
		if err != nil {
			writeError(w, r, err)
			return
		}
		patch.Type = &t
	}
	if req.Frequency != nil {
		f, err := habit.ParseFrequency(*req.Frequency)
		if err != nil {
			writeError(w, r, err)
			return
		}
		patch.Frequency = &f
	}

	h, err := s.tracker.UpdateHabit(r.Context(), userID, chi.URLParam(r, "habit_id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, h)
}

func (s *Server) deleteHabit(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	habitID := chi.URLParam(r, "habit_id")
	if err := s.tracker.DeleteHabit(r.Context(), userID, habitID); err != nil {
		writeError(w, r, err)
		return
	}
	s.refreshActiveHabits(r, userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) archiveHabit(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	req := ArchiveRequest{Archived: true}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	h, err := s.tracker.ArchiveHabit(r.Context(), userID, chi.URLParam(r, "habit_id"), req.Archived)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.refreshActiveHabits(r, userID)
	respond(w, http.StatusOK, h)
}

func (s *Server) shareHabit(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	req := ShareRequest{Shared: true}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	h, err := s.tracker.SetShared(r.Context(), userID, chi.URLParam(r, "habit_id"), req.Shared)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, h)
}

func (s *Server) markStatus(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	var req MarkStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status, err := habit.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := tracker.ValidateNote(req.Note); err != nil {
		writeError(w, r, err)
		return
	}

	h, entry, err := s.streaks.MarkStatus(r.Context(), userID, chi.URLParam(r, "habit_id"), chi.URLParam(r, "date"), status, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	RecordStatusMark(string(status))
	respond(w, http.StatusOK, MarkStatusResponse{Habit: h, Log: entry})
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	from, ok := s.dateQuery(w, r, "from")
	if !ok {
		return
	}
	to, ok := s.dateQuery(w, r, "to")
	if !ok {
		return
	}

	habitID := chi.URLParam(r, "habit_id")
	logs, err := s.streaks.History(r.Context(), userID, habitID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, LogListResponse{HabitID: habitID, Logs: logs})
}

func (s *Server) dateQuery(w http.ResponseWriter, r *http.Request, key string) (*habit.Date, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, true
	}
	d, err := habit.ParseDate(v)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return &d, true
}

func (s *Server) incrementStreak(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	h, err := s.streaks.IncrementStreak(r.Context(), userID, chi.URLParam(r, "habit_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, h)
}

func (s *Server) resetStreak(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	h, err := s.streaks.ResetStreak(r.Context(), userID, chi.URLParam(r, "habit_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, h)
}

func (s *Server) getHabitSummary(w http.ResponseWriter, r *http.Request) {
	habitID := chi.URLParam(r, "habit_id")
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	logger.Debug("Getting habit summary", "habit_id", habitID, "user_id", userID)

	h, err := s.tracker.GetHabit(r.Context(), userID, habitID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logs, err := s.streaks.History(r.Context(), userID, habitID, nil, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}

	respond(w, http.StatusOK, HabitSummaryResponse{
		HabitID:      habitID,
		HabitSummary: computeSummary(h, logs, habit.DateOf(s.now())),
	})
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	var typ *habit.ItemType
	if v := r.URL.Query().Get("type"); v != "" {
		t, err := habit.ParseItemType(v)
		if err != nil {
			writeError(w, r, err)
			return
		}
		typ = &t
	}

	habitID := chi.URLParam(r, "habit_id")
	items, err := s.tracker.ListItems(r.Context(), userID, habitID, typ)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, ItemListResponse{HabitID: habitID, Items: items})
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	var req AddItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	typ, err := habit.ParseItemType(req.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}
	it, err := s.tracker.AddItem(r.Context(), userID, chi.URLParam(r, "habit_id"), typ, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, it)
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	err := s.tracker.RemoveItem(r.Context(), userID, chi.URLParam(r, "habit_id"), chi.URLParam(r, "item_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reorderItems(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	var req ReorderItemsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	typ, err := habit.ParseItemType(req.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}
	habitID := chi.URLParam(r, "habit_id")
	items, err := s.tracker.ReorderItems(r.Context(), userID, habitID, typ, req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, ItemListResponse{HabitID: habitID, Items: items})
}

func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	u, err := s.tracker.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, u)
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	var req UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.tracker.UpdateReminders(r.Context(), userID, tracker.UserPatch{
		DisplayName:          req.DisplayName,
		Email:                req.Email,
		MorningReminderTime:  req.MorningReminderTime,
		EveningReminderTime:  req.EveningReminderTime,
		NotificationsEnabled: req.NotificationsEnabled,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, u)
}

func (s *Server) refreshActiveHabits(r *http.Request, userID string) {
	habits, err := s.tracker.ListHabits(r.Context(), userID, false)
	if err != nil {
		logger.Warn("Failed to update active habits metric", "user_id", userID, "error", err)
		return
	}
	UpdateActiveHabitsForUser(userID, len(habits))
}
