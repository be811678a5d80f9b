package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brk3/streakmate/internal/logger"
	"github.com/brk3/streakmate/internal/storage"
	"github.com/brk3/streakmate/pkg/habit"
	"golang.org/x/oauth2"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
// A single connection is used so that write transactions never interleave.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open: create db dir: %w", err)
	}

	dsn := "file:" + path + "?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: sql open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open: ping: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Update(fn func(tx storage.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(&sqlTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) View(fn func(tx storage.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&sqlTx{tx: tx})
}

type sqlTx struct {
	tx *sql.Tx
}

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		logger.Warn("Unparseable stored timestamp", "value", s, "error", err)
		return time.Time{}
	}
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// Stored enum columns fail closed: an unknown value is replaced by the
// type's default and logged.

func storedType(s string) habit.Type {
	v, err := habit.ParseType(s)
	if err != nil {
		logger.Warn("Invalid stored habit type, using default", "value", s, "default", v)
	}
	return v
}

func storedFrequency(s string) habit.Frequency {
	v, err := habit.ParseFrequency(s)
	if err != nil {
		logger.Warn("Invalid stored frequency, using default", "value", s, "default", v)
	}
	return v
}

func storedStatus(s string) habit.Status {
	v, err := habit.ParseStatus(s)
	if err != nil {
		logger.Warn("Invalid stored log status, using default", "value", s, "default", v)
	}
	return v
}

func storedItemType(s string) habit.ItemType {
	v, err := habit.ParseItemType(s)
	if err != nil {
		v = habit.ItemResistance
		logger.Warn("Invalid stored list item type, hiding as resistance", "value", s)
	}
	return v
}

func storedPartnershipStatus(s string) habit.PartnershipStatus {
	v, err := habit.ParsePartnershipStatus(s)
	if err != nil {
		logger.Warn("Invalid stored partnership status, using default", "value", s, "default", v)
	}
	return v
}

const habitColumns = `id, name, description, type, frequency, active_days, trigger_time,
	current_streak, longest_streak, total_success_days, total_failure_days,
	is_archived, is_shared_with_partner, created_at, updated_at`

func scanHabit(row scanner) (habit.Habit, error) {
	var (
		h                    habit.Habit
		typ, freq, days      string
		trigger              sql.NullString
		created, updated     string
		archived, sharedFlag bool
	)
	err := row.Scan(&h.ID, &h.Name, &h.Description, &typ, &freq, &days, &trigger,
		&h.CurrentStreak, &h.LongestStreak, &h.TotalSuccessDays, &h.TotalFailureDays,
		&archived, &sharedFlag, &created, &updated)
	if err != nil {
		return habit.Habit{}, err
	}
	h.Type = storedType(typ)
	h.Frequency = storedFrequency(freq)
	if err := json.Unmarshal([]byte(days), &h.ActiveDays); err != nil {
		return habit.Habit{}, fmt.Errorf("habit %s active days: %w", h.ID, err)
	}
	h.TriggerTime = strPtr(trigger)
	h.IsArchived = archived
	h.IsSharedWithPartner = sharedFlag
	h.CreatedAt = parseTime(created)
	h.UpdatedAt = parseTime(updated)
	return h, nil
}

func (t *sqlTx) GetHabit(userID, habitID string) (habit.Habit, bool, error) {
	row := t.tx.QueryRow(`SELECT `+habitColumns+` FROM habits WHERE user_id = ? AND id = ?`, userID, habitID)
	h, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return habit.Habit{}, false, nil
	}
	if err != nil {
		return habit.Habit{}, false, err
	}
	return h, true, nil
}

func (t *sqlTx) ListHabits(userID string) ([]habit.Habit, error) {
	rows, err := t.tx.Query(`SELECT `+habitColumns+` FROM habits WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []habit.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// created_at is stored as text; sort on the parsed values.
	storage.SortHabits(out)
	return out, nil
}

// PutHabit upserts with ON CONFLICT rather than REPLACE, which would
// delete the row and cascade to its logs.
func (t *sqlTx) PutHabit(userID string, h habit.Habit) error {
	days, err := json.Marshal(h.ActiveDays)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`
		INSERT INTO habits (user_id, `+habitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			type = excluded.type,
			frequency = excluded.frequency,
			active_days = excluded.active_days,
			trigger_time = excluded.trigger_time,
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			total_success_days = excluded.total_success_days,
			total_failure_days = excluded.total_failure_days,
			is_archived = excluded.is_archived,
			is_shared_with_partner = excluded.is_shared_with_partner,
			updated_at = excluded.updated_at`,
		userID, h.ID, h.Name, h.Description, string(h.Type), string(h.Frequency), string(days), nullStr(h.TriggerTime),
		h.CurrentStreak, h.LongestStreak, h.TotalSuccessDays, h.TotalFailureDays,
		h.IsArchived, h.IsSharedWithPartner, formatTime(h.CreatedAt), formatTime(h.UpdatedAt))
	return err
}

func (t *sqlTx) DeleteHabit(userID, habitID string) error {
	for _, stmt := range []string{
		`DELETE FROM daily_logs WHERE user_id = ? AND habit_id = ?`,
		`DELETE FROM list_items WHERE user_id = ? AND habit_id = ?`,
		`DELETE FROM habits WHERE user_id = ? AND id = ?`,
	} {
		if _, err := t.tx.Exec(stmt, userID, habitID); err != nil {
			return err
		}
	}
	return nil
}

func scanLog(row scanner) (habit.DailyLog, error) {
	var (
		l            habit.DailyLog
		date, status string
		marked       string
		note         sql.NullString
	)
	if err := row.Scan(&l.HabitID, &date, &status, &marked, &note); err != nil {
		return habit.DailyLog{}, err
	}
	l.Date = habit.Date(date)
	l.Status = storedStatus(status)
	l.MarkedAt = parseTime(marked)
	l.Note = strPtr(note)
	return l, nil
}

func (t *sqlTx) GetLog(userID, habitID string, d habit.Date) (habit.DailyLog, bool, error) {
	row := t.tx.QueryRow(`SELECT habit_id, date, status, marked_at, note FROM daily_logs
		WHERE user_id = ? AND habit_id = ? AND date = ?`, userID, habitID, string(d))
	l, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return habit.DailyLog{}, false, nil
	}
	if err != nil {
		return habit.DailyLog{}, false, err
	}
	return l, true, nil
}

func (t *sqlTx) ListLogs(userID, habitID string) ([]habit.DailyLog, error) {
	rows, err := t.tx.Query(`SELECT habit_id, date, status, marked_at, note FROM daily_logs
		WHERE user_id = ? AND habit_id = ? ORDER BY date ASC`, userID, habitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []habit.DailyLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *sqlTx) PutLog(userID string, l habit.DailyLog) error {
	_, err := t.tx.Exec(`
		INSERT INTO daily_logs (user_id, habit_id, date, status, marked_at, note)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, habit_id, date) DO UPDATE SET
			status = excluded.status,
			marked_at = excluded.marked_at,
			note = excluded.note`,
		userID, l.HabitID, string(l.Date), string(l.Status), formatTime(l.MarkedAt), nullStr(l.Note))
	return err
}

func (t *sqlTx) ListItems(userID, habitID string) ([]habit.ListItem, error) {
	rows, err := t.tx.Query(`SELECT id, habit_id, type, content, order_index, created_at FROM list_items
		WHERE user_id = ? AND habit_id = ?`, userID, habitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []habit.ListItem
	for rows.Next() {
		var (
			it           habit.ListItem
			typ, created string
		)
		if err := rows.Scan(&it.ID, &it.HabitID, &typ, &it.Content, &it.OrderIndex, &created); err != nil {
			return nil, err
		}
		it.Type = storedItemType(typ)
		it.CreatedAt = parseTime(created)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	storage.SortItems(out)
	return out, nil
}

func (t *sqlTx) PutItem(userID string, it habit.ListItem) error {
	_, err := t.tx.Exec(`
		INSERT INTO list_items (user_id, id, habit_id, type, content, order_index, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, id) DO UPDATE SET
			type = excluded.type,
			content = excluded.content,
			order_index = excluded.order_index`,
		userID, it.ID, it.HabitID, string(it.Type), it.Content, it.OrderIndex, formatTime(it.CreatedAt))
	return err
}

func (t *sqlTx) DeleteItem(userID, habitID, itemID string) error {
	_, err := t.tx.Exec(`DELETE FROM list_items WHERE user_id = ? AND habit_id = ? AND id = ?`, userID, habitID, itemID)
	return err
}

const partnershipColumns = `id, owner_id, partner_id, invite_code, invite_expires_at, status, created_at, accepted_at, revoked_at`

func scanPartnership(row scanner) (habit.Partnership, error) {
	var (
		p                          habit.Partnership
		status, created            string
		expires, accepted, revoked sql.NullString
	)
	err := row.Scan(&p.ID, &p.OwnerID, &p.PartnerID, &p.InviteCode, &expires, &status, &created, &accepted, &revoked)
	if err != nil {
		return habit.Partnership{}, err
	}
	p.InviteExpiresAt = parseTimePtr(expires)
	p.Status = storedPartnershipStatus(status)
	p.CreatedAt = parseTime(created)
	p.AcceptedAt = parseTimePtr(accepted)
	p.RevokedAt = parseTimePtr(revoked)
	return p, nil
}

func (t *sqlTx) getPartnership(where string, arg string) (habit.Partnership, bool, error) {
	row := t.tx.QueryRow(`SELECT `+partnershipColumns+` FROM partnerships WHERE `+where+` = ?`, arg)
	p, err := scanPartnership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return habit.Partnership{}, false, nil
	}
	if err != nil {
		return habit.Partnership{}, false, err
	}
	return p, true, nil
}

func (t *sqlTx) GetPartnership(id string) (habit.Partnership, bool, error) {
	return t.getPartnership("id", id)
}

func (t *sqlTx) GetPartnershipByCode(code string) (habit.Partnership, bool, error) {
	return t.getPartnership("invite_code", code)
}

func (t *sqlTx) ListPartnerships(userID string) ([]habit.Partnership, error) {
	rows, err := t.tx.Query(`SELECT `+partnershipColumns+` FROM partnerships
		WHERE owner_id = ? OR (partner_id != '' AND partner_id = ?)`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []habit.Partnership
	for rows.Next() {
		p, err := scanPartnership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	storage.SortPartnerships(out)
	return out, nil
}

func (t *sqlTx) PutPartnership(p habit.Partnership) error {
	var other string
	err := t.tx.QueryRow(`SELECT id FROM partnerships WHERE invite_code = ? AND id != ?`, p.InviteCode, p.ID).Scan(&other)
	if err == nil {
		return storage.ErrDuplicateInviteCode
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = t.tx.Exec(`
		INSERT INTO partnerships (`+partnershipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			partner_id = excluded.partner_id,
			invite_code = excluded.invite_code,
			invite_expires_at = excluded.invite_expires_at,
			status = excluded.status,
			accepted_at = excluded.accepted_at,
			revoked_at = excluded.revoked_at`,
		p.ID, p.OwnerID, p.PartnerID, p.InviteCode, formatTimePtr(p.InviteExpiresAt), string(p.Status),
		formatTime(p.CreatedAt), formatTimePtr(p.AcceptedAt), formatTimePtr(p.RevokedAt))
	return err
}

func (t *sqlTx) GetUser(userID string) (habit.User, bool, error) {
	var (
		u                habit.User
		morning, evening sql.NullString
	)
	err := t.tx.QueryRow(`SELECT id, display_name, email, morning_reminder_time, evening_reminder_time, notifications_enabled
		FROM users WHERE id = ?`, userID).Scan(&u.ID, &u.DisplayName, &u.Email, &morning, &evening, &u.NotificationsEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return habit.User{}, false, nil
	}
	if err != nil {
		return habit.User{}, false, err
	}
	u.MorningReminderTime = strPtr(morning)
	u.EveningReminderTime = strPtr(evening)
	return u, true, nil
}

func (t *sqlTx) PutUser(u habit.User) error {
	_, err := t.tx.Exec(`
		INSERT INTO users (id, display_name, email, morning_reminder_time, evening_reminder_time, notifications_enabled)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			morning_reminder_time = excluded.morning_reminder_time,
			evening_reminder_time = excluded.evening_reminder_time,
			notifications_enabled = excluded.notifications_enabled`,
		u.ID, u.DisplayName, u.Email, nullStr(u.MorningReminderTime), nullStr(u.EveningReminderTime), u.NotificationsEnabled)
	return err
}

func (s *Store) PutAPIKey(keyHash, userID string) error {
	_, err := s.db.Exec(`INSERT INTO api_keys (key_hash, user_id) VALUES (?, ?)
		ON CONFLICT (key_hash) DO UPDATE SET user_id = excluded.user_id`, keyHash, userID)
	return err
}

func (s *Store) GetAPIKey(keyHash string) (string, bool, error) {
	var userID string
	err := s.db.QueryRow(`SELECT user_id FROM api_keys WHERE key_hash = ?`, keyHash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

func (s *Store) ListAPIKeyHashes(userID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT key_hash FROM api_keys WHERE user_id = ? ORDER BY key_hash`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAPIKey(keyHash string) error {
	_, err := s.db.Exec(`DELETE FROM api_keys WHERE key_hash = ?`, keyHash)
	return err
}

func (s *Store) PutRefreshToken(userID string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO refresh_tokens (user_id, token) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET token = excluded.token`, userID, string(data))
	return err
}

func (s *Store) GetRefreshToken(userID string) (*oauth2.Token, bool, error) {
	var data string
	err := s.db.QueryRow(`SELECT token FROM refresh_tokens WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return nil, false, err
	}
	return &tok, true, nil
}

func (s *Store) DeleteRefreshToken(userID string) error {
	_, err := s.db.Exec(`DELETE FROM refresh_tokens WHERE user_id = ?`, userID)
	return err
}

var _ storage.Store = (*Store)(nil)
