package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/brk3/streakmate/internal/config"
	"github.com/brk3/streakmate/internal/partnership"
	"github.com/brk3/streakmate/internal/storage"
	"github.com/brk3/streakmate/internal/storage/bolt"
	"github.com/brk3/streakmate/pkg/habit"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := bolt.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestServer(t *testing.T, st storage.Store) http.Handler {
	t.Helper()
	s, err := New(&config.Config{}, st)
	if err != nil {
		t.Fatalf("error creating server: %v", err)
	}
	return s.Router()
}

func mockRequest(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	return requestAs(h, "", method, path, body)
}

// requestAs sends a request authenticated with apiKey, if given.
func requestAs(h http.Handler, apiKey, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("got %d want %d, body: %s", rr.Code, want, rr.Body.String())
	}
}

func TestListHabits_Empty(t *testing.T) {
	h := newTestServer(t, newTestStore(t))
	rr := mockRequest(h, http.MethodGet, "/habits/", nil)
	expectStatus(t, rr, http.StatusOK)

	resp := decode[HabitListResponse](t, rr)
	if resp.Habits == nil || len(resp.Habits) != 0 {
		t.Fatalf("got %v want empty list", resp.Habits)
	}
}

func TestGetVersionInfo(t *testing.T) {
	h := newTestServer(t, newTestStore(t))
	rr := mockRequest(h, http.MethodGet, "/version", nil)
	expectStatus(t, rr, http.StatusOK)
	if !bytes.Contains(rr.Body.Bytes(), []byte("Version")) {
		t.Fatalf("expected version info in %s", rr.Body.String())
	}
}

func TestHabitLifecycle(t *testing.T) {
	h := newTestServer(t, newTestStore(t))

	rr := mockRequest(h, http.MethodPost, "/habits/", CreateHabitRequest{Name: "guitar", Frequency: "daily"})
	expectStatus(t, rr, http.StatusCreated)
	created := decode[habit.Habit](t, rr)
	if created.ID == "" || created.Frequency != habit.FrequencyDaily {
		t.Fatalf("unexpected habit %+v", created)
	}
	base := "/habits/" + created.ID

	name := "guitar practice"
	rr = mockRequest(h, http.MethodPatch, base, UpdateHabitRequest{Name: &name})
	expectStatus(t, rr, http.StatusOK)
	if got := decode[habit.Habit](t, rr); got.Name != name {
		t.Fatalf("got name %q", got.Name)
	}

	for _, d := range []string{"2025-03-01", "2025-03-02", "2025-03-03"} {
		rr = mockRequest(h, http.MethodPut, base+"/logs/"+d, MarkStatusRequest{Status: "success"})
		expectStatus(t, rr, http.StatusOK)
	}
	marked := decode[MarkStatusResponse](t, rr)
	if marked.Habit.CurrentStreak != 3 || marked.Log.Status != habit.StatusSuccess {
		t.Fatalf("unexpected mark response %+v", marked)
	}

	rr = mockRequest(h, http.MethodGet, base+"/logs?from=2025-03-02", nil)
	expectStatus(t, rr, http.StatusOK)
	if logs := decode[LogListResponse](t, rr).Logs; len(logs) != 2 {
		t.Fatalf("got %d logs, want 2", len(logs))
	}

	rr = mockRequest(h, http.MethodGet, base+"/summary", nil)
	expectStatus(t, rr, http.StatusOK)
	sum := decode[HabitSummaryResponse](t, rr).HabitSummary
	if sum.TotalSuccessDays != 3 || sum.FirstLogged != "2025-03-01" || sum.SuccessRate != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	rr = mockRequest(h, http.MethodPost, base+"/streak/reset", nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[habit.Habit](t, rr); got.CurrentStreak != 0 || got.LongestStreak != 3 {
		t.Fatalf("unexpected habit after reset %+v", got)
	}

	rr = mockRequest(h, http.MethodPost, base+"/archive", nil)
	expectStatus(t, rr, http.StatusOK)
	rr = mockRequest(h, http.MethodGet, "/habits/", nil)
	if n := len(decode[HabitListResponse](t, rr).Habits); n != 0 {
		t.Fatalf("archived habit listed, got %d habits", n)
	}
	rr = mockRequest(h, http.MethodGet, "/habits/?archived=true", nil)
	if n := len(decode[HabitListResponse](t, rr).Habits); n != 1 {
		t.Fatalf("got %d habits with archived=true, want 1", n)
	}

	rr = mockRequest(h, http.MethodDelete, base, nil)
	expectStatus(t, rr, http.StatusNoContent)
	rr = mockRequest(h, http.MethodGet, base, nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestCreateHabit_Invalid(t *testing.T) {
	h := newTestServer(t, newTestStore(t))

	tests := map[string]any{
		"empty name":    CreateHabitRequest{Name: ""},
		"bad type":      CreateHabitRequest{Name: "x", Type: "MAYBE"},
		"bad frequency": CreateHabitRequest{Name: "x", Frequency: "HOURLY"},
		"custom empty":  CreateHabitRequest{Name: "x", Frequency: "CUSTOM"},
		"not json":      "{{",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			expectStatus(t, mockRequest(h, http.MethodPost, "/habits/", body), http.StatusBadRequest)
		})
	}
}

func TestMarkStatus_Errors(t *testing.T) {
	h := newTestServer(t, newTestStore(t))
	rr := mockRequest(h, http.MethodPost, "/habits/", CreateHabitRequest{Name: "run"})
	expectStatus(t, rr, http.StatusCreated)
	base := "/habits/" + decode[habit.Habit](t, rr).ID

	expectStatus(t, mockRequest(h, http.MethodPut, base+"/logs/2025-03-01", MarkStatusRequest{Status: "DONE"}), http.StatusBadRequest)
	expectStatus(t, mockRequest(h, http.MethodPut, base+"/logs/2025-13-01", MarkStatusRequest{Status: "SUCCESS"}), http.StatusBadRequest)
	expectStatus(t, mockRequest(h, http.MethodPut, "/habits/missing/logs/2025-03-01", MarkStatusRequest{Status: "SUCCESS"}), http.StatusNotFound)
	expectStatus(t, mockRequest(h, http.MethodGet, base+"/logs?to=yesterday", nil), http.StatusBadRequest)
}

func TestItems(t *testing.T) {
	h := newTestServer(t, newTestStore(t))
	rr := mockRequest(h, http.MethodPost, "/habits/", CreateHabitRequest{Name: "sugar", Type: "BREAK"})
	base := "/habits/" + decode[habit.Habit](t, rr).ID

	var ids []string
	for _, c := range []string{"cravings", "habit loop"} {
		rr = mockRequest(h, http.MethodPost, base+"/items", AddItemRequest{Type: "resistance", Content: c})
		expectStatus(t, rr, http.StatusCreated)
		ids = append(ids, decode[habit.ListItem](t, rr).ID)
	}
	expectStatus(t, mockRequest(h, http.MethodPost, base+"/items", AddItemRequest{Type: "other", Content: "x"}), http.StatusBadRequest)

	rr = mockRequest(h, http.MethodPut, base+"/items/order", ReorderItemsRequest{Type: "RESISTANCE", IDs: []string{ids[1], ids[0]}})
	expectStatus(t, rr, http.StatusOK)

	rr = mockRequest(h, http.MethodGet, base+"/items?type=RESISTANCE", nil)
	items := decode[ItemListResponse](t, rr).Items
	if len(items) != 2 || items[0].ID != ids[1] || items[0].OrderIndex != 0 {
		t.Fatalf("unexpected order %+v", items)
	}

	expectStatus(t, mockRequest(h, http.MethodDelete, base+"/items/"+ids[1], nil), http.StatusNoContent)
	rr = mockRequest(h, http.MethodGet, base+"/items", nil)
	items = decode[ItemListResponse](t, rr).Items
	if len(items) != 1 || items[0].OrderIndex != 0 {
		t.Fatalf("order not compacted after delete: %+v", items)
	}
}

func TestMe(t *testing.T) {
	h := newTestServer(t, newTestStore(t))

	rr := mockRequest(h, http.MethodGet, "/me", nil)
	expectStatus(t, rr, http.StatusOK)
	if u := decode[habit.User](t, rr); u.ID != "anonymous" {
		t.Fatalf("got user %+v", u)
	}

	morning := "07:30"
	rr = mockRequest(h, http.MethodPut, "/me", UpdateUserRequest{MorningReminderTime: &morning})
	expectStatus(t, rr, http.StatusOK)

	bad := "7.30am"
	expectStatus(t, mockRequest(h, http.MethodPut, "/me", UpdateUserRequest{EveningReminderTime: &bad}), http.StatusBadRequest)
}

type partnerFixture struct {
	srv   *Server
	h     http.Handler
	store storage.Store
	alice string
	bob   string
}

// newPartnerFixture serves with auth enabled and one API key per user so
// requests carry distinct identities.
func newPartnerFixture(t *testing.T, cfg *config.Config) partnerFixture {
	t.Helper()
	store := newTestStore(t)
	cfg.AuthEnabled = true
	srv, err := New(cfg, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f := partnerFixture{srv: srv, h: srv.Router(), store: store, alice: "hab_live_alice", bob: "hab_live_bob"}
	if err := store.PutAPIKey(hashAPIKey(f.alice), "alice"); err != nil {
		t.Fatal(err)
	}
	if err := store.PutAPIKey(hashAPIKey(f.bob), "bob"); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f partnerFixture) pair(t *testing.T) habit.Partnership {
	t.Helper()
	rr := requestAs(f.h, f.alice, http.MethodPost, "/partnerships/", nil)
	expectStatus(t, rr, http.StatusCreated)
	invite := decode[habit.Partnership](t, rr)

	rr = requestAs(f.h, f.bob, http.MethodPost, "/partnerships/accept", AcceptInviteRequest{Code: invite.InviteCode})
	expectStatus(t, rr, http.StatusOK)
	return decode[habit.Partnership](t, rr)
}

func TestPartnerView_HidesResistanceItems(t *testing.T) {
	f := newPartnerFixture(t, &config.Config{})

	rr := requestAs(f.h, f.alice, http.MethodPost, "/habits/", CreateHabitRequest{Name: "no smoking", Type: "BREAK", IsSharedWithPartner: true})
	expectStatus(t, rr, http.StatusCreated)
	base := "/habits/" + decode[habit.Habit](t, rr).ID
	requestAs(f.h, f.alice, http.MethodPost, "/habits/", CreateHabitRequest{Name: "private"})

	for typ, content := range map[string]string{"RESISTANCE": "stress at work", "ATTRACTION": "breathe easier", "TRIGGER": "coffee"} {
		expectStatus(t, requestAs(f.h, f.alice, http.MethodPost, base+"/items", AddItemRequest{Type: typ, Content: content}), http.StatusCreated)
	}
	expectStatus(t, requestAs(f.h, f.alice, http.MethodPut, base+"/logs/2025-03-01", MarkStatusRequest{Status: "SUCCESS"}), http.StatusOK)

	expectStatus(t, requestAs(f.h, f.bob, http.MethodGet, "/partners/alice/habits", nil), http.StatusNotFound)

	f.pair(t)

	rr = requestAs(f.h, f.bob, http.MethodGet, "/partners/alice/habits", nil)
	expectStatus(t, rr, http.StatusOK)
	view := decode[PartnerViewResponse](t, rr)
	if len(view.Habits) != 1 {
		t.Fatalf("got %d shared habits, want 1", len(view.Habits))
	}
	shared := view.Habits[0]
	if len(shared.Logs) != 1 {
		t.Fatalf("got %d logs, want 1", len(shared.Logs))
	}
	if len(shared.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(shared.Items))
	}
	for _, it := range shared.Items {
		if it.Type == habit.ItemResistance {
			t.Fatalf("resistance item leaked to partner: %+v", it)
		}
	}
	if bytes.Contains(rr.Body.Bytes(), []byte("stress at work")) {
		t.Fatal("resistance content present in partner response")
	}

	// The owner still sees everything.
	rr = requestAs(f.h, f.alice, http.MethodGet, base+"/items", nil)
	if n := len(decode[ItemListResponse](t, rr).Items); n != 3 {
		t.Fatalf("owner sees %d items, want 3", n)
	}
}

func TestPartnerships_AcceptAndRevoke(t *testing.T) {
	f := newPartnerFixture(t, &config.Config{})

	rr := requestAs(f.h, f.alice, http.MethodPost, "/partnerships/", nil)
	invite := decode[habit.Partnership](t, rr)

	expectStatus(t, requestAs(f.h, f.alice, http.MethodPost, "/partnerships/accept", AcceptInviteRequest{Code: invite.InviteCode}), http.StatusForbidden)
	expectStatus(t, requestAs(f.h, f.bob, http.MethodPost, "/partnerships/accept", AcceptInviteRequest{Code: "ZZZZZZZZ"}), http.StatusNotFound)

	rr = requestAs(f.h, f.bob, http.MethodPost, "/partnerships/accept", AcceptInviteRequest{Code: invite.InviteCode})
	expectStatus(t, rr, http.StatusOK)

	rr = requestAs(f.h, f.bob, http.MethodGet, "/partnerships/", nil)
	if ps := decode[PartnershipListResponse](t, rr).Partnerships; len(ps) != 1 || ps[0].Status != habit.PartnershipActive {
		t.Fatalf("unexpected partnerships %+v", ps)
	}

	rr = requestAs(f.h, f.bob, http.MethodPost, "/partnerships/"+invite.ID+"/revoke", nil)
	expectStatus(t, rr, http.StatusOK)
	if p := decode[habit.Partnership](t, rr); p.Status != habit.PartnershipRevoked {
		t.Fatalf("got status %s", p.Status)
	}
	expectStatus(t, requestAs(f.h, f.alice, http.MethodPost, "/partnerships/"+invite.ID+"/revoke", nil), http.StatusOK)
	expectStatus(t, requestAs(f.h, f.bob, http.MethodGet, "/partners/alice/habits", nil), http.StatusNotFound)
}

func TestPartnerships_ExpiredInvite(t *testing.T) {
	f := newPartnerFixture(t, &config.Config{})
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := created
	f.srv.partners = partnership.NewWithClock(f.store, time.Hour, func() time.Time { return now })

	rr := requestAs(f.h, f.alice, http.MethodPost, "/partnerships/", nil)
	invite := decode[habit.Partnership](t, rr)

	now = created.Add(2 * time.Hour)
	expectStatus(t, requestAs(f.h, f.bob, http.MethodPost, "/partnerships/accept", AcceptInviteRequest{Code: invite.InviteCode}), http.StatusGone)
}

func TestPartnerships_StrangerCannotRevoke(t *testing.T) {
	f := newPartnerFixture(t, &config.Config{})
	p := f.pair(t)
	if err := f.store.PutAPIKey(hashAPIKey("hab_live_mallory"), "mallory"); err != nil {
		t.Fatal(err)
	}

	expectStatus(t, requestAs(f.h, "hab_live_mallory", http.MethodPost, "/partnerships/"+p.ID+"/revoke", nil), http.StatusForbidden)
	expectStatus(t, requestAs(f.h, "hab_live_mallory", http.MethodGet, "/partners/alice/habits", nil), http.StatusNotFound)
}

func TestAcceptPartnership_RateLimited(t *testing.T) {
	f := newPartnerFixture(t, &config.Config{Partnership: config.PartnershipConfig{AcceptPerMinute: 1, AcceptBurst: 2}})

	codes := []int{}
	for range 3 {
		rr := requestAs(f.h, f.bob, http.MethodPost, "/partnerships/accept", AcceptInviteRequest{Code: "GUESS123"})
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusNotFound || codes[1] != http.StatusNotFound || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("got codes %v, want [404 404 429]", codes)
	}

	rr := requestAs(f.h, f.alice, http.MethodPost, "/partnerships/accept", AcceptInviteRequest{Code: "GUESS123"})
	expectStatus(t, rr, http.StatusNotFound)
}

func TestComputeSummary(t *testing.T) {
	h := habit.Habit{Name: "read", CurrentStreak: 2, LongestStreak: 4, TotalSuccessDays: 3, TotalFailureDays: 1}
	logs := []habit.DailyLog{
		{Date: "2025-02-27", Status: habit.StatusPending},
		{Date: "2025-02-28", Status: habit.StatusSuccess},
		{Date: "2025-03-01", Status: habit.StatusFailure},
		{Date: "2025-03-02", Status: habit.StatusSuccess},
		{Date: "2025-03-03", Status: habit.StatusSuccess},
	}

	sum := computeSummary(h, logs, "2025-03-10")
	if sum.FirstLogged != "2025-02-28" {
		t.Fatalf("first logged %q", sum.FirstLogged)
	}
	if sum.ThisMonth != 2 {
		t.Fatalf("this month %d, want 2", sum.ThisMonth)
	}
	if sum.SuccessRate != 0.75 {
		t.Fatalf("success rate %v, want 0.75", sum.SuccessRate)
	}
	if sum.CurrentStreak != 2 || sum.LongestStreak != 4 {
		t.Fatalf("streaks not taken from the habit: %+v", sum)
	}

	if empty := computeSummary(habit.Habit{}, nil, "2025-03-10"); empty.SuccessRate != 0 || empty.FirstLogged != "" {
		t.Fatalf("unexpected empty summary %+v", empty)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{habit.ErrNotFound, http.StatusNotFound},
		{habit.ErrExpiredInvite, http.StatusGone},
		{habit.ErrInvalidPartner, http.StatusForbidden},
		{habit.ErrInvalidTransition, http.StatusConflict},
		{habit.ErrInvalidDate, http.StatusBadRequest},
		{habit.ErrValidation, http.StatusBadRequest},
		{bytes.ErrTooLarge, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestUserLimiter_SweepsIdleBuckets(t *testing.T) {
	l := newUserLimiter(6, 2) // one token per 10s, full after 20s
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"alice", "bob", "carol"} {
		if !l.allowAt(id, start) {
			t.Fatalf("%s: first attempt denied", id)
		}
	}
	if !l.allowAt("alice", start.Add(15*time.Second)) {
		t.Fatal("alice: refilled token denied")
	}

	l.sweep(start.Add(20 * time.Second))
	if got := l.size(); got != 1 {
		t.Fatalf("got %d buckets after sweep, want only alice's", got)
	}

	// A throttled user stays throttled across a sweep that does not evict it.
	l.allowAt("alice", start.Add(16*time.Second))
	if l.allowAt("alice", start.Add(16*time.Second)) {
		t.Fatal("alice: burst should be exhausted")
	}
	l.sweep(start.Add(17 * time.Second))
	if l.allowAt("alice", start.Add(17*time.Second)) {
		t.Fatal("sweep reset an active bucket")
	}

	l.sweep(start.Add(time.Hour))
	if got := l.size(); got != 0 {
		t.Fatalf("got %d buckets, want 0", got)
	}
}
