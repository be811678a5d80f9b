package cmd

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brk3/streakmate/internal/config"
	"github.com/brk3/streakmate/internal/server"
	"github.com/brk3/streakmate/internal/storage/bolt"
)

// withAPI starts a server on a temp store and points HABITS_CONFIG at a
// config file that targets it.
func withAPI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	st, err := bolt.Open(filepath.Join(dir, "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	srv, err := server.New(&config.Config{}, st)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "api_base_url: " + ts.URL + "\nstorage:\n  path: " + filepath.Join(dir, "local.db") + "\nnudge:\n  user_id: anonymous\n  email: me@example.com\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HABITS_CONFIG", cfgPath)
	return dir
}

// resetFlags restores flag defaults, which cobra keeps between executions.
func resetFlags() {
	habitType, habitFrequency, habitDays, habitTrigger, habitDescription = "build", "daily", nil, "", ""
	habitShared, listArchived, undoArchive, unshare = false, false, false, false
	markDate, markNote = "", ""
	markCmd.Flags().Lookup("note").Changed = false
	nudgeLocal, nudgeDate, nudgeDry = false, "", false
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("habits %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestHabitCommands(t *testing.T) {
	withAPI(t)

	out := mustRun(t, "habit", "add", "guitar", "--type", "build", "--frequency", "daily")
	if !strings.Contains(out, `Created build habit "guitar"`) {
		t.Fatalf("unexpected output %q", out)
	}

	out = mustRun(t, "mark", "guitar", "success", "--date", "2025-03-01")
	if !strings.Contains(out, "guitar 2025-03-01: SUCCESS (streak 1, best 1)") {
		t.Fatalf("unexpected output %q", out)
	}
	mustRun(t, "mark", "GUITAR", "skipped", "--date", "2025-03-02")

	out = mustRun(t, "summary", "guitar")
	if !strings.Contains(out, "successes:      1") || !strings.Contains(out, "first logged:   2025-03-01") {
		t.Fatalf("unexpected summary %q", out)
	}

	out = mustRun(t, "habit", "list")
	if !strings.Contains(out, "guitar") || !strings.Contains(out, "STREAK") {
		t.Fatalf("unexpected list %q", out)
	}

	mustRun(t, "habit", "share", "guitar")
	out = mustRun(t, "habit", "archive", "guitar")
	if !strings.Contains(out, "guitar archived: true") {
		t.Fatalf("unexpected output %q", out)
	}
	out = mustRun(t, "habit", "list", "--archived")
	if !strings.Contains(out, "shared,archived") {
		t.Fatalf("unexpected list %q", out)
	}

	mustRun(t, "habit", "delete", "guitar")
	if _, err := run(t, "summary", "guitar"); err == nil {
		t.Fatal("expected error for deleted habit")
	}
}

func TestMarkCommand_Invalid(t *testing.T) {
	withAPI(t)
	mustRun(t, "habit", "add", "run")

	if _, err := run(t, "mark", "run", "maybe"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if _, err := run(t, "mark", "run", "success", "--date", "03/01/2025"); err == nil {
		t.Fatal("expected error for bad date")
	}
	if _, err := run(t, "mark", "nope", "success", "--date", "2025-03-01"); err == nil {
		t.Fatal("expected error for unknown habit")
	}
	if _, err := run(t, "mark", "run"); err == nil {
		t.Fatal("expected error for missing args")
	}
}

func TestPartnerCommands(t *testing.T) {
	withAPI(t)

	out := mustRun(t, "partner", "invite")
	if !strings.Contains(out, "Invite code: ") {
		t.Fatalf("unexpected output %q", out)
	}
	code := strings.TrimSpace(strings.SplitN(strings.TrimPrefix(out, "Invite code: "), "\n", 2)[0])

	// Without auth every request is the same user, so accepting is refused.
	if _, err := run(t, "partner", "accept", code); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("got %v, want a 403", err)
	}

	out = mustRun(t, "partner", "list")
	if !strings.Contains(out, "PENDING") || !strings.Contains(out, code) {
		t.Fatalf("unexpected list %q", out)
	}
}

func TestNudgeCommand_DryRun(t *testing.T) {
	withAPI(t)
	mustRun(t, "habit", "add", "stretch")

	out := mustRun(t, "nudge", "--dry-run", "--date", "2025-03-05")
	if !strings.Contains(out, "Would nudge me@example.com about 1 habit(s) open on 2025-03-05") || !strings.Contains(out, "- stretch") {
		t.Fatalf("unexpected output %q", out)
	}

	mustRun(t, "mark", "stretch", "success", "--date", "2025-03-05")
	out = mustRun(t, "nudge", "--dry-run", "--date", "2025-03-05")
	if !strings.Contains(out, "Nothing to nudge about") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestNudgeCommand_Local(t *testing.T) {
	withAPI(t)

	out := mustRun(t, "nudge", "--dry-run", "--local", "--date", "2025-03-05")
	if !strings.Contains(out, "Nothing to nudge about") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestVersionCommand(t *testing.T) {
	withAPI(t)
	out := mustRun(t, "version")
	if !strings.Contains(out, "Client Version: ") || !strings.Contains(out, "Server Version: ") {
		t.Fatalf("unexpected output %q", out)
	}
}
