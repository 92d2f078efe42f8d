package extenv_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/azure-patch/linux-patch-core/internal/extenv"
)

func TestLayoutPaths(t *testing.T) {
	l := extenv.NewLayout("/var/lib/waagent/ext-1.0.0")
	if l.SettingsPath(7) != filepath.Join(l.ConfigDir, "7.settings") {
		t.Errorf("SettingsPath(7) = %q", l.SettingsPath(7))
	}
	if l.StatusPath(7) != filepath.Join(l.StatusDir, "7.status") {
		t.Errorf("StatusPath(7) = %q", l.StatusPath(7))
	}
}

func TestDiscoverSequenceNumberFromEnv(t *testing.T) {
	t.Setenv(extenv.EnvSequenceNumber, "42")
	n, ok := extenv.DiscoverSequenceNumber(t.TempDir())
	if !ok || n != 42 {
		t.Fatalf("DiscoverSequenceNumber() = (%d, %v), want (42, true)", n, ok)
	}
}

func TestDiscoverSequenceNumberFallsBackToNewestFile(t *testing.T) {
	t.Setenv(extenv.EnvSequenceNumber, "")
	dir := t.TempDir()

	writeSettings := func(n int, mtime time.Time) {
		p := filepath.Join(dir, itoa(n)+".settings")
		if err := os.WriteFile(p, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now()
	writeSettings(1, now.Add(-time.Hour))
	writeSettings(3, now)
	writeSettings(2, now.Add(-2*time.Hour))

	n, ok := extenv.DiscoverSequenceNumber(dir)
	if !ok || n != 3 {
		t.Fatalf("DiscoverSequenceNumber() = (%d, %v), want (3, true)", n, ok)
	}
}

func TestEnsureEventsFolderCreatesWhenMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "events")
	log := zap.NewNop().Sugar()

	preExisted, err := extenv.EnsureEventsFolder(log, dir)
	if err != nil {
		t.Fatalf("EnsureEventsFolder() error = %v", err)
	}
	if preExisted {
		t.Errorf("preExisted = true, want false")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("events folder was not created: %v", err)
	}

	preExisted, err = extenv.EnsureEventsFolder(log, dir)
	if err != nil {
		t.Fatalf("EnsureEventsFolder() second call error = %v", err)
	}
	if !preExisted {
		t.Errorf("preExisted = false on second call, want true")
	}
}

func itoa(n int) string {
	return string(rune('0' + n))
}
