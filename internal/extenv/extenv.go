// Package extenv resolves the on-disk extension layout (§6.3) and the
// sequence-number discovery rule (§3.1), and bootstraps the events folder
// the way the original extension does on first run.
package extenv

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// EnvSequenceNumber is the environment variable the host agent sets to name
// the sequence number for this invocation.
const EnvSequenceNumber = "ConfigSequenceNumber"

// Layout is the resolved on-disk extension directory structure (§6.3).
type Layout struct {
	Root         string
	ConfigDir    string
	StatusDir    string
	LogDir       string
	EventsDir    string
}

// NewLayout derives the standard sub-directory layout under root.
func NewLayout(root string) Layout {
	return Layout{
		Root:      root,
		ConfigDir: filepath.Join(root, "config"),
		StatusDir: filepath.Join(root, "status"),
		LogDir:    filepath.Join(root, "log"),
		EventsDir: filepath.Join(root, "events"),
	}
}

// SettingsPath returns the path to the "<N>.settings" file for sequence n.
func (l Layout) SettingsPath(n int) string {
	return filepath.Join(l.ConfigDir, strconv.Itoa(n)+".settings")
}

// StatusPath returns the path to the "<N>.status" file for sequence n, the
// bounded, host-facing document.
func (l Layout) StatusPath(n int) string {
	return filepath.Join(l.StatusDir, strconv.Itoa(n)+".status")
}

// CompletePath returns the path to the unbounded "<N>.complete.json" file
// for sequence n, written alongside the truncated StatusPath document.
func (l Layout) CompletePath(n int) string {
	return filepath.Join(l.StatusDir, strconv.Itoa(n)+".complete.json")
}

// ExtStatePath returns the handler-owned ExtState.json path.
func (l Layout) ExtStatePath() string {
	return filepath.Join(l.ConfigDir, "ExtState.json")
}

// CoreStatePath returns the core-owned CoreState.json path.
func (l Layout) CoreStatePath() string {
	return filepath.Join(l.ConfigDir, "CoreState.json")
}

// DiscoverSequenceNumber implements §3.1's discovery rule: the environment
// variable is preferred; if unset, fall back to the most-recently-modified
// "*.settings" file in configDir.
func DiscoverSequenceNumber(configDir string) (int, bool) {
	if v, ok := os.LookupEnv(EnvSequenceNumber); ok && v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n, true
		}
	}

	entries, err := os.ReadDir(configDir)
	if err != nil {
		return 0, false
	}

	type candidate struct {
		n       int
		modTime int64
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".settings") {
			continue
		}
		nStr := strings.TrimSuffix(e.Name(), ".settings")
		n, err := strconv.Atoi(nStr)
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{n: n, modTime: info.ModTime().UnixNano()})
	}
	if len(candidates) == 0 {
		return 0, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime > candidates[j].modTime })
	return candidates[0].n, true
}

// EnsureEventsFolder creates the events directory if it does not already
// exist, the way the original extension bootstraps its telemetry sink on
// first run, and reports whether it pre-existed.
func EnsureEventsFolder(log *zap.SugaredLogger, eventsDir string) (preExisted bool, err error) {
	if _, statErr := os.Stat(eventsDir); statErr == nil {
		return true, nil
	} else if !os.IsNotExist(statErr) {
		return false, statErr
	}

	log.Infow("events folder not found on disk, creating", "path", eventsDir)
	if err := os.MkdirAll(eventsDir, 0o755); err != nil {
		return false, err
	}
	return false, nil
}
