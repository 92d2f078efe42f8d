// Package state implements the handler- and core-owned on-disk state
// documents (§3.2, §3.3): ExtState and CoreState. Both use the retrying,
// atomic-write behavior recorder.Environment.WriteFile already provides
// (temp file + rename), wrapped with a small retry loop for transient
// failures (§5).
package state

import (
	"encoding/json"
	"time"

	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
)

// ExtensionSequence is the handler's record of the most recently accepted
// enable.
type ExtensionSequence struct {
	Number          int              `json:"number"`
	AchieveEnableBy time.Time        `json:"achieveEnableBy"`
	Operation       models.Operation `json:"operation"`
}

// ExtState is the handler-owned state document.
type ExtState struct {
	ExtensionSequence ExtensionSequence `json:"extensionSequence"`
}

// ExtStateStore reads and writes ExtState.json. The handler is its only
// writer (§5 shared-resource policy).
type ExtStateStore struct {
	env   recorder.Environment
	path  string
	retry int
}

// NewExtStateStore constructs a store bound to path, retrying transient
// write failures up to retry times.
func NewExtStateStore(env recorder.Environment, path string, retry int) *ExtStateStore {
	return &ExtStateStore{env: env, path: path, retry: retry}
}

// Load reads the current ExtState. A missing file is reported via ok=false,
// not an error: it is the expected state before any enable has occurred.
func (s *ExtStateStore) Load() (st ExtState, ok bool, err error) {
	data, found, err := s.env.ReadFile(s.path)
	if err != nil {
		return ExtState{}, false, err
	}
	if !found {
		return ExtState{}, false, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return ExtState{}, false, err
	}
	return st, true, nil
}

// Save persists st atomically, retrying transient failures.
func (s *ExtStateStore) Save(st ExtState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return writeWithRetry(s.env, s.path, data, s.retry)
}

func writeWithRetry(env recorder.Environment, path string, data []byte, retries int) error {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := env.WriteFile(path, data); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
