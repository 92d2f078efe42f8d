package state

import (
	"encoding/json"
	"time"

	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
)

// CoreState is the core-owned state document (§3.3). The core writes
// heartbeats every few seconds while running and sets Completed=true on
// exit. A new run always overwrites CoreState (§3.6 invariant 6:
// Completed transitions only false→true).
type CoreState struct {
	Number        int              `json:"number"`
	Action        models.Operation `json:"action"`
	Completed     bool             `json:"completed"`
	LastHeartbeat time.Time        `json:"lastHeartbeat"`
	ProcessIDs    []int            `json:"processIds"`
}

// CoreStateStore reads and writes CoreState.json. The core is its only
// writer.
type CoreStateStore struct {
	env   recorder.Environment
	path  string
	retry int
}

func NewCoreStateStore(env recorder.Environment, path string, retry int) *CoreStateStore {
	return &CoreStateStore{env: env, path: path, retry: retry}
}

func (s *CoreStateStore) Load() (st CoreState, ok bool, err error) {
	data, found, err := s.env.ReadFile(s.path)
	if err != nil {
		return CoreState{}, false, err
	}
	if !found {
		return CoreState{}, false, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return CoreState{}, false, err
	}
	return st, true, nil
}

// Save overwrites CoreState. Callers must never persist Completed=true
// followed by Completed=false for the same run; Start/Heartbeat/Finish below
// enforce that by construction.
func (s *CoreStateStore) Save(st CoreState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return writeWithRetry(s.env, s.path, data, s.retry)
}

// Start begins tracking a new run, always overwriting any prior CoreState.
func (s *CoreStateStore) Start(number int, action models.Operation, pids []int) error {
	return s.Save(CoreState{
		Number:        number,
		Action:        action,
		Completed:     false,
		LastHeartbeat: s.env.Now(),
		ProcessIDs:    pids,
	})
}

// Heartbeat refreshes LastHeartbeat on the current run without altering
// Completed.
func (s *CoreStateStore) Heartbeat() error {
	st, ok, err := s.Load()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	st.LastHeartbeat = s.env.Now()
	return s.Save(st)
}

// Finish marks the current run Completed=true.
func (s *CoreStateStore) Finish() error {
	st, ok, err := s.Load()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	st.Completed = true
	st.LastHeartbeat = s.env.Now()
	return s.Save(st)
}

// IsStale reports whether the run recorded in st has gone silent for longer
// than staleAfter, measured against now.
func (st CoreState) IsStale(now time.Time, staleAfter time.Duration) bool {
	return now.Sub(st.LastHeartbeat) > staleAfter
}
