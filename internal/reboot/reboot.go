// Package reboot implements the reboot-status state machine (§4.6, §C.2):
// NotNeeded → Required → Started → Completed, or Started → Failed.
// Disallowed transitions are logged and silently ignored rather than
// erroring.
package reboot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/azure-patch/linux-patch-core/internal/recorder"
)

// State is one of the reboot-status state machine's states.
type State string

const (
	NotNeeded State = "NotNeeded"
	Required  State = "Required"
	Started   State = "Started"
	Completed State = "Completed"
	Failed    State = "Failed"
)

// allowedTransitions is the strict whitelist from §4.6/§C.2. A transition
// not listed here is rejected.
var allowedTransitions = map[State]map[State]bool{
	NotNeeded: {Required: true, Started: true},
	Required:  {Started: true},
	Completed: {Required: true, Started: true},
	Started:   {Completed: true, Failed: true},
	Failed:    {},
}

// Manager owns the current reboot state and enforces the transition
// whitelist.
type Manager struct {
	log   *zap.SugaredLogger
	env   recorder.Environment
	state State
}

// NewManager constructs a Manager starting from an initial state loaded from
// persistent storage (typically StatusFile.installationSummary.rebootStatus
// of the prior run, or NotNeeded for a fresh run).
func NewManager(log *zap.SugaredLogger, env recorder.Environment, initial State) *Manager {
	if initial == "" {
		initial = NotNeeded
	}
	return &Manager{log: log, env: env, state: initial}
}

// Current returns the current reboot state.
func (m *Manager) Current() State {
	return m.state
}

// Transition attempts to move to next, rejecting (logged, no-op) any
// transition not in the whitelist.
func (m *Manager) Transition(next State) bool {
	if allowedTransitions[m.state][next] {
		m.log.Infow("reboot status transition", "from", m.state, "to", next)
		m.state = next
		return true
	}
	m.log.Warnw("rejected illegal reboot status transition", "from", m.state, "to", next)
	return false
}

// PromoteStartedToCompletedOnLoad implements §C.3: a Started status left
// over from before a reboot that has now happened is promoted to Completed.
// This is how the post-reboot core instance discovers it survived the
// reboot it itself triggered.
func (m *Manager) PromoteStartedToCompletedOnLoad() {
	if m.state == Started {
		m.log.Infow("promoting leftover Started reboot status to Completed on load")
		m.state = Completed
	}
}

// Refresh never regresses away from Required/Completed without an actual
// reboot-pending signal from the package manager (original's
// __refresh_installation_reboot_status): if the manager reports no reboot
// pending, the state is left untouched rather than forced back to
// NotNeeded.
func (m *Manager) Refresh(rebootPending bool) {
	if rebootPending {
		m.Transition(Required)
		return
	}
	if m.state == NotNeeded || m.state == Required {
		// no pending reboot and nothing in flight: leave as-is (NotNeeded
		// stays NotNeeded; a Required set by an earlier query stays until a
		// reboot is actually attempted).
		return
	}
}

// AttemptReboot transitions to Started if policy and remaining maintenance
// window permit and invokes the platform reboot command. If the command
// cannot be started the state moves to Failed; otherwise it stays Started
// (PromoteStartedToCompletedOnLoad moves it to Completed in the next run).
func (m *Manager) AttemptReboot(ctx context.Context, allowed bool, remainingWindow time.Duration, reserve time.Duration) bool {
	if !allowed {
		m.log.Infow("reboot not attempted: policy does not allow it in this run")
		return false
	}
	if remainingWindow < reserve {
		m.log.Infow("reboot not attempted: remaining maintenance window below reserve",
			"remaining", remainingWindow, "reserve", reserve)
		return false
	}
	if !m.Transition(Started) {
		return false
	}
	if _, err := m.env.RunCommand(ctx, "shutdown", "-r", "now"); err != nil {
		m.Transition(Failed)
		return false
	}
	return true
}
