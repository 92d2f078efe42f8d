// Package window implements maintenance-window accounting (§4.5): the
// total permitted run duration, the post-loop reboot reserve, and whether
// enough time remains to attempt one more package install.
package window

import "time"

// Window tracks the total duration permitted for an operation and reports
// remaining time against a clock.
type Window struct {
	total             time.Duration
	start             time.Time
	rebootReserve     time.Duration
	minInstallSlot    time.Duration
}

// New constructs a Window. totalMinutes is the host-agent-supplied
// maintenanceWindow (§3.1); rebootReserve and minInstallSlot come from
// ambient configuration (§A.2 Timing).
func New(totalMinutes int, start time.Time, rebootReserve, minInstallSlot time.Duration) *Window {
	return &Window{
		total:          time.Duration(totalMinutes) * time.Minute,
		start:          start,
		rebootReserve:  rebootReserve,
		minInstallSlot: minInstallSlot,
	}
}

// Remaining returns the time left in the window as of now, minus the fixed
// safety reserve held back for a possible post-loop reboot.
func (w *Window) Remaining(now time.Time) time.Duration {
	elapsed := now.Sub(w.start)
	remaining := w.total - elapsed - w.rebootReserve
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RemainingWithoutReserve is Remaining but without subtracting the reboot
// reserve, used when deciding whether a reboot itself is still affordable.
func (w *Window) RemainingWithoutReserve(now time.Time) time.Duration {
	remaining := w.total - now.Sub(w.start)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsPackageInstallTimeAvailable reports whether enough time remains to
// attempt one more package install.
func (w *Window) IsPackageInstallTimeAvailable(now time.Time) bool {
	return w.Remaining(now) >= w.minInstallSlot
}

// Exceeded reports whether the window has already run out.
func (w *Window) Exceeded(now time.Time) bool {
	return w.Remaining(now) <= 0
}

// PercentageUsed reports how much of the total window has elapsed, for
// telemetry.
func (w *Window) PercentageUsed(now time.Time) float64 {
	if w.total <= 0 {
		return 100
	}
	elapsed := now.Sub(w.start)
	pct := float64(elapsed) / float64(w.total) * 100
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}
