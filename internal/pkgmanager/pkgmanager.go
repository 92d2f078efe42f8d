// Package pkgmanager defines the package-manager capability abstraction
// (§6.5) and one adapter per supported family (APT, YUM, ZYPPER, TDNF,
// rpm-ostree).
package pkgmanager

import (
	"context"

	"github.com/azure-patch/linux-patch-core/internal/models"
)

// AutoOSPatchState is the state of the OS-native automatic-update facility.
type AutoOSPatchState string

const (
	AutoOSPatchEnabled  AutoOSPatchState = "Enabled"
	AutoOSPatchDisabled AutoOSPatchState = "Disabled"
	AutoOSPatchUnknown  AutoOSPatchState = "Unknown"
)

// InstallOutcome is the per-package result of an install attempt.
type InstallOutcome struct {
	Name  string
	State models.InstallationState
}

// RepeatRequired reports whether the adapter's last operation indicated the
// package manager updated itself and the caller must repeat the run
// (ZYPPER exit 103 pattern, §4.3).
type RepeatRequired bool

// Capability is the set of operations the installation and assessment
// orchestrators require from any package-manager family (§6.5).
type Capability interface {
	// Family identifies the adapter ("apt", "yum", "zypper", "tdnf",
	// "rpm-ostree").
	Family() string

	// RefreshRepository refreshes the manager's repository metadata. May
	// block; retryable on failure.
	RefreshRepository(ctx context.Context) error

	// GetAllUpdates returns all available updates. cached permits reuse of
	// a just-refreshed result without re-querying.
	GetAllUpdates(ctx context.Context, cached bool) (names, versions []string, err error)
	// GetSecurityUpdates returns the subset of available updates classified
	// security.
	GetSecurityUpdates(ctx context.Context) (names, versions []string, err error)
	// GetOtherUpdates returns the subset of available updates not otherwise
	// classified.
	GetOtherUpdates(ctx context.Context) (names, versions []string, err error)
	// GetAllAvailableVersions lists every installable version of name.
	GetAllAvailableVersions(ctx context.Context, name string) ([]string, error)

	// IsPackageVersionInstalled is authoritative: family-specific
	// heuristics are allowed internally but this call must reflect ground
	// truth.
	IsPackageVersionInstalled(ctx context.Context, name, version string) (bool, error)
	// GetDependents returns the names of packages depending on name.
	GetDependents(ctx context.Context, name string) ([]string, error)

	// InstallUpdateAndDependencies attempts to install names at versions
	// (by index) plus their dependency closure. simulate requests a dry
	// run where supported.
	InstallUpdateAndDependencies(ctx context.Context, names, versions []string, simulate bool) ([]InstallOutcome, RepeatRequired, error)

	// GetCurrentAutoOsPatchState reports whether OS-native automatic
	// updates are currently enabled.
	GetCurrentAutoOsPatchState(ctx context.Context) (AutoOSPatchState, error)
	// DisableAutoOsUpdate disables OS-native automatic updates, leaving a
	// round-trippable backup of the prior configuration.
	DisableAutoOsUpdate(ctx context.Context) error

	// IsRebootPending reports whether the OS itself considers a reboot
	// outstanding (independent of this extension's reboot manager).
	IsRebootPending(ctx context.Context) (bool, error)
}
