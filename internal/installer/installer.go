// Package installer implements the installation orchestrator (§4.3): the
// core loop that attempts to install the filtered, included package set,
// tracks dependency closures, reconciles periodically, and honors the
// maintenance window and reboot policy.
package installer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/azure-patch/linux-patch-core/internal/filter"
	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/pkgmanager"
	"github.com/azure-patch/linux-patch-core/internal/reboot"
	"github.com/azure-patch/linux-patch-core/internal/status"
	"github.com/azure-patch/linux-patch-core/internal/window"
	"github.com/azure-patch/linux-patch-core/pkg/patcherrors"
)

// Config tunes retry and reconciliation cadence (§A.2 Retry).
type Config struct {
	MaxRetryCount           int
	ReconciliationEvery     int
	MaxRepeatOperationCount int
}

// Orchestrator runs one installation pass over a candidate package list.
type Orchestrator struct {
	log    *zap.SugaredLogger
	pm     pkgmanager.Capability
	reboot *reboot.Manager
	window *window.Window
	cfg    Config

	rebootSetting models.RebootSetting
	osIdentity    string

	sleep func(time.Duration)
}

func New(log *zap.SugaredLogger, pm pkgmanager.Capability, rebootMgr *reboot.Manager, win *window.Window, cfg Config, rebootSetting models.RebootSetting, osIdentity string) *Orchestrator {
	return &Orchestrator{
		log:           log,
		pm:            pm,
		reboot:        rebootMgr,
		window:        win,
		cfg:           cfg,
		rebootSetting: rebootSetting,
		osIdentity:    osIdentity,
		sleep:         time.Sleep,
	}
}

// Run executes the full installation pass described by §4.3 against
// candidates (already resolved from the settings document's
// patchesToInclude/ExcludeFromInstallation via the caller's filter.Filter)
// and records progress on h.
func (o *Orchestrator) Run(ctx context.Context, h *status.Handler, f *filter.Filter, candidates []models.Package, now time.Time) error {
	o.earlyReboot(ctx, now)

	if err := o.refreshRepositoryWithBackoff(ctx); err != nil {
		h.AddInstallationError(1, "repository refresh failed: "+err.Error())
		o.reboot.Transition(reboot.Required)
		return patcherrors.Wrap(patcherrors.PackageManagerFailure, "repository refresh failed after retries", err)
	}

	allNames, _, err := o.pm.GetAllUpdates(ctx, true)
	if err != nil {
		h.AddInstallationError(1, "failed to query available updates: "+err.Error())
		return err
	}
	allStillNeeded := newStringSet(allNames)

	included, excluded, notIncluded := o.classify(f, candidates)

	notSelectedRecords := withState(notIncluded, models.StateNotSelected)
	excludedRecords := withState(excluded, models.StateExcluded)
	pendingRecords := withState(included, models.StatePending)
	h.SetPackageInstallStatus(append(append(notSelectedRecords, excludedRecords...), pendingRecords...))

	repeatCount := 0
	for {
		repeat, err := o.installLoop(ctx, h, included, allStillNeeded, now)
		if err != nil {
			return err
		}
		if !repeat {
			break
		}
		repeatCount++
		if repeatCount >= o.cfg.MaxRepeatOperationCount+1 {
			return patcherrors.New(patcherrors.PackageManagerFailure, "package manager required a repeat operation too many times")
		}
	}

	o.postLoop(ctx, now)
	return nil
}

// refreshRepositoryWithBackoff retries a failed repository refresh with
// exponentially growing waits, mirroring how the rest of this codebase
// handles transient failures against an external system it doesn't control.
func (o *Orchestrator) refreshRepositoryWithBackoff(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second

	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetryCount; attempt++ {
		err := o.pm.RefreshRepository(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < o.cfg.MaxRetryCount {
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				break
			}
			o.sleep(wait)
		}
	}
	return lastErr
}

func (o *Orchestrator) earlyReboot(ctx context.Context, now time.Time) {
	pending, err := o.pm.IsRebootPending(ctx)
	if err != nil {
		o.log.Warnw("failed to query reboot-pending state before install loop", "err", err)
		return
	}
	if !pending || o.rebootSetting == models.RebootNever {
		return
	}
	o.reboot.Transition(reboot.Required)
	o.reboot.AttemptReboot(ctx, true, o.window.RemainingWithoutReserve(now), 0)
}

func (o *Orchestrator) classify(f *filter.Filter, candidates []models.Package) (included, excluded, notIncluded []models.Package) {
	for _, pkg := range candidates {
		if f.Included(pkg, nil) {
			included = append(included, pkg)
		} else {
			// Included's false case always means "excluded or not
			// selected"; a package matching an exclude name mask
			// (f.ExcludedByMask) is Excluded, any other is NotIncluded.
			if f.ExcludedByMask(pkg) {
				excluded = append(excluded, pkg)
			} else {
				notIncluded = append(notIncluded, pkg)
			}
		}
	}
	return
}

func withState(pkgs []models.Package, state models.InstallationState) []models.Package {
	out := make([]models.Package, len(pkgs))
	for i, p := range pkgs {
		p.State = state
		out[i] = p
	}
	return out
}

// installLoop runs one full pass over included, returning repeat=true if
// the package manager signaled it must be rerun (ZYPPER 103 pattern).
func (o *Orchestrator) installLoop(ctx context.Context, h *status.Handler, included []models.Package, allStillNeeded map[string]struct{}, now time.Time) (repeat bool, err error) {
	attempted := 0
	var nonFatal error
	for _, pkg := range included {
		if !o.window.IsPackageInstallTimeAvailable(now) {
			h.SetMaintenanceWindowExceeded()
			break
		}

		if pkg.Version == models.UaEsmRequiredVersion {
			pkg.State = models.StateNotSelected
			h.SetPackageInstallStatus([]models.Package{pkg})
			delete(allStillNeeded, pkg.Name)
			continue
		}

		deps, err := o.pm.GetDependents(ctx, pkg.Name)
		if err != nil {
			o.log.Warnw("failed to resolve dependents", "package", pkg.Name, "err", err)
		}
		depSet := newStringSet(append([]string{pkg.Name}, deps...))

		outcome, mustRepeat, err := o.attemptWithRetry(ctx, pkg, now)
		if mustRepeat {
			return true, nil
		}
		if err != nil {
			if isManagerUnhealthy(err) {
				h.AddInstallationError(1, "package manager is not healthy: "+err.Error())
				return false, err
			}
			h.AddInstallationError(1, "install failed for "+pkg.Name+": "+err.Error())
			nonFatal = multierr.Append(nonFatal, err)
		}

		pkg.State = outcome
		h.SetPackageInstallStatus([]models.Package{pkg})

		for dep := range depSet {
			if _, stillNeeded := allStillNeeded[dep]; stillNeeded && dep != pkg.Name {
				delete(allStillNeeded, dep)
				h.SetPackageInstallStatus([]models.Package{{
					Name: dep, Version: pkg.Version, OSNameAndVersion: o.osIdentity, State: models.StateInstalled,
				}})
			}
		}
		delete(allStillNeeded, pkg.Name)

		if pending, rerr := o.pm.IsRebootPending(ctx); rerr == nil && pending {
			o.reboot.Transition(reboot.Required)
		}

		attempted++
		if o.cfg.ReconciliationEvery > 0 && attempted%o.cfg.ReconciliationEvery == 0 {
			o.reconcile(ctx, h, allStillNeeded)
		}
	}
	o.reconcile(ctx, h, allStillNeeded)
	if nonFatal != nil {
		o.log.Warnw("one or more packages failed to install this pass", "errors", multierr.Errors(nonFatal))
	}
	return false, nil
}

func (o *Orchestrator) attemptWithRetry(ctx context.Context, pkg models.Package, now time.Time) (state models.InstallationState, mustRepeat bool, err error) {
	for attempt := 0; attempt <= o.cfg.MaxRetryCount; attempt++ {
		outcomes, repeatRequired, attemptErr := o.pm.InstallUpdateAndDependencies(ctx, []string{pkg.Name}, []string{pkg.Version}, false)
		if bool(repeatRequired) {
			return models.StatePending, true, nil
		}
		if attemptErr == nil && len(outcomes) > 0 {
			return outcomes[0].State, false, nil
		}
		err = attemptErr
		if attempt < o.cfg.MaxRetryCount {
			o.sleep(time.Duration(attempt+1) * time.Second)
		}
	}
	return models.StateFailed, false, err
}

func (o *Orchestrator) reconcile(ctx context.Context, h *status.Handler, allStillNeeded map[string]struct{}) {
	remaining, _, err := o.pm.GetAllUpdates(ctx, false)
	if err != nil {
		o.log.Warnw("reconciliation query failed", "err", err)
		return
	}
	stillAvailable := newStringSet(remaining)
	for name := range allStillNeeded {
		if _, present := stillAvailable[name]; !present {
			delete(allStillNeeded, name)
			h.SetPackageInstallStatus([]models.Package{{Name: name, OSNameAndVersion: o.osIdentity, State: models.StateInstalled}})
		}
	}
}

func (o *Orchestrator) postLoop(ctx context.Context, now time.Time) {
	pending, err := o.pm.IsRebootPending(ctx)
	if err == nil && pending && o.rebootSetting != models.RebootNever {
		o.reboot.Transition(reboot.Required)
		o.reboot.AttemptReboot(ctx, true, o.window.Remaining(now), 0)
	}
}

func isManagerUnhealthy(err error) bool {
	var pmErr *patcherrors.PackageManagerFailureError
	return asPackageManagerFailure(err, &pmErr)
}

func asPackageManagerFailure(err error, target **patcherrors.PackageManagerFailureError) bool {
	for err != nil {
		if pmErr, ok := err.(*patcherrors.PackageManagerFailureError); ok {
			*target = pmErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func newStringSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, i := range items {
		set[i] = struct{}{}
	}
	return set
}
