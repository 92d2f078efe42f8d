// Package handlerlifecycle implements the handler's lifecycle controller
// (§4.1): the enable algorithm, the stateless install/uninstall/reset
// subcommands, the version-update file copy, and disable's best-effort
// auto-assessment block.
package handlerlifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/azure-patch/linux-patch-core/internal/config"
	"github.com/azure-patch/linux-patch-core/internal/extenv"
	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
	"github.com/azure-patch/linux-patch-core/internal/reboot"
	pkgsemver "github.com/azure-patch/linux-patch-core/pkg/semver"
	"github.com/azure-patch/linux-patch-core/internal/state"
	"github.com/azure-patch/linux-patch-core/internal/status"
)

// AutoAssessmentDisabler is the narrow collaborator disable() needs from
// internal/autoassess, kept as an interface here so this package does not
// have to import a concrete systemd client.
type AutoAssessmentDisabler interface {
	Block(ctx context.Context) error
}

// Controller implements one method per handler subcommand.
type Controller struct {
	log    *zap.SugaredLogger
	env    recorder.Environment
	layout extenv.Layout
	cfg    *config.Configuration
	spawn  Spawner
}

func New(log *zap.SugaredLogger, env recorder.Environment, layout extenv.Layout, cfg *config.Configuration, spawn Spawner) *Controller {
	return &Controller{log: log, env: env, layout: layout, cfg: cfg, spawn: spawn}
}

// Install performs the stateless setup subcommand. Directory creation is
// idempotent so repeated calls always succeed.
func (c *Controller) Install(ctx context.Context) error {
	for _, dir := range []string{c.layout.ConfigDir, c.layout.StatusDir, c.layout.LogDir, c.layout.EventsDir} {
		if err := c.env.MkdirAll(dir); err != nil {
			return fmt.Errorf("handlerlifecycle: install: %w", err)
		}
	}
	return nil
}

// Uninstall is a no-op: per the lifecycle contract, extension state is left
// in place so a subsequent install/enable on the same sequence can recover
// it; nothing on disk needs cleaning up.
func (c *Controller) Uninstall(ctx context.Context) error {
	return nil
}

// Reset unconditionally deletes CoreState.json and ExtState.json.
func (c *Controller) Reset(ctx context.Context) error {
	var firstErr error
	for _, path := range []string{c.layout.CoreStatePath(), c.layout.ExtStatePath()} {
		if err := c.env.Remove(path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Disable blocks the auto-assessment timer (best-effort: failures here are
// logged, not fatal, since the new extension version being installed will
// take over the lifecycle regardless).
func (c *Controller) Disable(ctx context.Context, autoAssess AutoAssessmentDisabler) error {
	if autoAssess == nil {
		return nil
	}
	if err := autoAssess.Block(ctx); err != nil {
		c.log.Warnw("best-effort auto-assessment block failed during disable", "err", err)
	}
	return nil
}

// updateAllowList names the on-disk artifacts update() copies forward from
// the preceding extension version: the two state documents and any backup
// file left behind by a package-manager auto-update toggle.
func updateAllowList(name string) bool {
	return strings.Contains(name, "ExtState") || strings.Contains(name, "CoreState") || strings.Contains(name, ".bak")
}

// Update locates the immediately preceding sibling version directory under
// extensionPardir (directories named "<prefix>-<semver>") and copies the
// allow-listed state artifacts from its config folder into this version's.
// Absence of a preceding version is a failure.
func (c *Controller) Update(ctx context.Context, extensionPardir string, currentVersion *semver.Version) error {
	entries, err := c.env.ReadDir(extensionPardir)
	if err != nil {
		return fmt.Errorf("handlerlifecycle: update: listing %s: %w", extensionPardir, err)
	}
	var candidates []string
	for _, e := range entries {
		if e.IsDir {
			candidates = append(candidates, filepath.Join(extensionPardir, e.Name))
		}
	}
	dirs := pkgsemver.ParseDirs(candidates)
	preceding, found := pkgsemver.Preceding(dirs, currentVersion)
	if !found {
		return fmt.Errorf("handlerlifecycle: update: no preceding extension version found under %s", extensionPardir)
	}

	srcConfigDir := filepath.Join(preceding.Path, "config")
	files, err := c.env.ReadDir(srcConfigDir)
	if err != nil {
		return fmt.Errorf("handlerlifecycle: update: listing %s: %w", srcConfigDir, err)
	}
	for _, f := range files {
		if f.IsDir || !updateAllowList(f.Name) {
			continue
		}
		src := filepath.Join(srcConfigDir, f.Name)
		dst := filepath.Join(c.layout.ConfigDir, f.Name)
		if err := c.copyWithRetry(src, dst, 3); err != nil {
			c.log.Errorw("failed to copy artifact from preceding extension version", "src", src, "dst", dst, "err", err)
			return err
		}
	}
	return nil
}

func (c *Controller) copyWithRetry(src, dst string, retries int) error {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		data, found, err := c.env.ReadFile(src)
		if err == nil && found {
			if err := c.env.WriteFile(dst, data); err == nil {
				return nil
			} else {
				lastErr = err
			}
		} else {
			lastErr = err
		}
		if attempt < retries {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}
	return lastErr
}

// EnableResult reports what Enable decided to do.
type EnableResult struct {
	SequenceNumber int
	Spawned        bool
	PID            int
}

// Enable implements §4.1's enable algorithm.
func (c *Controller) Enable(ctx context.Context, coreBinaryPath string) (EnableResult, error) {
	n, ok := extenv.DiscoverSequenceNumber(c.layout.ConfigDir)
	if !ok {
		return EnableResult{}, fmt.Errorf("handlerlifecycle: enable: could not discover a sequence number")
	}

	settingsData, found, err := c.env.ReadFile(c.layout.SettingsPath(n))
	if err != nil {
		return EnableResult{}, err
	}
	if !found {
		return EnableResult{}, fmt.Errorf("handlerlifecycle: enable: settings file for sequence %d not found", n)
	}
	settings, err := config.ParseRuntimeSettings(settingsData)
	if err != nil {
		return EnableResult{}, err
	}

	c.writeInitialStatusIfAbsent(n, settings.Operation, settings.ActivityID, settings.StartTime)

	extStore := state.NewExtStateStore(c.env, c.layout.ExtStatePath(), c.cfg.Retry.MaxInstallationRetryCount)
	coreStore := state.NewCoreStateStore(c.env, c.layout.CoreStatePath(), c.cfg.Retry.MaxInstallationRetryCount)

	prevState, havePrev, err := extStore.Load()
	if err != nil {
		return EnableResult{}, err
	}

	if havePrev && prevState.ExtensionSequence.Number == n {
		if done, err := c.waitOutIdenticalReenable(ctx, coreStore); err != nil {
			return EnableResult{}, err
		} else if done {
			return EnableResult{SequenceNumber: n, Spawned: false}, nil
		}
	}

	achieveEnableBy := c.env.Now().Add(time.Duration(c.cfg.Timing.EnableWaitMinutes) * time.Minute)
	if err := extStore.Save(state.ExtState{ExtensionSequence: state.ExtensionSequence{
		Number: n, AchieveEnableBy: achieveEnableBy, Operation: settings.Operation,
	}}); err != nil {
		return EnableResult{}, err
	}

	switch settings.Operation {
	case models.OperationAssessment, models.OperationInstallation, models.OperationConfigurePatching:
		pid, err := c.spawn.StartDetached(ctx, coreBinaryPath, []string{"--sequence", strconv.Itoa(n)}, os.Environ())
		if err != nil {
			return EnableResult{}, fmt.Errorf("handlerlifecycle: enable: failed to spawn core: %w", err)
		}
		if err := coreStore.Start(n, settings.Operation, []int{pid}); err != nil {
			c.log.Warnw("failed to record CoreState after spawning core", "err", err)
		}
		return EnableResult{SequenceNumber: n, Spawned: true, PID: pid}, nil
	case models.OperationNoOperation:
		return EnableResult{SequenceNumber: n, Spawned: false}, nil
	default:
		return EnableResult{}, fmt.Errorf("handlerlifecycle: enable: unrecognized operation %q", settings.Operation)
	}
}

// waitOutIdenticalReenable implements the re-enable-of-identical-sequence
// branch of §4.1 step 4: wait up to W minutes for the previous run to
// finish or go stale, polling CoreState. Returns done=true if the caller
// should exit without spawning (the previous run finished on its own).
func (c *Controller) waitOutIdenticalReenable(ctx context.Context, coreStore *state.CoreStateStore) (done bool, err error) {
	deadline := c.env.Now().Add(time.Duration(c.cfg.Timing.EnableWaitMinutes) * time.Minute)
	staleAfter := time.Duration(c.cfg.Timing.HeartbeatStaleMinutes) * time.Minute

	for {
		cs, ok, err := coreStore.Load()
		if err != nil {
			return false, err
		}
		if !ok || cs.Completed {
			return true, nil
		}
		if cs.IsStale(c.env.Now(), staleAfter) {
			c.log.Infow("previous run's heartbeat is stale, treating it as dead and continuing", "number", cs.Number)
			return false, nil
		}
		if !c.env.Now().Before(deadline) {
			c.log.Infow("previous run is still alive at the wait deadline, exiting without spawning", "number", cs.Number)
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (c *Controller) writeInitialStatusIfAbsent(n int, op models.Operation, activityID, startTime string) {
	truncatedPath := c.layout.StatusPath(n)
	if _, found, _ := c.env.ReadFile(truncatedPath); found {
		return
	}
	completePath := c.layout.CompletePath(n)
	rm := reboot.NewManager(c.log, c.env, reboot.NotNeeded)
	h := status.NewHandler(c.env, rm, activityID, op, startTime, c.layout.LogDir)
	if err := h.Write(completePath, truncatedPath); err != nil {
		c.log.Errorw("failed to write initial status file", "sequence", n, "err", err)
	}
}
