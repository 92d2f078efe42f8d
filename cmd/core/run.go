package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/azure-patch/linux-patch-core/internal/assessment"
	"github.com/azure-patch/linux-patch-core/internal/autoassess"
	"github.com/azure-patch/linux-patch-core/internal/config"
	"github.com/azure-patch/linux-patch-core/internal/diagserver"
	"github.com/azure-patch/linux-patch-core/internal/extenv"
	"github.com/azure-patch/linux-patch-core/internal/filter"
	"github.com/azure-patch/linux-patch-core/internal/history"
	"github.com/azure-patch/linux-patch-core/internal/installer"
	"github.com/azure-patch/linux-patch-core/internal/logging"
	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/osrelease"
	"github.com/azure-patch/linux-patch-core/internal/pkgmanager"
	"github.com/azure-patch/linux-patch-core/internal/reboot"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
	"github.com/azure-patch/linux-patch-core/internal/state"
	"github.com/azure-patch/linux-patch-core/internal/status"
	"github.com/azure-patch/linux-patch-core/internal/window"
)

func runCore(cmd *cobra.Command, args []string) error {
	root := extensionRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("core: resolving extension root: %w", err)
		}
		root = wd
	}

	cfg, err := config.Load(root, configFile)
	if err != nil {
		return err
	}
	layout := extenv.NewLayout(root)

	n := sequenceNumber
	if n == 0 {
		discovered, ok := extenv.DiscoverSequenceNumber(layout.ConfigDir)
		if !ok {
			return fmt.Errorf("core: could not discover a sequence number")
		}
		n = discovered
	}

	env := recorder.NewLive()

	settingsData, found, err := env.ReadFile(layout.SettingsPath(n))
	if err != nil {
		return fmt.Errorf("core: reading settings for sequence %d: %w", n, err)
	}
	if !found {
		return fmt.Errorf("core: settings file for sequence %d not found", n)
	}
	settings, err := config.ParseRuntimeSettings(settingsData)
	if err != nil {
		return err
	}

	now := env.Now()
	log, closeLog, err := logging.New(cfg.Logging, layout.LogDir, now, settings.Operation)
	if err != nil {
		return fmt.Errorf("core: %w", err)
	}
	defer closeLog()

	osIdentity, err := osrelease.DetectWithOstreeOverride(env)
	if err != nil {
		return fmt.Errorf("%w: %v", errUnsupportedEnvironment, err)
	}
	pm, err := pkgmanager.New(env, osIdentity.Family)
	if err != nil {
		return fmt.Errorf("%w: %v", errUnsupportedEnvironment, err)
	}

	coreStore := state.NewCoreStateStore(env, layout.CoreStatePath(), cfg.Retry.MaxInstallationRetryCount)
	if err := coreStore.Start(n, settings.Operation, []int{os.Getpid()}); err != nil {
		log.Warnw("failed to record CoreState at start", "err", err)
	}
	defer func() {
		if err := coreStore.Finish(); err != nil {
			log.Warnw("failed to mark CoreState completed", "err", err)
		}
	}()

	rebootMgr := reboot.NewManager(log, env, reboot.NotNeeded)
	h := status.NewHandler(env, rebootMgr, settings.ActivityID, settings.Operation, settings.StartTime, layout.LogDir)
	h.SetMaintenanceRunID(settings.MaintenanceRunID)

	var hist *history.Store
	if cfg.Diagnostics.Enabled {
		hs, err := history.Open(cmd.Context(), filepath.Join(layout.ConfigDir, "history.duckdb"), log)
		if err != nil {
			log.Warnw("failed to open history ledger; continuing without it", "err", err)
		} else {
			hist = hs
			defer hist.Close()

			diagSrv := diagserver.New(log, env, layout, hist, cfg.Diagnostics)
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go func() {
				if err := diagSrv.Start(ctx); err != nil {
					log.Warnw("diagnostics server exited with error", "err", err)
				}
			}()
		}
	}

	runErr := dispatch(cmd.Context(), log, env, pm, cfg, h, rebootMgr, settings, osIdentity, now)

	if err := h.Write(layout.CompletePath(n), layout.StatusPath(n)); err != nil {
		log.Errorw("failed to write status file", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	if hist != nil {
		summary := h.Summary()
		record := history.RecordFromSummary(summary, n, now, env.Now())
		if err := hist.Record(cmd.Context(), record); err != nil {
			log.Warnw("failed to record run history", "err", err)
		}
	}

	return runErr
}

func dispatch(
	ctx context.Context,
	log *zap.SugaredLogger,
	env recorder.Environment,
	pm pkgmanager.Capability,
	cfg *config.Configuration,
	h *status.Handler,
	rebootMgr *reboot.Manager,
	settings *config.RuntimeSettings,
	osIdentity osrelease.Identity,
	now time.Time,
) error {
	switch settings.Operation {
	case models.OperationAssessment:
		orch := assessment.New(log, pm, assessment.OSIdentity{NameAndVersion: osIdentity.NameAndVersion})
		return orch.Run(ctx, h, autoAssessment)

	case models.OperationInstallation:
		candidates, err := assessedCandidates(ctx, pm, osIdentity)
		if err != nil {
			h.AddInstallationError(1, "failed to build candidate package list: "+err.Error())
			return err
		}
		f, err := filter.New(settings.PatchesToIncludeInInstallation, settings.PatchesToExcludeFromInstallation, settings.ClassificationsToIncludeInPatchOperation)
		if err != nil {
			return err
		}
		win := window.New(settings.MaintenanceWindowMinutes, now,
			time.Duration(cfg.Timing.RebootReserveMinutes)*time.Minute,
			time.Duration(cfg.Timing.MinInstallSlotMinutes)*time.Minute)
		orch := installer.New(log, pm, rebootMgr, win, installer.Config{
			MaxRetryCount:           cfg.Retry.MaxInstallationRetryCount,
			ReconciliationEvery:     cfg.Retry.ReconciliationEvery,
			MaxRepeatOperationCount: cfg.Retry.MaxRepeatOperationCount,
		}, settings.RebootSetting, osIdentity.NameAndVersion)
		return orch.Run(ctx, h, f, candidates, now)

	case models.OperationConfigurePatching:
		return configurePatching(ctx, log, env, pm, cfg, h, settings)

	case models.OperationNoOperation:
		return nil

	default:
		return fmt.Errorf("%w: %q", errUnrecognizedOperation, settings.Operation)
	}
}

// esmCapability mirrors assessment's optional interface: only pkgmanager.Apt
// implements it, since Security-ESM has no equivalent on other families.
type esmCapability interface {
	GetSecurityESMUpdates(ctx context.Context) ([]string, error)
}

// assessedCandidates builds the classified package list the installer's
// filter runs against, the same way the assessment orchestrator builds its
// own package list (§4.2) — installation needs the Security/Other split to
// evaluate a classification-based include set.
func assessedCandidates(ctx context.Context, pm pkgmanager.Capability, osIdentity osrelease.Identity) ([]models.Package, error) {
	allNames, allVersions, err := pm.GetAllUpdates(ctx, true)
	if err != nil {
		return nil, err
	}
	secNames, _, secErr := pm.GetSecurityUpdates(ctx)
	secSet := make(map[string]struct{}, len(secNames))
	if secErr == nil {
		for _, n := range secNames {
			secSet[n] = struct{}{}
		}
	}
	esmSet := make(map[string]struct{})
	if esm, ok := pm.(esmCapability); ok {
		if names, esmErr := esm.GetSecurityESMUpdates(ctx); esmErr == nil {
			for _, n := range names {
				esmSet[n] = struct{}{}
			}
		}
	}
	pkgs := make([]models.Package, 0, len(allNames))
	for i, name := range allNames {
		version := allVersions[i]
		classification := models.ClassificationOther
		if _, isEsm := esmSet[name]; isEsm {
			classification = models.ClassificationSecurityESM
			version = models.UaEsmRequiredVersion
		} else if _, isSec := secSet[name]; isSec {
			classification = models.ClassificationSecurity
		}
		pkgs = append(pkgs, models.Package{
			Name:             name,
			Version:          version,
			OSNameAndVersion: osIdentity.NameAndVersion,
			Classifications:  []models.Classification{classification},
		})
	}
	return pkgs, nil
}

// configurePatching implements the ConfigurePatching branch (spec.md §6.4
// example 6): toggling OS-native automatic updates and the auto-assessment
// timer to match the requested patchMode/assessmentMode.
func configurePatching(ctx context.Context, log *zap.SugaredLogger, env recorder.Environment, pm pkgmanager.Capability, cfg *config.Configuration, h *status.Handler, settings *config.RuntimeSettings) error {
	automaticOSPatchState := "ImageDefault"
	if settings.PatchMode == models.PatchModeAutomaticByPlatform {
		if err := pm.DisableAutoOsUpdate(ctx); err != nil {
			h.AddInstallationError(1, "failed to disable OS-native automatic updates: "+err.Error())
			return err
		}
		automaticOSPatchState = "Disabled"
	}

	autoAssessmentState := "Disabled"
	mgr := autoassess.New(log, env, cfg.AutoAssess)
	if settings.AssessmentMode == models.PatchModeAutomaticByPlatform {
		if err := mgr.Install(ctx); err != nil {
			h.AddInstallationError(1, "failed to install auto-assessment timer: "+err.Error())
			return err
		}
		autoAssessmentState = "Enabled"
	} else {
		if err := mgr.Block(ctx); err != nil {
			log.Warnw("best-effort auto-assessment block failed during configure-patching", "err", err)
		}
	}

	h.SetConfigurePatchingResult(automaticOSPatchState, autoAssessmentState)
	return nil
}
