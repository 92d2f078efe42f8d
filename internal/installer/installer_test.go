package installer_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/azure-patch/linux-patch-core/internal/filter"
	"github.com/azure-patch/linux-patch-core/internal/installer"
	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/pkgmanager"
	"github.com/azure-patch/linux-patch-core/internal/reboot"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
	"github.com/azure-patch/linux-patch-core/internal/status"
	"github.com/azure-patch/linux-patch-core/internal/window"
)

func newOrchestrator(env recorder.Environment, pm pkgmanager.Capability, win *window.Window) (*installer.Orchestrator, *reboot.Manager) {
	rm := reboot.NewManager(zap.NewNop().Sugar(), env, reboot.NotNeeded)
	cfg := installer.Config{MaxRetryCount: 2, ReconciliationEvery: 10, MaxRepeatOperationCount: 3}
	o := installer.New(zap.NewNop().Sugar(), pm, rm, win, cfg, models.RebootIfRequired, "Ubuntu_20.04")
	return o, rm
}

func TestRunInstallsIncludedPackages(t *testing.T) {
	start := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	env := recorder.NewReplay(recorder.Fixture{
		Now: start,
		Commands: []recorder.CommandFixture{
			{Name: "apt-get", Args: []string{"update"}, Result: recorder.CommandResult{ExitCode: 0}},
			{Name: "apt-get", Args: []string{"--just-print", "upgrade"}, Result: recorder.CommandResult{
				Stdout: "Inst openssl [1.0] (1.1 security)\n",
			}},
			{Name: "apt-cache", Args: []string{"rdepends", "--installed", "openssl"}, Result: recorder.CommandResult{Stdout: "openssl\n"}},
			{Name: "apt-get", Args: []string{"install", "-y", "openssl=1.1"}, Result: recorder.CommandResult{ExitCode: 0}},
			{Name: "apt-get", Args: []string{"--just-print", "upgrade"}, Result: recorder.CommandResult{ExitCode: 0}},
		},
	})
	pm := pkgmanager.NewApt(env)
	win := window.New(90, start, 15*time.Minute, time.Minute)
	o, rm := newOrchestrator(env, pm, win)

	f, err := filter.New(nil, nil, []models.Classification{models.ClassificationCritical, models.ClassificationSecurity, models.ClassificationOther})
	if err != nil {
		t.Fatalf("filter.New() error = %v", err)
	}

	h := status.NewHandler(env, rm, "act-1", models.OperationInstallation, "2026-07-30T00:00:00Z", "/log")
	candidates := []models.Package{
		{Name: "openssl", Version: "1.1", OSNameAndVersion: "Ubuntu_20.04", Classifications: []models.Classification{models.ClassificationSecurity}},
	}

	if err := o.Run(context.Background(), h, f, candidates, start); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := h.Write("/c.json", "/t.json"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
}

func TestRunSkipsPackagesGatedBehindUaEsmRequired(t *testing.T) {
	start := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	env := recorder.NewReplay(recorder.Fixture{
		Now: start,
		Commands: []recorder.CommandFixture{
			{Name: "apt-get", Args: []string{"update"}, Result: recorder.CommandResult{ExitCode: 0}},
			{Name: "apt-get", Args: []string{"--just-print", "upgrade"}, Result: recorder.CommandResult{
				Stdout: "Inst libssl1.1 [1.0] (1.1 updates)\n",
			}},
			{Name: "apt-get", Args: []string{"--just-print", "upgrade"}, Result: recorder.CommandResult{ExitCode: 0}},
		},
	})
	pm := pkgmanager.NewApt(env)
	win := window.New(90, start, 15*time.Minute, time.Minute)
	o, rm := newOrchestrator(env, pm, win)

	f, err := filter.New(nil, nil, []models.Classification{models.ClassificationCritical, models.ClassificationSecurity, models.ClassificationOther, models.ClassificationSecurityESM})
	if err != nil {
		t.Fatalf("filter.New() error = %v", err)
	}

	h := status.NewHandler(env, rm, "act-1", models.OperationInstallation, "2026-07-30T00:00:00Z", "/log")
	candidates := []models.Package{
		{Name: "libssl1.1", Version: models.UaEsmRequiredVersion, OSNameAndVersion: "Ubuntu_20.04", Classifications: []models.Classification{models.ClassificationSecurityESM}},
	}

	if err := o.Run(context.Background(), h, f, candidates, start); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	summary := h.Summary()
	if summary.FailedCount != 0 {
		t.Errorf("FailedCount = %d, want 0: an ESM-gated package must be skipped, not attempted and failed", summary.FailedCount)
	}
}
