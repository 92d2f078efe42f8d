package assessment_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/azure-patch/linux-patch-core/internal/assessment"
	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/pkgmanager"
	"github.com/azure-patch/linux-patch-core/internal/reboot"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
	"github.com/azure-patch/linux-patch-core/internal/status"
)

func TestRunClassifiesSecurityAndOther(t *testing.T) {
	env := recorder.NewReplay(recorder.Fixture{
		Now: time.Now().UTC(),
		Commands: []recorder.CommandFixture{
			{Name: "apt-get", Args: []string{"update"}, Result: recorder.CommandResult{ExitCode: 0}},
			{Name: "apt-get", Args: []string{"--just-print", "upgrade"}, Result: recorder.CommandResult{
				Stdout: "Inst openssl [1.0] (1.1 security)\nInst vim [8.0] (8.1 updates)\n",
			}},
			{Name: "apt-get", Args: []string{"--just-print", "upgrade"}, Result: recorder.CommandResult{
				Stdout: "Inst openssl [1.0] (1.1 security)\nInst vim [8.0] (8.1 updates)\n",
			}},
			{Name: "apt-get", Args: []string{"--just-print", "upgrade"}, Result: recorder.CommandResult{
				Stdout: "Inst openssl [1.0] (1.1 security)\nInst vim [8.0] (8.1 updates)\n",
			}},
		},
	})
	pm := pkgmanager.NewApt(env)
	o := assessment.New(zap.NewNop().Sugar(), pm, assessment.OSIdentity{NameAndVersion: "Ubuntu_20.04"})

	rm := reboot.NewManager(zap.NewNop().Sugar(), env, reboot.NotNeeded)
	h := status.NewHandler(env, rm, "act-1", models.OperationAssessment, "2026-07-30T00:00:00Z", "/log")

	if err := o.Run(context.Background(), h, false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if err := h.Write("/c.json", "/t.json"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
}

func TestRunClassifiesUbuntuProESMPackages(t *testing.T) {
	aptUpgradeOutput := "Inst libssl1.1 [1.0] (1.1 updates)\n\n" +
		"The following packages could receive security updates with UA Infra: ESM service enabled:\n" +
		"libssl1.1\n"

	env := recorder.NewReplay(recorder.Fixture{
		Now: time.Now().UTC(),
		Commands: []recorder.CommandFixture{
			{Name: "apt-get", Args: []string{"update"}, Result: recorder.CommandResult{ExitCode: 0}},
			{Name: "apt-get", Args: []string{"--just-print", "upgrade"}, Result: recorder.CommandResult{Stdout: aptUpgradeOutput}},
			{Name: "apt-get", Args: []string{"--just-print", "upgrade"}, Result: recorder.CommandResult{Stdout: aptUpgradeOutput}},
			{Name: "apt-get", Args: []string{"--just-print", "upgrade"}, Result: recorder.CommandResult{Stdout: aptUpgradeOutput}},
		},
	})
	pm := pkgmanager.NewApt(env)
	o := assessment.New(zap.NewNop().Sugar(), pm, assessment.OSIdentity{NameAndVersion: "Ubuntu_20.04"})

	rm := reboot.NewManager(zap.NewNop().Sugar(), env, reboot.NotNeeded)
	h := status.NewHandler(env, rm, "act-1", models.OperationAssessment, "2026-07-30T00:00:00Z", "/log")

	if err := o.Run(context.Background(), h, false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := h.Write("/c.json", "/t.json"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, found, err := env.ReadFile("/t.json")
	if err != nil || !found {
		t.Fatalf("ReadFile() = (found=%v, err=%v)", found, err)
	}
	var arr []map[string]any
	if err := json.Unmarshal(data, &arr); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	sub0 := arr[0]["status"].(map[string]any)["substatus"].([]any)[0].(map[string]any)
	var inner map[string]any
	if err := json.Unmarshal([]byte(sub0["formattedMessage"].(map[string]any)["message"].(string)), &inner); err != nil {
		t.Fatalf("inner unmarshal: %v", err)
	}
	patches := inner["patches"].([]any)
	if len(patches) != 1 {
		t.Fatalf("len(patches) = %d, want 1", len(patches))
	}
	p := patches[0].(map[string]any)
	if p["version"] != models.UaEsmRequiredVersion {
		t.Errorf("version = %v, want %q", p["version"], models.UaEsmRequiredVersion)
	}
	classifications := p["classifications"].([]any)
	if len(classifications) != 1 || classifications[0] != string(models.ClassificationSecurityESM) {
		t.Errorf("classifications = %v, want [%s]", classifications, models.ClassificationSecurityESM)
	}
}
