package status_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/reboot"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
	"github.com/azure-patch/linux-patch-core/internal/status"
	"github.com/azure-patch/linux-patch-core/pkg/patcherrors"
)

func newHandler(op models.Operation, env recorder.Environment) *status.Handler {
	rm := reboot.NewManager(zap.NewNop().Sugar(), env, reboot.NotNeeded)
	return status.NewHandler(env, rm, "11111111-1111-1111-1111-111111111111", op, "2026-07-30T00:00:00Z", "/log/core.log")
}

func readDoc(t *testing.T, env recorder.Environment, path string) map[string]any {
	t.Helper()
	data, found, err := env.ReadFile(path)
	if err != nil || !found {
		t.Fatalf("ReadFile(%s) = (found=%v, err=%v)", path, found, err)
	}
	var arr []map[string]any
	if err := json.Unmarshal(data, &arr); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(arr) != 1 {
		t.Fatalf("expected array of one, got %d", len(arr))
	}
	return arr[0]
}

func TestAssessmentSuccessScenario(t *testing.T) {
	env := recorder.NewReplay(recorder.Fixture{Now: time.Date(2026, 7, 30, 1, 0, 0, 0, time.UTC)})
	h := newHandler(models.OperationAssessment, env)
	h.SetPackageAssessmentStatus([]models.Package{
		{Name: "a", Version: "1", OSNameAndVersion: "U", Classifications: []models.Classification{models.ClassificationSecurity}},
		{Name: "b", Version: "1", OSNameAndVersion: "U", Classifications: []models.Classification{models.ClassificationOther}},
		{Name: "c", Version: "1", OSNameAndVersion: "U", Classifications: []models.Classification{models.ClassificationOther}},
	})

	if err := h.Write("/status/complete.json", "/status/1.status"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	doc := readDoc(t, env, "/status/1.status")
	st := doc["status"].(map[string]any)
	if st["status"] != "success" {
		t.Errorf("status = %v, want success", st["status"])
	}
	subs := st["substatus"].([]any)
	sub0 := subs[0].(map[string]any)
	if sub0["name"] != "PatchAssessmentSummary" {
		t.Errorf("substatus[0].name = %v", sub0["name"])
	}
	var inner map[string]any
	if err := json.Unmarshal([]byte(sub0["formattedMessage"].(map[string]any)["message"].(string)), &inner); err != nil {
		t.Fatalf("inner unmarshal: %v", err)
	}
	if int(inner["criticalAndSecurityPatchCount"].(float64)) != 1 {
		t.Errorf("criticalAndSecurityPatchCount = %v, want 1", inner["criticalAndSecurityPatchCount"])
	}
	if int(inner["otherPatchCount"].(float64)) != 2 {
		t.Errorf("otherPatchCount = %v, want 2", inner["otherPatchCount"])
	}
	if inner["startedBy"] != "User" {
		t.Errorf("startedBy = %v, want User", inner["startedBy"])
	}
}

func TestAssessmentPlatformStartedByScenario(t *testing.T) {
	env := recorder.NewReplay(recorder.Fixture{Now: time.Now().UTC()})
	h := newHandler(models.OperationAssessment, env)
	h.SetStartedByPlatform()
	if err := h.Write("/c.json", "/t.json"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	doc := readDoc(t, env, "/t.json")
	sub0 := doc["status"].(map[string]any)["substatus"].([]any)[0].(map[string]any)
	var inner map[string]any
	json.Unmarshal([]byte(sub0["formattedMessage"].(map[string]any)["message"].(string)), &inner)
	if inner["startedBy"] != "Platform" {
		t.Errorf("startedBy = %v, want Platform", inner["startedBy"])
	}
}

func TestInstallationSuccessScenario(t *testing.T) {
	env := recorder.NewReplay(recorder.Fixture{Now: time.Now().UTC()})
	h := newHandler(models.OperationInstallation, env)
	h.SetPackageInstallStatus([]models.Package{
		{Name: "a", Version: "1", OSNameAndVersion: "U", State: models.StateInstalled},
		{Name: "b", Version: "1", OSNameAndVersion: "U", State: models.StateInstalled},
		{Name: "c", Version: "1", OSNameAndVersion: "U", State: models.StateInstalled},
	})
	if err := h.Write("/c.json", "/t.json"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	doc := readDoc(t, env, "/t.json")
	if doc["status"].(map[string]any)["status"] != "success" {
		t.Fatalf("status = %v, want success", doc["status"].(map[string]any)["status"])
	}
}

func TestInstallationFiveErrorsRetainedMostRecentFirst(t *testing.T) {
	env := recorder.NewReplay(recorder.Fixture{Now: time.Now().UTC()})
	h := newHandler(models.OperationInstallation, env)
	for i := 1; i <= 6; i++ {
		h.AddInstallationError(1, fmt.Sprintf("error number %d", i))
	}
	if err := h.Write("/c.json", "/t.json"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	doc := readDoc(t, env, "/t.json")
	sub0 := doc["status"].(map[string]any)["substatus"].([]any)[0].(map[string]any)
	var inner map[string]any
	json.Unmarshal([]byte(sub0["formattedMessage"].(map[string]any)["message"].(string)), &inner)
	errs := inner["errors"].(map[string]any)
	details := errs["details"].([]any)
	if len(details) != 5 {
		t.Fatalf("len(details) = %d, want 5", len(details))
	}
	first := details[0].(map[string]any)
	if first["message"] != "error number 6" {
		t.Errorf("details[0].message = %v, want most-recent error number 6", first["message"])
	}
	if int(errs["code"].(float64)) != 1 {
		t.Errorf("errors.code = %v, want 1", errs["code"])
	}
}

func TestTruncationUnderLargePackageLists(t *testing.T) {
	env := recorder.NewReplay(recorder.Fixture{Now: time.Now().UTC()})
	h := newHandler(models.OperationInstallation, env)

	var installPkgs []models.Package
	for i := 0; i < 1000; i++ {
		installPkgs = append(installPkgs, models.Package{
			Name: fmt.Sprintf("package-with-a-fairly-long-name-%d", i), Version: "1.2.3-ubuntu1",
			OSNameAndVersion: "Ubuntu_20.04", State: models.StateInstalled,
		})
	}
	h.SetPackageInstallStatus(installPkgs)

	if err := h.Write("/c.json", "/t.json"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, _, err := env.ReadFile("/t.json")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(data) > status.AgentLimit {
		t.Errorf("truncated file size = %d, want <= %d", len(data), status.AgentLimit)
	}

	doc := readDoc(t, env, "/t.json")
	sub0 := doc["status"].(map[string]any)["substatus"].([]any)[0].(map[string]any)
	if sub0["status"] != "warning" {
		t.Errorf("substatus.status = %v, want warning on a truncated list", sub0["status"])
	}

	var inner map[string]any
	if err := json.Unmarshal([]byte(sub0["formattedMessage"].(map[string]any)["message"].(string)), &inner); err != nil {
		t.Fatalf("inner unmarshal: %v", err)
	}

	errs := inner["errors"].(map[string]any)
	details := errs["details"].([]any)
	if len(details) == 0 {
		t.Fatalf("errors.details is empty, want a truncation entry")
	}
	if int(errs["code"].(float64)) == 0 {
		t.Errorf("errors.code = %v, want nonzero once truncated", errs["code"])
	}
	foundTruncationDetail := false
	for _, d := range details {
		if int(d.(map[string]any)["code"].(float64)) == int(patcherrors.TruncationApplied) {
			foundTruncationDetail = true
		}
	}
	if !foundTruncationDetail {
		t.Errorf("errors.details = %v, want an entry coded TruncationApplied", details)
	}

	patches := inner["patches"].([]any)
	last := patches[len(patches)-1].(map[string]any)
	if last["patchId"] != status.TruncatedPatchID {
		t.Fatalf("patches[last].patchId = %v, want tombstone %q", last["patchId"], status.TruncatedPatchID)
	}
	if last["patchInstallationState"] != "NotSelected" {
		t.Errorf("tombstone patchInstallationState = %v, want NotSelected", last["patchInstallationState"])
	}
	classifications := last["classifications"].([]any)
	if len(classifications) != 1 || classifications[0] != "Other" {
		t.Errorf("tombstone classifications = %v, want [Other]", classifications)
	}
}

func TestWriteNoOpWhenAlreadyUnderBudget(t *testing.T) {
	env := recorder.NewReplay(recorder.Fixture{Now: time.Now().UTC()})
	h := newHandler(models.OperationAssessment, env)
	if err := h.Write("/c.json", "/t.json"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	complete, _, _ := env.ReadFile("/c.json")
	truncated, _, _ := env.ReadFile("/t.json")
	if string(complete) != string(truncated) {
		t.Errorf("truncation should be a no-op under budget: complete and truncated files differ")
	}
}
