package config_test

import (
	"testing"

	"github.com/azure-patch/linux-patch-core/internal/config"
)

const validSettings = `{
	"operation": "Installation",
	"activityId": "11111111-1111-1111-1111-111111111111",
	"startTime": "2026-07-30T00:00:00Z",
	"maintenanceWindow": 90,
	"classificationsToIncludeInPatchOperation": ["Critical", "Security"],
	"rebootSetting": "IfRequired"
}`

func TestParseRuntimeSettingsValid(t *testing.T) {
	rs, err := config.ParseRuntimeSettings([]byte(validSettings))
	if err != nil {
		t.Fatalf("ParseRuntimeSettings() error = %v", err)
	}
	if rs.Operation != "Installation" {
		t.Errorf("Operation = %q, want Installation", rs.Operation)
	}
	if rs.MaintenanceWindowMinutes != 90 {
		t.Errorf("MaintenanceWindowMinutes = %d, want 90", rs.MaintenanceWindowMinutes)
	}
}

func TestParseRuntimeSettingsInvalidOperation(t *testing.T) {
	_, err := config.ParseRuntimeSettings([]byte(`{"operation":"Bogus","activityId":"x","startTime":"2026-07-30T00:00:00Z"}`))
	if err == nil {
		t.Fatalf("expected error for unrecognized operation")
	}
}

func TestParseRuntimeSettingsInvalidClassificationCombination(t *testing.T) {
	bad := `{
		"operation": "Installation",
		"activityId": "x",
		"startTime": "2026-07-30T00:00:00Z",
		"classificationsToIncludeInPatchOperation": ["Critical", "Unclassified"]
	}`
	_, err := config.ParseRuntimeSettings([]byte(bad))
	if err == nil {
		t.Fatalf("expected error for Unclassified combined with a real classification")
	}
}

func TestParseRuntimeSettingsMalformedJSON(t *testing.T) {
	_, err := config.ParseRuntimeSettings([]byte(`{not json`))
	if err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
}
