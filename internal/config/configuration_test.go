package config_test

import (
	"testing"

	"github.com/azure-patch/linux-patch-core/internal/config"
)

func TestNewConfigurationWithOptionsAndDefaults(t *testing.T) {
	cfg := config.NewConfigurationWithOptionsAndDefaults(
		config.WithPaths(config.Paths{ExtensionRoot: "/var/lib/waagent/ext-1.0.0"}),
	)

	if cfg.Paths.ExtensionRoot != "/var/lib/waagent/ext-1.0.0" {
		t.Errorf("ExtensionRoot = %q, want /var/lib/waagent/ext-1.0.0", cfg.Paths.ExtensionRoot)
	}
	if cfg.Retry.MaxInstallationRetryCount != 2 {
		t.Errorf("MaxInstallationRetryCount = %d, want default 2", cfg.Retry.MaxInstallationRetryCount)
	}
	if cfg.Timing.EnableWaitMinutes != 30 {
		t.Errorf("EnableWaitMinutes = %d, want default 30", cfg.Timing.EnableWaitMinutes)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestDebugMap(t *testing.T) {
	cfg := config.NewConfigurationWithOptionsAndDefaults()
	dm := cfg.DebugMap()
	for _, key := range []string{"paths", "retry", "timing", "logging", "diagnostics"} {
		if _, ok := dm[key]; !ok {
			t.Errorf("DebugMap() missing key %q", key)
		}
	}
}
