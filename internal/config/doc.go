// Package config defines the two configuration surfaces of the extension.
//
// RuntimeSettings is the host-agent-owned sequenced document (one per
// "<N>.settings" file) and is parsed directly with encoding/json plus
// go-playground/validator — its schema is not ours to restructure.
//
// Configuration is the ambient, extension-owned configuration (paths,
// retry/backoff tunables, wait/heartbeat timeouts, logging and diagnostics
// knobs). It is organized into logical sections and uses code generation via
// optgen to create functional option helpers.
//
// # Configuration Structure
//
//	Configuration
//	├── Paths          - on-disk extension layout (§6.3)
//	├── Retry          - package-manager and repository-refresh retry tuning
//	├── Timing         - enable-wait / heartbeat / reboot-reserve windows
//	├── Logging        - zap sub-logger level/format
//	└── Diagnostics    - optional loopback diagnostics HTTP server
//
// # Code Generation
//
// The package uses optgen to generate functional option helpers:
//
//	//go:generate go run github.com/ecordell/optgen -output zz_generated.configuration.go . Configuration Paths Retry Timing Logging Diagnostics
//
// Generated helpers include:
//
//   - NewConfigurationWithOptions(...ConfigurationOption) - Create with options
//   - NewConfigurationWithOptionsAndDefaults(...ConfigurationOption) - Create with defaults + options
//   - WithPaths(Paths), WithRetry(Retry), etc. - Set nested structs
//   - DebugMap() - Returns map for debug logging
//
// # Usage Example
//
//	cfg, err := config.Load("/var/lib/waagent/Microsoft.CPlat.Core.LinuxPatchExtension-1.0.0", "")
//	if err != nil {
//	    return err
//	}
//	log.Info("configuration loaded", zap.Any("config", cfg.DebugMap()))
//
// Struct defaults are applied with github.com/creasty/defaults tags before
// environment-variable overrides (MSPATCH_ prefix, via github.com/spf13/viper)
// are merged. github.com/go-playground/validator/v10 validates the result,
// surfacing a patcherrors.ConfigInvalidError on failure.
package config
