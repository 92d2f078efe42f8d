package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/azure-patch/linux-patch-core/pkg/patcherrors"
)

// Load builds a Configuration from defaults, a config file (if present), and
// MSPATCH_-prefixed environment variables, in that order of precedence, then
// validates the result.
func Load(extensionRoot, configFile string) (*Configuration, error) {
	cfg := NewConfigurationWithOptionsAndDefaults(WithPaths(*NewPathsWithOptionsAndDefaults(
		WithExtensionRoot(extensionRoot),
	)))

	v := viper.New()
	v.SetEnvPrefix("MSPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, patcherrors.NewConfigInvalid("failed to read configuration file", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, patcherrors.NewConfigInvalid("failed to decode configuration", err)
	}
	if cfg.Paths.ExtensionRoot == "" {
		cfg.Paths.ExtensionRoot = extensionRoot
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, patcherrors.NewConfigInvalid("configuration failed validation", err)
	}
	return cfg, nil
}
