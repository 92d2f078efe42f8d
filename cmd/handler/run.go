package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/azure-patch/linux-patch-core/internal/autoassess"
	"github.com/azure-patch/linux-patch-core/internal/config"
	"github.com/azure-patch/linux-patch-core/internal/extenv"
	"github.com/azure-patch/linux-patch-core/internal/handlerlifecycle"
	"github.com/azure-patch/linux-patch-core/internal/logging"
	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
)

// resolvedRoot returns extensionRoot, defaulting to the current working
// directory the way the host agent invokes this binary (cwd = extension
// install directory).
func resolvedRoot() (string, error) {
	if extensionRoot != "" {
		return extensionRoot, nil
	}
	return os.Getwd()
}

// resolvedCoreBinary returns coreBinaryPath, defaulting to a "core" sibling
// of the handler's own executable.
func resolvedCoreBinary() (string, error) {
	if coreBinaryPath != "" {
		return coreBinaryPath, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("%w: could not locate this executable to find a core sibling: %v", errMissingDependency, err)
	}
	return filepath.Join(filepath.Dir(self), "core"), nil
}

// newController builds the handlerlifecycle.Controller and the logger for
// one subcommand invocation, loading ambient configuration the same way for
// every verb.
func newController() (*handlerlifecycle.Controller, *config.Configuration, *zap.SugaredLogger, func() error, error) {
	root, err := resolvedRoot()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	cfg, err := config.Load(root, configFile)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	layout := extenv.NewLayout(root)
	env := recorder.NewLive()

	log, closeLog, err := logging.New(cfg.Logging, layout.LogDir, env.Now(), models.OperationNoOperation)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("handler: %w", err)
	}

	spawn := handlerlifecycle.OSSpawner{}
	controller := handlerlifecycle.New(log, env, layout, cfg, spawn)
	return controller, cfg, log, closeLog, nil
}

func newInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Create the extension's working directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, _, closeLog, err := newController()
			if err != nil {
				return err
			}
			defer closeLog()
			return c.Install(cmd.Context())
		},
	}
}

func newUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "No-op: extension state is left in place",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, _, closeLog, err := newController()
			if err != nil {
				return err
			}
			defer closeLog()
			return c.Uninstall(cmd.Context())
		},
	}
}

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete CoreState.json and ExtState.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, _, closeLog, err := newController()
			if err != nil {
				return err
			}
			defer closeLog()
			return c.Reset(cmd.Context())
		},
	}
}

func newDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Best-effort block of the auto-assessment timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, log, closeLog, err := newController()
			if err != nil {
				return err
			}
			defer closeLog()
			mgr := autoassess.New(log, recorder.NewLive(), cfg.AutoAssess)
			return c.Disable(cmd.Context(), mgr)
		},
	}
}

func newEnableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Run the enable algorithm and spawn core",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, _, closeLog, err := newController()
			if err != nil {
				return err
			}
			defer closeLog()
			corePath, err := resolvedCoreBinary()
			if err != nil {
				return err
			}
			_, err = c.Enable(cmd.Context(), corePath)
			return err
		},
	}
}

var (
	updateExtensionPardir string
	updateCurrentVersion  string
)

func newUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Copy forward state artifacts from the preceding extension version",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, _, closeLog, err := newController()
			if err != nil {
				return err
			}
			defer closeLog()

			pardir := updateExtensionPardir
			if pardir == "" {
				root, err := resolvedRoot()
				if err != nil {
					return err
				}
				pardir = filepath.Dir(root)
			}
			version, err := semver.NewVersion(updateCurrentVersion)
			if err != nil {
				return fmt.Errorf("handler: update: invalid --current-version %q: %w", updateCurrentVersion, err)
			}
			return c.Update(cmd.Context(), pardir, version)
		},
	}
	cmd.Flags().StringVar(&updateExtensionPardir, "extension-pardir", "", "parent directory containing sibling \"<prefix>-<semver>\" version directories (defaults to the parent of --extension-root)")
	cmd.Flags().StringVar(&updateCurrentVersion, "current-version", "", "this extension version, to locate the immediately preceding sibling")
	_ = cmd.MarkFlagRequired("current-version")
	return cmd
}
