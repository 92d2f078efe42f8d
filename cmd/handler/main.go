// Command handler implements the lifecycle entry point the host agent
// invokes for install/uninstall/enable/disable/update/reset (§4.1, §6.1).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	extensionRoot  string
	configFile     string
	coreBinaryPath string
)

var rootCmd = &cobra.Command{
	Use:           "handler",
	Short:         "Azure Linux Patch extension lifecycle handler",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&extensionRoot, "extension-root", "", "extension installation root (defaults to the current working directory)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to an ambient configuration file (optional; MSPATCH_ env vars always apply)")
	rootCmd.PersistentFlags().StringVar(&coreBinaryPath, "core-binary", "", "path to the core binary to spawn on enable (defaults to a \"core\" sibling of this binary)")

	rootCmd.AddCommand(
		newInstallCommand(),
		newUninstallCommand(),
		newEnableCommand(),
		newDisableCommand(),
		newUpdateCommand(),
		newResetCommand(),
	)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCodeFor(err))
}
