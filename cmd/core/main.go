// Command core is the detached worker the handler spawns for every
// Assessment, Installation, or ConfigurePatching enable (§4.1 step 6). It
// reads exactly one sequenced runtime-settings document, drives the
// matching orchestrator, and writes the StatusFile before exiting.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/azure-patch/linux-patch-core/cmd/core/diag"
)

var (
	extensionRoot  string
	configFile     string
	sequenceNumber int
	autoAssessment bool
)

var rootCmd = &cobra.Command{
	Use:           "core",
	Short:         "Run one sequenced patch operation",
	Long:          `core drives the assessment/installation orchestrators for exactly one "<N>.settings" document and reports progress through the StatusFile.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCore,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&extensionRoot, "extension-root", "", "extension installation root (defaults to the current working directory)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to an ambient configuration file (optional; MSPATCH_ env vars always apply)")
	rootCmd.Flags().IntVar(&sequenceNumber, "sequence", 0, "sequence number to process (defaults to ConfigSequenceNumber / newest *.settings)")
	rootCmd.Flags().BoolVar(&autoAssessment, "auto-assessment", false, "mark this run as platform-initiated (exec_auto_assess_only)")

	rootCmd.AddCommand(diag.NewCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
