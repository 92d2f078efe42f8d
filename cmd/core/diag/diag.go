// Package diag implements the "diag" subcommand: a terminal rendering of
// the current status file, the Go-native analogue of the original
// updatecenter_troubleshooter.py tool's human-facing report.
package diag

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/azure-patch/linux-patch-core/internal/extenv"
)

var extensionRoot string
var sequenceNumber int

// NewCommand builds the diag subcommand.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diag",
		Short: "Render the current status file as a terminal table",
		RunE:  run,
	}
	cmd.Flags().StringVar(&extensionRoot, "extension-root", "", "extension installation root (defaults to the current working directory)")
	cmd.Flags().IntVar(&sequenceNumber, "sequence", 0, "sequence number to render (defaults to ConfigSequenceNumber / newest *.settings)")
	return cmd
}

// document mirrors the wire shape of §6.4's StatusFile array-of-one, loosely
// enough to render without depending on internal/status's unexported types.
type document struct {
	Status struct {
		Operation string `json:"operation"`
		Status    string `json:"status"`
		Substatus []struct {
			Name             string `json:"name"`
			Status           string `json:"status"`
			FormattedMessage struct {
				Message string `json:"message"`
			} `json:"formattedMessage"`
		} `json:"substatus"`
	} `json:"status"`
}

func run(cmd *cobra.Command, args []string) error {
	root := extensionRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		root = wd
	}
	layout := extenv.NewLayout(root)

	n := sequenceNumber
	if n == 0 {
		discovered, ok := extenv.DiscoverSequenceNumber(layout.ConfigDir)
		if !ok {
			return fmt.Errorf("diag: could not discover a sequence number")
		}
		n = discovered
	}

	data, err := os.ReadFile(layout.StatusPath(n))
	if err != nil {
		return fmt.Errorf("diag: reading status file: %w", err)
	}

	var docs []document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("diag: decoding status file: %w", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("diag: status file contained no entries")
	}
	doc := docs[0]

	colorFor(doc.Status.Status)("Operation: %s  Overall status: %s\n", doc.Status.Operation, doc.Status.Status)

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Substatus", "Status", "Detail"})
	table.SetAutoWrapText(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, sub := range doc.Status.Substatus {
		detail := summarize(sub.FormattedMessage.Message)
		table.Append([]string{sub.Name, sub.Status, detail})
	}
	table.Render()
	return nil
}

// summarize renders the double-encoded inner JSON message as a compact
// single-line key:value list rather than dumping raw nested JSON.
func summarize(inner string) string {
	var fields map[string]any
	if err := json.Unmarshal([]byte(inner), &fields); err != nil {
		return inner
	}
	line := ""
	for _, key := range []string{
		"criticalAndSecurityPatchCount", "otherPatchCount",
		"installedPatchCount", "failedPatchCount", "pendingPatchCount",
		"automaticOSPatchState", "rebootStatus", "rebootPending",
	} {
		if v, ok := fields[key]; ok {
			if line != "" {
				line += "  "
			}
			line += fmt.Sprintf("%s=%v", key, v)
		}
	}
	return line
}

func colorFor(status string) func(format string, a ...any) {
	switch status {
	case "success":
		return color.Green
	case "warning", "transitioning":
		return color.Yellow
	default:
		return color.Red
	}
}
