package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PolarWolf314/docvault/internal/audit"
	"github.com/PolarWolf314/docvault/internal/ui"
	"github.com/PolarWolf314/docvault/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	logLimit     int
	logReverse   bool
	logOperation string
	logDocument  string
	logSince     string
	logJSON      bool
)

func init() {
	LogCmd.Flags().IntVarP(&logLimit, "number", "n", 0, "limit number of entries shown")
	LogCmd.Flags().BoolVar(&logReverse, "reverse", false, "show most recent entries first")
	LogCmd.Flags().StringVar(&logOperation, "operation", "", "filter by operation type (comma-separated)")
	LogCmd.Flags().StringVar(&logDocument, "document", "", "filter by document id prefix")
	LogCmd.Flags().StringVar(&logSince, "since", "", "show entries on or after date (YYYY-MM-DD)")
	LogCmd.Flags().BoolVar(&logJSON, "json", false, "output as JSON array")
}

// resetLogCommandState resets the log command's global state for testing.
func resetLogCommandState() {
	logLimit = 0
	logReverse = false
	logOperation = ""
	logDocument = ""
	logSince = ""
	logJSON = false
}

var LogCmd = &cobra.Command{
	Use:   "log",
	Short: "View the audit log",
	Long: `Displays the vault's audit log: who unlocked, uploaded, downloaded,
previewed or rotated, when, and whether it succeeded.

Examples:
  docvault log                               # View full log
  docvault log -n 10                         # Last 10 entries
  docvault log --operation download,preview  # Filter by operation
  docvault log --document 3f2a9c1e           # One document's history
  docvault log --since 2026-01-01 --json`,
	PersistentPreRun: initLogger,
	RunE:             runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	Logger.Infof("Starting log command")

	spinner, cleanup := startSpinner("Loading audit log...")
	defer cleanup()

	v, err := openVault(cmd.Context())
	if err != nil {
		return fail(spinner, err)
	}
	result, err := v.Log(cmd.Context(), workflows.LogOptions{
		Limit:      logLimit,
		Reverse:    logReverse,
		Operations: logOperation,
		DocumentID: logDocument,
		Since:      logSince,
	})
	if err != nil {
		spinner.FinalMSG = ui.Error.Sprint("✗") + " " + err.Error()
		return nil
	}
	Logger.Debugf("Showing %d of %d entries", len(result.Entries), result.Total)

	spinner.FinalMSG = ""
	if len(result.Entries) == 0 {
		if result.Total == 0 {
			spinner.FinalMSG = "No audit log entries found."
		} else {
			spinner.FinalMSG = "No audit log entries found matching the filters."
		}
		return nil
	}

	// Stop the spinner before printing so it does not overwrite the output.
	spinner.Stop()
	if logJSON {
		return outputLogJSON(result.Entries)
	}
	outputLogDefault(result.Entries)
	return nil
}

func outputLogJSON(entries []audit.Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entries to JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func outputLogDefault(entries []audit.Entry) {
	table := ui.NewTable("TIME", "IDENTITY", "OPERATION", "OUTCOME", "DETAILS")
	for _, e := range entries {
		table.AddRow(formatTimestamp(e.Timestamp), e.Identity, e.Operation, ui.Outcome(e.Outcome), formatDetails(e))
	}
	fmt.Print(table.String())
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(audit.TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDetails(e audit.Entry) string {
	var parts []string
	if e.DocumentID != "" {
		parts = append(parts, ui.ShortID(e.DocumentID))
	}
	if e.DocumentsCount > 0 {
		parts = append(parts, fmt.Sprintf("%d documents", e.DocumentsCount))
	}
	if e.SkippedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", e.SkippedCount))
	}
	if e.Iterations > 0 {
		parts = append(parts, fmt.Sprintf("%d iterations", e.Iterations))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	return strings.Join(parts, ", ")
}
