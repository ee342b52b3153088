package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/PolarWolf314/docvault/internal/session"
	"github.com/PolarWolf314/docvault/internal/ui"
	"github.com/PolarWolf314/docvault/internal/workflows"

	"github.com/spf13/cobra"
)

var statusJSONOutput bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSONOutput, "json", false, "output in JSON format")
}

type statusOutput struct {
	Vault           string `json:"vault"`
	Path            string `json:"path"`
	UUID            string `json:"uuid"`
	Provisioned     bool   `json:"provisioned"`
	Identity        string `json:"identity,omitempty"`
	Iterations      int    `json:"iterations,omitempty"`
	RotatedAt       string `json:"rotated_at,omitempty"`
	Session         string `json:"session"`
	ExpiresAt       string `json:"expires_at,omitempty"`
	Documents       int    `json:"documents"`
	LegacyDocuments int    `json:"legacy_documents"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provisioning, session and document counts",
	Long: `Shows whether encryption is provisioned, whether the session is unlocked
and how many documents are stored. It never prompts for a password.

Use --json for machine-readable output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys status command")

		v, err := openVault(cmd.Context())
		if err != nil {
			fmt.Println(formatError(err))
			return nil
		}
		status, err := v.Status(cmd.Context())
		if err != nil {
			return Logger.ErrorfAndReturn("failed to read vault status: %v", err)
		}

		if statusJSONOutput {
			return printStatusJSON(status)
		}
		printStatus(status)
		return nil
	},
}

func printStatusJSON(status *workflows.StatusResult) error {
	out := statusOutput{
		Vault:           status.VaultName,
		Path:            status.VaultPath,
		UUID:            status.VaultUUID,
		Provisioned:     status.Provisioned,
		Identity:        status.Identity,
		Iterations:      status.Iterations,
		Session:         status.Session.String(),
		Documents:       status.Documents,
		LegacyDocuments: status.LegacyDocuments,
	}
	if !status.RotatedAt.IsZero() {
		out.RotatedAt = status.RotatedAt.UTC().Format(time.RFC3339)
	}
	if status.Session == session.StateLoaded {
		out.ExpiresAt = status.ExpiresAt.UTC().Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status to JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printStatus(status *workflows.StatusResult) {
	fmt.Printf("Vault: %s %s\n\n", ui.Highlight.Sprint(status.VaultName), ui.Muted.Sprint(status.VaultPath))

	if !status.Provisioned {
		fmt.Println(ui.Warning.Sprint("⚠") + " Encryption has not been provisioned")
		fmt.Println(ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("docvault keys init"))
		return
	}
	fmt.Printf("  Identity:   %s\n", status.Identity)
	fmt.Printf("  Iterations: %d\n", status.Iterations)
	if !status.RotatedAt.IsZero() {
		fmt.Printf("  Rotated:    %s\n", status.RotatedAt.Local().Format("2006-01-02 15:04"))
	}

	fmt.Printf("  Session:    %s\n", ui.SessionState(status.Session == session.StateLoaded, status.ExpiresAt))

	fmt.Printf("  Documents:  %d", status.Documents)
	if status.LegacyDocuments > 0 {
		fmt.Printf(" %s", ui.Muted.Sprintf("%d legacy", status.LegacyDocuments))
	}
	fmt.Println()
}
