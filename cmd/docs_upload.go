package cmd

import (
	"fmt"

	"github.com/PolarWolf314/docvault/internal/ui"
	"github.com/PolarWolf314/docvault/internal/utils"
	"github.com/PolarWolf314/docvault/internal/workflows"

	"github.com/spf13/cobra"
)

var uploadDryRun bool

func init() {
	uploadCmd.Flags().BoolVar(&uploadDryRun, "dry-run", false, "show what would be uploaded without encrypting")
}

func resetUploadCommandState() {
	uploadDryRun = false
}

var uploadCmd = &cobra.Command{
	Use:   "upload <files|dirs|globs>...",
	Short: "Encrypt and store documents",
	Long: `Encrypts each file with its own data key, wraps that key with the
session's master key and stores the result. The vault must be unlocked.

Examples:
  docvault docs upload passport.pdf
  docvault docs upload scans/
  docvault docs upload "receipts/**/*.jpg" --dry-run`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting docs upload command")
		spinner, cleanup := startSpinner("Encrypting documents...")
		defer cleanup()

		v, err := openVault(cmd.Context())
		if err != nil {
			return fail(spinner, err)
		}

		result, err := v.Upload(cmd.Context(), workflows.UploadOptions{
			Patterns: args,
			DryRun:   uploadDryRun,
		})
		if err != nil {
			if result != nil && len(result.Documents) > 0 {
				stored := make([]string, len(result.Documents))
				for i, doc := range result.Documents {
					stored[i] = doc.Path
				}
				Logger.WarnfAlways("These documents were stored before the failure:%s", utils.FormatPaths(stored))
			}
			return fail(spinner, err)
		}

		table := ui.NewTable("ID", "FILE", "TYPE", "SIZE")
		for _, doc := range result.Documents {
			table.AddRow(ui.ShortID(doc.ID), doc.Path, doc.MimeType, utils.FormatSize(doc.Size))
		}

		if result.DryRun {
			spinner.FinalMSG = ui.Info.Sprint("ℹ") + fmt.Sprintf(" Would upload %d documents:\n\n", table.Len()) + table.String()
			return nil
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + fmt.Sprintf(" Uploaded %d documents\n\n", table.Len()) + table.String()
		return nil
	},
}
