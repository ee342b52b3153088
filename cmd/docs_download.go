package cmd

import (
	"github.com/PolarWolf314/docvault/internal/ui"
	"github.com/PolarWolf314/docvault/internal/workflows"

	"github.com/awnumar/memguard"
	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

var (
	downloadOutput string
	downloadForce  bool
)

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "destination path (defaults to the original filename)")
	downloadCmd.Flags().BoolVar(&downloadForce, "force", false, "overwrite an existing file")
}

func resetDownloadCommandState() {
	downloadOutput = ""
	downloadForce = false
}

var downloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Decrypt a document to disk",
	Long: `Decrypts a document and writes it with owner-only permissions. The id
may be any unambiguous prefix shown by 'docvault docs list'.

Legacy documents are opened with the password they were uploaded with,
which is prompted for.

Examples:
  docvault docs download 3f2a9c1e
  docvault docs download 3f2a9c1e -o ~/Desktop/passport.pdf --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting docs download command")
		spinner, cleanup := startSpinner("Decrypting document...")
		defer cleanup()

		v, err := openVault(cmd.Context())
		if err != nil {
			return fail(spinner, err)
		}

		password, err := legacyPassword(cmd, v, args[0], spinner)
		if err != nil {
			return fail(spinner, err)
		}
		defer memguard.WipeBytes(password)

		result, err := v.Download(cmd.Context(), workflows.DownloadOptions{
			ID:       args[0],
			Output:   downloadOutput,
			Force:    downloadForce,
			Password: password,
		})
		if err != nil {
			return fail(spinner, err)
		}

		spinner.FinalMSG = ui.Success.Sprint("✓") + " Decrypted " + ui.Highlight.Sprint(result.Document.OriginalFilename) +
			" to " + ui.Path.Sprint(result.Path)
		return nil
	},
}

// legacyPassword prompts for the upload password when id is a legacy
// document and returns nil otherwise.
func legacyPassword(cmd *cobra.Command, v *workflows.Vault, id string, s *spinner.Spinner) ([]byte, error) {
	legacy, err := v.IsLegacy(cmd.Context(), id)
	if err != nil || !legacy {
		return nil, err
	}
	Logger.Debugf("Document %s is a legacy document", id)
	return readPassword(s, "Password this document was uploaded with: ")
}
