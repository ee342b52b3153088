package cmd

import (
	"fmt"

	"github.com/PolarWolf314/docvault/internal/ui"
	"github.com/PolarWolf314/docvault/internal/workflows"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
)

var (
	rotateForce      bool
	rotateIterations iterationsValue
)

func init() {
	rotateCmd.Flags().BoolVar(&rotateForce, "force", false, "skip confirmation prompt")
	rotateCmd.Flags().Var(&rotateIterations, "iterations", "PBKDF2 iterations for the new key ("+allowedIterations()+")")
}

// resetRotateCommandState resets the rotate command's global state for testing.
func resetRotateCommandState() {
	rotateForce = false
	rotateIterations = 0
}

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Change the encryption password",
	Long: `Derives a new master key from a new password and fresh salt, then
re-wraps the key of every document. Document bodies are not re-encrypted.

The command will:
  1. Verify your current password
  2. Unwrap every document key with the current master key
  3. Wrap each one with the new master key
  4. Commit all documents, then the new account

If any document fails to re-wrap, nothing is changed and the current
password stays valid. Legacy documents keep their own password-derived keys
and are skipped.

Examples:
  docvault keys rotate
  docvault keys rotate --iterations 500000 --force
  printf '%s\n%s\n' "$OLD" "$NEW" | docvault keys rotate --password-stdin --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys rotate command")
		spinner, cleanup := startSpinner("Rotating master key...")
		defer cleanup()

		v, err := openVault(cmd.Context())
		if err != nil {
			return fail(spinner, err)
		}

		oldPassword, err := readPassword(spinner, "Current password: ")
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to read password: %v", err)
		}
		defer memguard.WipeBytes(oldPassword)

		newPassword, err := readNewPassword(spinner, "New password: ")
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to read new password: %v", err)
		}
		defer memguard.WipeBytes(newPassword)

		if !rotateForce {
			fmt.Printf("\n%s This re-wraps every document key with a new master key.\n", ui.Warning.Sprint("Warning:"))
			fmt.Println("  Your current password will stop working once rotation succeeds.")
			fmt.Println()
			if !confirm(spinner, "Do you want to continue?") {
				spinner.FinalMSG = ui.Warning.Sprint("⚠") + " Key rotation cancelled."
				return nil
			}
		}

		result, err := v.Rotate(cmd.Context(), workflows.RotateOptions{
			OldPassword: oldPassword,
			NewPassword: newPassword,
			Iterations:  int(rotateIterations),
		})
		if err != nil {
			return fail(spinner, err)
		}

		msg := ui.Success.Sprint("✓") + " Master key rotated\n" +
			fmt.Sprintf("  Re-wrapped %d documents with %d iterations", result.Rotated, result.Iterations)
		if result.Skipped > 0 {
			msg += "\n" + ui.Info.Sprint("ℹ") + fmt.Sprintf(" %d legacy documents still open with the password they were uploaded with", result.Skipped)
		}
		spinner.FinalMSG = msg
		return nil
	},
}
