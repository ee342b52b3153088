package cmd

import (
	"github.com/PolarWolf314/docvault/internal/ui"
	"github.com/PolarWolf314/docvault/internal/workflows"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock the vault for this session",
	Long: `Derives the master key from your password and keeps it for the
configured session timeout, so later commands do not prompt again.

Examples:
  docvault keys unlock
  echo "$PASSWORD" | docvault keys unlock --password-stdin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys unlock command")
		spinner, cleanup := startSpinner("Unlocking vault...")
		defer cleanup()

		v, err := openVault(cmd.Context())
		if err != nil {
			return fail(spinner, err)
		}

		password, err := readPassword(spinner, "Encryption password: ")
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to read password: %v", err)
		}
		defer memguard.WipeBytes(password)

		result, err := v.Unlock(cmd.Context(), workflows.UnlockOptions{Password: password})
		if err != nil {
			return fail(spinner, err)
		}

		msg := ui.Success.Sprint("✓") + " Vault unlocked as " + ui.Highlight.Sprint(result.Identity) + "\n" +
			"  Session: " + ui.SessionState(true, result.ExpiresAt)
		if result.LiteralSalt {
			msg += "\n" + ui.Warning.Sprint("⚠") + " The account salt is not base64 encoded; consider " + ui.Code.Sprint("docvault keys rotate")
		}
		spinner.FinalMSG = msg
		return nil
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Forget the master key",
	Long:  `Destroys the session key and removes the persisted session. Open previews are closed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys lock command")
		spinner, cleanup := startSpinner("Locking vault...")
		defer cleanup()

		v, err := openVault(cmd.Context())
		if err != nil {
			return fail(spinner, err)
		}

		result, err := v.Lock(cmd.Context())
		if err != nil {
			return fail(spinner, err)
		}
		if !result.WasUnlocked {
			spinner.FinalMSG = ui.Info.Sprint("ℹ") + " The vault was already locked"
			return nil
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Vault locked"
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a password without unlocking",
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys verify command")
		spinner, cleanup := startSpinner("Verifying password...")
		defer cleanup()

		v, err := openVault(cmd.Context())
		if err != nil {
			return fail(spinner, err)
		}

		password, err := readPassword(spinner, "Encryption password: ")
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to read password: %v", err)
		}
		defer memguard.WipeBytes(password)

		if _, err := v.Verify(cmd.Context(), workflows.VerifyOptions{Password: password}); err != nil {
			return fail(spinner, err)
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Password is correct"
		return nil
	},
}
