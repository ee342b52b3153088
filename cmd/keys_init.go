package cmd

import (
	"fmt"

	"github.com/PolarWolf314/docvault/internal/ui"
	"github.com/PolarWolf314/docvault/internal/utils"
	"github.com/PolarWolf314/docvault/internal/workflows"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
)

var (
	initIterations iterationsValue
	initIdentity   string
	initName       string
)

func init() {
	keysInitCmd.Flags().Var(&initIterations, "iterations", "PBKDF2 iterations ("+allowedIterations()+")")
	keysInitCmd.Flags().StringVar(&initIdentity, "identity", "", "identity bound to the key (defaults to user@host)")
	keysInitCmd.Flags().StringVar(&initName, "name", "", "vault name (defaults to the directory name)")
}

func resetKeysInitCommandState() {
	initIterations = 0
	initIdentity = ""
	initName = ""
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a vault here and provision its master key",
	Long: `Creates .docvault in the current directory and provisions encryption.

A random salt is generated and the master key is derived from your password.
Only the salt, the iteration count and a verification payload are stored;
the password and the key never leave this machine.

Examples:
  docvault keys init
  docvault keys init --iterations 500000 --identity ada@example.com
  echo "$PASSWORD" | docvault keys init --password-stdin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting keys init command")
		spinner, cleanup := startSpinner("Provisioning encryption...")
		defer cleanup()

		if initIdentity != "" && !utils.IsValidIdentity(initIdentity) {
			spinner.FinalMSG = ui.Error.Sprint("✗") + " Invalid identity " + ui.Highlight.Sprint(initIdentity)
			return nil
		}

		password, err := readNewPassword(spinner, "Choose an encryption password: ")
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to read password: %v", err)
		}
		defer memguard.WipeBytes(password)

		result, err := workflows.Provision(cmd.Context(), workflows.ProvisionOptions{
			OpenOptions: workflows.OpenOptions{Logger: Logger},
			Name:        initName,
			Identity:    initIdentity,
			Password:    password,
			Iterations:  int(initIterations),
		})
		if err != nil {
			return fail(spinner, err)
		}
		Logger.Infof("Provisioned vault %s", result.VaultUUID)

		spinner.FinalMSG = ui.Success.Sprint("✓") + " Encryption provisioned for " + ui.Highlight.Sprint(result.Vault.Config.Vault.Name) + "\n" +
			fmt.Sprintf("  Identity:   %s\n", ui.Highlight.Sprint(result.Identity)) +
			fmt.Sprintf("  Iterations: %d\n\n", result.Iterations) +
			ui.Info.Sprint("→") + " The vault is unlocked. Upload documents with " + ui.Code.Sprint("docvault docs upload <files>") + "\n" +
			ui.Warning.Sprint("Warning:") + " There is no password recovery. Losing the password loses every document."
		return nil
	},
}
