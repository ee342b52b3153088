package cmd

import (
	"bufio"

	logger "github.com/PolarWolf314/docvault/internal/logging"
	"github.com/spf13/cobra"
)

var (
	verbose       bool
	debug         bool
	passwordStdin bool
	Logger        logger.Logger

	// stdinReader is shared by every password read in one invocation so
	// rotation can take the old and the new password from consecutive lines.
	stdinReader *bufio.Reader

	KeysCmd = &cobra.Command{
		Use:              "keys",
		Short:            "Provision, unlock and rotate the vault's master key",
		Long:             `Provides provisioning, unlocking, locking, verification and rotation of the password-derived master key.`,
		PersistentPreRun: initLogger,
	}

	DocsCmd = &cobra.Command{
		Use:              "docs",
		Short:            "Upload, download and preview encrypted documents",
		Long:             `Encrypts documents before they are stored and decrypts them only on this machine.`,
		PersistentPreRun: initLogger,
	}
)

func initLogger(cmd *cobra.Command, args []string) {
	Logger = logger.Logger{
		Verbose: verbose,
		Debug:   debug,
	}
	Logger.Debugf("Initializing %s command with verbose=%t, debug=%t", cmd.Name(), verbose, debug)
}

func addPersistentFlags(c *cobra.Command) {
	c.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	c.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	c.PersistentFlags().BoolVar(&passwordStdin, "password-stdin", false, "read passwords from stdin, one per line")
}

func init() {
	addPersistentFlags(KeysCmd)
	addPersistentFlags(DocsCmd)
	addPersistentFlags(LogCmd)

	KeysCmd.AddCommand(keysInitCmd)
	KeysCmd.AddCommand(unlockCmd)
	KeysCmd.AddCommand(lockCmd)
	KeysCmd.AddCommand(statusCmd)
	KeysCmd.AddCommand(verifyCmd)
	KeysCmd.AddCommand(rotateCmd)

	DocsCmd.AddCommand(uploadCmd)
	DocsCmd.AddCommand(listCmd)
	DocsCmd.AddCommand(downloadCmd)
	DocsCmd.AddCommand(previewCmd)
	DocsCmd.AddCommand(traceCmd)
}

// Helper functions for testing

// ResetGlobalState resets all global variables to their default values for testing.
func ResetGlobalState() {
	verbose = false
	debug = false
	passwordStdin = false
	stdinReader = nil
	resetKeysInitCommandState()
	resetRotateCommandState()
	resetUploadCommandState()
	resetDownloadCommandState()
	resetPreviewCommandState()
	resetLogCommandState()
}

// SetLogger sets the logger for testing.
func SetLogger(l logger.Logger) {
	Logger = l
}
