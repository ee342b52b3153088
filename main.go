package main

import (
	"context"
	"fmt"
	"os"

	"github.com/PolarWolf314/docvault/cmd"

	"github.com/awnumar/memguard"
	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docvault",
	Short: "Docvault - zero-knowledge document encryption.",
	Long: `Docvault encrypts documents on this machine before they are stored.
Only ciphertext, wrapped keys and metadata ever leave the client.

Features:
  - Password-derived master key, never stored
  - A fresh key per document, wrapped by the master key
  - Password rotation without re-encrypting documents
  - Watermarked, self-destructing image previews

Usage:
  docvault <command> [flags]

Available Commands:
  keys    Provision, unlock, lock and rotate the master key
  docs    Upload, list, download, preview and trace documents
  log     View the audit log

Run 'docvault help <command>' for more details on a specific command.
`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		figure.NewColorFigure("docvault", "small", "green", true).Print()
		fmt.Println()
		fmt.Println("Run 'docvault --help' to see available commands.")
	},
}

func init() {
	rootCmd.AddCommand(cmd.KeysCmd)
	rootCmd.AddCommand(cmd.DocsCmd)
	rootCmd.AddCommand(cmd.LogCmd)
}

func main() {
	defer memguard.Purge()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		memguard.SafeExit(1)
	}
}
