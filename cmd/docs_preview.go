package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PolarWolf314/docvault/internal/preview"
	"github.com/PolarWolf314/docvault/internal/ui"
	"github.com/PolarWolf314/docvault/internal/utils"
	"github.com/PolarWolf314/docvault/internal/workflows"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
)

var previewDuration time.Duration

func init() {
	previewCmd.Flags().DurationVar(&previewDuration, "duration", 0, "close the preview after this long (defaults to the vault configuration)")
}

func resetPreviewCommandState() {
	previewDuration = 0
}

var previewCmd = &cobra.Command{
	Use:   "preview <id>",
	Short: "View an image document in the terminal",
	Long: `Decrypts an image document and draws it in the terminal without writing
the plaintext to disk.

The preview carries a visible watermark naming you and the document, plus a
hidden one that 'docvault docs trace' can read back from a lossless capture.
It closes on Ctrl+C, when the duration elapses or when the vault is locked,
and the screen is cleared afterwards.

Examples:
  docvault docs preview 3f2a9c1e
  docvault docs preview 3f2a9c1e --duration 30s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting docs preview command")
		spinner, cleanup := startSpinner("Rendering preview...")
		defer cleanup()

		if !utils.IsTerminal() {
			spinner.FinalMSG = ui.Error.Sprint("✗") + " Previews are only drawn on a terminal\n" +
				ui.Info.Sprint("→") + " Use " + ui.Code.Sprint("docvault docs download") + " to write the file instead"
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		v, err := openVault(ctx)
		if err != nil {
			return fail(spinner, err)
		}
		v.Sessions.Start(ctx)

		password, err := legacyPassword(cmd, v, args[0], spinner)
		if err != nil {
			return fail(spinner, err)
		}
		defer memguard.WipeBytes(password)

		result, err := v.Preview(ctx, workflows.PreviewOptions{
			ID:       args[0],
			Duration: previewDuration,
			Password: password,
		})
		if err != nil {
			return fail(spinner, err)
		}
		surface := result.Surface
		defer surface.Unload()

		if spinner.Active() {
			spinner.Stop()
		}

		cols, rows := utils.TerminalSize()
		sink := &preview.TerminalSink{Out: os.Stdout, Columns: cols, Rows: max(rows-3, 1)}
		if err := surface.Display(sink); err != nil {
			return fail(spinner, err)
		}
		fmt.Println(ui.Muted.Sprint(surface.Provenance().String()))
		fmt.Println(ui.Info.Sprint("→") + " Press " + ui.Code.Sprint("Ctrl+C") + " to close")

		select {
		case <-surface.Done():
		case <-ctx.Done():
			surface.SetVisibility(false)
		}

		if err := utils.ClearScreen(); err != nil {
			Logger.Warnf("Could not clear the screen: %v", err)
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Preview of " + ui.Highlight.Sprint(result.Document.OriginalFilename) +
			" closed " + ui.Muted.Sprint(string(surface.Closed()))
		return nil
	},
}
