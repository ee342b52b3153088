package cmd

import (
	"github.com/PolarWolf314/docvault/internal/ui"
	"github.com/PolarWolf314/docvault/internal/workflows"

	"github.com/spf13/cobra"
)

var traceCmd = &cobra.Command{
	Use:   "trace <image>",
	Short: "Read the hidden provenance from a preview capture",
	Long: `Recovers who viewed which document and when from a lossless capture
(PNG, BMP, WebP lossless) of a preview. Lossy formats usually destroy it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting docs trace command")
		spinner, cleanup := startSpinner("Reading watermark...")
		defer cleanup()

		result, err := workflows.Trace(cmd.Context(), workflows.TraceOptions{Path: args[0]})
		if err != nil {
			return fail(spinner, err)
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Provenance: " + ui.Highlight.Sprint(result.Provenance)
		return nil
	},
}
