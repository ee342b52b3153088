package cmd

import (
	"fmt"

	"github.com/PolarWolf314/docvault/internal/ui"
	"github.com/PolarWolf314/docvault/internal/utils"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents",
	Long:  `Lists stored documents from their metadata. Nothing is decrypted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting docs list command")

		v, err := openVault(cmd.Context())
		if err != nil {
			fmt.Println(formatError(err))
			return nil
		}
		result, err := v.List(cmd.Context())
		if err != nil {
			return Logger.ErrorfAndReturn("failed to list documents: %v", err)
		}
		if len(result.Documents) == 0 {
			fmt.Println(ui.Info.Sprint("ℹ") + " No documents stored yet")
			return nil
		}

		table := ui.NewTable("ID", "NAME", "TYPE", "SIZE", "SCHEME", "UPLOADED")
		for _, rec := range result.Documents {
			table.AddRow(
				ui.ShortID(rec.ID),
				rec.OriginalFilename,
				rec.MimeType,
				utils.FormatSize(rec.OriginalSize),
				ui.Scheme(rec.SchemeName()),
				rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			)
		}
		fmt.Print(table.String())
		return nil
	},
}
