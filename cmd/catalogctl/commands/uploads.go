package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jungwonlee1988/wedealize-sub000/cmd/catalogctl/ui"
)

var uploadsLimit int

var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "List recorded catalog uploads from the local history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Uploads == nil {
			return errors.New("upload history is not kept locally (set backend.history: database)")
		}

		records, err := a.Uploads.List(ctx, uploadsLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			ui.Info("No uploads recorded yet")
			return nil
		}

		rows := make([][]string, 0, len(records))
		for _, r := range records {
			rows = append(rows, []string{
				r.CreatedAt.Local().Format("2006-01-02 15:04"),
				r.FileName,
				fmt.Sprintf("%d KB", r.FileSize/1024),
				string(r.Status),
				fmt.Sprintf("%d", r.ProductsExtracted),
			})
		}
		ui.Table([]string{"When", "File", "Size", "Status", "Products"}, rows)
		return nil
	},
}

func init() {
	uploadsCmd.Flags().IntVarP(&uploadsLimit, "limit", "n", 20, "Number of uploads to show")
	rootCmd.AddCommand(uploadsCmd)
}
