package commands

import (
	"github.com/spf13/cobra"

	"github.com/jungwonlee1988/wedealize-sub000/cmd/catalogctl/ui"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the catalogctl version",
	Run: func(cmd *cobra.Command, args []string) {
		ui.Message("catalogctl %s", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
