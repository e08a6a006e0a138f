package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jungwonlee1988/wedealize-sub000/cmd/catalogctl/ui"
	"github.com/jungwonlee1988/wedealize-sub000/internal/app"
	"github.com/jungwonlee1988/wedealize-sub000/internal/config"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
)

var (
	cfgFile string
	verbose bool
	noColor bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "catalogctl",
	Short: "Supplier catalog ingestion CLI",
	Long: `catalogctl turns a supplier's PDF catalog into reviewed product records:
it renders the pages, extracts products in batches, optionally applies a
price list, and commits the selection to the catalog API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.InitUI(noColor, verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadApp loads configuration and assembles the pipeline. Logs go to stderr
// in console format; only warnings unless --verbose.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: "catalogctl",
	})

	a, err := app.New(ctx, cfg, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize pipeline: %w", err)
	}
	return a, nil
}
