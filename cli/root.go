package cli

import (
	"github.com/spf13/cobra"

	"storepulse/api/config"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "storepulse",
	Short: "storepulse - storefront behavioral tracking and live metrics",
	Long: `storepulse instruments storefront pages with commerce heuristics and keeps
live, in-memory dashboard metrics per store.

Running without a subcommand starts the server (same as 'storepulse serve').`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		applyFlagOverrides()
	},
	RunE: runServe,
}

var (
	flagPort     string
	flagPlatform string
	flagStore    string
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagPort, "port", "p", "", "port to listen on (PORT)")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "default store id (STOREPULSE_DEFAULT_STORE)")
	rootCmd.PersistentFlags().StringVar(&flagPlatform, "platform", "", "platform tag attached to events (STOREPULSE_PLATFORM)")
}

func applyFlagOverrides() {
	if flagPort != "" {
		cfg.Port = flagPort
	}
	if flagStore != "" {
		cfg.DefaultStoreID = flagStore
	}
	if flagPlatform != "" {
		cfg.Platform = flagPlatform
	}
}
