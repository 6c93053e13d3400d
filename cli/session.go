package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"storepulse/api/utils"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Print a new session id",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), utils.NewSessionID())
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
}
