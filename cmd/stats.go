package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the auto backup settings and the last run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := offlineOperator(cmd)
		if err != nil {
			return err
		}
		for _, line := range op.Stats() {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}
