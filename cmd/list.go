package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kebairia/zipbackup/internal/backup"
)

var (
	listAmount int
	listAll    bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup archives, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := offlineOperator(cmd)
		if err != nil {
			return err
		}
		limit := max(listAmount, 0)
		if listAll {
			limit = backup.ListAll
		}
		lines, err := op.List(limit)
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().IntVarP(&listAmount, "amount", "n", 10, "number of archives to show")
	listCmd.Flags().BoolVar(&listAll, "all", false, "show every archive")
}
