package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kebairia/zipbackup/internal/config"
	"github.com/kebairia/zipbackup/internal/logger"
	"github.com/kebairia/zipbackup/internal/operations"
)

var makeCmd = &cobra.Command{
	Use:   "make [comment]",
	Short: "Back up the worlds of a stopped server",
	Long: `make writes one archive without talking to the server. Use it while the
server is stopped; a running server keeps writing to its worlds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := offlineOperator(cmd)
		if err != nil {
			return err
		}
		meta, err := op.RunBackup(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files, %d bytes in %s\n",
			meta.Archive, meta.Files, meta.SizeBytes, meta.Duration())
		return nil
	},
}

// offlineOperator builds an operator with no server attached.
func offlineOperator(cmd *cobra.Command) (*operations.Operator, error) {
	store, err := config.Open(ConfigFile)
	if err != nil {
		return nil, err
	}
	return operations.NewOperator(store, nil,
		operations.WithLogger(logger.Global()),
		operations.WithOutput(cmd.OutOrStdout()),
	), nil
}
