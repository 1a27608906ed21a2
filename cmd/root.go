package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kebairia/zipbackup/internal/config"
	"github.com/kebairia/zipbackup/internal/logger"
)

var (
	// ConfigFile is the path to the JSON configuration.
	ConfigFile string
	logLevel   string

	// rootCmd is the base command for zipbackup.
	rootCmd = &cobra.Command{
		Use:   "zipbackup",
		Short: "Zip backups for a Minecraft server",
		Long: `zipbackup runs next to a Minecraft server and takes zip archives of its
worlds on demand (!!zb make) or on a schedule. The server is paused from
saving while an archive is written.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := logger.New(logLevel)
			return err
		},
	}
)

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		logger.Global().Error("command failed", "error", err.Error())
	}
	logger.Cleanup()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&ConfigFile, "config", "c", config.DefaultPath, "path to JSON config file")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(makeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
}
