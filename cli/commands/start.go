package commands

import (
	"fmt"

	"github.com/crossmesh/fusion/daemon"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func Start(defaultConfig string) *cobra.Command {
	var (
		configPath string
		logPath    string
	)
	var cmd = &cobra.Command{
		Use:   "start",
		Short: "Start the swap coordinator daemon",
		Run: func(c *cobra.Command, args []string) {
			config, err := daemon.LoadConfig(configPath)
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to load config: %w", err))
			}
			logger, err := daemon.NewLogger(logPath)
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to build logger: %w", err))
			}
			defer logger.Sync()

			d, err := daemon.New(config, logger)
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to start daemon: %w", err))
			}

			color.Green("fusiond listening on %v", config.Addr)
			if err := d.Run(); err != nil {
				cobra.CheckErr(err)
			}
		},
		DisableAutoGenTag: true,
	}
	cmd.Flags().StringVar(&configPath, "config", defaultConfig, "path to the daemon config file")
	cmd.Flags().StringVar(&logPath, "log", "", "path to the log file, stderr if empty")
	return cmd
}
