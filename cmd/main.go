package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fluxhive/fluxhive/cmd/cli"
	"github.com/fluxhive/fluxhive/pkg/logger"
)

var (
	logMode    string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "fluxhive",
	Short: "FluxHive",
	Long:  `An image generation service that dispatches jobs to external AI providers and keeps local task state synchronized with them`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch logMode {
		case "debug", "pretty", "prod", "test":
			logger.InitWithMode(logger.LogMode(logMode))
		default:
			logger.InitWithMode(logger.LogModePretty)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunServer(configPath)
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server and background sweep",
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunServer(configPath)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunMigrate(configPath)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one synchronization sweep and exit",
	Run: func(cmd *cobra.Command, args []string) {
		cli.RunSweep(configPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logMode, "log", "pretty", "Log mode: debug, pretty, prod, test")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "Path to config file")
}

func main() {
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
