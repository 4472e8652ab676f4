package main

//	@title						PulseDeck API
//	@version					0.1.0
//	@description				Homelab service monitoring and notification API.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: "Bearer {token}"

import (
	"fmt"
	"os"

	"github.com/HerbHall/pulsedeck/internal/version"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pulsedeck",
	Short: "Homelab service dashboard backend",
	Long: `PulseDeck polls Uptime Kuma, Netdata and Unraid, streams live metrics to
dashboards, and sends notifications to Discord, Telegram and Pushover when
rules match.

Running pulsedeck without a subcommand starts the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Info())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")
	rootCmd.AddCommand(serveCmd, versionCmd, tokenCmd, encryptCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
