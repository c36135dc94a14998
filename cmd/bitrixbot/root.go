package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "bitrixbot",
	Short: "Telegram task intake bot for Bitrix24",
	Long: `bitrixbot collects task requests over Telegram and files them in
Bitrix24: it walks the requester through title, description, and
attachments, uploads the attachments to Bitrix24 Disk, and creates the
task via the portal's inbound webhook.

With no arguments, runs the bot until interrupted.`,
	RunE: runBot,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: ~/.config/bitrixbot/config.yaml)")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}
