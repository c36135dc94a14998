package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/DelureDev/Bitrix-task-bot/internal/bitrix"
	"github.com/DelureDev/Bitrix-task-bot/internal/config"
	"github.com/DelureDev/Bitrix-task-bot/internal/linking"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify configuration and Bitrix24 connectivity",
	Long: `Check that the bot is ready to run.

Verifies:
  - Configuration loads and contains the required credentials
  - The link database opens
  - The Bitrix24 webhook answers a test call`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		printStatus("✗", fmt.Sprintf("Config failed to load: %v", err), color.FgRed)
		return err
	}
	printStatus("✓", "Config loaded", color.FgGreen)

	if cfg.Telegram.Token == "" {
		printStatus("✗", "Telegram bot token is not set (TELEGRAM_BOT_TOKEN)", color.FgRed)
	} else {
		printStatus("✓", "Telegram bot token is set", color.FgGreen)
	}

	if cfg.Bitrix.WebhookBase == "" {
		printStatus("✗", "Bitrix webhook base is not set (BITRIX_WEBHOOK_BASE)", color.FgRed)
	} else {
		printStatus("✓", "Bitrix webhook base is set", color.FgGreen)
	}

	if cfg.Bitrix.DiskFolderID == 0 {
		printStatus("⚠", "Disk folder id is not set; attachment upload will fail", color.FgYellow)
	} else {
		printStatus("✓", fmt.Sprintf("Disk folder id: %d", cfg.Bitrix.DiskFolderID), color.FgGreen)
	}

	links, err := linking.Open(cfg.Storage.LinkDB)
	if err != nil {
		printStatus("✗", fmt.Sprintf("Link database failed to open: %v", err), color.FgRed)
	} else {
		links.Close()
		printStatus("✓", fmt.Sprintf("Link database OK (%s)", cfg.Storage.LinkDB), color.FgGreen)
	}

	if cfg.Bitrix.WebhookBase != "" {
		client := bitrix.New(cfg.Bitrix.WebhookBase, bitrix.WithTimeout(cfg.Bitrix.Timeout))
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Bitrix.Timeout)
		defer cancel()
		if _, err := client.ListTasksCreatedBy(ctx, cfg.Bitrix.DefaultResponsibleID, 1); err != nil {
			printStatus("✗", fmt.Sprintf("Bitrix webhook check failed: %v", err), color.FgRed)
		} else {
			printStatus("✓", "Bitrix webhook answered", color.FgGreen)
		}
	}

	fmt.Printf("\n%s Check complete. Fix any ✗ items before running the bot.\n", color.GreenString("✓"))
	return nil
}

// printStatus prints a colored status line.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(os.Stdout, "%s %s\n", c.Sprint(symbol), message)
}
