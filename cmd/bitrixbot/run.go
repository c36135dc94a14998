package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DelureDev/Bitrix-task-bot/internal/bitrix"
	"github.com/DelureDev/Bitrix-task-bot/internal/config"
	"github.com/DelureDev/Bitrix-task-bot/internal/intake"
	"github.com/DelureDev/Bitrix-task-bot/internal/linking"
	"github.com/DelureDev/Bitrix-task-bot/internal/logging"
	"github.com/DelureDev/Bitrix-task-bot/internal/metrics"
	"github.com/DelureDev/Bitrix-task-bot/internal/staging"
	"github.com/DelureDev/Bitrix-task-bot/internal/telegram"
	"github.com/DelureDev/Bitrix-task-bot/internal/upload"
)

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Sync()

	links, err := linking.Open(cfg.Storage.LinkDB)
	if err != nil {
		return fmt.Errorf("open link database: %w", err)
	}
	defer links.Close()

	client := bitrix.New(cfg.Bitrix.WebhookBase,
		bitrix.WithTimeout(cfg.Bitrix.Timeout),
		bitrix.WithLogger(logger))

	collector := staging.NewCollector(cfg.Storage.UploadDir,
		cfg.Limits.MaxAttachments, cfg.Limits.MaxAttachmentBytes, logger)

	uploads := upload.New(client, cfg.Bitrix.DiskFolderID,
		cfg.Limits.UploadParallelism, cfg.Limits.UploadMaxAttempts, logger)

	engine := intake.NewEngine(collector, uploads, client, links, intake.Options{
		ResponsibleID: cfg.Bitrix.DefaultResponsibleID,
		GroupID:       cfg.Bitrix.GroupID,
		Priority:      cfg.Bitrix.Priority,
	}, logger)

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}

	bot := telegram.New(api, engine, links, client, telegram.Config{
		AllowedUsers:         cfg.Telegram.AllowedUsers,
		DefaultResponsibleID: cfg.Bitrix.DefaultResponsibleID,
		PortalBase:           cfg.Bitrix.PortalBase,
		TaskURLTemplate:      cfg.Bitrix.TaskURLTemplate,
		MyTasks:              cfg.Features.MyTasks,
		MyTasksLimit:         cfg.Features.MyTasksLimit,
	}, logger)

	go metrics.Serve(cfg.MetricsAddr, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting bot",
		zap.String("version", Version()),
		zap.Int("max_attachments", cfg.Limits.MaxAttachments),
		zap.Int("upload_parallelism", cfg.Limits.UploadParallelism))

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("bot stopped")
	return nil
}
