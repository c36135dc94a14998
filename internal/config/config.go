// Package config handles configuration loading for the bot.
// It supports XDG config paths, an explicit config file, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the bot.
type Config struct {
	Telegram    TelegramConfig `mapstructure:"telegram"`
	Bitrix      BitrixConfig   `mapstructure:"bitrix"`
	Limits      LimitsConfig   `mapstructure:"limits"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Features    FeaturesConfig `mapstructure:"features"`
	MetricsAddr string         `mapstructure:"metrics_addr"`
	LogLevel    string         `mapstructure:"log_level"`
}

// TelegramConfig holds Telegram transport settings.
type TelegramConfig struct {
	// Token is the bot token issued by BotFather.
	Token string `mapstructure:"token"`
	// AllowedUsers restricts the bot to the listed Telegram user ids.
	// Empty means everyone is allowed.
	AllowedUsers []int64 `mapstructure:"allowed_users"`
}

// BitrixConfig holds Bitrix24 portal settings.
type BitrixConfig struct {
	// WebhookBase is the inbound webhook URL prefix, including the
	// user id and secret, e.g. https://portal.bitrix24.ru/rest/1/abc123/.
	WebhookBase string `mapstructure:"webhook_base"`
	// DefaultResponsibleID is the Bitrix user assigned to created tasks.
	DefaultResponsibleID int `mapstructure:"default_responsible_id"`
	// GroupID is an optional workgroup for created tasks (0 = unset).
	GroupID int `mapstructure:"group_id"`
	// Priority is an optional task priority (0 = unset).
	Priority int `mapstructure:"priority"`
	// DiskFolderID is the Bitrix Disk folder receiving attachments.
	DiskFolderID int `mapstructure:"disk_folder_id"`
	// PortalBase is the portal root URL used to build task links.
	PortalBase string `mapstructure:"portal_base"`
	// TaskURLTemplate overrides the task link format; {task_id} is
	// substituted with the created task id.
	TaskURLTemplate string `mapstructure:"task_url_template"`
	// Timeout bounds every REST call.
	Timeout time.Duration `mapstructure:"timeout"`
}

// LimitsConfig holds intake limits and upload tuning.
type LimitsConfig struct {
	// MaxAttachments caps staged files per task.
	MaxAttachments int `mapstructure:"max_attachments"`
	// MaxAttachmentBytes caps a single attachment's size.
	MaxAttachmentBytes int64 `mapstructure:"max_attachment_bytes"`
	// UploadParallelism bounds concurrent Disk uploads.
	UploadParallelism int `mapstructure:"upload_parallelism"`
	// UploadMaxAttempts caps attempts per file (retryable failures only).
	UploadMaxAttempts int `mapstructure:"upload_max_attempts"`
}

// StorageConfig holds local filesystem paths.
type StorageConfig struct {
	// UploadDir is the staging root for downloaded attachments.
	UploadDir string `mapstructure:"upload_dir"`
	// LinkDB is the SQLite file mapping Telegram ids to Bitrix ids.
	LinkDB string `mapstructure:"link_db"`
}

// FeaturesConfig holds feature toggles.
type FeaturesConfig struct {
	// MyTasks enables the task listing command.
	MyTasks bool `mapstructure:"my_tasks"`
	// MyTasksLimit caps how many tasks the listing shows.
	MyTasksLimit int `mapstructure:"my_tasks_limit"`
}

// ErrMissingToken is returned when no Telegram bot token is configured.
var ErrMissingToken = errors.New("telegram bot token is not configured")

// ErrMissingWebhook is returned when no Bitrix webhook base is configured.
var ErrMissingWebhook = errors.New("bitrix webhook base is not configured")

// Load loads configuration from the given file (optional), XDG paths,
// and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (TELEGRAM_BOT_TOKEN, BITRIX_WEBHOOK_BASE, BITRIXBOT_*)
// 2. Explicit config file passed via --config
// 3. User config (~/.config/bitrixbot/config.yaml)
// 4. Built-in defaults
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(userConfigDir())
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading user config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("BITRIXBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Conventional names used by deployments, outside the prefix scheme.
	v.BindEnv("telegram.token", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("bitrix.webhook_base", "BITRIX_WEBHOOK_BASE")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Telegram.Token = expandEnv(cfg.Telegram.Token)
	cfg.Bitrix.WebhookBase = expandEnv(cfg.Bitrix.WebhookBase)

	return cfg, nil
}

// Validate checks that the settings required to run are present.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return ErrMissingToken
	}
	if c.Bitrix.WebhookBase == "" {
		return ErrMissingWebhook
	}
	if c.Bitrix.DefaultResponsibleID <= 0 {
		return errors.New("bitrix.default_responsible_id must be a positive Bitrix user id")
	}
	if c.Limits.MaxAttachments < 1 {
		return errors.New("limits.max_attachments must be at least 1")
	}
	if c.Limits.UploadMaxAttempts < 1 {
		return errors.New("limits.upload_max_attempts must be at least 1")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("limits.max_attachments", 10)
	v.SetDefault("limits.max_attachment_bytes", int64(20*1024*1024))
	v.SetDefault("limits.upload_parallelism", 2)
	v.SetDefault("limits.upload_max_attempts", 2)
	v.SetDefault("bitrix.timeout", 20*time.Second)
	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("storage.link_db", defaultLinkDBPath())
	v.SetDefault("features.my_tasks", true)
	v.SetDefault("features.my_tasks_limit", 5)
	v.SetDefault("log_level", "info")
}

// userConfigDir returns the XDG config directory for the bot.
func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bitrixbot")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "bitrixbot")
}

// defaultLinkDBPath returns the XDG data path for the link database.
func defaultLinkDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "bitrixbot", "links.db")
}

// expandEnv expands ${VAR} references but leaves unresolved ones empty
// rather than passing the literal through as a credential.
func expandEnv(s string) string {
	expanded := os.ExpandEnv(s)
	if strings.HasPrefix(expanded, "${") {
		return ""
	}
	return expanded
}
