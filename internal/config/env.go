package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variables honored as overrides for secret-bearing fields,
// so config files can stay free of credentials.
const (
	EnvVKToken       = "VK_TOKEN"
	EnvTelegramID    = "TELEGRAM_API_ID"
	EnvTelegramHash  = "TELEGRAM_API_HASH"
	EnvBotToken      = "BOT_TOKEN"
	EnvOpenRouterKey = "OPENROUTER_API_KEY"
	EnvAdminToken    = "RADAR_ADMIN_TOKEN"
)

func applyEnvOverrides(cfg *Config) {
	if v := getenv(EnvVKToken); v != "" {
		cfg.VK.Token = v
	}
	if v := getenv(EnvTelegramID); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Telegram.APIID = n
		}
	}
	if v := getenv(EnvTelegramHash); v != "" {
		cfg.Telegram.APIHash = v
	}
	if v := getenv(EnvBotToken); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := getenv(EnvOpenRouterKey); v != "" {
		cfg.AI.APIKey = v
	}
	if v := getenv(EnvAdminToken); v != "" {
		cfg.Admin.Token = v
	}
}

func getenv(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}
