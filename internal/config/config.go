package config

import (
	"errors"
	"os"
	"strings"
)

// AppConfig is loaded from environment variables. The command literals that
// classify inbound chat text are configuration, not engine contract.
type AppConfig struct {
	TelegramToken string
	DatabaseURL   string
	RedisURL      string

	HTTPAddr string

	JoinCommands   []string
	ResignCommands []string

	// MessageDir optionally overrides the embedded message catalog.
	MessageDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:       ":8080",
		JoinCommands:   []string{"/start", "start", "/join"},
		ResignCommands: []string{"/resign", "resign"},
	}

	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.MessageDir = strings.TrimSpace(os.Getenv("MESSAGE_DIR"))

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := splitList(os.Getenv("JOIN_COMMANDS")); len(v) > 0 {
		cfg.JoinCommands = v
	}
	if v := splitList(os.Getenv("RESIGN_COMMANDS")); len(v) > 0 {
		cfg.ResignCommands = v
	}

	if cfg.TelegramToken == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
