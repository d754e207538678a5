package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendNotion = "notion"
	BackendLocal  = "local"

	// FileEnv names an optional YAML file with the same keys in lower case.
	FileEnv = "RECURIO_CONFIG"
)

// Config keeps runtime settings for the server, the CLI and the scheduler.
type Config struct {
	DatabaseURL  string
	HTTPAddr     string
	AppURL       string
	StoreBackend string

	NotionClientID     string
	NotionClientSecret string
	NotionRedirectURL  string
	NotionToken        string
	NotionVersion      string

	SyncInterval        time.Duration
	SyncTimeout         time.Duration
	AllowLatestFallback bool

	TelegramToken  string
	TelegramChatID int64
}

var defaults = map[string]any{
	"database_url":          "recurio.db",
	"http_addr":             ":8080",
	"app_url":               "",
	"store_backend":         BackendNotion,
	"notion_client_id":      "",
	"notion_client_secret":  "",
	"notion_redirect_url":   "",
	"notion_token":          "",
	"notion_version":        "2022-06-28",
	"sync_interval_minutes": 15,
	"sync_timeout_seconds":  120,
	"allow_latest_fallback": false,
	"telegram_token":        "",
	"telegram_chat_id":      0,
}

// Load reads configuration from environment variables with sane defaults,
// layered over the YAML file named by RECURIO_CONFIG when set.
func Load() (Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString(strings.ToLower(FileEnv))); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	cfg := Config{
		DatabaseURL:         strings.TrimSpace(v.GetString("database_url")),
		HTTPAddr:            strings.TrimSpace(v.GetString("http_addr")),
		AppURL:              strings.TrimRight(strings.TrimSpace(v.GetString("app_url")), "/"),
		StoreBackend:        strings.ToLower(strings.TrimSpace(v.GetString("store_backend"))),
		NotionClientID:      strings.TrimSpace(v.GetString("notion_client_id")),
		NotionClientSecret:  strings.TrimSpace(v.GetString("notion_client_secret")),
		NotionRedirectURL:   strings.TrimSpace(v.GetString("notion_redirect_url")),
		NotionToken:         strings.TrimSpace(v.GetString("notion_token")),
		NotionVersion:       strings.TrimSpace(v.GetString("notion_version")),
		SyncInterval:        time.Duration(v.GetInt("sync_interval_minutes")) * time.Minute,
		SyncTimeout:         time.Duration(v.GetInt("sync_timeout_seconds")) * time.Second,
		AllowLatestFallback: v.GetBool("allow_latest_fallback"),
		TelegramToken:       strings.TrimSpace(v.GetString("telegram_token")),
		TelegramChatID:      v.GetInt64("telegram_chat_id"),
	}

	if cfg.NotionRedirectURL == "" && cfg.AppURL != "" {
		cfg.NotionRedirectURL = cfg.AppURL + "/api/oauth/callback"
	}
	if cfg.SyncInterval < 0 {
		cfg.SyncInterval = 0
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 2 * time.Minute
	}

	switch cfg.StoreBackend {
	case BackendNotion, BackendLocal:
	default:
		return cfg, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendNotion, BackendLocal, cfg.StoreBackend)
	}
	if cfg.TelegramChatID != 0 && cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_CHAT_ID is set but TELEGRAM_TOKEN is missing")
	}

	return cfg, nil
}
