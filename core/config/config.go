package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot transport settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// ModerationConfig defines who may decide submissions and how imports are validated.
type ModerationConfig struct {
	// OperatorIDs lists Telegram user IDs allowed to approve or reject.
	OperatorIDs []int64 `yaml:"operator_ids" envconfig:"MODERATION_OPERATOR_IDS"`
	// AdminChannelID is the chat that receives moderation requests.
	AdminChannelID int64 `yaml:"admin_channel_id" envconfig:"MODERATION_ADMIN_CHANNEL_ID"`
	// MinContacts is the minimum number of valid entries per import.
	MinContacts int `yaml:"min_contacts" envconfig:"MODERATION_MIN_CONTACTS"`
	// PreviewLimit caps how many imported entries the operator message shows.
	PreviewLimit int `yaml:"preview_limit" envconfig:"MODERATION_PREVIEW_LIMIT"`
}

// StorageConfig selects and tunes the user record persister.
type StorageConfig struct {
	// Driver is "file" or "postgres".
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	// FilePath locates the JSON snapshot when Driver is "file".
	FilePath string `yaml:"file_path" envconfig:"STORAGE_FILE_PATH"`
	// FlushIntervalSeconds controls the background snapshot cadence; 0 -> default.
	FlushIntervalSeconds int `yaml:"flush_interval_seconds" envconfig:"STORAGE_FLUSH_INTERVAL_SECONDS"`
}

// HTTPConfig configures the web API surface.
type HTTPConfig struct {
	Listen         string   `yaml:"listen" envconfig:"HTTP_LISTEN"`
	BaseURL        string   `yaml:"base_url" envconfig:"HTTP_BASE_URL"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"HTTP_ALLOWED_ORIGINS"`
}

// GoogleConfig holds OAuth credentials for the contacts import flow.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id" envconfig:"GOOGLE_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" envconfig:"GOOGLE_CLIENT_SECRET"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	File        string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// RateLimitConfig holds settings for bot-side rate limiting.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// DatabaseConfig holds Postgres connection settings for the postgres driver.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// StorageDriverFile persists records to a JSON snapshot file.
	StorageDriverFile = "file"
	// StorageDriverPostgres persists records to Postgres.
	StorageDriverPostgres = "postgres"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// Config aggregates the whole application configuration.
type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Moderation ModerationConfig `yaml:"moderation"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	HTTP       HTTPConfig       `yaml:"http"`
	Google     GoogleConfig     `yaml:"google"`
	Logging    LoggingConfig    `yaml:"logging"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FlushInterval returns the configured snapshot cadence with its default applied.
func (s StorageConfig) FlushInterval() time.Duration {
	if s.FlushIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.FlushIntervalSeconds) * time.Second
}

// IsOperator reports whether the given Telegram user ID belongs to the operator set.
func (m ModerationConfig) IsOperator(id int64) bool {
	for _, op := range m.OperatorIDs {
		if op == id {
			return true
		}
	}
	return false
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if len(cfg.Moderation.OperatorIDs) == 0 {
		return fmt.Errorf("moderation.operator_ids must list at least one operator")
	}
	if cfg.Moderation.AdminChannelID == 0 {
		return fmt.Errorf("moderation.admin_channel_id is required")
	}
	if cfg.Moderation.MinContacts <= 0 {
		cfg.Moderation.MinContacts = 3
	}
	if cfg.Moderation.PreviewLimit <= 0 {
		cfg.Moderation.PreviewLimit = 5
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" {
		driver = StorageDriverFile
	}
	switch driver {
	case StorageDriverFile:
		if strings.TrimSpace(cfg.Storage.FilePath) == "" {
			cfg.Storage.FilePath = "data/users.json"
		}
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" {
			return fmt.Errorf("database.host is required when storage.driver is 'postgres'")
		}
		if strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.name is required when storage.driver is 'postgres'")
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: file, postgres", cfg.Storage.Driver)
	}
	cfg.Storage.Driver = driver

	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = ":8080"
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}
