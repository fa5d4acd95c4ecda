package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc"},
		Moderation: ModerationConfig{
			OperatorIDs:    []int64{9000},
			AdminChannelID: -100500,
		},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, StorageDriverFile, cfg.Storage.Driver)
	assert.Equal(t, "data/users.json", cfg.Storage.FilePath)
	assert.Equal(t, ":8080", cfg.HTTP.Listen)
	assert.Equal(t, 3, cfg.Moderation.MinContacts)
	assert.Equal(t, 5, cfg.Moderation.PreviewLimit)
	assert.Equal(t, 30*time.Second, cfg.Storage.FlushInterval())
}

func TestNormalizeRequiredFields(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = ""
	assert.Error(t, Normalize(cfg))

	cfg = validConfig()
	cfg.Moderation.OperatorIDs = nil
	assert.Error(t, Normalize(cfg))

	cfg = validConfig()
	cfg.Moderation.AdminChannelID = 0
	assert.Error(t, Normalize(cfg))
}

func TestNormalizeWebhookMode(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "webhook"
	assert.Error(t, Normalize(cfg), "webhook mode needs url, listen and port")

	cfg.Webhook = WebhookConfig{URL: "https://bot.example.com/hook", Listen: "0.0.0.0", Port: 8443}
	assert.NoError(t, Normalize(cfg))
}

func TestNormalizeStorageDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Driver = "postgres"
	assert.Error(t, Normalize(cfg), "postgres driver needs connection settings")

	cfg.Database.Host = "localhost"
	cfg.Database.Name = "promobot"
	assert.NoError(t, Normalize(cfg))

	cfg = validConfig()
	cfg.Storage.Driver = "redis"
	assert.Error(t, Normalize(cfg))
}

func TestIsOperator(t *testing.T) {
	m := ModerationConfig{OperatorIDs: []int64{1, 2}}
	assert.True(t, m.IsOperator(1))
	assert.False(t, m.IsOperator(3))
}
