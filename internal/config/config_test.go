package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("AGENDEI_DASHBOARD_KEY", "secret-key")

	path := writeConfig(t, `
app:
  environment: test
database:
  path: "data/agendei.db"
booking:
  steps: 3
  auto_advance: true
  session_ttl: 30m
api:
  auth:
    api_keys:
      - key: "${AGENDEI_DASHBOARD_KEY}"
        name: "studio-bela"
        business_id: 1
        permissions: ["read:agenda", "write:agenda"]
telegram:
  owner_chats:
    - business_id: 1
      chat_id: 555
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "agendei", cfg.App.Name)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Booking.Steps)
	assert.True(t, cfg.Booking.AutoAdvance)
	assert.Equal(t, 30*time.Minute, cfg.Booking.SessionTTL)
	assert.Equal(t, 365, cfg.Booking.MaxBookingDays)
	assert.Equal(t, time.Minute, cfg.Booking.RateLimitWindow)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	require.Len(t, cfg.API.Auth.APIKeys, 1)
	assert.Equal(t, "secret-key", cfg.API.Auth.APIKeys[0].Key)
	assert.Equal(t, int64(555), cfg.Telegram.OwnerChatFor(1))
	assert.Zero(t, cfg.Telegram.OwnerChatFor(2))
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyDefaults_SessionTTL(t *testing.T) {
	var c Config
	c.applyDefaults()
	assert.Equal(t, 2*time.Hour, c.Booking.SessionTTL)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{Database: DatabaseConfig{Path: "agendei.db"}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"missing sqlite path", func(c *Config) { c.Database.Path = "" }, true},
		{"mongo without uri", func(c *Config) { c.Database.Driver = DriverMongo }, true},
		{"mongo with uri", func(c *Config) {
			c.Database.Driver = DriverMongo
			c.Database.Mongo.URI = "mongodb://localhost:27017"
		}, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, true},
		{"bad steps", func(c *Config) { c.Booking.Steps = 5 }, true},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, true},
		{"telegram placeholder token", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.BotToken = "YOUR_BOT_TOKEN_HERE"
		}, true},
		{"sheets without spreadsheet", func(c *Config) {
			c.Google.Enabled = true
			c.Google.CredentialsFile = "creds.json"
		}, true},
		{"key without business", func(c *Config) {
			c.API.Auth.APIKeys = []APIClientKey{{Key: "k", Name: "n"}}
		}, true},
		{"duplicate keys", func(c *Config) {
			c.API.Auth.APIKeys = []APIClientKey{
				{Key: "k", Name: "a", BusinessID: 1},
				{Key: "k", Name: "b", BusinessID: 2},
			}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
