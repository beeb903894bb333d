package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"agendei/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"

	PermReadAgenda   = "read:agenda"
	PermWriteAgenda  = "write:agenda"
	PermWriteCatalog = "write:catalog"
	PermWriteProfile = "write:profile"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Booking    BookingConfig    `yaml:"booking"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	API        APIConfig        `yaml:"api"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Google     GoogleConfig     `yaml:"google"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Worker     WorkerConfig     `yaml:"worker"`
	Catalog    CatalogConfig    `yaml:"catalog"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Mongo  MongoConfig `yaml:"mongo"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BookingConfig selects the wizard variant and the public visitor limits.
type BookingConfig struct {
	Steps             int           `yaml:"steps"`
	AutoAdvance       bool          `yaml:"auto_advance"`
	MaxBookingDays    int           `yaml:"max_booking_days"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type APIConfig struct {
	HTTP        APIHTTPConfig      `yaml:"http"`
	GRPC        APIGRPCConfig      `yaml:"grpc"`
	Auth        APIAuthConfig      `yaml:"auth"`
	RateLimit   APIRateLimitConfig `yaml:"rate_limit"`
	CORSOrigins []string           `yaml:"cors_origins"`
}

type APIHTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

type APIAuthConfig struct {
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

// APIClientKey is one dashboard credential. Each key is bound to exactly one business.
type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	BusinessID  int64    `yaml:"business_id"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type KafkaConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	BufferSize int      `yaml:"buffer_size"`
}

type GoogleConfig struct {
	Enabled                   bool   `yaml:"enabled"`
	CredentialsFile           string `yaml:"credentials_file"`
	AppointmentsSpreadsheetID string `yaml:"appointments_spreadsheet_id"`
	SheetName                 string `yaml:"sheet_name"`
}

type TelegramConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BotToken   string        `yaml:"bot_token"`
	Debug      bool          `yaml:"debug"`
	OwnerChats []OwnerChat   `yaml:"owner_chats"`
	Timeout    time.Duration `yaml:"timeout"`
}

// OwnerChat routes notifications of one business to a Telegram chat.
type OwnerChat struct {
	BusinessID int64 `yaml:"business_id"`
	ChatID     int64 `yaml:"chat_id"`
}

type WorkerConfig struct {
	QueueSize  int           `yaml:"queue_size"`
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

type CatalogConfig struct {
	SeedFile string `yaml:"seed_file"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; variables may come from the environment directly.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case DriverMongo:
		if c.Database.Mongo.URI == "" {
			return errors.New("mongo uri is required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Booking.Steps != 3 && c.Booking.Steps != 4 {
		return fmt.Errorf("booking steps must be 3 or 4, got %d", c.Booking.Steps)
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis address is required when redis is enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka brokers and topic are required when kafka is enabled")
	}
	if c.Google.Enabled && (c.Google.CredentialsFile == "" || c.Google.AppointmentsSpreadsheetID == "") {
		return errors.New("google credentials and spreadsheet id are required when sheets sync is enabled")
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE") {
		return errors.New("telegram bot token is required when notifications are enabled")
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

// ValidateAPIKeys rejects duplicate keys and keys not bound to a business.
func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key %q has an empty key", k.Name)
		}
		if k.BusinessID == 0 {
			return fmt.Errorf("api key %q is not bound to a business", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for %q", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "agendei"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Mongo.Database == "" {
		c.Database.Mongo.Database = "agendei"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}

	if c.Booking.Steps == 0 {
		c.Booking.Steps = 4
	}
	if c.Booking.MaxBookingDays == 0 {
		c.Booking.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if c.Booking.SessionTTL == 0 {
		c.Booking.SessionTTL = models.DefaultSessionTTL
	}
	if c.Booking.RateLimitRequests == 0 {
		c.Booking.RateLimitRequests = models.RateLimitRequests
	}
	if c.Booking.RateLimitWindow == 0 {
		c.Booking.RateLimitWindow = models.RateLimitWindow * time.Second
	}

	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "./backups"
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeout == 0 {
		c.API.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.API.HTTP.WriteTimeout == 0 {
		c.API.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.API.HTTP.ShutdownTimeout == 0 {
		c.API.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
	if c.Kafka.BufferSize == 0 {
		c.Kafka.BufferSize = 256
	}
	if c.Google.SheetName == "" {
		c.Google.SheetName = "Agendamentos"
	}
	if c.Telegram.Timeout == 0 {
		c.Telegram.Timeout = 10 * time.Second
	}

	if c.Worker.QueueSize == 0 {
		c.Worker.QueueSize = models.WorkerQueueSize
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
	if c.Worker.BaseDelay == 0 {
		c.Worker.BaseDelay = 2 * time.Second
	}
	if c.Worker.MaxDelay == 0 {
		c.Worker.MaxDelay = time.Minute
	}
}

// OwnerChatFor returns the Telegram chat configured for businessID, or 0.
func (c TelegramConfig) OwnerChatFor(businessID int64) int64 {
	for _, oc := range c.OwnerChats {
		if oc.BusinessID == businessID {
			return oc.ChatID
		}
	}
	return 0
}
