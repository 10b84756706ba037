package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // embedded zoneinfo for scheduling.timezone

	"carebook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Effects    EffectsConfig    `yaml:"effects"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Exports    ExportConfig     `yaml:"exports"`
	// Catalog points to the yaml seed with providers and their services.
	Catalog string `yaml:"catalog"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// StorageConfig selects the primary record store. The in-memory store is
// always present as the degraded-mode fallback.
type StorageConfig struct {
	Backend          string        `yaml:"backend"` // sqlite | redis | memory
	Path             string        `yaml:"path"`
	KeyPrefix        string        `yaml:"key_prefix"`
	RecoveryInterval time.Duration `yaml:"recovery_interval"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
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

type DispatcherConfig struct {
	RemoteURL        string        `yaml:"remote_url"`
	RemoteTimeout    time.Duration `yaml:"remote_timeout"`
	RecoveryInterval time.Duration `yaml:"recovery_interval"`
	SimulatedLatency time.Duration `yaml:"simulated_latency"`
}

type SchedulingConfig struct {
	FeeBasisPoints      int64   `yaml:"fee_basis_points"`
	CheckInRadiusMeters float64 `yaml:"check_in_radius_meters"`
	Timezone            string  `yaml:"timezone"`
	MaxSeriesSessions   int     `yaml:"max_series_sessions"`
	WriteRetries        int     `yaml:"write_retries"`
	AutoReplyText       string  `yaml:"auto_reply_text"`
}

// Location resolves Timezone, falling back to UTC.
func (s SchedulingConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type EffectsConfig struct {
	NotificationDelay time.Duration `yaml:"notification_delay"`
	ReadReceiptDelay  time.Duration `yaml:"read_receipt_delay"`
	AutoReplyDelay    time.Duration `yaml:"auto_reply_delay"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
	// RetryJitter spreads each retry delay by up to this fraction, 0 to 1.
	RetryJitter   float64 `yaml:"retry_jitter"`
	DeadLetterKey string  `yaml:"dead_letter_key"`
}

type KafkaConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	BufferSize int      `yaml:"buffer_size"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; variables may come from the environment directly.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
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
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the sqlite backend")
		}
	case "redis":
		if c.Redis.Address == "" {
			return errors.New("redis.address is required for the redis backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Scheduling.FeeBasisPoints < 0 || c.Scheduling.FeeBasisPoints > 10000 {
		return fmt.Errorf("scheduling.fee_basis_points must be within 0..10000, got %d", c.Scheduling.FeeBasisPoints)
	}
	if c.Scheduling.CheckInRadiusMeters <= 0 {
		return errors.New("scheduling.check_in_radius_meters must be positive")
	}
	if _, err := time.LoadLocation(c.Scheduling.Timezone); err != nil {
		return fmt.Errorf("scheduling.timezone: %w", err)
	}
	if c.Dispatcher.RemoteURL != "" && !strings.HasPrefix(c.Dispatcher.RemoteURL, "http") {
		return fmt.Errorf("dispatcher.remote_url must be an http(s) url, got %q", c.Dispatcher.RemoteURL)
	}
	if c.Effects.RetryJitter < 0 || c.Effects.RetryJitter > 1 {
		return fmt.Errorf("effects.retry_jitter must be within 0..1, got %g", c.Effects.RetryJitter)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka.brokers and kafka.topic are required when kafka is enabled")
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key %q is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client %q", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "carebook"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "sqlite"
	}
	if c.Storage.Backend == "sqlite" && c.Storage.Path == "" {
		c.Storage.Path = "data/carebook.db"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "carebook"
	}
	if c.Storage.RecoveryInterval == 0 {
		c.Storage.RecoveryInterval = time.Minute
	}

	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Dispatcher.RemoteTimeout == 0 {
		c.Dispatcher.RemoteTimeout = 800 * time.Millisecond
	}
	if c.Dispatcher.RecoveryInterval == 0 {
		c.Dispatcher.RecoveryInterval = time.Minute
	}

	if c.Scheduling.FeeBasisPoints == 0 {
		c.Scheduling.FeeBasisPoints = models.DefaultFeeBasisPoints
	}
	if c.Scheduling.CheckInRadiusMeters == 0 {
		c.Scheduling.CheckInRadiusMeters = models.DefaultCheckInRadiusMeters
	}
	if c.Scheduling.Timezone == "" {
		c.Scheduling.Timezone = "UTC"
	}
	if c.Scheduling.MaxSeriesSessions == 0 {
		c.Scheduling.MaxSeriesSessions = models.DefaultMaxSeriesSessions
	}
	if c.Scheduling.WriteRetries == 0 {
		c.Scheduling.WriteRetries = 5
	}
	if c.Scheduling.AutoReplyText == "" {
		c.Scheduling.AutoReplyText = "Thanks for your message! I'll get back to you shortly."
	}

	if c.Effects.ReadReceiptDelay == 0 {
		c.Effects.ReadReceiptDelay = 2 * time.Second
	}
	if c.Effects.AutoReplyDelay == 0 {
		c.Effects.AutoReplyDelay = 6 * time.Second
	}
	if c.Effects.MaxRetries == 0 {
		c.Effects.MaxRetries = 3
	}
	if c.Effects.RetryInitialDelay == 0 {
		c.Effects.RetryInitialDelay = time.Second
	}
	if c.Effects.RetryMaxDelay == 0 {
		c.Effects.RetryMaxDelay = 30 * time.Second
	}
	if c.Effects.DeadLetterKey == "" {
		c.Effects.DeadLetterKey = "carebook:jobs:dead"
	}

	if c.Kafka.BufferSize == 0 {
		c.Kafka.BufferSize = 256
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
