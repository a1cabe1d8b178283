package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// AuthConfig holds the shared key for internal callers
type AuthConfig struct {
	InternalAPIKey string `mapstructure:"internal_api_key"`
}

// RateLimitConfig limits inbound API traffic
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// FetchConfig controls downloads of remote feeds
type FetchConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRedirects       int           `mapstructure:"max_redirects"`
	UserAgent          string        `mapstructure:"user_agent"`
	Accept             string        `mapstructure:"accept"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes"`
	MaxRetries         int           `mapstructure:"max_retries"`
	InitialBackoff     time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff         time.Duration `mapstructure:"max_backoff"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
}

// PipelineConfig holds the ingestion tunables
type PipelineConfig struct {
	// Delimiters are the CSV candidates in priority order.
	Delimiters          []string `mapstructure:"delimiters"`
	ChunkSize           int      `mapstructure:"chunk_size"`
	UploadMaxBytes      int64    `mapstructure:"upload_max_bytes"`
	SampleBytes         int      `mapstructure:"sample_bytes"`
	SanitizeDescription bool     `mapstructure:"sanitize_description"`
	RequiredAttributes  []string `mapstructure:"required_attributes"`
	ItemPath            string   `mapstructure:"item_path"`
	EnqueueContentJobs  bool     `mapstructure:"enqueue_content_jobs"`
}

// StorageConfig holds snapshot archive configuration
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"`
	BasePath  string `mapstructure:"base_path"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// RefreshConfig controls the background refresh of remote feeds
type RefreshConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	BatchSize  int           `mapstructure:"batch_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// TelemetryConfig holds OpenTelemetry exporter settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	v.SetEnvPrefix("FEED_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath == "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		} else if configPath != "" {
			return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if minWrite := cfg.Fetch.MaxDuration() + importHeadroom; cfg.Server.WriteTimeout > 0 && cfg.Server.WriteTimeout < minWrite {
		log.Warn().
			Dur("write_timeout", cfg.Server.WriteTimeout).
			Dur("raised_to", minWrite).
			Msg("server.write_timeout is shorter than a worst-case fetch")
		cfg.Server.WriteTimeout = minWrite
	}

	globalConfig = &cfg
	return &cfg, nil
}

// loadEnvFile loads the first .env file found
func loadEnvFile() error {
	for _, path := range []string{".env", "config/.env"} {
		if _, err := os.Stat(path); err == nil {
			return godotenv.Load(path)
		}
	}
	return fmt.Errorf("no .env file found")
}

// bindEnvVars binds conventional unprefixed variables to config keys
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("database.url", "DATABASE_URL", "FEED_SERVICE_DATABASE_URL")
	v.BindEnv("server.port", "PORT", "FEED_SERVICE_SERVER_PORT")
	v.BindEnv("server.host", "HOST", "FEED_SERVICE_SERVER_HOST")
	v.BindEnv("logging.level", "LOG_LEVEL", "FEED_SERVICE_LOGGING_LEVEL")
	v.BindEnv("auth.internal_api_key", "INTERNAL_API_KEY", "FEED_SERVICE_AUTH_INTERNAL_API_KEY")
	v.BindEnv("storage.base_path", "STORAGE_PATH", "FEED_SERVICE_STORAGE_BASE_PATH")
	v.BindEnv("storage.endpoint", "AWS_S3_ENDPOINT", "FEED_SERVICE_STORAGE_ENDPOINT")
	v.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT", "FEED_SERVICE_TELEMETRY_ENDPOINT")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 3*time.Minute)

	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("rate_limit.requests_per_second", 50)
	v.SetDefault("rate_limit.burst", 100)

	fetch := DefaultFetchConfig()
	v.SetDefault("fetch.timeout", fetch.Timeout)
	v.SetDefault("fetch.max_redirects", fetch.MaxRedirects)
	v.SetDefault("fetch.user_agent", fetch.UserAgent)
	v.SetDefault("fetch.accept", fetch.Accept)
	v.SetDefault("fetch.insecure_skip_verify", fetch.InsecureSkipVerify)
	v.SetDefault("fetch.max_body_bytes", fetch.MaxBodyBytes)
	v.SetDefault("fetch.max_retries", fetch.MaxRetries)
	v.SetDefault("fetch.initial_backoff", fetch.InitialBackoff)
	v.SetDefault("fetch.max_backoff", fetch.MaxBackoff)
	v.SetDefault("fetch.requests_per_second", fetch.RequestsPerSecond)

	pipeline := DefaultPipelineConfig()
	v.SetDefault("pipeline.delimiters", pipeline.Delimiters)
	v.SetDefault("pipeline.chunk_size", pipeline.ChunkSize)
	v.SetDefault("pipeline.upload_max_bytes", pipeline.UploadMaxBytes)
	v.SetDefault("pipeline.sample_bytes", pipeline.SampleBytes)
	v.SetDefault("pipeline.sanitize_description", pipeline.SanitizeDescription)
	v.SetDefault("pipeline.required_attributes", pipeline.RequiredAttributes)
	v.SetDefault("pipeline.item_path", pipeline.ItemPath)
	v.SetDefault("pipeline.enqueue_content_jobs", pipeline.EnqueueContentJobs)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_path", "./data/snapshots")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.region", "eu-central-1")

	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.interval", 15*time.Minute)
	v.SetDefault("refresh.stale_after", 24*time.Hour)
	v.SetDefault("refresh.batch_size", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "opentelemetry-collector:4317")
	v.SetDefault("telemetry.service_name", "feed-service")
	v.SetDefault("telemetry.environment", "production")
}

// importHeadroom is left for parsing and the import transaction once a
// download has finished.
const importHeadroom = time.Minute

// MaxDuration is the longest a download may take: every attempt runs to its
// timeout and every retry waits the maximum backoff.
func (f FetchConfig) MaxDuration() time.Duration {
	retries := max(f.MaxRetries, 0)
	return time.Duration(retries+1)*f.Timeout + time.Duration(retries)*f.MaxBackoff
}

// DefaultFetchConfig returns the download defaults
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:           20 * time.Second,
		MaxRedirects:      5,
		UserAgent:         "Mozilla/5.0 (compatible; KosaricaFeedBot/1.0)",
		Accept:            "text/xml,application/xml,application/rss+xml,text/csv,application/csv,text/plain;q=0.9,*/*;q=0.8",
		MaxBodyBytes:      50 << 20,
		MaxRetries:        2,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		RequestsPerSecond: 5,
	}
}

// DefaultPipelineConfig returns the ingestion defaults
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Delimiters:          []string{",", ";", "\t", "|"},
		ChunkSize:           100,
		UploadMaxBytes:      5 << 20,
		SampleBytes:         512,
		SanitizeDescription: true,
		RequiredAttributes:  []string{"sku", "title", "url", "price"},
	}
}

// DelimiterRunes returns the first rune of every configured delimiter,
// falling back to the defaults when none are set.
func (c PipelineConfig) DelimiterRunes() []rune {
	src := c.Delimiters
	if len(src) == 0 {
		src = DefaultPipelineConfig().Delimiters
	}
	out := make([]rune, 0, len(src))
	for _, d := range src {
		if r := []rune(d); len(r) > 0 {
			out = append(out, r[0])
		}
	}
	return out
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// GetDatabaseURL returns the database URL from config or environment
func GetDatabaseURL() string {
	if cfg := Get(); cfg != nil && cfg.Database.URL != "" {
		return cfg.Database.URL
	}
	return os.Getenv("DATABASE_URL")
}
