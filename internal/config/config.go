// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	DB      DBConfig      `mapstructure:"db"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Scraper ScraperConfig `mapstructure:"scraper"`
	Storage StorageConfig `mapstructure:"storage"`
	Notify  NotifyConfig  `mapstructure:"notify"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig selects the storage engine and its connection parameters.
// Engine is "sqlite" or "postgres"; anything unrecognized falls back to
// the embedded sqlite defaults rather than erroring.
type DBConfig struct {
	Engine     string         `mapstructure:"engine"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds client/server engine connection parameters.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// DSN renders a pgx-compatible connection string including pool bounds.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode, p.MaxConns, p.MinConns,
	)
}

// JWTConfig controls token signing.
type JWTConfig struct {
	Secret    string `mapstructure:"secret"`
	Issuer    string `mapstructure:"issuer"`
	ExpiryMin int    `mapstructure:"expiry_min"`
}

// Expiry converts the configured expiry into a duration.
func (j JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryMin) * time.Minute
}

// LLMConfig configures the completion backend.
type LLMConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	MaxChars   int    `mapstructure:"max_chars"`
	TimeoutSec int    `mapstructure:"timeout_seconds"`
}

// ScraperConfig configures the page capture subsystem.
// Mode is "browser" (headless Chrome) or "http" (plain fetch, no screenshot).
type ScraperConfig struct {
	Mode          string `mapstructure:"mode"`
	UserAgent     string `mapstructure:"user_agent"`
	SettleMs      int    `mapstructure:"settle_ms"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
}

// StorageConfig selects where rendered PDFs and screenshots land.
// Provider is "local", "gcs", or "noop".
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// NotifyConfig selects the completion notification publisher.
// Provider is "noop" or "pubsub".
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Engine selection never errors; unknown values mean the embedded default.
	if cfg.DB.Engine != "postgres" {
		cfg.DB.Engine = "sqlite"
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("logging.development", true)
	v.SetDefault("db.engine", "sqlite")
	v.SetDefault("db.sqlite_path", "data/cro.db")
	v.SetDefault("db.postgres.host", "127.0.0.1")
	v.SetDefault("db.postgres.port", 5432)
	v.SetDefault("db.postgres.user", "postgres")
	v.SetDefault("db.postgres.dbname", "cro_analyzer")
	v.SetDefault("db.postgres.sslmode", "disable")
	v.SetDefault("db.postgres.max_conns", 10)
	v.SetDefault("db.postgres.min_conns", 2)
	v.SetDefault("db.postgres.password", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "cro-analyzer")
	v.SetDefault("jwt.expiry_min", 60*24)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_chars", 12000)
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("scraper.mode", "browser")
	v.SetDefault("scraper.user_agent", "cro-analyzer-bot/0.1")
	v.SetDefault("scraper.settle_ms", 3000)
	v.SetDefault("scraper.nav_timeout_seconds", 45)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.base_dir", "data/artifacts")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("notify.provider", "noop")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic_id", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret must be set")
	}
	if c.JWT.ExpiryMin <= 0 {
		return fmt.Errorf("jwt.expiry_min must be > 0")
	}
	if c.DB.Engine == "postgres" && c.DB.Postgres.MaxConns <= 0 {
		return fmt.Errorf("db.postgres.max_conns must be > 0")
	}
	if c.Scraper.Mode != "browser" && c.Scraper.Mode != "http" {
		return fmt.Errorf("scraper.mode must be browser or http")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
	}
	if c.Notify.Provider == "pubsub" && (c.Notify.ProjectID == "" || c.Notify.TopicID == "") {
		return fmt.Errorf("notify.project_id and notify.topic_id must be set when notify.provider is pubsub")
	}
	return nil
}
