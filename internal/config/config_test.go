package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  allowed_origins: ["https://app.example.com"]
db:
  engine: postgres
  postgres:
    host: db.internal
    port: 5433
    user: cro
    password: hunter2
    dbname: cro_prod
    sslmode: require
    max_conns: 20
    min_conns: 5
jwt:
  secret: test-secret
  issuer: cro-test
  expiry_min: 30
llm:
  api_key: sk-test
  model: gpt-4o
scraper:
  mode: http
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(configYAML)), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	require.Equal(t, "postgres", cfg.DB.Engine)
	require.Equal(t, "db.internal", cfg.DB.Postgres.Host)
	require.Equal(t, 20, cfg.DB.Postgres.MaxConns)
	require.Equal(t, "test-secret", cfg.JWT.Secret)
	require.Equal(t, 30*time.Minute, cfg.JWT.Expiry())
	require.Equal(t, "gpt-4o", cfg.LLM.Model)
	require.Equal(t, "http", cfg.Scraper.Mode)
	require.False(t, cfg.Logging.Development)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CRO_JWT_SECRET", "env-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.DB.Engine)
	require.Equal(t, "data/cro.db", cfg.DB.SQLitePath)
	require.Equal(t, "env-secret", cfg.JWT.Secret)
	require.Equal(t, 24*time.Hour, cfg.JWT.Expiry())
	require.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	require.Equal(t, 12000, cfg.LLM.MaxChars)
	require.Equal(t, "browser", cfg.Scraper.Mode)
	require.Equal(t, "local", cfg.Storage.Provider)
	require.Equal(t, "noop", cfg.Notify.Provider)
}

func TestLoadUnknownEngineFallsBackToSQLite(t *testing.T) {
	t.Setenv("CRO_JWT_SECRET", "env-secret")
	t.Setenv("CRO_DB_ENGINE", "oracle")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.DB.Engine)
}

func TestLoadMissingJWTSecretFails(t *testing.T) {
	t.Setenv("CRO_JWT_SECRET", "")

	_, err := Load("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "jwt.secret")
}

func TestValidateRejectsBadScraperMode(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server:  ServerConfig{Port: 8080},
		JWT:     JWTConfig{Secret: "x", ExpiryMin: 10},
		Scraper: ScraperConfig{Mode: "carrier-pigeon"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "scraper.mode")
}

func TestPostgresDSN(t *testing.T) {
	t.Parallel()

	p := PostgresConfig{
		Host: "localhost", Port: 5432, User: "u", Password: "p",
		DBName: "d", SSLMode: "disable", MaxConns: 4, MinConns: 1,
	}
	dsn := p.DSN()
	require.Equal(t, "postgres://u:p@localhost:5432/d?sslmode=disable&pool_max_conns=4&pool_min_conns=1", dsn)
}
