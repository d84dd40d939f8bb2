package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	LogLevel    string   `mapstructure:"LOG_LEVEL"`
	Storage     string   `mapstructure:"STORAGE"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	ActivityLimit     int           `mapstructure:"ACTIVITY_LIMIT"`
	DuplicatePolicy   string        `mapstructure:"DUPLICATE_POLICY"`
	SeedData          bool          `mapstructure:"SEED_DATA"`
	CodeSystemVersion string        `mapstructure:"CODESYSTEM_VERSION"`
	NamasteSystemURI  string        `mapstructure:"NAMASTE_SYSTEM_URI"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	WHOClientID     string `mapstructure:"WHO_ICD_CLIENT_ID"`
	WHOClientSecret string `mapstructure:"WHO_ICD_CLIENT_SECRET"`
	WHOTokenURL     string `mapstructure:"WHO_ICD_TOKEN_URL"`
	WHOBaseURL      string `mapstructure:"WHO_ICD_BASE_URL"`
	WHORelease      string `mapstructure:"WHO_ICD_RELEASE"`
	WHOSyncSchedule string `mapstructure:"WHO_SYNC_SCHEDULE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "STORAGE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "CORS_ORIGINS", "ACTIVITY_LIMIT", "DUPLICATE_POLICY", "SEED_DATA",
	"CODESYSTEM_VERSION", "NAMASTE_SYSTEM_URI", "BODY_LIMIT", "REQUEST_TIMEOUT",
	"WHO_ICD_CLIENT_ID", "WHO_ICD_CLIENT_SECRET", "WHO_ICD_TOKEN_URL", "WHO_ICD_BASE_URL",
	"WHO_ICD_RELEASE", "WHO_SYNC_SCHEDULE",
}

// Load reads configuration from the environment and an optional .env file
// in the working directory. Environment variables win.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE", StorageMemory)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("ACTIVITY_LIMIT", 50)
	v.SetDefault("DUPLICATE_POLICY", "reject")
	v.SetDefault("SEED_DATA", true)
	v.SetDefault("CODESYSTEM_VERSION", "1.0.0")
	v.SetDefault("NAMASTE_SYSTEM_URI", "http://medisutra.in/fhir/CodeSystem/namaste")
	v.SetDefault("BODY_LIMIT", "10M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("WHO_ICD_TOKEN_URL", "https://icdaccessmanagement.who.int/connect/token")
	v.SetDefault("WHO_ICD_BASE_URL", "https://id.who.int")
	v.SetDefault("WHO_ICD_RELEASE", "2024-01")

	for _, k := range keys {
		v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	cfg.DuplicatePolicy = strings.ToLower(strings.TrimSpace(cfg.DuplicatePolicy))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// WHOEnabled reports whether WHO ICD-11 API credentials are configured.
func (c *Config) WHOEnabled() bool {
	return c.WHOClientID != "" && c.WHOClientSecret != ""
}

// Validate rejects unknown storage and duplicate-policy values, a postgres
// storage without DATABASE_URL, and a sync schedule without credentials.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE is %q", StoragePostgres)
		}
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMemory, StoragePostgres, c.Storage)
	}

	switch c.DuplicatePolicy {
	case "", "reject", "replace":
	default:
		return fmt.Errorf("DUPLICATE_POLICY must be \"reject\" or \"replace\", got %q", c.DuplicatePolicy)
	}

	if c.ActivityLimit <= 0 {
		return fmt.Errorf("ACTIVITY_LIMIT must be positive, got %d", c.ActivityLimit)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.WHOSyncSchedule != "" && !c.WHOEnabled() {
		return fmt.Errorf("WHO_SYNC_SCHEDULE requires WHO_ICD_CLIENT_ID and WHO_ICD_CLIENT_SECRET")
	}
	return nil
}
