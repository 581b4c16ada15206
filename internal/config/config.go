package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBSchema           string        `mapstructure:"DB_SCHEMA"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	DefinitionCacheTTL time.Duration `mapstructure:"DEFINITION_CACHE_TTL"`
	FHIRBaseURL        string        `mapstructure:"FHIR_BASE_URL"`
	LoaderTimeout      time.Duration `mapstructure:"LOADER_TIMEOUT"`
	InstrumentsFile    string        `mapstructure:"INSTRUMENTS_FILE"`
	CompletedOnly      bool          `mapstructure:"COMPLETED_ONLY"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit          string        `mapstructure:"BODY_LIMIT"`
	OTelEnabled        bool          `mapstructure:"OTEL_ENABLED"`
	OTelServiceName    string        `mapstructure:"OTEL_SERVICE_NAME"`
	OTelSampleRatio    float64       `mapstructure:"OTEL_SAMPLE_RATIO"`
	OTelEndpoint       string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure       bool          `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelHeaders        string        `mapstructure:"OTEL_EXPORTER_OTLP_HEADERS"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_SCHEMA", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "DEFINITION_CACHE_TTL", "FHIR_BASE_URL", "LOADER_TIMEOUT",
	"INSTRUMENTS_FILE", "COMPLETED_ONLY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"OTEL_ENABLED", "OTEL_SERVICE_NAME", "OTEL_SAMPLE_RATIO",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE", "OTEL_EXPORTER_OTLP_HEADERS",
}

var schemaPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_SCHEMA", "proscore")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DEFINITION_CACHE_TTL", "30m")
	v.SetDefault("LOADER_TIMEOUT", "10s")
	v.SetDefault("COMPLETED_ONLY", true)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "10M")
	v.SetDefault("OTEL_SERVICE_NAME", "proscore")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is usable. Postgres, redis and the
// remote FHIR server are optional; when configured their settings must be
// consistent.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}

	if c.DatabaseURL != "" {
		if !schemaPattern.MatchString(c.DBSchema) {
			return fmt.Errorf("DB_SCHEMA must be a plain identifier, got %q", c.DBSchema)
		}
		if c.DBMaxConns < 1 {
			return fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", c.DBMaxConns)
		}
		if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS (%d), got %d", c.DBMaxConns, c.DBMinConns)
		}
	}

	if c.RedisURL != "" && c.DefinitionCacheTTL <= 0 {
		return fmt.Errorf("DEFINITION_CACHE_TTL must be positive when REDIS_URL is set")
	}

	if c.FHIRBaseURL != "" {
		u, err := url.Parse(c.FHIRBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("FHIR_BASE_URL must be an absolute http(s) URL, got %q", c.FHIRBaseURL)
		}
	}

	if c.LoaderTimeout < 0 {
		return fmt.Errorf("LOADER_TIMEOUT must not be negative")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATIO must be between 0 and 1, got %v", c.OTelSampleRatio)
	}

	return nil
}
