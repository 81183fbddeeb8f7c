package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/dossiers/dossiers/internal/platform/i18n"
)

type Config struct {
	Port            string   `mapstructure:"PORT"`
	Env             string   `mapstructure:"ENV"`
	DatabaseURL     string   `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32    `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir   string   `mapstructure:"MIGRATIONS_DIR"`
	AuthIssuer      string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL     string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience    string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey  string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins     []string `mapstructure:"CORS_ORIGINS"`
	DefaultLocale   string   `mapstructure:"DEFAULT_LOCALE"`
	RateLimitRPS    float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int      `mapstructure:"RATE_LIMIT_BURST"`
	MetricsEnabled  bool     `mapstructure:"METRICS_ENABLED"`
	TracingEnabled  bool     `mapstructure:"TRACING_ENABLED"`
	OTLPEndpoint    string   `mapstructure:"OTLP_ENDPOINT"`
	TraceSampleRate float64  `mapstructure:"TRACE_SAMPLE_RATE"`
	TLSEnabled      bool     `mapstructure:"TLS_ENABLED"`
	TLSCertFile     string   `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile      string   `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT",
	"ENV",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"MIGRATIONS_DIR",
	"AUTH_ISSUER",
	"AUTH_JWKS_URL",
	"AUTH_AUDIENCE",
	"AUTH_SIGNING_KEY",
	"CORS_ORIGINS",
	"DEFAULT_LOCALE",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
	"METRICS_ENABLED",
	"TRACING_ENABLED",
	"OTLP_ENDPOINT",
	"TRACE_SAMPLE_RATE",
	"TLS_ENABLED",
	"TLS_CERT_FILE",
	"TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("DEFAULT_LOCALE", i18n.Fallback)
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("TRACING_ENABLED", true)
	v.SetDefault("TRACE_SAMPLE_RATE", 1.0)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
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
	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
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

// Validate checks that the configuration is safe to run. Outside development
// a JWT verification source (AUTH_SIGNING_KEY, or AUTH_ISSUER with
// AUTH_JWKS_URL) must be configured.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf(
				"AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set when ENV=%q; "+
					"refusing to start without authentication configuration", c.Env)
		}
		if c.AuthJWKSURL != "" && c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_ISSUER is required when AUTH_JWKS_URL is set")
		}
	}

	if !i18n.IsSupported(c.DefaultLocale) {
		return fmt.Errorf("DEFAULT_LOCALE must be one of %v, got %q", i18n.Supported, c.DefaultLocale)
	}

	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATE must be within [0,1], got %v", c.TraceSampleRate)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
