package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	JWTSecret       string `mapstructure:"JWT_SECRET"`
	JWTIssuer       string `mapstructure:"JWT_ISSUER"`
	AccessTTLMin    int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	RefreshTTLHours int    `mapstructure:"REFRESH_TOKEN_TTL_HOURS"`

	PHIMasterKey  string `mapstructure:"PHI_MASTER_KEY"`
	PHIKeyVersion int    `mapstructure:"PHI_KEY_VERSION"`
	// PHIPreviousKeys lists retired master keys as "version:hexkey" pairs
	// separated by commas, so records sealed before a rotation stay readable.
	PHIPreviousKeys string `mapstructure:"PHI_PREVIOUS_KEYS"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("JWT_ISSUER", "hms-portal")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 15)
	v.SetDefault("REFRESH_TOKEN_TTL_HOURS", 168)
	v.SetDefault("PHI_KEY_VERSION", 1)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("JWT_ISSUER")
	v.BindEnv("ACCESS_TOKEN_TTL_MINUTES")
	v.BindEnv("REFRESH_TOKEN_TTL_HOURS")
	v.BindEnv("PHI_MASTER_KEY")
	v.BindEnv("PHI_KEY_VERSION")
	v.BindEnv("PHI_PREVIOUS_KEYS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("TLS_ENABLED")
	v.BindEnv("TLS_CERT_FILE")
	v.BindEnv("TLS_KEY_FILE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
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

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MasterKey decodes the current PHI master key.
func (c *Config) MasterKey() ([]byte, error) {
	return decodeKey(c.PHIMasterKey)
}

// PreviousKeys parses PHI_PREVIOUS_KEYS into version-to-key pairs.
func (c *Config) PreviousKeys() (map[int][]byte, error) {
	out := map[int][]byte{}
	if strings.TrimSpace(c.PHIPreviousKeys) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(c.PHIPreviousKeys, ",") {
		var version int
		var hexKey string
		if _, err := fmt.Sscanf(strings.TrimSpace(pair), "%d:%s", &version, &hexKey); err != nil {
			return nil, fmt.Errorf("PHI_PREVIOUS_KEYS entry %q is not version:hexkey", pair)
		}
		key, err := decodeKey(hexKey)
		if err != nil {
			return nil, fmt.Errorf("PHI_PREVIOUS_KEYS version %d: %w", version, err)
		}
		out[version] = key
	}
	return out, nil
}

// Validate refuses configurations that would run the portal without its
// security guarantees. Development mode is exempt from the presence checks
// but not from the format checks.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required outside development")
		}
		if c.PHIMasterKey == "" {
			return fmt.Errorf("PHI_MASTER_KEY is required outside development")
		}
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.JWTSecret))
	}
	if c.PHIMasterKey != "" {
		if _, err := c.MasterKey(); err != nil {
			return err
		}
	}
	if c.PHIKeyVersion < 1 {
		return fmt.Errorf("PHI_KEY_VERSION must be >= 1, got %d", c.PHIKeyVersion)
	}
	if _, err := c.PreviousKeys(); err != nil {
		return err
	}

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

func decodeKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("PHI master key is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("PHI master key must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}
