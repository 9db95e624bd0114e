package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Port                   string `mapstructure:"port"`
	AllowedOrigin          string `mapstructure:"allowed_origin"`
	DatabaseURL            string `mapstructure:"database_url"`
	MigrateOnStart         bool   `mapstructure:"migrate_on_start"`
	RedisAddr              string `mapstructure:"redis_addr"`
	RedisPassword          string `mapstructure:"redis_password"`
	RedisDB                int    `mapstructure:"redis_db"`
	AuthSecret             string `mapstructure:"auth_secret"`
	AccessTokenTTLMinutes  int    `mapstructure:"access_token_ttl_minutes"`
	DefaultTaxPercent      string `mapstructure:"default_tax_percent"`
	BalanceCacheTTLSeconds int    `mapstructure:"balance_cache_ttl_seconds"`
	LogLevel               string `mapstructure:"log_level"`
	LogFormat              string `mapstructure:"log_format"`
}

var defaults = map[string]any{
	"port":                      "8080",
	"allowed_origin":            "http://127.0.0.1:3000",
	"database_url":              "",
	"migrate_on_start":          false,
	"redis_addr":                "",
	"redis_password":            "",
	"redis_db":                  0,
	"auth_secret":               "",
	"access_token_ttl_minutes":  480,
	"default_tax_percent":       "0",
	"balance_cache_ttl_seconds": 30,
	"log_level":                 "info",
	"log_format":                "json",
}

// Load reads the environment (PORT, DATABASE_URL, ...) over an optional
// config file named by CONFIG_FILE.
func Load() (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.BalanceCacheTTLSeconds < 1 {
		cfg.BalanceCacheTTLSeconds = 30
	}
	if _, err := cfg.TaxPercent(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) TaxPercent() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.DefaultTaxPercent)
	if raw == "" {
		return decimal.Zero, nil
	}
	pct, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("DEFAULT_TAX_PERCENT %q: %w", raw, err)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("DEFAULT_TAX_PERCENT must be within 0..100, got %s", raw)
	}
	return pct, nil
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) BalanceCacheTTL() time.Duration {
	return time.Duration(c.BalanceCacheTTLSeconds) * time.Second
}
