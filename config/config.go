// Package config loads the service configuration from an optional file
// and the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// User is one entry of the optional authentication map.
type User struct {
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

type HTTPConfig struct {
	Port int
}

type Config struct {
	Environment string
	LogLevel    string
	HTTP        HTTPConfig

	DatabasePath      string
	AttachmentBaseDir string
	CurrencySymbol    string
	Locale            string
	FuzzyThreshold    int
	DefaultProjectID  int64

	ReportDir          string
	BusyTimeoutMS      int
	DriftCheckSchedule string

	Users map[string]User
}

// Load reads configuration. path may name a config file (yaml, json, toml,
// env); when empty, app.yaml / app.env are looked up in the usual places.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("app")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		_ = v.ReadInConfig()
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		HTTP: HTTPConfig{
			Port: v.GetInt("HTTP_PORT"),
		},
		DatabasePath:       v.GetString("DATABASE_PATH"),
		AttachmentBaseDir:  v.GetString("ATTACHMENT_BASE_DIR"),
		CurrencySymbol:     v.GetString("CURRENCY_SYMBOL"),
		Locale:             v.GetString("LOCALE"),
		FuzzyThreshold:     v.GetInt("FUZZY_THRESHOLD"),
		DefaultProjectID:   v.GetInt64("DEFAULT_PROJECT_ID"),
		ReportDir:          v.GetString("REPORT_DIR"),
		BusyTimeoutMS:      v.GetInt("BUSY_TIMEOUT_MS"),
		DriftCheckSchedule: v.GetString("DRIFT_CHECK_SCHEDULE"),
	}

	if err := v.UnmarshalKey("users", &cfg.Users); err != nil {
		return nil, fmt.Errorf("parse users: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("DATABASE_PATH", "alquileres.db")
	v.SetDefault("ATTACHMENT_BASE_DIR", "adjuntos")
	v.SetDefault("CURRENCY_SYMBOL", "RD$")
	v.SetDefault("LOCALE", "es")
	v.SetDefault("FUZZY_THRESHOLD", 85)
	v.SetDefault("DEFAULT_PROJECT_ID", 0)
	v.SetDefault("REPORT_DIR", ".")
	v.SetDefault("BUSY_TIMEOUT_MS", 2000)
	v.SetDefault("DRIFT_CHECK_SCHEDULE", "")
}

// Validate rejects configurations the services cannot run with.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if cfg.FuzzyThreshold < 0 || cfg.FuzzyThreshold > 100 {
		return fmt.Errorf("FUZZY_THRESHOLD must be in [0,100], got %d", cfg.FuzzyThreshold)
	}
	if cfg.BusyTimeoutMS < 0 {
		return fmt.Errorf("BUSY_TIMEOUT_MS must not be negative")
	}
	for name, u := range cfg.Users {
		switch u.Role {
		case "admin", "editor", "consulta":
		default:
			return fmt.Errorf("user %s: unknown role %q", name, u.Role)
		}
	}
	return nil
}
