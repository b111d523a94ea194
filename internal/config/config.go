package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName       string `mapstructure:"app_name"`
	Env           string `mapstructure:"app_env"`
	LogLevel      string `mapstructure:"log_level"`
	LogFile       string `mapstructure:"log_file"`
	SourcesFile   string `mapstructure:"sources_file"`
	NotifiersFile string `mapstructure:"notifiers_file"`

	PollIntervalSeconds int64         `mapstructure:"poll_interval"`
	PollInterval        time.Duration `mapstructure:"-"`
	SourcePauseMs       int64         `mapstructure:"source_pause_ms"`
	SourcePause         time.Duration `mapstructure:"-"`
	HTTPTimeoutSeconds  int64         `mapstructure:"http_timeout_seconds"`
	HTTPTimeout         time.Duration `mapstructure:"-"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	RetryBackoffMs      int64         `mapstructure:"retry_backoff_ms"`
	RetryBackoff        time.Duration `mapstructure:"-"`

	RetentionCap int    `mapstructure:"retention_cap"`
	StoreType    string `mapstructure:"store_type"`
	StorePath    string `mapstructure:"store_path"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" json:"-"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisKey      string `mapstructure:"redis_key"`

	HTTPAddr string `mapstructure:"http_addr"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return decode(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "newswatch")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("sources_file", "./configs/sources.yaml")
	v.SetDefault("notifiers_file", "./configs/notifiers.yaml")
	v.SetDefault("poll_interval", 900) // seconds
	v.SetDefault("source_pause_ms", 2000)
	v.SetDefault("http_timeout_seconds", 15)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("retry_backoff_ms", 1000)
	v.SetDefault("retention_cap", 100)
	v.SetDefault("store_type", "file")
	v.SetDefault("store_path", "./data/seen.json")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_key", "newswatch:seen")
	v.SetDefault("http_addr", ":8080")
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.PollIntervalSeconds <= 0 {
		return nil, fmt.Errorf("invalid poll_interval (must be positive seconds)")
	}
	cfg.PollInterval = time.Duration(cfg.PollIntervalSeconds) * time.Second

	if cfg.SourcePauseMs < 0 {
		return nil, fmt.Errorf("invalid source_pause_ms (must not be negative)")
	}
	cfg.SourcePause = time.Duration(cfg.SourcePauseMs) * time.Millisecond

	if cfg.HTTPTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid http_timeout_seconds (must be positive seconds)")
	}
	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second

	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("invalid max_attempts (must be positive)")
	}
	if cfg.RetryBackoffMs < 0 {
		return nil, fmt.Errorf("invalid retry_backoff_ms (must not be negative)")
	}
	cfg.RetryBackoff = time.Duration(cfg.RetryBackoffMs) * time.Millisecond

	if cfg.RetentionCap <= 0 {
		return nil, fmt.Errorf("invalid retention_cap (must be positive)")
	}

	cfg.StoreType = strings.ToLower(strings.TrimSpace(cfg.StoreType))
	switch cfg.StoreType {
	case "file", "bbolt":
		if strings.TrimSpace(cfg.StorePath) == "" {
			return nil, fmt.Errorf("store_path is required for store_type %q", cfg.StoreType)
		}
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redis_addr is required for store_type redis")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unsupported store_type %q", cfg.StoreType)
	}

	if strings.TrimSpace(cfg.SourcesFile) == "" {
		return nil, fmt.Errorf("sources_file is required")
	}
	if strings.TrimSpace(cfg.NotifiersFile) == "" {
		return nil, fmt.Errorf("notifiers_file is required")
	}

	return &cfg, nil
}
