package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type APIConfig struct {
	Key     string        `yaml:"key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Mock    bool          `yaml:"mock"` // offline mode: no remote calls, sequenced fake ids
	Timeout time.Duration `yaml:"timeout"`
}

type RetryConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	ExponentialBase float64       `yaml:"exponential_base"`
	Jitter          bool          `yaml:"jitter"`
}

type SyncConfig struct {
	Concurrency     int           `yaml:"concurrency"`      // bounded fan-out for bulk refresh
	BatchMaxFiles   int           `yaml:"batch_max_files"`  // files per remote job
	RefreshInterval time.Duration `yaml:"refresh_interval"` // periodic reconciler tick
	RateLimit       int           `yaml:"rate_limit"`       // remote calls per window
	RateWindow      time.Duration `yaml:"rate_window"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type Config struct {
	API      APIConfig      `yaml:"api"`
	Retry    RetryConfig    `yaml:"retry"`
	Sync     SyncConfig     `yaml:"sync"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "https://api.mistral.ai"
	}
	if cfg.API.Model == "" {
		cfg.API.Model = "mistral-ocr-latest"
	}
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = 5 * time.Minute
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.MaxRetries > 10 {
		return nil, errors.New("retry.max_retries must be at most 10")
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = time.Second
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = 60 * time.Second
	}
	if cfg.Retry.ExponentialBase <= 0 {
		cfg.Retry.ExponentialBase = 2.0
	}
	if cfg.Sync.Concurrency <= 0 {
		cfg.Sync.Concurrency = 10
	}
	if cfg.Sync.BatchMaxFiles <= 0 || cfg.Sync.BatchMaxFiles > 100 {
		cfg.Sync.BatchMaxFiles = 100
	}
	if cfg.Sync.RefreshInterval <= 0 {
		cfg.Sync.RefreshInterval = 10 * time.Second
	}
	if cfg.Sync.RateLimit <= 0 {
		cfg.Sync.RateLimit = 60
	}
	if cfg.Sync.RateWindow <= 0 {
		cfg.Sync.RateWindow = time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	// Minimal validation
	if !cfg.API.Mock && cfg.API.Key == "" {
		return nil, errors.New("api.key is required outside mock mode")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}
