package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config holds every configurable value for the monitor.
type Config struct {
	// Persistence
	DBDriver string // sqlite|memory
	DBPath   string // path to the SQLite file, e.g. "./data/metrics.db"

	// Collection
	CollectInterval time.Duration // how often the scheduler samples the host
	SampleWindow    time.Duration // CPU sampling window of one collection
	CollectTimeout  time.Duration // upper bound for one collection

	// Server
	ListenAddr string
	RateLimit  float64 // requests per second
	RateBurst  int
	LogLevel   string // debug|info|warn|error
}

// EnvPrefix is prepended to every environment variable, e.g. MONITOR_DBPATH.
const EnvPrefix = "MONITOR"

// NewViper returns a viper instance carrying the defaults and the
// environment binding. Command-line flags are bound onto it by the caller.
func NewViper() *viper.Viper {
	v := viper.New()

	// Default values – keep them sensible and minimal
	v.SetDefault("DBDriver", "sqlite")
	v.SetDefault("DBPath", "./data/metrics.db")
	v.SetDefault("CollectInterval", "1m")
	v.SetDefault("SampleWindow", "1s")
	v.SetDefault("CollectTimeout", "10s")
	v.SetDefault("ListenAddr", ":8000")
	v.SetDefault("RateLimit", 20.0)
	v.SetDefault("RateBurst", 40)
	v.SetDefault("LogLevel", "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from (in decreasing priority):
//  1. command-line flags bound onto v
//  2. environment variables (e.g. MONITOR_DBPATH)
//  3. the yaml file at path, or ./configs/config.yaml if path is empty
//     and that file exists
//  4. defaults
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		_ = v.ReadInConfig() // ignore error - file is optional
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return errors.New("DBPath must not be empty for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown DBDriver %q", c.DBDriver)
	}
	if c.CollectInterval <= 0 {
		return fmt.Errorf("CollectInterval must be positive, got %s", c.CollectInterval)
	}
	if c.SampleWindow <= 0 {
		return fmt.Errorf("SampleWindow must be positive, got %s", c.SampleWindow)
	}
	if c.CollectTimeout <= c.SampleWindow {
		return fmt.Errorf("CollectTimeout (%s) must exceed SampleWindow (%s)", c.CollectTimeout, c.SampleWindow)
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return errors.New("RateLimit and RateBurst must be positive")
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid LogLevel: %w", err)
	}
	return nil
}
