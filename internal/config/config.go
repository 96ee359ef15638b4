// Package config loads querykit settings from config files, .env files and
// QUERYKIT_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem configuration is read from.
var AppFs = afero.NewOsFs()

const (
	// FileName is the config file name without extension.
	FileName = ".querykit"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "QUERYKIT"
)

// Config holds the application configuration
type Config struct {
	// Dialect names the pagination strategy. Empty means the database
	// provider's dialect.
	Dialect     string   `mapstructure:"dialect"`
	Definitions string   `mapstructure:"definitions"`
	Database    Database `mapstructure:"database"`
	Query       Query    `mapstructure:"query"`
	Cache       Cache    `mapstructure:"cache"`
	Log         Log      `mapstructure:"log"`
}

// Database configures the connection pool.
type Database struct {
	Provider            string        `mapstructure:"provider"`
	URL                 string        `mapstructure:"url"`
	MaxOpenConns        int           `mapstructure:"max_open_conns"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime     time.Duration `mapstructure:"conn_max_lifetime"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
}

// Query holds defaults for definitions that do not set their own.
type Query struct {
	DefaultPageSize int           `mapstructure:"default_page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// Cache sizes the metadata and result caches.
type Cache struct {
	MetadataSize int           `mapstructure:"metadata_size"`
	ResultSize   int           `mapstructure:"result_size"`
	ResultTTL    time.Duration `mapstructure:"result_ttl"`
}

// Log configures the process logger.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaults = map[string]any{
	"dialect":                        "",
	"definitions":                    "queries",
	"database.provider":              "",
	"database.url":                   "",
	"database.max_open_conns":        25,
	"database.max_idle_conns":        5,
	"database.conn_max_lifetime":     "30m",
	"database.health_check_interval": "1m",
	"query.default_page_size":        0,
	"query.max_page_size":            0,
	"query.timeout":                  "0s",
	"cache.metadata_size":            256,
	"cache.result_size":              0,
	"cache.result_ttl":               "5m",
	"log.level":                      "warn",
	"log.format":                     "text",
}

// LoadConfig loads configuration from various sources. An explicit file must
// exist; otherwise .querykit.yaml is searched in the working directory, the
// home directory and ~/.config/querykit and may be absent.
func LoadConfig(file string) (*Config, error) {
	v := viper.New()
	v.SetFs(AppFs)
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
			v.AddConfigPath(filepath.Join(home, ".config", "querykit"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	// Variables already in the environment win over .env; .env.local
	// overrides both.
	if err := loadEnvFile(".env", false); err != nil {
		return nil, err
	}
	if err := loadEnvFile(".env.local", true); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	return &cfg, nil
}

func loadEnvFile(name string, override bool) error {
	data, err := afero.ReadFile(AppFs, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	values, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	for key, value := range values {
		if _, set := os.LookupEnv(key); set && !override {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}

// SaveConfig writes cfg to path as YAML. The database URL is not written.
func SaveConfig(cfg *Config, path string) error {
	v := viper.New()
	v.SetFs(AppFs)
	v.Set("dialect", cfg.Dialect)
	v.Set("definitions", cfg.Definitions)
	v.Set("database.provider", cfg.Database.Provider)
	v.Set("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.Set("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.Set("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime.String())
	v.Set("database.health_check_interval", cfg.Database.HealthCheckInterval.String())
	v.Set("query.default_page_size", cfg.Query.DefaultPageSize)
	v.Set("query.max_page_size", cfg.Query.MaxPageSize)
	v.Set("query.timeout", cfg.Query.Timeout.String())
	v.Set("cache.metadata_size", cfg.Cache.MetadataSize)
	v.Set("cache.result_size", cfg.Cache.ResultSize)
	v.Set("cache.result_ttl", cfg.Cache.ResultTTL.String())
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)

	if err := AppFs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return v.WriteConfigAs(path)
}

// DefaultPath is where SaveConfig writes by default.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "querykit", FileName+".yaml"), nil
}
