package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/soundprediction/graphmem/pkg/store"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig holds configuration for every known backend plus the one
// active at startup. Switching at runtime goes through the manager; this only
// decides where the process starts.
type DatabaseConfig struct {
	Active      string `mapstructure:"active"` // sqlite, postgres, mysql
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
	MySQLURL    string `mapstructure:"mysql_url"`

	// Pool sizing for the client/server backends.
	PoolSize        int `mapstructure:"pool_size"`
	MaxOverflow     int `mapstructure:"max_overflow"`
	CheckoutTimeout int `mapstructure:"checkout_timeout"` // in seconds
	Recycle         int `mapstructure:"recycle"`          // in seconds
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
	ToDatabase  bool   `mapstructure:"to_database"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	overrideWithEnv(config)

	return config, nil
}

// Registry builds the backend profile registry from the configuration. Only
// backends with a configured location are registered.
func (c *Config) Registry() *store.Registry {
	reg := store.NewRegistry()

	reg.Register(store.SQLiteProfile(c.Database.SQLitePath))

	if c.Database.PostgresURL != "" {
		p := store.PostgresProfile(c.Database.PostgresURL)
		c.applyPoolSizing(&p)
		reg.Register(p)
	}
	if c.Database.MySQLURL != "" {
		p := store.MySQLProfile(c.Database.MySQLURL)
		c.applyPoolSizing(&p)
		reg.Register(p)
	}
	return reg
}

func (c *Config) applyPoolSizing(p *store.Profile) {
	if c.Database.PoolSize > 0 {
		p.PoolSize = c.Database.PoolSize
	}
	if c.Database.MaxOverflow > 0 {
		p.MaxOverflow = c.Database.MaxOverflow
	}
	if c.Database.CheckoutTimeout > 0 {
		p.CheckoutTimeout = time.Duration(c.Database.CheckoutTimeout) * time.Second
	}
	if c.Database.Recycle > 0 {
		p.Recycle = time.Duration(c.Database.Recycle) * time.Second
	}
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")

	// Database defaults
	viper.SetDefault("database.active", "sqlite")
	viper.SetDefault("database.sqlite_path", "./graphmem.db")
	viper.SetDefault("database.postgres_url", "")
	viper.SetDefault("database.mysql_url", "")
	viper.SetDefault("database.pool_size", 5)
	viper.SetDefault("database.max_overflow", 10)
	viper.SetDefault("database.checkout_timeout", 30)
	viper.SetDefault("database.recycle", 3600)

	// Telemetry defaults
	home, err := os.UserHomeDir()
	if err == nil {
		defaultPath := fmt.Sprintf("%s/.graphmem/telemetry", home)
		viper.SetDefault("telemetry.parquet_path", defaultPath)
	}
	viper.SetDefault("telemetry.to_database", false)
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	// Backend selection and locations
	if backend := os.Getenv("GRAPHMEM_BACKEND"); backend != "" {
		config.Database.Active = backend
	}
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		config.Database.SQLitePath = path
	}
	if url := os.Getenv("POSTGRES_URL"); url != "" {
		config.Database.PostgresURL = url
	}
	if url := os.Getenv("MYSQL_URL"); url != "" {
		config.Database.MySQLURL = url
	}

	// Server settings
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			config.Server.Port = n
		}
	}

	// Telemetry settings
	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
}
