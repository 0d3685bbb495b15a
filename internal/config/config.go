// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot      BotConfig      `mapstructure:"bot"`
	Database DatabaseConfig `mapstructure:"database"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Games    GamesConfig    `mapstructure:"games"`
}

// BotConfig holds Discord bot configuration.
type BotConfig struct {
	Token  string `mapstructure:"token"`
	Prefix string `mapstructure:"prefix"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []string `mapstructure:"ids"`
}

// GamesConfig holds game-specific configuration.
type GamesConfig struct {
	Blackjack BlackjackConfig `mapstructure:"blackjack"`
	Coinflip  CoinflipConfig  `mapstructure:"coinflip"`
	Crash     CrashConfig     `mapstructure:"crash"`
}

// BlackjackConfig holds blackjack game configuration.
type BlackjackConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// CoinflipConfig holds coinflip duel configuration.
type CoinflipConfig struct {
	ResponseWindow time.Duration `mapstructure:"response_window"`
}

// CrashConfig holds crash game configuration. SessionTimeout caps how long
// a crash prompt stays live before its session expires and claims release.
type CrashConfig struct {
	JoinWindow      time.Duration `mapstructure:"join_window"`
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	StartMultiplier float64       `mapstructure:"start_multiplier"`
	GrowthFactor    float64       `mapstructure:"growth_factor"`
	SessionTimeout  time.Duration `mapstructure:"session_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase
	// e.g., BOT_TOKEN, DATABASE_HOST, DATABASE_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file not found is OK - env vars can provide all config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.prefix", "!")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "wagerbot")
	v.SetDefault("database.name", "wagerbot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Game defaults
	v.SetDefault("games.blackjack.timeout", "2m")
	v.SetDefault("games.coinflip.response_window", "45s")
	v.SetDefault("games.crash.join_window", "15s")
	v.SetDefault("games.crash.tick_interval", "1600ms")
	v.SetDefault("games.crash.start_multiplier", 0.2)
	v.SetDefault("games.crash.growth_factor", 1.33)
	v.SetDefault("games.crash.session_timeout", "15m")
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}
