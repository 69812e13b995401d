package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database"`
	Feed     FeedConfig     `mapstructure:"feed" toml:"feed"`
	Delivery DeliveryConfig `mapstructure:"delivery" toml:"delivery"`
	Queue    QueueConfig    `mapstructure:"queue" toml:"queue"`
	Admin    AdminConfig    `mapstructure:"admin" toml:"admin"`
	Log      LogConfig      `mapstructure:"log" toml:"log"`
}

type DatabaseConfig struct {
	// Driver is "bolt" or "sqlite".
	Driver  string        `mapstructure:"driver" toml:"driver"`
	Path    string        `mapstructure:"path" toml:"path"`
	Timeout time.Duration `mapstructure:"timeout" toml:"timeout"`
}

type FeedConfig struct {
	URL          string        `mapstructure:"url" toml:"url"`
	PollInterval time.Duration `mapstructure:"poll_interval" toml:"poll_interval"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout" toml:"http_timeout"`
	UserAgent    string        `mapstructure:"user_agent" toml:"user_agent"`
	AllowPrivate bool          `mapstructure:"allow_private" toml:"allow_private"`
}

type DeliveryConfig struct {
	// Mode is "telegram" or "log".
	Mode          string        `mapstructure:"mode" toml:"mode"`
	APIBase       string        `mapstructure:"api_base" toml:"api_base"`
	BotToken      string        `mapstructure:"bot_token" toml:"bot_token"`
	ChannelID     string        `mapstructure:"channel_id" toml:"channel_id"`
	Timeout       time.Duration `mapstructure:"timeout" toml:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second" toml:"rate_per_second"`
	Retry         RetryConfig   `mapstructure:"retry" toml:"retry"`
}

type RetryConfig struct {
	MaxAttempts     uint          `mapstructure:"max_attempts" toml:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval" toml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" toml:"max_interval"`
}

type QueueConfig struct {
	DefaultDelayMinutes int `mapstructure:"default_delay_minutes" toml:"default_delay_minutes"`
}

type AdminConfig struct {
	Listen string `mapstructure:"listen" toml:"listen"`
	// Users is the allowlist of usernames permitted to run commands.
	Users []string `mapstructure:"users" toml:"users"`
	// User is the identity `feedq ctl` presents to the server.
	User string `mapstructure:"user" toml:"user"`
}

type LogConfig struct {
	Level string `mapstructure:"level" toml:"level"`
	File  string `mapstructure:"file" toml:"file"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Database: DatabaseConfig{
			Driver:  "bolt",
			Path:    filepath.Join(homeDir, ".feedq", "feedq.db"),
			Timeout: 1 * time.Second,
		},
		Feed: FeedConfig{
			PollInterval: 30 * time.Second,
			HTTPTimeout:  30 * time.Second,
			UserAgent:    "feedq/1.0 (https://github.com/pders01/feedq)",
		},
		Delivery: DeliveryConfig{
			Mode:          "telegram",
			APIBase:       "https://api.telegram.org",
			Timeout:       15 * time.Second,
			RatePerSecond: 1,
			Retry: RetryConfig{
				MaxAttempts:     5,
				InitialInterval: 2 * time.Second,
				MaxInterval:     1 * time.Minute,
			},
		},
		Queue: QueueConfig{
			DefaultDelayMinutes: 60,
		},
		Admin: AdminConfig{
			Listen: "127.0.0.1:8787",
			User:   os.Getenv("USER"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.timeout", cfg.Database.Timeout)

	v.SetDefault("feed.url", cfg.Feed.URL)
	v.SetDefault("feed.poll_interval", cfg.Feed.PollInterval)
	v.SetDefault("feed.http_timeout", cfg.Feed.HTTPTimeout)
	v.SetDefault("feed.user_agent", cfg.Feed.UserAgent)
	v.SetDefault("feed.allow_private", cfg.Feed.AllowPrivate)

	v.SetDefault("delivery.mode", cfg.Delivery.Mode)
	v.SetDefault("delivery.api_base", cfg.Delivery.APIBase)
	v.SetDefault("delivery.bot_token", cfg.Delivery.BotToken)
	v.SetDefault("delivery.channel_id", cfg.Delivery.ChannelID)
	v.SetDefault("delivery.timeout", cfg.Delivery.Timeout)
	v.SetDefault("delivery.rate_per_second", cfg.Delivery.RatePerSecond)
	v.SetDefault("delivery.retry.max_attempts", cfg.Delivery.Retry.MaxAttempts)
	v.SetDefault("delivery.retry.initial_interval", cfg.Delivery.Retry.InitialInterval)
	v.SetDefault("delivery.retry.max_interval", cfg.Delivery.Retry.MaxInterval)

	v.SetDefault("queue.default_delay_minutes", cfg.Queue.DefaultDelayMinutes)

	v.SetDefault("admin.listen", cfg.Admin.Listen)
	v.SetDefault("admin.users", cfg.Admin.Users)
	v.SetDefault("admin.user", cfg.Admin.User)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
}

// Load reads configuration from configPath, or from config.toml in
// ~/.config/feedq and the working directory when configPath is empty.
// FEEDQ_* environment variables override file values, e.g.
// FEEDQ_DELIVERY_BOT_TOKEN.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Join(homeDir, ".config", "feedq"))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FEEDQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "bolt", "sqlite":
	default:
		return fmt.Errorf("database.driver must be bolt or sqlite, got %q", c.Database.Driver)
	}
	switch c.Delivery.Mode {
	case "telegram", "log":
	default:
		return fmt.Errorf("delivery.mode must be telegram or log, got %q", c.Delivery.Mode)
	}
	if c.Queue.DefaultDelayMinutes < 0 {
		return fmt.Errorf("queue.default_delay_minutes must not be negative")
	}
	if int64(c.Queue.DefaultDelayMinutes) > math.MaxInt64/int64(time.Minute) {
		return fmt.Errorf("queue.default_delay_minutes is too large")
	}
	if c.Feed.PollInterval <= 0 {
		return fmt.Errorf("feed.poll_interval must be positive")
	}
	return nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" || path == ":memory:" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Log.File = expandPath(cfg.Log.File)
}

// fileConfig mirrors Config with durations as strings so the written TOML
// stays readable ("30s" rather than nanoseconds).
type fileConfig struct {
	Database map[string]any `toml:"database"`
	Feed     map[string]any `toml:"feed"`
	Delivery map[string]any `toml:"delivery"`
	Queue    QueueConfig    `toml:"queue"`
	Admin    AdminConfig    `toml:"admin"`
	Log      LogConfig      `toml:"log"`
}

func Save(config *Config, path string) error {
	fc := fileConfig{
		Database: map[string]any{
			"driver":  config.Database.Driver,
			"path":    config.Database.Path,
			"timeout": config.Database.Timeout.String(),
		},
		Feed: map[string]any{
			"url":           config.Feed.URL,
			"poll_interval": config.Feed.PollInterval.String(),
			"http_timeout":  config.Feed.HTTPTimeout.String(),
			"user_agent":    config.Feed.UserAgent,
			"allow_private": config.Feed.AllowPrivate,
		},
		Delivery: map[string]any{
			"mode":            config.Delivery.Mode,
			"api_base":        config.Delivery.APIBase,
			"bot_token":       config.Delivery.BotToken,
			"channel_id":      config.Delivery.ChannelID,
			"timeout":         config.Delivery.Timeout.String(),
			"rate_per_second": config.Delivery.RatePerSecond,
			"retry": map[string]any{
				"max_attempts":     config.Delivery.Retry.MaxAttempts,
				"initial_interval": config.Delivery.Retry.InitialInterval.String(),
				"max_interval":     config.Delivery.Retry.MaxInterval.String(),
			},
		},
		Queue: config.Queue,
		Admin: config.Admin,
		Log:   config.Log,
	}

	data, err := toml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}

// DefaultPath is where Load looks first when no path is given.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "feedq", "config.toml")
}
