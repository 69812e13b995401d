package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Database.Path = ":memory:"
	cfg.Feed.URL = "http://127.0.0.1/feed.xml"
	cfg.Feed.PollInterval = 1 * time.Second
	cfg.Feed.HTTPTimeout = 5 * time.Second
	cfg.Feed.UserAgent = "feedq-test/1.0"
	cfg.Feed.AllowPrivate = true
	cfg.Delivery.Mode = "log"
	cfg.Delivery.ChannelID = "@test"
	cfg.Delivery.RatePerSecond = 0
	cfg.Delivery.Retry = RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
	cfg.Admin.Users = []string{"admin"}
	cfg.Admin.User = "admin"
	cfg.Log.Level = "off"
	return cfg
}
