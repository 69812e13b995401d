package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/feedq/internal/config"
	"github.com/pders01/feedq/internal/debuglog"
)

// Version is the version of the application, set at build time
var Version = "dev"

var (
	cfgFile  string
	dbPath   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "feedq",
	Short: "Feed relay queue",
	Long: `feedq polls an RSS or Atom feed and republishes every new item to a
Telegram channel, one at a time, spaced apart by a configurable delay.

Example usage:
  feedq serve                      # run the relay
  feedq queue                      # show what is waiting to be published
  feedq ctl queue_delay <guid> 0   # publish an item right away
  feedq ctl delay 30               # space future items 30 minutes apart`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to database file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error, off")
}

// loadConfig reads the configuration and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) error {
	if err := debuglog.Setup(debuglog.ParseLogLevel(cfg.Log.Level), cfg.Log.File); err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	return nil
}
