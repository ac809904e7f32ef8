// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// legacyKeyEnvVars are the per-key variables read by earlier versions of the tool.
var legacyKeyEnvVars = []string{"YT_API_1", "YT_API_2", "YT_API_3", "YT_API_4"}

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	History  HistoryConfig
	YouTube  YouTubeConfig
	Storage  StorageConfig
	Cleaning CleaningConfig
	Output   OutputConfig
	Metrics  MetricsConfig
	Logging  LoggingConfig
}

// HistoryConfig selects which part of the export is processed.
type HistoryConfig struct {
	Year int
}

// YouTubeConfig contains Data API credentials and call settings.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type YouTubeConfig struct {
	APIKeys   []string
	Endpoint  string
	Timeout   time.Duration
	BatchSize int
}

// StorageConfig contains the paths of the persisted state files.
type StorageConfig struct {
	CacheFile    string
	KeyStateFile string
}

// CleaningConfig contains the thresholds used by the cleaning stages.
type CleaningConfig struct {
	LiveThresholdSeconds int
	MaxDurationSeconds   int
}

// OutputConfig controls where the final table is written.
type OutputConfig struct {
	File   string
	Format string
}

// MetricsConfig controls the optional Prometheus textfile dump.
type MetricsConfig struct {
	File string
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// Load loads configuration from file and environment variables. A .env file
// in the working directory is applied first; it never overrides variables
// already set in the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read environment variables
	viper.SetEnvPrefix("YWH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.YouTube.APIKeys = appendLegacyKeys(cfg.YouTube.APIKeys)

	return &cfg, nil
}

func appendLegacyKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys)+len(legacyKeyEnvVars))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	for _, name := range legacyKeyEnvVars {
		k := os.Getenv(name)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func setDefaults() {
	// History
	viper.SetDefault("history.year", 2025)

	// YouTube
	viper.SetDefault("youtube.apikeys", []string{})
	viper.SetDefault("youtube.endpoint", "")
	viper.SetDefault("youtube.timeout", 30*time.Second)
	viper.SetDefault("youtube.batchsize", 50)

	// Storage
	viper.SetDefault("storage.cachefile", "youtube_video_cache_full.json")
	viper.SetDefault("storage.keystatefile", "key_exhaustion.yaml")

	// Cleaning
	viper.SetDefault("cleaning.livethresholdseconds", 3600)
	viper.SetDefault("cleaning.maxdurationseconds", 14400)

	// Output
	viper.SetDefault("output.file", "ywh_final.csv")
	viper.SetDefault("output.format", "csv")

	// Metrics
	viper.SetDefault("metrics.file", "")

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}
