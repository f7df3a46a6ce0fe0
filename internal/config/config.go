package config

import (
	"fmt"
	"time"

	"github.com/pbdl/pinterest-board-downloader/internal/models"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Output
	OutputDir string

	// Download
	Concurrency     int
	MaxRetries      int // Retry attempts per variant after the first try
	Quality         models.QualityPref
	DownloadTimeout time.Duration // Per download attempt

	// Board feed
	PageSize  int
	PageDelay time.Duration // Politeness delay between page fetches

	// Upstream
	BaseURL        string
	UserAgent      string
	Cookie         string // Optional session cookie for boards that need one
	HTTPTimeout    time.Duration
	RetryBaseDelay time.Duration

	// Filtering
	ExcludeFile string

	// Watch mode
	WatchInterval time.Duration
	ServerPort    string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("PBD_OUTPUT_DIR", "images")
	viper.SetDefault("PBD_CONCURRENCY", 4)
	viper.SetDefault("PBD_RETRIES", 3)
	viper.SetDefault("PBD_QUALITY", string(models.QualityPrioritizeHigh))
	viper.SetDefault("PBD_DOWNLOAD_TIMEOUT", "60s")
	viper.SetDefault("PBD_PAGE_SIZE", 100)
	viper.SetDefault("PBD_PAGE_DELAY", "500ms")
	viper.SetDefault("PBD_BASE_URL", "https://www.pinterest.com")
	viper.SetDefault("PBD_USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0")
	viper.SetDefault("PBD_HTTP_TIMEOUT", "30s")
	viper.SetDefault("PBD_RETRY_BASE_DELAY", "500ms")
	viper.SetDefault("PBD_WATCH_INTERVAL", "30m")
	viper.SetDefault("PBD_SERVER_PORT", "8080")
	viper.SetDefault("PBD_LOG_LEVEL", "info")

	quality, err := models.ParseQualityPref(viper.GetString("PBD_QUALITY"))
	if err != nil {
		return nil, err
	}

	config := &Config{
		// Output
		OutputDir: viper.GetString("PBD_OUTPUT_DIR"),

		// Download
		Concurrency:     viper.GetInt("PBD_CONCURRENCY"),
		MaxRetries:      viper.GetInt("PBD_RETRIES"),
		Quality:         quality,
		DownloadTimeout: viper.GetDuration("PBD_DOWNLOAD_TIMEOUT"),

		// Board feed
		PageSize:  viper.GetInt("PBD_PAGE_SIZE"),
		PageDelay: viper.GetDuration("PBD_PAGE_DELAY"),

		// Upstream
		BaseURL:        viper.GetString("PBD_BASE_URL"),
		UserAgent:      viper.GetString("PBD_USER_AGENT"),
		Cookie:         viper.GetString("PBD_COOKIE"),
		HTTPTimeout:    viper.GetDuration("PBD_HTTP_TIMEOUT"),
		RetryBaseDelay: viper.GetDuration("PBD_RETRY_BASE_DELAY"),

		// Filtering
		ExcludeFile: viper.GetString("PBD_EXCLUDE_FILE"),

		// Watch mode
		WatchInterval: viper.GetDuration("PBD_WATCH_INTERVAL"),
		ServerPort:    viper.GetString("PBD_SERVER_PORT"),

		// Logging
		LogLevel: viper.GetString("PBD_LOG_LEVEL"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.MaxRetries)
	}
	if c.PageSize < 1 || c.PageSize > 250 {
		return fmt.Errorf("page size must be between 1 and 250, got %d", c.PageSize)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if c.WatchInterval < time.Minute {
		return fmt.Errorf("watch interval must be at least 1m, got %s", c.WatchInterval)
	}
	return nil
}
