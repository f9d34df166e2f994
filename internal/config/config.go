package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"QUILT_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"QUILT_DB_MAX_CONNS" default:"8"`

	// Duplicate classifier tuning.
	SimilarityThreshold      float64 `envconfig:"QUILT_SIMILARITY_THRESHOLD" default:"0.8"`
	TitleSimilarityThreshold float64 `envconfig:"QUILT_TITLE_SIMILARITY_THRESHOLD" default:"0.7"`
	TimeProximityHours       float64 `envconfig:"QUILT_TIME_PROXIMITY_HOURS" default:"48"`

	// Candidate window bounds.
	WindowDays  int `envconfig:"QUILT_WINDOW_DAYS" default:"7"`
	WindowLimit int `envconfig:"QUILT_WINDOW_LIMIT" default:"500"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("QUILT_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("QUILT_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("QUILT_DB_MIN_CONNS (%d) cannot exceed QUILT_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("QUILT_SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if c.TitleSimilarityThreshold <= 0 || c.TitleSimilarityThreshold > 1 {
		return fmt.Errorf("QUILT_TITLE_SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if c.TimeProximityHours <= 0 {
		return fmt.Errorf("QUILT_TIME_PROXIMITY_HOURS must be > 0")
	}
	if c.WindowDays < 1 {
		return fmt.Errorf("QUILT_WINDOW_DAYS must be >= 1")
	}
	if c.WindowLimit < 1 {
		return fmt.Errorf("QUILT_WINDOW_LIMIT must be >= 1")
	}
	return nil
}
