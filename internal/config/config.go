package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabasePath string `envconfig:"DATABASE_PATH" default:"data/whittle.db"`

	RecencyWindow time.Duration `envconfig:"RECENCY_WINDOW" default:"2h"`
	RecencyBonus  int           `envconfig:"RECENCY_BONUS" default:"2"`
	LinkPenalty   int           `envconfig:"LINK_PENALTY" default:"1"`

	MaxPostAge     time.Duration `envconfig:"MAX_POST_AGE" default:"24h"`
	MinScore       int           `envconfig:"MIN_SCORE" default:"1"`
	MaxPostsPerRun int           `envconfig:"MAX_POSTS_PER_RUN" default:"20"`

	ExecutionBudget   time.Duration `envconfig:"EXECUTION_BUDGET" default:"120s"`
	DeadlineMarginPct int           `envconfig:"DEADLINE_MARGIN_PCT" default:"10"`
	CollectTimeout    time.Duration `envconfig:"COLLECT_TIMEOUT" default:"10s"`
	PostsPerSource    int           `envconfig:"POSTS_PER_SOURCE" default:"50"`

	RetentionDays int `envconfig:"RETENTION_DAYS" default:"30"`

	SourcePriority       string `envconfig:"SOURCE_PRIORITY" default:"reddit,lumberjocks,sawmillcreek,facebook"`
	FingerprintMinLength int    `envconfig:"FINGERPRINT_MIN_LENGTH" default:"20"`
	FingerprintBodyChars int    `envconfig:"FINGERPRINT_BODY_CHARS" default:"120"`

	PreviewLength int `envconfig:"PREVIEW_LENGTH" default:"250"`
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
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.RecencyWindow <= 0 {
		return fmt.Errorf("RECENCY_WINDOW must be positive")
	}
	if c.LinkPenalty < 0 {
		return fmt.Errorf("LINK_PENALTY is a magnitude and must be >= 0")
	}
	if c.MaxPostAge <= 0 {
		return fmt.Errorf("MAX_POST_AGE must be positive")
	}
	if c.MaxPostsPerRun < 1 {
		return fmt.Errorf("MAX_POSTS_PER_RUN must be >= 1")
	}
	if c.ExecutionBudget <= 0 {
		return fmt.Errorf("EXECUTION_BUDGET must be positive")
	}
	if c.DeadlineMarginPct < 1 || c.DeadlineMarginPct > 50 {
		return fmt.Errorf("DEADLINE_MARGIN_PCT (%d) must be between 1 and 50", c.DeadlineMarginPct)
	}
	if c.CollectTimeout <= 0 {
		return fmt.Errorf("COLLECT_TIMEOUT must be positive")
	}
	if c.PostsPerSource < 1 {
		return fmt.Errorf("POSTS_PER_SOURCE must be >= 1")
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("RETENTION_DAYS must be >= 1")
	}
	if c.FingerprintMinLength < 1 {
		return fmt.Errorf("FINGERPRINT_MIN_LENGTH must be >= 1")
	}
	if c.FingerprintBodyChars < 0 {
		return fmt.Errorf("FINGERPRINT_BODY_CHARS must be >= 0")
	}
	if c.PreviewLength < 1 {
		return fmt.Errorf("PREVIEW_LENGTH must be >= 1")
	}
	return nil
}

// SourcePriorityList returns the configured cross-source dedup priority
// order, highest priority first, with duplicates and blanks removed.
func (c *Config) SourcePriorityList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.SourcePriority, ",")
	sources := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		source := strings.ToLower(strings.TrimSpace(part))
		if source == "" {
			continue
		}
		if _, exists := seen[source]; exists {
			continue
		}
		seen[source] = struct{}{}
		sources = append(sources, source)
	}
	return sources
}
