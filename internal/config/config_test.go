package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Environment:          "local",
		LogLevel:             "info",
		DatabasePath:         "data/whittle.db",
		RecencyWindow:        2 * time.Hour,
		RecencyBonus:         2,
		LinkPenalty:          1,
		MaxPostAge:           24 * time.Hour,
		MinScore:             1,
		MaxPostsPerRun:       20,
		ExecutionBudget:      120 * time.Second,
		DeadlineMarginPct:    10,
		CollectTimeout:       10 * time.Second,
		PostsPerSource:       50,
		RetentionDays:        30,
		SourcePriority:       "reddit,lumberjocks",
		FingerprintMinLength: 20,
		FingerprintBodyChars: 120,
		PreviewLength:        250,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty db path", func(c *Config) { c.DatabasePath = " " }, "DATABASE_PATH"},
		{"zero window", func(c *Config) { c.RecencyWindow = 0 }, "RECENCY_WINDOW"},
		{"negative penalty", func(c *Config) { c.LinkPenalty = -1 }, "LINK_PENALTY"},
		{"zero cap", func(c *Config) { c.MaxPostsPerRun = 0 }, "MAX_POSTS_PER_RUN"},
		{"margin too large", func(c *Config) { c.DeadlineMarginPct = 60 }, "DEADLINE_MARGIN_PCT"},
		{"zero retention", func(c *Config) { c.RetentionDays = 0 }, "RETENTION_DAYS"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %s", err, tc.want)
			}
		})
	}
}

func TestSourcePriorityList(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.SourcePriority = "Reddit, lumberjocks,,reddit , sawmillcreek"
	got := cfg.SourcePriorityList()
	want := []string{"reddit", "lumberjocks", "sawmillcreek"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
