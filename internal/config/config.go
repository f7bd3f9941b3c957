// Package config provides configuration management for the ingestion pipeline.
// It defines per-source crawl settings, failure-classification thresholds and
// the tunable extraction heuristics, along with defaults and validation.
package config

import (
	"time"
)

// SourceConfig holds the crawl settings for one external organization.
// The pipeline treats it as immutable for the duration of a run.
type SourceConfig struct {
	ID             string        `mapstructure:"id" yaml:"id"`                           // Unique source identifier
	OrganizationID string        `mapstructure:"organization_id" yaml:"organization_id"` // Organization the records belong to
	Extractor      string        `mapstructure:"extractor" yaml:"extractor"`             // Registry key of the extractor implementation
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`               // Site root, used to resolve relative URLs
	ListingURL     string        `mapstructure:"listing_url" yaml:"listing_url"`         // Entry page for listing discovery
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay" yaml:"rate_limit_delay"`
	BatchSize      int           `mapstructure:"batch_size" yaml:"batch_size"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	SkipExisting   bool          `mapstructure:"skip_existing" yaml:"skip_existing"` // Skip URLs already known to storage
}

// FailureThresholds controls run-status classification and alert derivation.
// Read-only at run time, shared by all sources.
type FailureThresholds struct {
	AbsoluteMinimum              int           `mapstructure:"absolute_minimum" yaml:"absolute_minimum"`                               // Minimum yield a healthy historical run shows
	PercentageDropThreshold      float64       `mapstructure:"percentage_drop_threshold" yaml:"percentage_drop_threshold"`             // Fractional drop vs trailing average that downgrades to warning
	MinimumHistoricalRuns        int           `mapstructure:"minimum_historical_runs" yaml:"minimum_historical_runs"`                 // Prior healthy runs required before zero yield counts as error
	ConsecutiveFailureAlertCount int           `mapstructure:"consecutive_failure_alert_count" yaml:"consecutive_failure_alert_count"` // Non-success streak that raises a warning alert
	NoRecentRunsWindow           time.Duration `mapstructure:"no_recent_runs_window" yaml:"no_recent_runs_window"`
}

// Heuristics are empirically tuned extraction thresholds. The values came out
// of operating real sources and may need per-site recalibration.
type Heuristics struct {
	MinHeroImageWidth     int           `mapstructure:"min_hero_image_width" yaml:"min_hero_image_width"`       // Minimum pixel width for a representative image
	ScrollStabilityRounds int           `mapstructure:"scroll_stability_rounds" yaml:"scroll_stability_rounds"` // Scrolls with no new entries before a listing counts as fully loaded
	MaxScrolls            int           `mapstructure:"max_scrolls" yaml:"max_scrolls"`                         // Hard scroll limit per listing page
	MaxPages              int           `mapstructure:"max_pages" yaml:"max_pages"`                             // Hard pagination limit per listing
	MaxHeadingLength      int           `mapstructure:"max_heading_length" yaml:"max_heading_length"`           // Headings longer than this are not animal names
	ImageUpgradeTimeout   time.Duration `mapstructure:"image_upgrade_timeout" yaml:"image_upgrade_timeout"`     // Poll window for lazy hi-res image swaps
}

// PipelineConfig holds the full pipeline configuration.
type PipelineConfig struct {
	DatabasePath   string        `mapstructure:"database_path" yaml:"database_path"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"` // Per fetch/page-load timeout

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`

	Sources    []SourceConfig    `mapstructure:"sources" yaml:"sources"`
	Thresholds FailureThresholds `mapstructure:"thresholds" yaml:"thresholds"`
	Heuristics Heuristics        `mapstructure:"heuristics" yaml:"heuristics"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *PipelineConfig {
	return &PipelineConfig{
		DatabasePath:   "./adoptfeed.db",
		UserAgent:      "Adoptfeed/1.0",
		RequestTimeout: 30 * time.Second,
		LogLevel:       "info",
		Thresholds: FailureThresholds{
			AbsoluteMinimum:              3,
			PercentageDropThreshold:      0.5,
			MinimumHistoricalRuns:        3,
			ConsecutiveFailureAlertCount: 2,
			NoRecentRunsWindow:           48 * time.Hour,
		},
		Heuristics: Heuristics{
			MinHeroImageWidth:     400,
			ScrollStabilityRounds: 3,
			MaxScrolls:            20,
			MaxPages:              50,
			MaxHeadingLength:      50,
			ImageUpgradeTimeout:   5 * time.Second,
		},
	}
}

// Validate checks if the configuration is valid and fills in per-source
// defaults for fields left unset.
func (c *PipelineConfig) Validate() error {
	if c.DatabasePath == "" {
		return ErrEmptyDatabasePath
	}

	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if len(c.Sources) == 0 {
		return ErrNoSources
	}

	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		src := &c.Sources[i]

		if src.ID == "" {
			return ErrMissingSourceID
		}
		if seen[src.ID] {
			return ErrDuplicateSourceID
		}
		seen[src.ID] = true

		if src.ListingURL == "" {
			return ErrMissingListingURL
		}
		if src.Extractor == "" {
			return ErrMissingExtractor
		}
		if src.OrganizationID == "" {
			src.OrganizationID = src.ID
		}
		if src.BatchSize <= 0 {
			src.BatchSize = 5
		}
		if src.MaxRetries <= 0 {
			src.MaxRetries = 3
		}
		// Enforce a minimum delay so batches never hit a source back-to-back
		if src.RateLimitDelay < 100*time.Millisecond {
			src.RateLimitDelay = 100 * time.Millisecond
		}
	}

	if c.Thresholds.PercentageDropThreshold <= 0 || c.Thresholds.PercentageDropThreshold > 1 {
		return ErrInvalidDropThreshold
	}

	return nil
}

// Source returns the configuration for the given source ID.
func (c *PipelineConfig) Source(id string) (SourceConfig, bool) {
	for _, src := range c.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return SourceConfig{}, false
}
