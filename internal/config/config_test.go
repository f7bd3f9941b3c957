package config

import (
	"errors"
	"testing"
	"time"
)

func validConfig() *PipelineConfig {
	cfg := DefaultConfig()
	cfg.Sources = []SourceConfig{
		{
			ID:         "tierheim-demo",
			Extractor:  "tierheim",
			BaseURL:    "https://tierheim.example",
			ListingURL: "https://tierheim.example/tiere",
		},
	}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("Expected request timeout 30s, got %v", cfg.RequestTimeout)
	}
	if cfg.Thresholds.PercentageDropThreshold != 0.5 {
		t.Errorf("Expected drop threshold 0.5, got %v", cfg.Thresholds.PercentageDropThreshold)
	}
	if cfg.Heuristics.MinHeroImageWidth != 400 {
		t.Errorf("Expected min hero image width 400, got %d", cfg.Heuristics.MinHeroImageWidth)
	}
	if cfg.Heuristics.MaxHeadingLength != 50 {
		t.Errorf("Expected max heading length 50, got %d", cfg.Heuristics.MaxHeadingLength)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PipelineConfig)
		wantErr error
	}{
		{
			name:    "valid config",
			mutate:  func(c *PipelineConfig) {},
			wantErr: nil,
		},
		{
			name:    "empty database path",
			mutate:  func(c *PipelineConfig) { c.DatabasePath = "" },
			wantErr: ErrEmptyDatabasePath,
		},
		{
			name:    "no sources",
			mutate:  func(c *PipelineConfig) { c.Sources = nil },
			wantErr: ErrNoSources,
		},
		{
			name: "duplicate source ids",
			mutate: func(c *PipelineConfig) {
				c.Sources = append(c.Sources, c.Sources[0])
			},
			wantErr: ErrDuplicateSourceID,
		},
		{
			name: "missing listing url",
			mutate: func(c *PipelineConfig) {
				c.Sources[0].ListingURL = ""
			},
			wantErr: ErrMissingListingURL,
		},
		{
			name: "missing extractor",
			mutate: func(c *PipelineConfig) {
				c.Sources[0].Extractor = ""
			},
			wantErr: ErrMissingExtractor,
		},
		{
			name: "drop threshold out of range",
			mutate: func(c *PipelineConfig) {
				c.Thresholds.PercentageDropThreshold = 1.5
			},
			wantErr: ErrInvalidDropThreshold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFillsSourceDefaults(t *testing.T) {
	cfg := validConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	src := cfg.Sources[0]
	if src.OrganizationID != src.ID {
		t.Errorf("Expected organization id to default to source id, got %q", src.OrganizationID)
	}
	if src.BatchSize != 5 {
		t.Errorf("Expected default batch size 5, got %d", src.BatchSize)
	}
	if src.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %d", src.MaxRetries)
	}
	if src.RateLimitDelay < 100*time.Millisecond {
		t.Errorf("Expected rate limit delay to be raised to 100ms, got %v", src.RateLimitDelay)
	}
}

func TestSourceLookup(t *testing.T) {
	cfg := validConfig()

	if _, ok := cfg.Source("tierheim-demo"); !ok {
		t.Error("Expected to find configured source")
	}
	if _, ok := cfg.Source("unknown"); ok {
		t.Error("Expected lookup of unknown source to fail")
	}
}
