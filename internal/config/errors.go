package config

import "errors"

var (
	// ErrEmptyDatabasePath is returned when database path is empty
	ErrEmptyDatabasePath = errors.New("database_path cannot be empty")
	// ErrInvalidTimeout is returned when request timeout is not greater than 0
	ErrInvalidTimeout = errors.New("request_timeout must be greater than 0")
	// ErrNoSources is returned when no sources are configured
	ErrNoSources = errors.New("at least one source must be configured")
	// ErrMissingSourceID is returned when a source has no id
	ErrMissingSourceID = errors.New("source id cannot be empty")
	// ErrDuplicateSourceID is returned when two sources share an id
	ErrDuplicateSourceID = errors.New("source ids must be unique")
	// ErrMissingListingURL is returned when a source has no listing_url
	ErrMissingListingURL = errors.New("source listing_url cannot be empty")
	// ErrMissingExtractor is returned when a source names no extractor
	ErrMissingExtractor = errors.New("source extractor cannot be empty")
	// ErrInvalidDropThreshold is returned when percentage_drop_threshold is outside (0,1]
	ErrInvalidDropThreshold = errors.New("percentage_drop_threshold must be in (0,1]")
)
