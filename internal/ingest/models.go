package ingest

import "time"

// RunStatus is the lifecycle state of an ingestion run.
// Transitions: running -> success | warning | error. Terminal states are
// immutable once recorded.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusSuccess RunStatus = "success"
	StatusWarning RunStatus = "warning"
	StatusError   RunStatus = "error"
)

// ListingEntry is one candidate discovered on a listing page. Ephemeral,
// never persisted.
type ListingEntry struct {
	URL          string // Absolute detail page URL
	Name         string // Display name as shown on the listing
	ThumbnailURL string // Optional listing thumbnail
}

// DetailRecord is one validated animal record extracted from a detail page.
type DetailRecord struct {
	Name             string
	ExternalID       string // Deterministic per detail URL, stable across runs
	AdoptionURL      string
	PrimaryImageURL  string
	AnimalType       string
	Status           string
	Breed            string
	AgeText          string
	Sex              string
	Size             string
	StandardizedSize string
	Properties       map[string]any
}

// RunSummary is the persisted audit record of one ingestion run for one
// source. Created with StatusRunning at run start and completed exactly once.
type RunSummary struct {
	ID               string
	OrganizationID   string
	StartedAt        time.Time
	CompletedAt      time.Time
	Status           RunStatus
	RecordsFound     int
	RecordsAdded     int
	RecordsUpdated   int
	RecordsSkipped   int // Candidates skipped by the dedup filter
	ErrorMessage     string
	DurationSeconds  float64
	DataQualityScore float64 // [0,1] field-completeness over collected records
}

// AlertSeverity is the severity of a derived alert.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertType identifies the condition an alert was derived from.
type AlertType string

const (
	AlertConsecutiveFailures AlertType = "consecutive_failures"
	AlertNoRecentRuns        AlertType = "no_recent_runs"
)

// Alert is derived fresh from run history on every monitoring read.
// Never persisted, no acknowledgement state.
type Alert struct {
	Severity       AlertSeverity
	Type           AlertType
	OrganizationID string
	Message        string
}

// FailureRates are aggregate non-success fractions over trailing windows,
// consumed by the monitoring surface.
type FailureRates struct {
	Day   float64 // trailing 24h
	Week  float64 // trailing 7d
	Month float64 // trailing 30d
}
