// Package ingest implements the core ingestion pipeline: per-source listing
// discovery, batched detail extraction with bounded concurrency, retry with
// exponential backoff, storage-backed dedup, record validation and run
// classification.
package ingest

import (
	"context"
	"time"
)

// Source is a per-site extraction capability. Implementations encapsulate
// all site-specific quirks: pagination discovery, lazy loading, reserved
// sections, image selection. Registered once per supported site.
type Source interface {
	// ID returns the source identifier this implementation was built for.
	ID() string

	// DiscoverListing walks the listing view and returns the available
	// entries with absolute detail URLs. Reserved/unavailable entries are
	// already excluded.
	DiscoverListing(ctx context.Context) ([]ListingEntry, error)

	// ExtractDetail fetches one detail page and extracts a record.
	// Pages that are not individual-animal pages return ErrNonRecordPage.
	ExtractDetail(ctx context.Context, pageURL string) (*DetailRecord, error)
}

// Storage is the persistence collaborator. The pipeline needs exactly the
// dedup lookup, the record upsert and the run audit trail from it.
type Storage interface {
	// ExistingURLs returns which of the candidate URLs are already known.
	// Single batched lookup, never N+1.
	ExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error)

	// UpsertRecords writes records keyed by (organization_id, external_id)
	// and reports how many were inserted vs updated.
	UpsertRecords(ctx context.Context, organizationID string, records []DetailRecord) (added, updated int, err error)

	// StartRun inserts a RunSummary with StatusRunning.
	StartRun(ctx context.Context, run *RunSummary) error

	// CompleteRun writes the terminal state of a run. Only a running run
	// may be completed; completed runs are immutable.
	CompleteRun(ctx context.Context, run *RunSummary) error

	// RunHistory returns completed runs for an organization since the given
	// time, most recent first.
	RunHistory(ctx context.Context, organizationID string, since time.Time) ([]RunSummary, error)
}
