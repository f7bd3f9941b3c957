package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/adoptfeed/adoptfeed/internal/config"
)

// retryBaseDelay is the initial backoff for fetch/extract retries.
const retryBaseDelay = 500 * time.Millisecond

// historyWindow bounds how far back the classifier looks for trailing norms.
const historyWindow = 30 * 24 * time.Hour

// Runner executes ingestion runs. Sources are independent and may run
// concurrently with each other; one run per source is processed to
// completion at a time.
type Runner struct {
	storage     Storage
	limiter     *RateLimiter
	classifier  *Classifier
	itemTimeout time.Duration
	DryRun      bool // discover and dedup only, nothing fetched or persisted
}

// NewRunner creates a pipeline runner.
func NewRunner(storage Storage, limiter *RateLimiter, thresholds config.FailureThresholds, itemTimeout time.Duration) *Runner {
	return &Runner{
		storage:     storage,
		limiter:     limiter,
		classifier:  NewClassifier(thresholds),
		itemTimeout: itemTimeout,
	}
}

// RunSource executes one complete ingestion run against a single source.
// Every run, even one that aborts early, produces exactly one completed
// RunSummary. The returned error is non-nil only when not even the summary
// could be recorded.
func (r *Runner) RunSource(ctx context.Context, src Source, cfg config.SourceConfig) (*RunSummary, error) {
	run := &RunSummary{
		ID:             uuid.NewString(),
		OrganizationID: cfg.OrganizationID,
		StartedAt:      time.Now().UTC(),
		Status:         StatusRunning,
	}

	if !r.DryRun {
		if err := r.storage.StartRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to record run start: %w", err)
		}
	}

	if listing, err := url.Parse(cfg.ListingURL); err == nil {
		r.limiter.SetHostDelay(listing.Host, cfg.RateLimitDelay)
	}

	slog.Info("Starting ingestion run", "source", cfg.ID, "run_id", run.ID)

	var systemic error
	records, stats := r.ingest(ctx, src, cfg, run, &systemic)

	if r.DryRun {
		run.Status = StatusSuccess
		run.CompletedAt = time.Now().UTC()
		return run, nil
	}

	if systemic == nil && len(records) > 0 {
		added, updated, err := r.storage.UpsertRecords(ctx, cfg.OrganizationID, records)
		if err != nil {
			systemic = fmt.Errorf("failed to upsert records: %w", err)
		} else {
			run.RecordsAdded = added
			run.RecordsUpdated = updated
		}
	}

	r.finish(ctx, run, records, stats, systemic)

	// Run summaries are the audit trail; write one even when the run was
	// cancelled mid-flight.
	if err := r.storage.CompleteRun(context.WithoutCancel(ctx), run); err != nil {
		return run, fmt.Errorf("failed to record run completion: %w", err)
	}

	slog.Info("Completed ingestion run",
		"source", cfg.ID,
		"run_id", run.ID,
		"status", run.Status,
		"found", run.RecordsFound,
		"added", run.RecordsAdded,
		"updated", run.RecordsUpdated,
		"skipped", run.RecordsSkipped,
		"duration_s", run.DurationSeconds)

	return run, nil
}

// ingest performs discovery, dedup and batched detail extraction. Systemic
// failures are reported through sysErr; per-item failures never surface here.
func (r *Runner) ingest(ctx context.Context, src Source, cfg config.SourceConfig, run *RunSummary, sysErr *error) ([]DetailRecord, BatchStats) {
	entries, err := Retry(ctx, cfg.MaxRetries, retryBaseDelay, func(ctx context.Context) ([]ListingEntry, error) {
		if err := r.limiter.Wait(ctx, cfg.ListingURL); err != nil {
			return nil, err
		}
		return src.DiscoverListing(ctx)
	})
	if err != nil {
		*sysErr = fmt.Errorf("listing discovery failed: %w", err)
		return nil, BatchStats{}
	}

	run.RecordsFound = len(entries)
	slog.Info("Listing discovered", "source", cfg.ID, "entries", len(entries))

	urls := make([]string, len(entries))
	for i, entry := range entries {
		urls[i] = entry.URL
	}

	if cfg.SkipExisting {
		unseen, stats, err := NewDedupFilter(r.storage).Unseen(ctx, urls)
		run.RecordsSkipped = stats.SkippedExisting
		if err != nil {
			*sysErr = err
			return nil, BatchStats{}
		}
		urls = unseen
	}

	if r.DryRun {
		slog.Info("Dry run, skipping detail extraction", "source", cfg.ID, "would_process", len(urls))
		return nil, BatchStats{}
	}

	exec := &BatchExecutor{
		BatchSize:       cfg.BatchSize,
		InterBatchDelay: cfg.RateLimitDelay,
		ItemTimeout:     r.itemTimeout,
		MaxRetries:      cfg.MaxRetries,
		RetryBaseDelay:  retryBaseDelay,
	}

	return exec.Run(ctx, urls, func(ctx context.Context, pageURL string) (*DetailRecord, error) {
		if err := r.limiter.Wait(ctx, pageURL); err != nil {
			return nil, err
		}
		return src.ExtractDetail(ctx, pageURL)
	})
}

// finish derives the terminal status and fills the completion fields.
func (r *Runner) finish(ctx context.Context, run *RunSummary, records []DetailRecord, stats BatchStats, systemic error) {
	history, err := r.storage.RunHistory(ctx, run.OrganizationID, run.StartedAt.Add(-historyWindow))
	if err != nil {
		// Classification degrades gracefully without history
		slog.Warn("Failed to load run history", "organization", run.OrganizationID, "error", err)
		history = nil
	}

	run.Status = r.classifier.Status(run.RecordsFound, systemic, history)
	switch {
	case systemic != nil:
		run.ErrorMessage = systemic.Error()
	case ctx.Err() != nil:
		run.ErrorMessage = fmt.Sprintf("run aborted with partial results: %v", ctx.Err())
		if run.Status == StatusSuccess {
			run.Status = StatusWarning
		}
	case stats.Failed > 0:
		run.ErrorMessage = fmt.Sprintf("%d of %d detail pages failed", stats.Failed, stats.Attempted)
	}

	run.DataQualityScore = QualityScore(records)
	run.CompletedAt = time.Now().UTC()
	run.DurationSeconds = run.CompletedAt.Sub(run.StartedAt).Seconds()
}

// Alerts recomputes the active alerts for an organization from stored
// history. Exposed for the monitoring surface; nothing is cached.
func (r *Runner) Alerts(ctx context.Context, organizationID string, now time.Time) ([]Alert, error) {
	history, err := r.storage.RunHistory(ctx, organizationID, now.Add(-historyWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load run history: %w", err)
	}
	return r.classifier.Alerts(organizationID, history, now), nil
}

// Rates computes trailing failure rates for an organization.
func (r *Runner) Rates(ctx context.Context, organizationID string, now time.Time) (FailureRates, error) {
	history, err := r.storage.RunHistory(ctx, organizationID, now.Add(-historyWindow))
	if err != nil {
		return FailureRates{}, fmt.Errorf("failed to load run history: %w", err)
	}
	return r.classifier.Rates(history, now), nil
}
