package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BatchStats summarizes what a batch execution did with its input URLs.
type BatchStats struct {
	Attempted int // URLs dispatched to workers
	Collected int // valid records returned
	Skipped   int // structural skips (non-record pages, validation rejects)
	Failed    int // transient failures that exhausted their retry budget
}

// DetailFunc fetches one detail page and extracts a record.
type DetailFunc func(ctx context.Context, url string) (*DetailRecord, error)

// BatchExecutor processes URLs in contiguous fixed-size batches: parallel
// within a batch via a bounded worker pool, serial rate-limited between
// batches. One failing URL never aborts or delays its siblings.
type BatchExecutor struct {
	BatchSize       int
	WorkerLimit     int           // concurrent workers within a batch; 0 means BatchSize
	InterBatchDelay time.Duration // sleep between batches, respects source rate limits
	ItemTimeout     time.Duration // hard ceiling per URL so a hung page frees its worker slot
	MaxRetries      int
	RetryBaseDelay  time.Duration
}

// Run fetches, extracts and validates every URL and collects only the valid
// records. Output ordering is unspecified. If ctx is cancelled, in-flight
// workers finish or time out naturally and already-collected results are
// still returned.
func (e *BatchExecutor) Run(ctx context.Context, urls []string, extract DetailFunc) ([]DetailRecord, BatchStats) {
	var (
		mu      sync.Mutex
		results []DetailRecord
		stats   BatchStats
	)

	batchSize := e.BatchSize
	if batchSize <= 0 {
		batchSize = len(urls)
	}
	workers := e.WorkerLimit
	if workers <= 0 {
		workers = batchSize
	}

	for start := 0; start < len(urls); start += batchSize {
		if ctx.Err() != nil {
			slog.Warn("Batch execution cancelled", "remaining", len(urls)-start)
			break
		}

		end := start + batchSize
		if end > len(urls) {
			end = len(urls)
		}
		batch := urls[start:end]

		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup

		for _, url := range batch {
			wg.Add(1)
			sem <- struct{}{}

			go func(url string) {
				defer wg.Done()
				defer func() { <-sem }()

				mu.Lock()
				stats.Attempted++
				mu.Unlock()

				rec, err := e.processOne(ctx, url, extract)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					results = append(results, *rec)
					stats.Collected++
				case IsStructural(err):
					stats.Skipped++
					slog.Debug("Skipped detail page", "url", url, "reason", err)
				default:
					stats.Failed++
					slog.Warn("Failed to process detail page", "url", url, "error", err)
				}
			}(url)
		}

		wg.Wait()

		if end < len(urls) && e.InterBatchDelay > 0 {
			select {
			case <-time.After(e.InterBatchDelay):
			case <-ctx.Done():
			}
		}
	}

	return results, stats
}

// processOne wraps fetch+extract in the retry controller and validates the
// outcome. Validation errors are structural and never retried.
func (e *BatchExecutor) processOne(ctx context.Context, url string, extract DetailFunc) (*DetailRecord, error) {
	rec, err := Retry(ctx, e.MaxRetries, e.RetryBaseDelay, func(ctx context.Context) (*DetailRecord, error) {
		attemptCtx := ctx
		if e.ItemTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, e.ItemTimeout)
			defer cancel()
		}
		return extract(attemptCtx, url)
	})
	if err != nil {
		return nil, err
	}

	if err := ValidateRecord(rec); err != nil {
		return nil, err
	}

	return rec, nil
}
