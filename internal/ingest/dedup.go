package ingest

import (
	"context"
	"fmt"
	"log/slog"
)

// DedupStats reports what the filter saw, recorded even when the run later
// fails so the operator still learns "processed N of M, skipped K".
type DedupStats struct {
	TotalCandidates int
	SkippedExisting int
}

// DedupFilter skips URLs that storage already knows about.
type DedupFilter struct {
	storage Storage
}

// NewDedupFilter creates a dedup filter backed by the given storage.
func NewDedupFilter(storage Storage) *DedupFilter {
	return &DedupFilter{storage: storage}
}

// Unseen returns the subset of candidates not yet known to storage, in input
// order. The known set is resolved with a single batched lookup.
func (f *DedupFilter) Unseen(ctx context.Context, candidates []string) ([]string, DedupStats, error) {
	stats := DedupStats{TotalCandidates: len(candidates)}

	if len(candidates) == 0 {
		return nil, stats, nil
	}

	known, err := f.storage.ExistingURLs(ctx, candidates)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to query existing URLs: %w", err)
	}

	unseen := make([]string, 0, len(candidates))
	for _, url := range candidates {
		if _, exists := known[url]; exists {
			stats.SkippedExisting++
			continue
		}
		unseen = append(unseen, url)
	}

	slog.Debug("Dedup filter applied",
		"candidates", stats.TotalCandidates,
		"skipped", stats.SkippedExisting,
		"unseen", len(unseen))

	return unseen, stats, nil
}
