package ingest

import (
	"context"
	"errors"
	"testing"
)

type fakeDedupStorage struct {
	Storage
	known   map[string]struct{}
	lookups int
	err     error
}

func (s *fakeDedupStorage) ExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	s.lookups++
	if s.err != nil {
		return nil, s.err
	}
	result := make(map[string]struct{})
	for _, u := range urls {
		if _, ok := s.known[u]; ok {
			result[u] = struct{}{}
		}
	}
	return result, nil
}

func TestDedupFilterReturnsUnseenSubset(t *testing.T) {
	store := &fakeDedupStorage{known: map[string]struct{}{
		"https://example.org/tiere/bella": {},
	}}
	filter := NewDedupFilter(store)

	candidates := []string{
		"https://example.org/tiere/rex",
		"https://example.org/tiere/bella",
		"https://example.org/tiere/max",
	}

	unseen, stats, err := filter.Unseen(context.Background(), candidates)
	if err != nil {
		t.Fatalf("Unseen failed: %v", err)
	}

	if len(unseen) != 2 {
		t.Fatalf("Expected 2 unseen URLs, got %d", len(unseen))
	}
	if unseen[0] != candidates[0] || unseen[1] != candidates[2] {
		t.Errorf("Expected input order preserved, got %v", unseen)
	}
	if stats.TotalCandidates != 3 || stats.SkippedExisting != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if store.lookups != 1 {
		t.Errorf("Expected a single batched lookup, got %d", store.lookups)
	}
}

func TestDedupFilterAllKnown(t *testing.T) {
	store := &fakeDedupStorage{known: map[string]struct{}{
		"https://example.org/tiere/rex": {},
		"https://example.org/tiere/max": {},
	}}
	filter := NewDedupFilter(store)

	unseen, stats, err := filter.Unseen(context.Background(), []string{
		"https://example.org/tiere/rex",
		"https://example.org/tiere/max",
	})
	if err != nil {
		t.Fatalf("Unseen failed: %v", err)
	}

	if len(unseen) != 0 {
		t.Errorf("Expected no unseen URLs, got %v", unseen)
	}
	if stats.SkippedExisting != stats.TotalCandidates {
		t.Errorf("Expected skipped count to equal listing size, got %+v", stats)
	}
}

func TestDedupFilterEmptyInput(t *testing.T) {
	store := &fakeDedupStorage{}
	filter := NewDedupFilter(store)

	unseen, stats, err := filter.Unseen(context.Background(), nil)
	if err != nil {
		t.Fatalf("Unseen failed: %v", err)
	}
	if len(unseen) != 0 || stats.TotalCandidates != 0 {
		t.Errorf("Expected empty result, got %v %+v", unseen, stats)
	}
	if store.lookups != 0 {
		t.Errorf("Expected no storage lookup for empty input, got %d", store.lookups)
	}
}

func TestDedupFilterStorageError(t *testing.T) {
	storeErr := errors.New("database is locked")
	filter := NewDedupFilter(&fakeDedupStorage{err: storeErr})

	_, stats, err := filter.Unseen(context.Background(), []string{"https://example.org/a"})
	if !errors.Is(err, storeErr) {
		t.Errorf("Expected storage error to propagate, got %v", err)
	}
	// Candidate count is still reported for the run summary
	if stats.TotalCandidates != 1 {
		t.Errorf("Expected candidate count recorded despite failure, got %+v", stats)
	}
}
