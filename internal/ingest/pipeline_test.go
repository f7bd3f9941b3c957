package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/adoptfeed/adoptfeed/internal/config"
)

// memStorage is an in-memory Storage for pipeline tests.
type memStorage struct {
	mu      sync.Mutex
	records map[string]DetailRecord // organization|external_id
	urls    map[string]struct{}
	runs    []RunSummary

	failUpsert  error
	failHistory error
}

func newMemStorage() *memStorage {
	return &memStorage{
		records: make(map[string]DetailRecord),
		urls:    make(map[string]struct{}),
	}
}

func (s *memStorage) ExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string]struct{})
	for _, u := range urls {
		if _, ok := s.urls[u]; ok {
			result[u] = struct{}{}
		}
	}
	return result, nil
}

func (s *memStorage) UpsertRecords(ctx context.Context, organizationID string, records []DetailRecord) (int, int, error) {
	if s.failUpsert != nil {
		return 0, 0, s.failUpsert
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var added, updated int
	for _, rec := range records {
		key := organizationID + "|" + rec.ExternalID
		if _, ok := s.records[key]; ok {
			updated++
		} else {
			added++
		}
		s.records[key] = rec
		s.urls[rec.AdoptionURL] = struct{}{}
	}
	return added, updated, nil
}

func (s *memStorage) StartRun(ctx context.Context, run *RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *run)
	return nil
}

func (s *memStorage) CompleteRun(ctx context.Context, run *RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			if s.runs[i].Status != StatusRunning {
				return errors.New("run already completed")
			}
			s.runs[i] = *run
			return nil
		}
	}
	return errors.New("run not found")
}

func (s *memStorage) RunHistory(ctx context.Context, organizationID string, since time.Time) ([]RunSummary, error) {
	if s.failHistory != nil {
		return nil, s.failHistory
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var history []RunSummary
	for i := len(s.runs) - 1; i >= 0; i-- {
		run := s.runs[i]
		if run.OrganizationID == organizationID && run.Status != StatusRunning && !run.StartedAt.Before(since) {
			history = append(history, run)
		}
	}
	return history, nil
}

// fakeSource serves a fixed listing and detail set.
type fakeSource struct {
	id          string
	entries     []ListingEntry
	details     map[string]*DetailRecord
	discoverErr error
}

func (s *fakeSource) ID() string { return s.id }

func (s *fakeSource) DiscoverListing(ctx context.Context) ([]ListingEntry, error) {
	if s.discoverErr != nil {
		return nil, s.discoverErr
	}
	return s.entries, nil
}

func (s *fakeSource) ExtractDetail(ctx context.Context, pageURL string) (*DetailRecord, error) {
	rec, ok := s.details[pageURL]
	if !ok {
		return nil, ErrNonRecordPage
	}
	return rec, nil
}

func newFakeSource(id string, count int) *fakeSource {
	src := &fakeSource{id: id, details: make(map[string]*DetailRecord)}
	for i := 0; i < count; i++ {
		u := fmt.Sprintf("https://%s.example/tiere/animal-%d", id, i)
		src.entries = append(src.entries, ListingEntry{URL: u, Name: fmt.Sprintf("Animal %d", i)})
		src.details[u] = &DetailRecord{
			Name:        fmt.Sprintf("Animal %d", i),
			ExternalID:  fmt.Sprintf("animal-%d", i),
			AdoptionURL: u,
			AnimalType:  "dog",
		}
	}
	return src
}

func testSourceConfig(id string) config.SourceConfig {
	return config.SourceConfig{
		ID:             id,
		OrganizationID: id,
		Extractor:      "fake",
		BaseURL:        "https://" + id + ".example",
		ListingURL:     "https://" + id + ".example/tiere",
		RateLimitDelay: time.Millisecond,
		BatchSize:      3,
		MaxRetries:     2,
		SkipExisting:   true,
	}
}

func newTestRunner(store Storage) *Runner {
	return NewRunner(store, NewRateLimiter(time.Millisecond), testThresholds(), time.Second)
}

func TestRunSourceHappyPath(t *testing.T) {
	store := newMemStorage()
	src := newFakeSource("tierheim-a", 7)
	runner := newTestRunner(store)

	run, err := runner.RunSource(context.Background(), src, testSourceConfig("tierheim-a"))
	if err != nil {
		t.Fatalf("RunSource failed: %v", err)
	}

	if run.Status != StatusSuccess {
		t.Errorf("Expected success, got %v (%s)", run.Status, run.ErrorMessage)
	}
	if run.RecordsFound != 7 || run.RecordsAdded != 7 || run.RecordsUpdated != 0 {
		t.Errorf("Unexpected counts: %+v", run)
	}
	if run.DurationSeconds < 0 {
		t.Errorf("Expected non-negative duration, got %v", run.DurationSeconds)
	}
	if len(store.runs) != 1 {
		t.Fatalf("Expected exactly one run summary, got %d", len(store.runs))
	}
	if store.runs[0].Status == StatusRunning {
		t.Error("Run summary was never completed")
	}
}

func TestRunSourceDedupIdempotence(t *testing.T) {
	store := newMemStorage()
	src := newFakeSource("tierheim-a", 5)
	runner := newTestRunner(store)
	cfg := testSourceConfig("tierheim-a")

	first, err := runner.RunSource(context.Background(), src, cfg)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if first.RecordsAdded != 5 {
		t.Fatalf("Expected 5 added on first run, got %d", first.RecordsAdded)
	}

	second, err := runner.RunSource(context.Background(), src, cfg)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if second.RecordsAdded != 0 {
		t.Errorf("Expected zero new records on second run, got %d", second.RecordsAdded)
	}
	if second.RecordsSkipped != 5 {
		t.Errorf("Expected skipped count to equal listing size, got %d", second.RecordsSkipped)
	}
}

func TestRunSourceDiscoveryFailureRecordsErrorRun(t *testing.T) {
	store := newMemStorage()
	src := &fakeSource{id: "broken", discoverErr: errors.New("listing markup changed")}
	runner := newTestRunner(store)

	run, err := runner.RunSource(context.Background(), src, testSourceConfig("broken"))
	if err != nil {
		t.Fatalf("RunSource failed: %v", err)
	}

	if run.Status != StatusError {
		t.Errorf("Expected error status, got %v", run.Status)
	}
	if run.ErrorMessage == "" {
		t.Error("Expected raw error text preserved for the operator")
	}
	if len(store.runs) != 1 || store.runs[0].Status != StatusError {
		t.Errorf("Expected one completed error summary, got %+v", store.runs)
	}
}

func TestRunSourceUpsertFailureRecordsErrorRun(t *testing.T) {
	store := newMemStorage()
	store.failUpsert = errors.New("database is locked")
	src := newFakeSource("tierheim-a", 3)
	runner := newTestRunner(store)

	run, err := runner.RunSource(context.Background(), src, testSourceConfig("tierheim-a"))
	if err != nil {
		t.Fatalf("RunSource failed: %v", err)
	}

	if run.Status != StatusError {
		t.Errorf("Expected error status on storage failure, got %v", run.Status)
	}
	if run.RecordsFound != 3 {
		t.Errorf("Expected partial counts preserved, got %+v", run)
	}
}

func TestRunSourceSkipsNonRecordPages(t *testing.T) {
	store := newMemStorage()
	src := newFakeSource("tierheim-a", 4)
	// One listing entry pointing at a page that is not a detail page
	src.entries = append(src.entries, ListingEntry{
		URL:  "https://tierheim-a.example/ueber-uns",
		Name: "Über uns",
	})
	runner := newTestRunner(store)

	run, err := runner.RunSource(context.Background(), src, testSourceConfig("tierheim-a"))
	if err != nil {
		t.Fatalf("RunSource failed: %v", err)
	}

	if run.Status != StatusSuccess {
		t.Errorf("Non-record pages must not fail the run, got %v (%s)", run.Status, run.ErrorMessage)
	}
	if run.RecordsAdded != 4 {
		t.Errorf("Expected 4 records, got %d", run.RecordsAdded)
	}
}

func TestRunSourceCancelledRunKeepsPartialResults(t *testing.T) {
	store := newMemStorage()
	src := newFakeSource("tierheim-a", 6)
	runner := newTestRunner(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // aborted before the batch phase

	run, err := runner.RunSource(ctx, src, testSourceConfig("tierheim-a"))
	if err != nil {
		t.Fatalf("RunSource failed: %v", err)
	}

	if run.Status == StatusRunning || run.Status == StatusSuccess {
		t.Errorf("Aborted run must complete as warning or error, got %v", run.Status)
	}
	if len(store.runs) != 1 || store.runs[0].Status == StatusRunning {
		t.Error("Aborted run must still record a completed summary")
	}
}

func TestRunSourceDryRun(t *testing.T) {
	store := newMemStorage()
	src := newFakeSource("tierheim-a", 3)
	runner := newTestRunner(store)
	runner.DryRun = true

	run, err := runner.RunSource(context.Background(), src, testSourceConfig("tierheim-a"))
	if err != nil {
		t.Fatalf("RunSource failed: %v", err)
	}

	if run.RecordsFound != 3 {
		t.Errorf("Expected discovery to happen, got %+v", run)
	}
	if len(store.records) != 0 {
		t.Error("Dry run must not persist records")
	}
	if len(store.runs) != 0 {
		t.Error("Dry run must not persist run summaries")
	}
}

func TestRunnerAlertsFromStoredHistory(t *testing.T) {
	store := newMemStorage()
	now := time.Now().UTC()
	store.runs = []RunSummary{
		{ID: "1", OrganizationID: "org", Status: StatusError, StartedAt: now.Add(-2 * time.Hour)},
		{ID: "2", OrganizationID: "org", Status: StatusError, StartedAt: now.Add(-1 * time.Hour)},
	}
	runner := newTestRunner(store)

	alerts, err := runner.Alerts(context.Background(), "org", now)
	if err != nil {
		t.Fatalf("Alerts failed: %v", err)
	}

	found := false
	for _, a := range alerts {
		if a.Type == AlertConsecutiveFailures {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected consecutive-failure alert, got %+v", alerts)
	}
}
