// Package storage provides SQLite persistence for animal records and the
// ingestion run audit trail.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adoptfeed/adoptfeed/internal/ingest"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

// ErrRunNotRunning is returned when completing a run that is not in the
// running state. Completed runs are immutable.
var ErrRunNotRunning = errors.New("run is not running")

// SQLiteStorage implements the pipeline's Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	storage := &SQLiteStorage{db: db}

	if err := storage.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) initSchema() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000", // 30 second timeout for locks
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// ExistingURLs returns which of the candidate URLs already have a record.
// Single batched lookup.
func (s *SQLiteStorage) ExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	known := make(map[string]struct{})
	if len(urls) == 0 {
		return known, nil
	}

	placeholders := strings.Repeat("?,", len(urls))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(urls))
	for i, u := range urls {
		args[i] = u
	}

	query := fmt.Sprintf("SELECT adoption_url FROM animals WHERE adoption_url IN (%s)", placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing URLs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan URL: %w", err)
		}
		known[u] = struct{}{}
	}
	return known, rows.Err()
}

// UpsertRecords writes records keyed by (organization_id, external_id) in a
// single transaction and reports how many were inserted vs updated.
// first_seen_at survives updates; last_seen_at is touched on every upsert.
func (s *SQLiteStorage) UpsertRecords(ctx context.Context, organizationID string, records []ingest.DetailRecord) (added, updated int, err error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := s.existingExternalIDs(ctx, tx, organizationID, records)
	if err != nil {
		return 0, 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO animals (
			organization_id, external_id, name, adoption_url, primary_image_url,
			animal_type, status, breed, age_text, sex, size, standardized_size,
			properties, first_seen_at, last_seen_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(organization_id, external_id) DO UPDATE SET
			name = excluded.name,
			adoption_url = excluded.adoption_url,
			primary_image_url = excluded.primary_image_url,
			animal_type = excluded.animal_type,
			status = excluded.status,
			breed = excluded.breed,
			age_text = excluded.age_text,
			sex = excluded.sex,
			size = excluded.size,
			standardized_size = excluded.standardized_size,
			properties = excluded.properties,
			last_seen_at = excluded.last_seen_at
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now()
	for _, rec := range records {
		props, err := json.Marshal(rec.Properties)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to encode properties for %s: %w", rec.ExternalID, err)
		}

		_, err = stmt.ExecContext(ctx,
			organizationID, rec.ExternalID, rec.Name, rec.AdoptionURL, rec.PrimaryImageURL,
			rec.AnimalType, rec.Status, rec.Breed, rec.AgeText, rec.Sex, rec.Size,
			rec.StandardizedSize, string(props), now, now,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to upsert record %s: %w", rec.ExternalID, err)
		}

		if _, ok := existing[rec.ExternalID]; ok {
			updated++
		} else {
			added++
			// Later duplicates within the same batch count as updates
			existing[rec.ExternalID] = struct{}{}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return added, updated, nil
}

// existingExternalIDs looks up which of the records' external IDs are
// already present, inside the upsert transaction.
func (s *SQLiteStorage) existingExternalIDs(ctx context.Context, tx *sql.Tx, organizationID string, records []ingest.DetailRecord) (map[string]struct{}, error) {
	placeholders := strings.Repeat("?,", len(records))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(records)+1)
	args = append(args, organizationID)
	for _, rec := range records {
		args = append(args, rec.ExternalID)
	}

	query := fmt.Sprintf(
		"SELECT external_id FROM animals WHERE organization_id = ? AND external_id IN (%s)",
		placeholders,
	)
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	existing := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan external ID: %w", err)
		}
		existing[id] = struct{}{}
	}
	return existing, rows.Err()
}

// StartRun inserts the run with its running status.
func (s *SQLiteStorage) StartRun(ctx context.Context, run *ingest.RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (id, organization_id, started_at, status)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.OrganizationID, run.StartedAt, string(run.Status))
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", run.ID, err)
	}
	return nil
}

// CompleteRun writes the terminal state of a run. Only a running run may be
// completed; anything else returns ErrRunNotRunning.
func (s *SQLiteStorage) CompleteRun(ctx context.Context, run *ingest.RunSummary) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ingest_runs SET
			completed_at = ?,
			status = ?,
			records_found = ?,
			records_added = ?,
			records_updated = ?,
			records_skipped = ?,
			error_message = ?,
			duration_seconds = ?,
			data_quality_score = ?
		WHERE id = ? AND status = 'running'
	`, run.CompletedAt, string(run.Status), run.RecordsFound, run.RecordsAdded,
		run.RecordsUpdated, run.RecordsSkipped, run.ErrorMessage,
		run.DurationSeconds, run.DataQualityScore, run.ID)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", run.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check run completion: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotRunning, run.ID)
	}
	return nil
}

// RunHistory returns completed runs for an organization since the given
// time, most recent first.
func (s *SQLiteStorage) RunHistory(ctx context.Context, organizationID string, since time.Time) ([]ingest.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, started_at, completed_at, status,
		       records_found, records_added, records_updated, records_skipped,
		       COALESCE(error_message, ''),
		       COALESCE(duration_seconds, 0),
		       COALESCE(data_quality_score, 0)
		FROM ingest_runs
		WHERE organization_id = ? AND status != 'running' AND started_at >= ?
		ORDER BY started_at DESC
	`, organizationID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []ingest.RunSummary
	for rows.Next() {
		var run ingest.RunSummary
		var status string
		var completedAt sql.NullTime
		err := rows.Scan(&run.ID, &run.OrganizationID, &run.StartedAt, &completedAt,
			&status, &run.RecordsFound, &run.RecordsAdded, &run.RecordsUpdated,
			&run.RecordsSkipped, &run.ErrorMessage, &run.DurationSeconds,
			&run.DataQualityScore)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Status = ingest.RunStatus(status)
		if completedAt.Valid {
			run.CompletedAt = completedAt.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Animal is one persisted animal record, for read paths outside the
// pipeline.
type Animal struct {
	OrganizationID   string
	ExternalID       string
	Name             string
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
	FirstSeenAt      time.Time
	LastSeenAt       time.Time
}

// AnimalsByOrganization returns the stored records for one organization,
// newest first.
func (s *SQLiteStorage) AnimalsByOrganization(ctx context.Context, organizationID string) ([]Animal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT organization_id, external_id, name, adoption_url,
		       COALESCE(primary_image_url, ''), COALESCE(animal_type, ''),
		       status, COALESCE(breed, ''), COALESCE(age_text, ''),
		       COALESCE(sex, ''), COALESCE(size, ''),
		       COALESCE(standardized_size, ''), COALESCE(properties, '{}'),
		       first_seen_at, last_seen_at
		FROM animals
		WHERE organization_id = ?
		ORDER BY first_seen_at DESC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query animals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var animals []Animal
	for rows.Next() {
		var a Animal
		var props string
		err := rows.Scan(&a.OrganizationID, &a.ExternalID, &a.Name, &a.AdoptionURL,
			&a.PrimaryImageURL, &a.AnimalType, &a.Status, &a.Breed, &a.AgeText,
			&a.Sex, &a.Size, &a.StandardizedSize, &props, &a.FirstSeenAt, &a.LastSeenAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan animal: %w", err)
		}
		if err := json.Unmarshal([]byte(props), &a.Properties); err != nil {
			return nil, fmt.Errorf("failed to decode properties for %s: %w", a.ExternalID, err)
		}
		animals = append(animals, a)
	}
	return animals, rows.Err()
}
