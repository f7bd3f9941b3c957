package storage

const schemaSQL = `
-- Animal records, one row per (organization, external id). Rows are updated
-- in place on re-ingestion; first_seen_at is never touched after insert.
CREATE TABLE IF NOT EXISTS animals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    organization_id TEXT NOT NULL,
    external_id TEXT NOT NULL,
    name TEXT NOT NULL,
    adoption_url TEXT NOT NULL,
    primary_image_url TEXT,
    animal_type TEXT,
    status TEXT NOT NULL DEFAULT 'available',
    breed TEXT,
    age_text TEXT,
    sex TEXT,
    size TEXT,
    standardized_size TEXT,
    properties TEXT,  -- JSON object of source-specific extras
    first_seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(organization_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_animals_org ON animals(organization_id);
CREATE INDEX IF NOT EXISTS idx_animals_url ON animals(adoption_url);
CREATE INDEX IF NOT EXISTS idx_animals_status ON animals(organization_id, status);

-- Append-only audit trail of ingestion runs. Completed rows are immutable;
-- monitoring state (alerts, failure rates) is derived from this table on
-- read, never stored.
CREATE TABLE IF NOT EXISTS ingest_runs (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    status TEXT NOT NULL DEFAULT 'running' CHECK (status IN ('running', 'success', 'warning', 'error')),
    records_found INTEGER NOT NULL DEFAULT 0,
    records_added INTEGER NOT NULL DEFAULT 0,
    records_updated INTEGER NOT NULL DEFAULT 0,
    records_skipped INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    duration_seconds REAL,
    data_quality_score REAL
);

CREATE INDEX IF NOT EXISTS idx_runs_org_started ON ingest_runs(organization_id, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON ingest_runs(status);

-- Recent run health per organization, for ad-hoc inspection
CREATE VIEW IF NOT EXISTS run_health AS
SELECT
    organization_id,
    COUNT(*) AS total_runs,
    SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END) AS error_runs,
    SUM(CASE WHEN status = 'warning' THEN 1 ELSE 0 END) AS warning_runs,
    MAX(completed_at) AS last_completed_at
FROM ingest_runs
WHERE status != 'running'
GROUP BY organization_id;
`
