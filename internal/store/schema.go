package store

// Schema contains the complete DDL for the tabkeeper tables.
const Schema = `
-- Named page sessions: one row per live named page, replayed on startup.
-- Rows are deleted on explicit close; a crash leaves them for restoration.
CREATE TABLE IF NOT EXISTS sessions (
    name       TEXT PRIMARY KEY,
    url        TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Snapshot audit log: one row per accessibility capture. Intentionally no
-- foreign key to sessions, the log outlives session close.
CREATE TABLE IF NOT EXISTS snapshot_log (
    id           TEXT PRIMARY KEY,
    session_name TEXT NOT NULL,
    target_id    TEXT NOT NULL,
    generation   INTEGER NOT NULL,
    node_count   INTEGER NOT NULL,
    ref_count    INTEGER NOT NULL,
    truncated    INTEGER NOT NULL DEFAULT 0,
    captured_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snaplog_session ON snapshot_log(session_name, captured_at DESC);
CREATE INDEX IF NOT EXISTS idx_snaplog_time ON snapshot_log(captured_at);

-- Operation timings, flushed in batches by the metrics recorder.
CREATE TABLE IF NOT EXISTS op_metrics (
    op          TEXT NOT NULL,
    session     TEXT NOT NULL DEFAULT '',
    duration_ms REAL NOT NULL,
    ok          INTEGER NOT NULL DEFAULT 1,
    recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opmetrics_op ON op_metrics(op, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_opmetrics_time ON op_metrics(recorded_at);

-- Per-endpoint rate limiting rules, read by the shield RateLimiter.
-- Endpoint keys are "METHOD /path" with the page-name segment normalised
-- to {name}. Seeded caps are generous: they stop runaway agent loops, not
-- normal use.
CREATE TABLE IF NOT EXISTS rate_limits (
    endpoint       TEXT PRIMARY KEY,
    max_requests   INTEGER NOT NULL DEFAULT 60,
    window_seconds INTEGER NOT NULL DEFAULT 60,
    enabled        INTEGER NOT NULL DEFAULT 1
);

INSERT OR IGNORE INTO rate_limits (endpoint, max_requests, window_seconds, enabled) VALUES
    ('POST /api/pages/{name}/snapshot',   300, 60, 1),
    ('POST /api/pages/{name}/screenshot', 120, 60, 1),
    ('POST /api/pages/{name}/pdf',         60, 60, 1);
`
