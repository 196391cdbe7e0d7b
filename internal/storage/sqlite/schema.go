package sqlite

const schema = `
-- Tracker snapshot: one row per cached tracker item, in sync order
CREATE TABLE IF NOT EXISTS tracker_snapshot (
    user_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    external_id TEXT NOT NULL,
    title TEXT NOT NULL,
    PRIMARY KEY (user_id, position)
);

CREATE INDEX IF NOT EXISTS idx_tracker_snapshot_external ON tracker_snapshot(user_id, external_id);

-- Snapshot metadata, rewritten with each sync
CREATE TABLE IF NOT EXISTS snapshot_meta (
    user_id TEXT PRIMARY KEY,
    entry_count INTEGER NOT NULL,
    synced_at TEXT NOT NULL
);

-- Dedup runs recorded by the CLI
CREATE TABLE IF NOT EXISTS dedup_runs (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    kind TEXT NOT NULL CHECK(kind IN ('dedup', 'merge', 'cache_match')),
    input_count INTEGER NOT NULL CHECK(input_count >= 0),
    output_count INTEGER NOT NULL CHECK(output_count >= 0),
    duplicate_count INTEGER NOT NULL CHECK(duplicate_count >= 0),
    oracle_calls INTEGER NOT NULL DEFAULT 0,
    failed_open INTEGER NOT NULL DEFAULT 0,
    failure_reason TEXT NOT NULL DEFAULT '',
    details TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dedup_runs_user_created ON dedup_runs(user_id, created_at);
`
