package database

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
    id TEXT PRIMARY KEY,
    host TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL,
    origin_size INTEGER NOT NULL DEFAULT 0,
    sent_size INTEGER NOT NULL DEFAULT 0,
    bytes_saved INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_created ON outcomes (created_at);
CREATE INDEX IF NOT EXISTS idx_outcomes_kind ON outcomes (kind);
`
