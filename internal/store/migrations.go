package store

const schema = `
CREATE TABLE IF NOT EXISTS clients (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS games (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    client_id INTEGER NOT NULL REFERENCES clients(id),
    name      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS outlets (
    id                      INTEGER PRIMARY KEY AUTOINCREMENT,
    domain                  TEXT NOT NULL UNIQUE,
    name                    TEXT NOT NULL DEFAULT '',
    monthly_unique_visitors INTEGER NOT NULL DEFAULT 0,
    tier                    TEXT NOT NULL DEFAULT 'D',
    country                 TEXT NOT NULL DEFAULT '',
    metacritic_status       TEXT NOT NULL DEFAULT '',
    traffic_checked_at      DATETIME
);

CREATE TABLE IF NOT EXISTS coverage_keywords (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    client_id    INTEGER REFERENCES clients(id),
    game_id      INTEGER REFERENCES games(id),
    keyword      TEXT NOT NULL,
    keyword_type TEXT NOT NULL CHECK (keyword_type IN ('whitelist', 'blacklist'))
);

CREATE INDEX IF NOT EXISTS idx_keywords_type ON coverage_keywords(keyword_type);

CREATE TABLE IF NOT EXISTS coverage_sources (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    source_type          TEXT NOT NULL,
    name                 TEXT NOT NULL,
    config               TEXT NOT NULL DEFAULT '{}',
    outlet_id            INTEGER REFERENCES outlets(id),
    game_id              INTEGER REFERENCES games(id),
    scan_frequency       TEXT NOT NULL DEFAULT 'daily',
    is_active            BOOLEAN NOT NULL DEFAULT 1,
    last_run_at          DATETIME,
    last_run_status      TEXT NOT NULL DEFAULT '',
    last_run_message     TEXT NOT NULL DEFAULT '',
    items_found_last_run INTEGER NOT NULL DEFAULT 0,
    total_items_found    INTEGER NOT NULL DEFAULT 0,
    consecutive_failures INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sources_active ON coverage_sources(is_active);
CREATE INDEX IF NOT EXISTS idx_sources_frequency ON coverage_sources(scan_frequency);

CREATE TABLE IF NOT EXISTS coverage_items (
    id                  TEXT PRIMARY KEY,
    url                 TEXT NOT NULL,
    normalized_url      TEXT NOT NULL UNIQUE,
    title               TEXT NOT NULL DEFAULT '',
    snippet             TEXT NOT NULL DEFAULT '',
    publish_date        DATETIME,
    coverage_type       TEXT NOT NULL DEFAULT '',
    territory           TEXT NOT NULL DEFAULT '',
    sentiment           TEXT NOT NULL DEFAULT '',
    relevance_score     INTEGER NOT NULL DEFAULT 0,
    relevance_reasoning TEXT NOT NULL DEFAULT '',
    approval_status     TEXT NOT NULL DEFAULT 'pending_review',
    source_type         TEXT NOT NULL DEFAULT '',
    source_metadata     TEXT NOT NULL DEFAULT '{}',
    outlet_id           INTEGER REFERENCES outlets(id),
    game_id             INTEGER REFERENCES games(id),
    client_id           INTEGER REFERENCES clients(id),
    duplicate_group_id  TEXT,
    is_original         BOOLEAN NOT NULL DEFAULT 1,
    syndication_count   INTEGER NOT NULL DEFAULT 0,
    discovered_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_status ON coverage_items(approval_status);
CREATE INDEX IF NOT EXISTS idx_items_discovered ON coverage_items(discovered_at);
CREATE INDEX IF NOT EXISTS idx_items_client ON coverage_items(client_id);
CREATE INDEX IF NOT EXISTS idx_items_group ON coverage_items(duplicate_group_id);

CREATE TABLE IF NOT EXISTS credentials (
    service TEXT PRIMARY KEY,
    api_key TEXT NOT NULL
);
`
