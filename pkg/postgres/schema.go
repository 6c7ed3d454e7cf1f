package postgres

// schema is applied in order on every start, so each statement must be
// idempotent. Columns added after a table first shipped get their own
// ADD COLUMN IF NOT EXISTS.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS index_sources (
		name         TEXT PRIMARY KEY,
		checksum     TEXT NOT NULL,
		entry_count  INTEGER NOT NULL,
		warnings     INTEGER NOT NULL DEFAULT 0,
		announced    BOOLEAN NOT NULL DEFAULT FALSE,
		published_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE index_sources ADD COLUMN IF NOT EXISTS announced BOOLEAN NOT NULL DEFAULT FALSE`,
	`CREATE TABLE IF NOT EXISTS index_entries (
		source   TEXT NOT NULL REFERENCES index_sources (name) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		package  TEXT NOT NULL,
		class    TEXT NOT NULL,
		label    TEXT NOT NULL,
		url      TEXT,
		PRIMARY KEY (source, position)
	)`,
	`CREATE INDEX IF NOT EXISTS index_entries_class ON index_entries (source, package, class)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id           BIGSERIAL PRIMARY KEY,
		key_hash     TEXT NOT NULL UNIQUE,
		name         TEXT NOT NULL,
		rate_limit   INTEGER NOT NULL DEFAULT 60,
		sources      TEXT[] NOT NULL DEFAULT '{}',
		is_active    BOOLEAN NOT NULL DEFAULT TRUE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at   TIMESTAMPTZ,
		last_used_at TIMESTAMPTZ
	)`,
	`ALTER TABLE api_keys ADD COLUMN IF NOT EXISTS sources TEXT[] NOT NULL DEFAULT '{}'`,
	`ALTER TABLE api_keys ADD COLUMN IF NOT EXISTS last_used_at TIMESTAMPTZ`,
	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id          BIGSERIAL PRIMARY KEY,
		data        JSONB NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS analytics_snapshots_captured ON analytics_snapshots (captured_at DESC)`,
}
