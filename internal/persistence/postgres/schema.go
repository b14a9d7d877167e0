// Package postgres provides pgx-backed persistence for the sync engine.
package postgres

// Schema holds the DDL for every table the engine owns. Applied by
// deployment tooling and by integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS account_profiles (
    account_id TEXT PRIMARY KEY,
    coach_id TEXT NOT NULL,
    timezone TEXT NOT NULL DEFAULT 'UTC',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS provider_connections (
    account_id TEXT PRIMARY KEY,
    access_token TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    scope TEXT NOT NULL DEFAULT '',
    last_sync_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sync_intents (
    intent_id UUID PRIMARY KEY,
    account_id TEXT NOT NULL,
    external_activity_id BIGINT,
    status TEXT NOT NULL DEFAULT 'PENDING',
    attempts INT NOT NULL DEFAULT 0,
    lease_expires_at TIMESTAMPTZ,
    next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_error TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- At-least-once upstream signals must not pile up duplicate open work.
CREATE UNIQUE INDEX IF NOT EXISTS sync_intents_open_dedupe
    ON sync_intents (account_id, COALESCE(external_activity_id, -1))
    WHERE status IN ('PENDING','PROCESSING');

CREATE INDEX IF NOT EXISTS sync_intents_claimable
    ON sync_intents (created_at)
    WHERE status = 'PENDING';

CREATE TABLE IF NOT EXISTS activity_records (
    record_id UUID PRIMARY KEY,
    account_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    external_id BIGINT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    discipline TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    duration_min INT NOT NULL,
    distance_km DOUBLE PRECISION,
    metrics JSONB NOT NULL DEFAULT '{}'::jsonb,
    calendar_entry_id UUID,
    confirmed_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (account_id, provider, external_id)
);

CREATE TABLE IF NOT EXISTS calendar_entries (
    entry_id UUID PRIMARY KEY,
    account_id TEXT NOT NULL,
    title TEXT NOT NULL,
    discipline TEXT NOT NULL,
    entry_date DATE NOT NULL,
    planned_start TIMESTAMP,
    status TEXT NOT NULL DEFAULT 'PLANNED',
    activity_record_id UUID,
    origin TEXT NOT NULL DEFAULT 'plan',
    origin_external_id BIGINT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Natural key for entries materialized from unmatched activities.
CREATE UNIQUE INDEX IF NOT EXISTS calendar_entries_origin_key
    ON calendar_entries (account_id, origin, origin_external_id)
    WHERE origin_external_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS calendar_entries_match_window
    ON calendar_entries (account_id, discipline, entry_date);
`
