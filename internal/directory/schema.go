package directory

import (
	"context"
	"database/sql"

	"softphone-dialer/pkg/utils"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS phonecalls (
	id               TEXT PRIMARY KEY,
	agent_id         TEXT NOT NULL,
	name             TEXT NOT NULL DEFAULT '',
	partner_id       TEXT NOT NULL DEFAULT '',
	partner_name     TEXT NOT NULL DEFAULT '',
	partner_email    TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL DEFAULT '',
	opportunity_id   TEXT NOT NULL DEFAULT '',
	opportunity_name TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	priority         INT NOT NULL DEFAULT 0,
	state            TEXT NOT NULL DEFAULT 'pending' CHECK (state IN ('pending', 'in_call', 'done')),
	in_queue         BOOLEAN NOT NULL DEFAULT TRUE,
	started_at       TIMESTAMPTZ,
	ended_at         TIMESTAMPTZ,
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS phonecalls_agent_queue_idx ON phonecalls (agent_id, in_queue, priority DESC, created_at)`,
	`CREATE TABLE IF NOT EXISTS directory_contacts (
	model         TEXT NOT NULL CHECK (model IN ('partner', 'opportunity')),
	ref_id        TEXT NOT NULL,
	display_name  TEXT NOT NULL DEFAULT '',
	partner_id    TEXT NOT NULL DEFAULT '',
	partner_name  TEXT NOT NULL DEFAULT '',
	partner_email TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (model, ref_id)
)`,
	`CREATE TABLE IF NOT EXISTS call_outcomes (
	id               TEXT PRIMARY KEY,
	call_id          TEXT NOT NULL,
	agent_id         TEXT NOT NULL,
	number           TEXT NOT NULL DEFAULT '',
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	auto_dial        BOOLEAN NOT NULL DEFAULT FALSE,
	note             TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL
)`,
}

// Migrate creates the directory tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	return utils.Migrate(ctx, db, "directory", schema)
}
