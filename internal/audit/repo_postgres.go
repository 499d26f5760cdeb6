package audit

import (
	"context"
	"database/sql"
	"time"

	"softphone-dialer/pkg/utils"
)

// PostgresRepo appends events to the agent_activity table.
// The table is expected to reject UPDATE and DELETE for application roles.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const createTable = `CREATE TABLE IF NOT EXISTS agent_activity (
	id         TEXT PRIMARY KEY,
	agent_id   TEXT NOT NULL,
	type       TEXT NOT NULL,
	call_id    TEXT NOT NULL DEFAULT '',
	number     TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	metadata   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
)`

const createIndex = `CREATE INDEX IF NOT EXISTS agent_activity_agent_time ON agent_activity (agent_id, created_at)`

func (r *PostgresRepo) Migrate(ctx context.Context) error {
	return utils.Migrate(ctx, r.db, "audit", []string{createTable, createIndex})
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO agent_activity (id, agent_id, type, call_id, number, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.AgentID,
		string(e.Type),
		e.CallID,
		e.Number,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ListEvents(ctx context.Context, agentID string, from, to time.Time) ([]Event, error) {
	const q = `
SELECT id, agent_id, type, call_id, number, message, metadata, created_at
FROM agent_activity
WHERE agent_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at, id
`
	rows, err := r.db.QueryContext(ctx, q, agentID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &e.AgentID, &typ, &e.CallID, &e.Number, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
