package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"softphone-dialer/internal/calls"
	"softphone-dialer/pkg/utils"

	"github.com/google/uuid"
)

// NOTE: PostgresRepo assumes the tables created by Migrate exist:
// - phonecalls (one row per call task, in_queue marks queue membership)
// - directory_contacts (partners/opportunities ad-hoc calls resolve against)
// - call_outcomes (append-only)

// PostgresRepo is the production directory backed by Postgres through the pgx stdlib driver.
type PostgresRepo struct {
	db      *sql.DB
	agentID string
	clock   func() time.Time
}

func NewPostgresRepo(db *sql.DB, agentID string) *PostgresRepo {
	return &PostgresRepo{db: db, agentID: agentID, clock: time.Now}
}

const recordColumns = `id, name, partner_id, partner_name, partner_email, phone,
opportunity_id, opportunity_name, description, priority, state, duration_seconds, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (calls.Record, error) {
	var r calls.Record
	if err := row.Scan(
		&r.ID,
		&r.Name,
		&r.PartnerID,
		&r.PartnerName,
		&r.PartnerEmail,
		&r.Phone,
		&r.OpportunityID,
		&r.OpportunityName,
		&r.Description,
		&r.Priority,
		&r.State,
		&r.DurationSeconds,
		&r.CreatedAt,
	); err != nil {
		return calls.Record{}, err
	}
	if r.State == calls.StateDone {
		r.Duration = calls.FormatDuration(r.DurationSeconds)
	}
	return r, nil
}

func (r *PostgresRepo) FetchQueue(ctx context.Context) ([]calls.Record, error) {
	q := `
SELECT ` + recordColumns + `
FROM phonecalls
WHERE agent_id = $1 AND in_queue
ORDER BY priority DESC, created_at ASC, id ASC
`
	rows, err := r.db.QueryContext(ctx, q, r.agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calls.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) RemoveFromQueue(ctx context.Context, id string) error {
	const q = `UPDATE phonecalls SET in_queue = FALSE WHERE agent_id = $1 AND id = $2`
	return r.execOne(ctx, q, r.agentID, id)
}

func (r *PostgresRepo) MarkCallInitiated(ctx context.Context, id string) error {
	const q = `
UPDATE phonecalls
SET state = 'in_call', started_at = $3, ended_at = NULL
WHERE agent_id = $1 AND id = $2
`
	return r.execOne(ctx, q, r.agentID, id, r.clock().UTC())
}

func (r *PostgresRepo) MarkCallRejected(ctx context.Context, id string) error {
	const q = `
UPDATE phonecalls
SET state = 'pending', started_at = NULL
WHERE agent_id = $1 AND id = $2
`
	return r.execOne(ctx, q, r.agentID, id)
}

// MarkCallEnded stamps ended_at and derives the duration from started_at
// under a row lock so a concurrent rejection cannot interleave.
func (r *PostgresRepo) MarkCallEnded(ctx context.Context, id string) (float64, error) {
	var secs float64
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const sel = `
SELECT started_at
FROM phonecalls
WHERE agent_id = $1 AND id = $2
FOR UPDATE
`
		var started sql.NullTime
		if err := tx.QueryRowContext(ctx, sel, r.agentID, id).Scan(&started); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		now := r.clock().UTC()
		if started.Valid {
			secs = now.Sub(started.Time).Seconds()
		}
		const upd = `
UPDATE phonecalls
SET state = 'done', ended_at = $3, duration_seconds = $4
WHERE agent_id = $1 AND id = $2
`
		_, err := tx.ExecContext(ctx, upd, r.agentID, id, now, secs)
		return err
	})
	if err != nil {
		return 0, err
	}
	return secs, nil
}

func (r *PostgresRepo) CreateAdHocCall(ctx context.Context, req AdHocRequest) (calls.Record, error) {
	if err := req.Validate(); err != nil {
		return calls.Record{}, err
	}
	rec := calls.Record{Name: adHocName(req), Phone: strings.TrimSpace(req.Number)}
	if req.Ref != nil {
		c, err := r.contact(ctx, *req.Ref)
		if err != nil {
			return calls.Record{}, err
		}
		rec = recordForContact(c)
	}
	return r.insert(ctx, r.db, rec)
}

func (r *PostgresRepo) ScheduleAnother(ctx context.Context, id string) (calls.Record, error) {
	var out calls.Record
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		q := `SELECT ` + recordColumns + ` FROM phonecalls WHERE agent_id = $1 AND id = $2`
		src, err := scanRecord(tx.QueryRowContext(ctx, q, r.agentID, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		src.ID = ""
		src.State = calls.StatePending
		src.DurationSeconds = 0
		src.Duration = ""
		out, err = r.insert(ctx, tx, src)
		return err
	})
	return out, err
}

func (r *PostgresRepo) LogOutcome(ctx context.Context, o Outcome) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.LoggedAt.IsZero() {
		o.LoggedAt = r.clock().UTC()
	}
	if o.AgentID == "" {
		o.AgentID = r.agentID
	}
	const q = `
INSERT INTO call_outcomes (id, call_id, agent_id, number, duration_seconds, auto_dial, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err := r.db.ExecContext(ctx, q,
		uuid.NewString(),
		o.CallID,
		o.AgentID,
		o.Number,
		o.DurationSeconds,
		o.AutoDial,
		o.Note,
		o.LoggedAt,
	)
	return err
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *PostgresRepo) insert(ctx context.Context, db execQuerier, rec calls.Record) (calls.Record, error) {
	rec.ID = uuid.NewString()
	rec.State = calls.StatePending
	rec.CreatedAt = r.clock().UTC()
	const q = `
INSERT INTO phonecalls (id, agent_id, name, partner_id, partner_name, partner_email, phone,
	opportunity_id, opportunity_name, description, priority, state, in_queue, duration_seconds, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE, 0, $13)
`
	_, err := db.ExecContext(ctx, q,
		rec.ID,
		r.agentID,
		rec.Name,
		rec.PartnerID,
		rec.PartnerName,
		rec.PartnerEmail,
		rec.Phone,
		rec.OpportunityID,
		rec.OpportunityName,
		rec.Description,
		rec.Priority,
		string(rec.State),
		rec.CreatedAt,
	)
	if err != nil {
		return calls.Record{}, fmt.Errorf("insert phonecall: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepo) contact(ctx context.Context, ref calls.Ref) (Contact, error) {
	const q = `
SELECT model, ref_id, display_name, partner_id, partner_name, partner_email, phone
FROM directory_contacts
WHERE model = $1 AND ref_id = $2
`
	var c Contact
	if err := r.db.QueryRowContext(ctx, q, ref.Model, ref.ID).Scan(
		&c.Ref.Model,
		&c.Ref.ID,
		&c.Name,
		&c.PartnerID,
		&c.PartnerName,
		&c.PartnerEmail,
		&c.Phone,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, err
	}
	return c, nil
}

func (r *PostgresRepo) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
