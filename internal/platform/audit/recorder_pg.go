package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// Execer is the single pool method the recorder needs. Narrowed from
// pgxpool.Pool so the failure path can be exercised without a database.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGRecorder appends entries to the audit_log table. The table carries no
// UPDATE or DELETE grants for the application role, so the trail is
// append-only at the database level too.
type PGRecorder struct {
	pool   Execer
	logger zerolog.Logger
}

func NewPGRecorder(pool Execer, logger zerolog.Logger) *PGRecorder {
	return &PGRecorder{pool: pool, logger: logger.With().Str("component", "audit").Logger()}
}

func (r *PGRecorder) Record(ctx context.Context, e Entry) {
	e = withDefaults(e)
	var details []byte
	if e.Details != nil {
		details, _ = json.Marshal(e.Details)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (id, occurred_at, actor, action, resource_type, resource_id, outcome, severity, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.OccurredAt, e.Actor, e.Action, e.ResourceType, e.ResourceID,
		string(e.Outcome), string(e.Severity), details,
	)
	if err != nil {
		// Fail open: the audited operation has already been decided, a lost
		// entry must not turn into a lost request.
		r.logger.Error().Err(err).
			Str("action", e.Action).
			Str("actor", e.Actor).
			Msg("audit write failed, entry dropped")
	}
}
