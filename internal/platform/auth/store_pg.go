package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSessionStore persists sessions in PostgreSQL. Consume relies on a single
// conditional UPDATE so rotation stays atomic without explicit locking.
type PGSessionStore struct {
	pool *pgxpool.Pool
}

func NewPGSessionStore(pool *pgxpool.Pool) *PGSessionStore {
	return &PGSessionStore{pool: pool}
}

func (p *PGSessionStore) Create(ctx context.Context, s *Session) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_email, role, token_hash, family_id, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserEmail, string(s.Role), s.TokenHash, s.FamilyID, s.ExpiresAt, s.Revoked, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (p *PGSessionStore) Consume(ctx context.Context, tokenHash string, now time.Time) (*Session, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE sessions SET revoked = TRUE
		WHERE token_hash = $1 AND revoked = FALSE AND expires_at > $2
		RETURNING id, user_email, role, token_hash, family_id, expires_at, revoked, created_at`,
		tokenHash, now,
	)
	s, err := scanSession(row)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("consume session: %w", err)
	}

	// Zero rows updated: the hash was never issued, the token was already
	// consumed, or it expired. The distinction drives the reuse cascade.
	row = p.pool.QueryRow(ctx, `
		SELECT id, user_email, role, token_hash, family_id, expires_at, revoked, created_at
		FROM sessions WHERE token_hash = $1`,
		tokenHash,
	)
	s, err = scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTokenUnknown
	}
	if err != nil {
		return nil, fmt.Errorf("inspect session: %w", err)
	}
	if s.Revoked {
		return s, ErrTokenReuse
	}
	return s, ErrTokenExpired
}

func (p *PGSessionStore) Revoke(ctx context.Context, tokenHash string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE sessions SET revoked = TRUE WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (p *PGSessionStore) RevokeFamily(ctx context.Context, familyID uuid.UUID) (int, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE sessions SET revoked = TRUE WHERE family_id = $1 AND revoked = FALSE`, familyID)
	if err != nil {
		return 0, fmt.Errorf("revoke family: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *PGSessionStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var role string
	err := row.Scan(&s.ID, &s.UserEmail, &role, &s.TokenHash, &s.FamilyID, &s.ExpiresAt, &s.Revoked, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Role = Role(role)
	return &s, nil
}
