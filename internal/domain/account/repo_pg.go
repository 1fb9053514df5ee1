package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/auth"
)

// UserRepoPG stores accounts in PostgreSQL.
type UserRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepoPG(pool *pgxpool.Pool) *UserRepoPG {
	return &UserRepoPG{pool: pool}
}

func (r *UserRepoPG) Create(ctx context.Context, u *User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (email, password_hash, role, mfa_secret, mfa_enabled, failed_login_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.Email, u.PasswordHash, string(u.Role), u.MFASecret, u.MFAEnabled,
		u.FailedLoginAttempts, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT email, password_hash, role, mfa_secret, mfa_enabled,
		       failed_login_attempts, locked_until, last_login_at, created_at, updated_at
		FROM users WHERE email = $1`,
		email,
	)

	var u User
	var role string
	err := row.Scan(&u.Email, &u.PasswordHash, &role, &u.MFASecret, &u.MFAEnabled,
		&u.FailedLoginAttempts, &u.LockedUntil, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	u.Role = auth.Role(role)
	return &u, nil
}

func (r *UserRepoPG) UpdatePasswordHash(ctx context.Context, email, hash string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE email = $1`,
		email, hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}

func (r *UserRepoPG) SetMFASecret(ctx context.Context, email, secret string, enabled bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET mfa_secret = $2, mfa_enabled = $3, updated_at = now() WHERE email = $1`,
		email, secret, enabled)
	if err != nil {
		return fmt.Errorf("set mfa secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepoPG) RecordLoginFailure(ctx context.Context, email string, lockedUntil *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = COALESCE($2, locked_until),
		    updated_at = now()
		WHERE email = $1`,
		email, lockedUntil)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return nil
}

func (r *UserRepoPG) RecordLoginSuccess(ctx context.Context, email string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, last_login_at = $2, updated_at = now()
		WHERE email = $1`,
		email, at)
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	return nil
}
