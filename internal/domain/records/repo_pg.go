package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/hipaa"
)

// RepoPG stores clinical records in PostgreSQL. The payload columns hold the
// sealed form only; plaintext never touches the database.
type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) Create(ctx context.Context, rec *ClinicalRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO clinical_records
			(id, patient_email, field_class, title, algorithm, key_version, key_salt, nonce, ciphertext, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.PatientEmail, string(rec.FieldClass), rec.Title,
		rec.Payload.Algorithm, rec.Payload.KeyVersion, rec.Payload.KeySalt,
		rec.Payload.Nonce, rec.Payload.Ciphertext, rec.CreatedBy, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert clinical record: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClinicalRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, patient_email, field_class, title, algorithm, key_version, key_salt, nonce, ciphertext, created_by, created_at
		FROM clinical_records WHERE id = $1`,
		id,
	)

	var rec ClinicalRecord
	var class string
	payload := &hipaa.EncryptedRecord{}
	err := row.Scan(&rec.ID, &rec.PatientEmail, &class, &rec.Title,
		&payload.Algorithm, &payload.KeyVersion, &payload.KeySalt,
		&payload.Nonce, &payload.Ciphertext, &rec.CreatedBy, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select clinical record: %w", err)
	}
	rec.FieldClass = auth.FieldClass(class)
	payload.FieldClass = class
	rec.Payload = payload
	return &rec, nil
}

func (r *RepoPG) ListByPatient(ctx context.Context, patientEmail string, limit, offset int) ([]Meta, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM clinical_records WHERE patient_email = $1`,
		patientEmail).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count clinical records: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_email, field_class, title, key_version, created_by, created_at
		FROM clinical_records
		WHERE patient_email = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		patientEmail, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list clinical records: %w", err)
	}
	defer rows.Close()

	var out []Meta
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.ID, &m.PatientEmail, &m.FieldClass, &m.Title,
			&m.KeyVersion, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan clinical record: %w", err)
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}
