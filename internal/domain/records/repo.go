package records

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("records: not found")

// Repository persists encrypted clinical records.
type Repository interface {
	Create(ctx context.Context, r *ClinicalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*ClinicalRecord, error)
	ListByPatient(ctx context.Context, patientEmail string, limit, offset int) ([]Meta, int, error)
}
