package records

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/audit"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/hipaa"
)

// Service seals clinical payloads on the way in and gates every decryption
// on the field matrix on the way out.
type Service struct {
	repo     Repository
	fields   *hipaa.FieldService
	recorder audit.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, fields *hipaa.FieldService, recorder audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		fields:   fields,
		recorder: recorder,
		logger:   logger.With().Str("component", "records").Logger(),
		now:      time.Now,
	}
}

// Create seals and stores a new clinical payload. The author's role must
// carry the write capability for the record's field class.
func (s *Service) Create(ctx context.Context, actor string, role auth.Role, patientEmail string, class auth.FieldClass, title string, payload []byte) (*ClinicalRecord, error) {
	required, ok := writeCapability(class)
	if !ok || !auth.Can(role, required) {
		return nil, auth.ErrPermissionDenied
	}

	sealed, err := s.fields.Encrypt(payload, class)
	if err != nil {
		return nil, err
	}

	rec := &ClinicalRecord{
		ID:           uuid.New(),
		PatientEmail: patientEmail,
		FieldClass:   class,
		Title:        title,
		Payload:      sealed,
		CreatedBy:    actor,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		Actor: actor, Action: audit.ActionRecordCreate,
		ResourceType: string(class), ResourceID: rec.ID.String(),
		Outcome: audit.OutcomeSuccess, Severity: audit.SeverityInfo,
	})
	return rec, nil
}

// Open fetches a record and decrypts its payload for the caller. Patients
// may only open their own records; staff access is governed by the field
// matrix alone.
func (s *Service) Open(ctx context.Context, actor string, role auth.Role, id uuid.UUID) (*ClinicalRecord, []byte, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if role == auth.RolePatient && rec.PatientEmail != actor {
		s.recorder.Record(ctx, audit.DecryptAttempt(
			actor, string(rec.FieldClass), rec.ID.String(),
			audit.OutcomeDenied, audit.SeverityWarn, "patient accessing another patient's record"))
		return nil, nil, auth.ErrPermissionDenied
	}

	plaintext, err := s.fields.Decrypt(ctx, rec.Payload, rec.ID.String(), actor, role)
	if err != nil {
		return nil, nil, err
	}
	return rec, plaintext, nil
}

// List returns record metadata for a patient. No decryption happens here.
func (s *Service) List(ctx context.Context, actor string, role auth.Role, patientEmail string, limit, offset int) ([]Meta, int, error) {
	if role == auth.RolePatient && patientEmail != actor {
		return nil, 0, auth.ErrPermissionDenied
	}
	return s.repo.ListByPatient(ctx, patientEmail, limit, offset)
}
