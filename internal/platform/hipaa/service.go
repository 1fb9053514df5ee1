package hipaa

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/audit"
	"github.com/hms/hms/internal/platform/auth"
)

// ErrDecryptDenied is returned when the caller's role has no decrypt grant
// for the record's field class. The check runs before any key material is
// derived.
var ErrDecryptDenied = errors.New("hipaa: decrypt denied")

// FieldService is the only path application code uses to open protected
// fields. Every attempt lands in the audit trail exactly once, whatever the
// outcome.
type FieldService struct {
	enc      *FieldEncryptor
	recorder audit.Recorder
	logger   zerolog.Logger
}

func NewFieldService(enc *FieldEncryptor, recorder audit.Recorder, logger zerolog.Logger) *FieldService {
	return &FieldService{
		enc:      enc,
		recorder: recorder,
		logger:   logger.With().Str("component", "hipaa").Logger(),
	}
}

// Encrypt seals a field value. recordID may be empty when the record has not
// been assigned an id yet.
func (s *FieldService) Encrypt(plaintext []byte, fieldClass auth.FieldClass) (*EncryptedRecord, error) {
	return s.enc.Encrypt(plaintext, string(fieldClass))
}

// Decrypt authorizes, opens, and audits one field access. Denials audit as
// warn; an authenticated ciphertext failing its tag audits as critical since
// it means stored data was altered.
func (s *FieldService) Decrypt(ctx context.Context, rec *EncryptedRecord, recordID, actor string, role auth.Role) ([]byte, error) {
	class := auth.FieldClass(rec.FieldClass)
	if !auth.CanDecrypt(role, class) {
		s.recorder.Record(ctx, audit.DecryptAttempt(
			actor, rec.FieldClass, recordID,
			audit.OutcomeDenied, audit.SeverityWarn, "role lacks field class grant"))
		return nil, ErrDecryptDenied
	}

	plaintext, err := s.enc.Decrypt(rec)
	if err != nil {
		if errors.Is(err, ErrIntegrityFailure) {
			s.logger.Error().
				Str("record_id", recordID).
				Str("field_class", rec.FieldClass).
				Msg("ciphertext failed authentication")
			s.recorder.Record(ctx, audit.DecryptAttempt(
				actor, rec.FieldClass, recordID,
				audit.OutcomeFailure, audit.SeverityCritical, "integrity failure"))
			return nil, err
		}
		s.recorder.Record(ctx, audit.DecryptAttempt(
			actor, rec.FieldClass, recordID,
			audit.OutcomeFailure, audit.SeverityWarn, err.Error()))
		return nil, err
	}

	s.recorder.Record(ctx, audit.DecryptAttempt(
		actor, rec.FieldClass, recordID,
		audit.OutcomeSuccess, audit.SeverityInfo, ""))
	return plaintext, nil
}
