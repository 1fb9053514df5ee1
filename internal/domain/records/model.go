package records

import (
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/hipaa"
)

// ClinicalRecord is one encrypted clinical payload. The payload itself only
// exists in plaintext inside a request that passed the decrypt permission
// check; at rest and in listings the record is metadata plus ciphertext.
type ClinicalRecord struct {
	ID           uuid.UUID
	PatientEmail string
	FieldClass   auth.FieldClass
	Title        string
	Payload      *hipaa.EncryptedRecord
	CreatedBy    string
	CreatedAt    time.Time
}

// Meta is the listing projection: everything except the sealed payload.
type Meta struct {
	ID           uuid.UUID `json:"id"`
	PatientEmail string    `json:"patient_email"`
	FieldClass   string    `json:"field_class"`
	Title        string    `json:"title"`
	KeyVersion   int       `json:"key_version"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// Meta returns the record's listing projection.
func (r *ClinicalRecord) Meta() Meta {
	return Meta{
		ID:           r.ID,
		PatientEmail: r.PatientEmail,
		FieldClass:   string(r.FieldClass),
		Title:        r.Title,
		KeyVersion:   r.Payload.KeyVersion,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
	}
}

// writeCapability maps a field class to the capability required to author
// records of that class.
func writeCapability(class auth.FieldClass) (auth.Capability, bool) {
	switch class {
	case auth.FieldMedicalFile:
		return auth.CapWriteMedicalFile, true
	case auth.FieldLabReport:
		return auth.CapWriteLabReport, true
	case auth.FieldPrescription:
		return auth.CapWritePrescription, true
	case auth.FieldBillingLine:
		return auth.CapWriteBillingRecord, true
	case auth.FieldDemographic:
		return auth.CapUpdateDemographics, true
	default:
		return "", false
	}
}
