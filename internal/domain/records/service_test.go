package records

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/audit"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/hipaa"
)

func testRecordsService(t *testing.T) (*Service, *audit.MemoryRecorder) {
	t.Helper()
	master := bytes.Repeat([]byte{0x42}, 32)
	ring, err := hipaa.NewKeyRing(master, 1)
	if err != nil {
		t.Fatalf("NewKeyRing() error: %v", err)
	}
	recorder := audit.NewMemoryRecorder()
	fields := hipaa.NewFieldService(hipaa.NewFieldEncryptor(ring), recorder, zerolog.Nop())
	return NewService(NewRepoMem(), fields, recorder, zerolog.Nop()), recorder
}

func TestCreate_CapabilityGate(t *testing.T) {
	svc, _ := testRecordsService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		role  auth.Role
		class auth.FieldClass
		allow bool
	}{
		{"doctor writes medical file", auth.RoleDoctor, auth.FieldMedicalFile, true},
		{"doctor writes prescription", auth.RoleDoctor, auth.FieldPrescription, true},
		{"lab technician writes lab report", auth.RoleLabTechnician, auth.FieldLabReport, true},
		{"accountant writes billing line", auth.RoleAccountant, auth.FieldBillingLine, true},
		{"receptionist updates demographics", auth.RoleReceptionist, auth.FieldDemographic, true},
		{"doctor updates demographics", auth.RoleDoctor, auth.FieldDemographic, false},
		{"nurse writes prescription", auth.RoleNurse, auth.FieldPrescription, false},
		{"admin writes medical file", auth.RoleAdmin, auth.FieldMedicalFile, false},
		{"receptionist writes lab report", auth.RoleReceptionist, auth.FieldLabReport, false},
		{"unknown field class", auth.RoleDoctor, auth.FieldClass("diary"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "actor@hospital.com", tc.role, "patient@example.com", tc.class, "note", []byte("payload"))
			if tc.allow && err != nil {
				t.Errorf("expected create to succeed, got %v", err)
			}
			if !tc.allow && !errors.Is(err, auth.ErrPermissionDenied) {
				t.Errorf("expected ErrPermissionDenied, got %v", err)
			}
		})
	}
}

func TestCreate_SealsPayload(t *testing.T) {
	svc, recorder := testRecordsService(t)

	rec, err := svc.Create(context.Background(), "doctor@hospital.com", auth.RoleDoctor,
		"patient@example.com", auth.FieldMedicalFile, "intake note", []byte("bp 120/80"))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if rec.Payload == nil || len(rec.Payload.Ciphertext) == 0 {
		t.Fatal("expected a sealed payload")
	}
	if bytes.Contains(rec.Payload.Ciphertext, []byte("bp 120/80")) {
		t.Error("payload stored in the clear")
	}
	if len(recorder.ByAction(audit.ActionRecordCreate)) != 1 {
		t.Error("expected a creation audit entry")
	}
}

func TestOpen_MatrixGate(t *testing.T) {
	svc, recorder := testRecordsService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "doctor@hospital.com", auth.RoleDoctor,
		"patient@example.com", auth.FieldMedicalFile, "intake note", []byte("bp 120/80"))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	t.Run("doctor opens", func(t *testing.T) {
		_, plaintext, err := svc.Open(ctx, "doctor@hospital.com", auth.RoleDoctor, rec.ID)
		if err != nil {
			t.Fatalf("Open() error: %v", err)
		}
		if !bytes.Equal(plaintext, []byte("bp 120/80")) {
			t.Errorf("plaintext = %q", plaintext)
		}
	})

	t.Run("accountant denied", func(t *testing.T) {
		_, _, err := svc.Open(ctx, "accountant@hospital.com", auth.RoleAccountant, rec.ID)
		if !errors.Is(err, hipaa.ErrDecryptDenied) {
			t.Errorf("expected ErrDecryptDenied, got %v", err)
		}
	})

	t.Run("admin denied", func(t *testing.T) {
		_, _, err := svc.Open(ctx, "admin@hospital.com", auth.RoleAdmin, rec.ID)
		if !errors.Is(err, hipaa.ErrDecryptDenied) {
			t.Errorf("expected ErrDecryptDenied, got %v", err)
		}
	})

	t.Run("unknown record", func(t *testing.T) {
		_, _, err := svc.Open(ctx, "doctor@hospital.com", auth.RoleDoctor, uuid.New())
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	// Every decrypt attempt above landed in the trail.
	attempts := recorder.ByAction(audit.ActionFieldDecrypt)
	if len(attempts) != 3 {
		t.Errorf("decrypt audit entries = %d, want 3", len(attempts))
	}
}

func TestOpen_PatientOwnership(t *testing.T) {
	svc, recorder := testRecordsService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, "doctor@hospital.com", auth.RoleDoctor,
		"alice@example.com", auth.FieldMedicalFile, "intake note", []byte("bp 120/80"))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	t.Run("own record", func(t *testing.T) {
		_, plaintext, err := svc.Open(ctx, "alice@example.com", auth.RolePatient, rec.ID)
		if err != nil {
			t.Fatalf("Open() error: %v", err)
		}
		if !bytes.Equal(plaintext, []byte("bp 120/80")) {
			t.Errorf("plaintext = %q", plaintext)
		}
	})

	t.Run("another patient's record", func(t *testing.T) {
		_, _, err := svc.Open(ctx, "mallory@example.com", auth.RolePatient, rec.ID)
		if !errors.Is(err, auth.ErrPermissionDenied) {
			t.Fatalf("expected ErrPermissionDenied, got %v", err)
		}
		denied := 0
		for _, e := range recorder.ByAction(audit.ActionFieldDecrypt) {
			if e.Outcome == audit.OutcomeDenied && e.Actor == "mallory@example.com" {
				denied++
			}
		}
		if denied != 1 {
			t.Errorf("denied audit entries for intruder = %d, want 1", denied)
		}
	})
}

func TestList(t *testing.T) {
	svc, _ := testRecordsService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, "doctor@hospital.com", auth.RoleDoctor,
			"alice@example.com", auth.FieldMedicalFile, "visit note", []byte("payload")); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}
	if _, err := svc.Create(ctx, "doctor@hospital.com", auth.RoleDoctor,
		"bob@example.com", auth.FieldMedicalFile, "visit note", []byte("payload")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	metas, total, err := svc.List(ctx, "nurse@hospital.com", auth.RoleNurse, "alice@example.com", 2, 0)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 3 || len(metas) != 2 {
		t.Errorf("total=%d page=%d, want 3/2", total, len(metas))
	}

	t.Run("patient lists own", func(t *testing.T) {
		_, total, err := svc.List(ctx, "alice@example.com", auth.RolePatient, "alice@example.com", 10, 0)
		if err != nil {
			t.Fatalf("List() error: %v", err)
		}
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
	})

	t.Run("patient lists someone else", func(t *testing.T) {
		_, _, err := svc.List(ctx, "alice@example.com", auth.RolePatient, "bob@example.com", 10, 0)
		if !errors.Is(err, auth.ErrPermissionDenied) {
			t.Errorf("expected ErrPermissionDenied, got %v", err)
		}
	})
}
