// Package audit provides the append-only security audit trail. Recording is
// best effort: a failing sink logs the problem and returns, it never blocks
// or fails the operation being audited. Authorization decisions are made
// elsewhere and never depend on the audit path.
package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how the audited operation ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Severity ranks how urgently an entry should be reviewed.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Entry is one immutable audit record.
type Entry struct {
	ID           uuid.UUID         `json:"id"`
	OccurredAt   time.Time         `json:"occurred_at"`
	Actor        string            `json:"actor"`
	Action       string            `json:"action"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	Outcome      Outcome           `json:"outcome"`
	Severity     Severity          `json:"severity"`
	Details      map[string]string `json:"details,omitempty"`
}

// Recorder appends entries to the audit trail.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Action codes. Kept as constants so queries over the trail do not chase
// free-form strings.
const (
	ActionLogin           = "auth.login"
	ActionMFAVerify       = "auth.mfa_verify"
	ActionMFAProvision    = "auth.mfa_provision"
	ActionTokenRefresh    = "auth.token_refresh"
	ActionTokenReuse      = "auth.token_reuse"
	ActionLogout          = "auth.logout"
	ActionUserCreate      = "account.create"
	ActionPasswordMigrate = "account.password_migrate"
	ActionFieldDecrypt    = "phi.decrypt"
	ActionFieldEncrypt    = "phi.encrypt"
	ActionRecordCreate    = "record.create"
)

// withDefaults fills the id and timestamp on entries built inline by
// callers. Recorder implementations apply it before persisting.
func withDefaults(e Entry) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return e
}

func newEntry(actor, action string, outcome Outcome, severity Severity) Entry {
	return Entry{
		ID:         uuid.New(),
		OccurredAt: time.Now().UTC(),
		Actor:      actor,
		Action:     action,
		Outcome:    outcome,
		Severity:   severity,
	}
}

// LoginSucceeded records a completed authentication.
func LoginSucceeded(actor string) Entry {
	return newEntry(actor, ActionLogin, OutcomeSuccess, SeverityInfo)
}

// LoginFailed records a failed authentication with the internal reason. The
// reason never leaves the audit trail.
func LoginFailed(actor, reason string) Entry {
	e := newEntry(actor, ActionLogin, OutcomeFailure, SeverityWarn)
	e.Details = map[string]string{"reason": reason}
	return e
}

// TokenReuseDetected records consumption of an already-rotated refresh token
// and the resulting family revocation.
func TokenReuseDetected(actor string, familyID uuid.UUID, revoked int) Entry {
	e := newEntry(actor, ActionTokenReuse, OutcomeDenied, SeverityCritical)
	e.ResourceType = "token_family"
	e.ResourceID = familyID.String()
	e.Details = map[string]string{"sessions_revoked": strconv.Itoa(revoked)}
	return e
}

// DecryptAttempt records one field decryption attempt, whatever its outcome.
func DecryptAttempt(actor, fieldClass, recordID string, outcome Outcome, severity Severity, reason string) Entry {
	e := newEntry(actor, ActionFieldDecrypt, outcome, severity)
	e.ResourceType = fieldClass
	e.ResourceID = recordID
	if reason != "" {
		e.Details = map[string]string{"reason": reason}
	}
	return e
}
