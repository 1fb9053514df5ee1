package telemetry

import (
	"context"

	"github.com/hms/hms/internal/platform/audit"
)

// AuditHook wraps an audit recorder and mirrors security-relevant entries
// into the Prometheus counters before passing them on. Metrics and the audit
// trail stay consistent because both observe the same stream.
type AuditHook struct {
	next audit.Recorder
	m    *Metrics
}

func (m *Metrics) HookRecorder(next audit.Recorder) *AuditHook {
	return &AuditHook{next: next, m: m}
}

func (h *AuditHook) Record(ctx context.Context, e audit.Entry) {
	switch e.Action {
	case audit.ActionLogin:
		h.m.LoginAttempts.WithLabelValues(string(e.Outcome)).Inc()
	case audit.ActionTokenReuse:
		h.m.TokenReuse.Inc()
	case audit.ActionFieldDecrypt:
		h.m.PHIDecrypts.WithLabelValues(string(e.Outcome)).Inc()
	}
	h.next.Record(ctx, e)
}
