package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

const persistTimeout = 5 * time.Second

// Auditor receives exactly one call per audited pipeline request.
type Auditor interface {
	// Record logs an execution outcome.
	Record(ctx context.Context, rec models.AuditRecord) error

	// RecordRejection logs a statement the validator refused. detail is the
	// validator's explanation and never contains row data.
	RecordRejection(ctx context.Context, rec models.AuditRecord, detail string) error
}

type auditor struct {
	security *SecurityAuditor
	store    Store // nil when persistence is disabled
	logger   *zap.Logger
	now      func() time.Time
}

var _ Auditor = (*auditor)(nil)

// NewAuditor writes every record to the SIEM log and, when store is non-nil,
// persists it.
func NewAuditor(security *SecurityAuditor, store Store, logger *zap.Logger) Auditor {
	return &auditor{security: security, store: store, logger: logger.Named("audit"), now: time.Now}
}

func (a *auditor) fill(rec *models.AuditRecord) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = a.now().UTC()
	}
}

func (a *auditor) Record(ctx context.Context, rec models.AuditRecord) error {
	a.fill(&rec)
	a.security.LogQueryExecution(rec)
	return a.persist(ctx, rec)
}

func (a *auditor) RecordRejection(ctx context.Context, rec models.AuditRecord, detail string) error {
	a.fill(&rec)
	rec.Outcome = models.AuditOutcomeRejected
	if rec.Reason == models.ReasonInjectionSuspected {
		a.security.LogInjectionAttempt(rec, detail)
	}
	a.security.LogRejection(rec, detail)
	return a.persist(ctx, rec)
}

func (a *auditor) persist(ctx context.Context, rec models.AuditRecord) error {
	if a.store == nil {
		return nil
	}
	// Audit writes outlive a cancelled request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := a.store.Insert(ctx, rec); err != nil {
		a.logger.Error("failed to persist audit record",
			zap.String("request_id", rec.RequestID.String()),
			zap.String("error", logging.SanitizeError(err)),
		)
		return err
	}
	return nil
}
