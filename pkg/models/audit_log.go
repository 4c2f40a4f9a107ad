package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit outcomes. Every pipeline request that reaches the validator produces
// exactly one audit record.
const (
	AuditOutcomeSucceeded = "succeeded"
	AuditOutcomeEmpty     = "empty"
	AuditOutcomeFailed    = "failed"
	AuditOutcomeRejected  = "rejected"
)

// AuditRecord links a request's identity, role, target and outcome.
// Stored in the query_audit table.
type AuditRecord struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	RequestID  uuid.UUID     `json:"request_id" db:"request_id"`
	RoleName   string        `json:"role" db:"role_name"`
	UserID     string        `json:"user_id" db:"user_id"` // opaque pass-through from auth
	TargetDB   string        `json:"target_db" db:"target_db"`
	Kind       StatementKind `json:"statement_kind" db:"statement_kind"`
	Outcome    string        `json:"outcome" db:"outcome"`
	Reason     RejectReason  `json:"reason,omitempty" db:"reason"`
	DurationMs int64         `json:"duration_ms" db:"duration_ms"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}
