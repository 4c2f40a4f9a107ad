// Package audit records who ran what against which target database.
//
// Every pipeline request that reaches the validator produces one record. The
// SecurityAuditor writes it as a structured SIEM event through a dedicated
// zap logger; a Store optionally persists it for later review.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a string literal.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventStatementRejected is logged when the validator rejects a generated statement.
	EventStatementRejected SecurityEventType = "statement_rejected"
	// EventQueryExecution is logged for every executed statement.
	EventQueryExecution SecurityEventType = "query_execution"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID uuid.UUID         `json:"request_id"`
	UserID    string            `json:"user_id,omitempty"`
	RoleName  string            `json:"role"`
	TargetDB  string            `json:"target_db"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a security auditor logging under the
// "security_audit" namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

func newEvent(eventType SecurityEventType, rec models.AuditRecord, severity string, details any) SecurityEvent {
	return SecurityEvent{
		Timestamp: rec.CreatedAt.UTC(),
		EventType: eventType,
		RequestID: rec.RequestID,
		UserID:    rec.UserID,
		RoleName:  rec.RoleName,
		TargetDB:  rec.TargetDB,
		Details:   details,
		Severity:  severity,
	}
}

func (a *SecurityAuditor) fields(event SecurityEvent) []zap.Field {
	// Marshaling known types cannot fail.
	eventJSON, _ := json.Marshal(event)
	return []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", event.RequestID.String()),
		zap.String("user_id", event.UserID),
		zap.String("role", event.RoleName),
		zap.String("target_db", event.TargetDB),
		zap.String("severity", event.Severity),
	}
}

// LogInjectionAttempt records a literal flagged by libinjection. Logged at
// ERROR level with "critical" severity for immediate alerting.
func (a *SecurityAuditor) LogInjectionAttempt(rec models.AuditRecord, detail string) {
	event := newEvent(EventSQLInjectionAttempt, rec, "critical", map[string]string{
		"detail": truncate(detail, 200),
	})
	a.logger.Error("SQL injection attempt detected", a.fields(event)...)
}

// LogRejection records a validator rejection at WARN level.
func (a *SecurityAuditor) LogRejection(rec models.AuditRecord, detail string) {
	event := newEvent(EventStatementRejected, rec, "warning", map[string]string{
		"reason":         string(rec.Reason),
		"statement_kind": string(rec.Kind),
		"detail":         detail,
	})
	a.logger.Warn("Statement rejected",
		append(a.fields(event), zap.String("reason", string(rec.Reason)))...)
}

// LogQueryExecution records an executed statement and its outcome at INFO level.
func (a *SecurityAuditor) LogQueryExecution(rec models.AuditRecord) {
	event := newEvent(EventQueryExecution, rec, "info", map[string]any{
		"statement_kind": string(rec.Kind),
		"outcome":        rec.Outcome,
		"duration_ms":    rec.DurationMs,
	})
	a.logger.Info("Query executed",
		append(a.fields(event),
			zap.String("statement_kind", string(rec.Kind)),
			zap.String("outcome", rec.Outcome),
			zap.Int64("duration_ms", rec.DurationMs),
		)...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
