package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// setupTestLogger creates a test logger with an observer to capture log entries.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	return zap.New(core), recorded
}

func testRecord() models.AuditRecord {
	return models.AuditRecord{
		ID:        uuid.New(),
		RequestID: uuid.New(),
		RoleName:  "analyst",
		UserID:    "user-123",
		TargetDB:  "sales",
		Kind:      models.KindSelect,
		Outcome:   models.AuditOutcomeSucceeded,
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func decodeEvent(t *testing.T, entry observer.LoggedEntry) SecurityEvent {
	t.Helper()
	raw, ok := entry.ContextMap()["event_json"].(string)
	require.True(t, ok, "event_json field missing")
	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	return event
}

func TestSecurityAuditor_Namespace(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	NewSecurityAuditor(logger).LogQueryExecution(testRecord())

	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "security_audit", recorded.All()[0].LoggerName)
}

func TestSecurityAuditor_Events(t *testing.T) {
	tests := []struct {
		name      string
		log       func(a *SecurityAuditor, rec models.AuditRecord)
		wantLevel zapcore.Level
		wantType  SecurityEventType
		wantSev   string
	}{
		{
			name:      "execution",
			log:       func(a *SecurityAuditor, rec models.AuditRecord) { a.LogQueryExecution(rec) },
			wantLevel: zapcore.InfoLevel,
			wantType:  EventQueryExecution,
			wantSev:   "info",
		},
		{
			name: "rejection",
			log: func(a *SecurityAuditor, rec models.AuditRecord) {
				rec.Reason = models.ReasonDMLNotPermitted
				a.LogRejection(rec, "role may not run DELETE")
			},
			wantLevel: zapcore.WarnLevel,
			wantType:  EventStatementRejected,
			wantSev:   "warning",
		},
		{
			name: "injection",
			log: func(a *SecurityAuditor, rec models.AuditRecord) {
				a.LogInjectionAttempt(rec, "string literal matches injection fingerprint s&1c")
			},
			wantLevel: zapcore.ErrorLevel,
			wantType:  EventSQLInjectionAttempt,
			wantSev:   "critical",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, recorded := setupTestLogger(t)
			rec := testRecord()
			tt.log(NewSecurityAuditor(logger), rec)

			require.Equal(t, 1, recorded.Len())
			entry := recorded.All()[0]
			assert.Equal(t, tt.wantLevel, entry.Level)

			fields := entry.ContextMap()
			assert.Equal(t, rec.RequestID.String(), fields["request_id"])
			assert.Equal(t, "user-123", fields["user_id"])
			assert.Equal(t, "analyst", fields["role"])
			assert.Equal(t, "sales", fields["target_db"])
			assert.Equal(t, tt.wantSev, fields["severity"])

			event := decodeEvent(t, entry)
			assert.Equal(t, tt.wantType, event.EventType)
			assert.Equal(t, rec.RequestID, event.RequestID)
			assert.Equal(t, tt.wantSev, event.Severity)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
