package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

func validated(t *testing.T, statement string, role models.Role) ExecuteRequest {
	t.Helper()
	kind, op, err := sql.Classify(statement, sql.DialectSQLite)
	require.NoError(t, err)
	return ExecuteRequest{
		RequestID:  uuid.New(),
		SQL:        models.GeneratedSQL{SQL: statement, Kind: kind, Operation: op},
		Validation: sql.Validate(statement, role, sql.DialectSQLite),
		TargetDB:   "sales",
		Role:       role,
	}
}

func TestQueryExecutor_Idempotent(t *testing.T) {
	f := newFixture(t)
	exec := f.executor()
	req := validated(t, totalsSQL+";", analyst)

	first, err := exec.Execute(context.Background(), req)
	require.NoError(t, err)
	second, err := exec.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeRows, first.Outcome)
	assert.Equal(t, first, second)
	assert.Len(t, f.store.all(), 2, "every call is audited")
}

func TestQueryExecutor_RowCap(t *testing.T) {
	f := newFixture(t)
	exec := NewQueryExecutor(f.targets, f.factory, f.auditor, ExecutorConfig{MaxRows: 2}, f.logger)

	res, err := exec.Execute(context.Background(), validated(t, "SELECT id FROM sales ORDER BY id -- newest last", analyst))
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
	assert.True(t, res.Truncated)
}

func TestQueryExecutor_RefusesUnvalidated(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ExecuteRequest)
	}{
		{
			name: "rejected result",
			mutate: func(r *ExecuteRequest) {
				r.Validation = models.Reject(models.KindDelete, models.ReasonDMLNotPermitted, "no")
			},
		},
		{
			name: "forged valid result for a read-only role",
			mutate: func(r *ExecuteRequest) {
				r.Validation = models.Accept(models.KindDelete)
			},
		},
		{
			name: "kind mismatch",
			mutate: func(r *ExecuteRequest) {
				r.Role = admin
				r.Validation = models.Accept(models.KindDelete)
				r.SQL.Kind = models.KindSelect
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			before := f.salesTotal(t)
			req := validated(t, "DELETE FROM sales", analyst)
			tt.mutate(&req)

			res, err := f.executor().Execute(context.Background(), req)
			assert.ErrorIs(t, err, apperrors.ErrNotValidated)
			assert.True(t, res.IsFailed())
			assert.Equal(t, before, f.salesTotal(t))

			records := f.store.all()
			require.Len(t, records, 1)
			assert.Equal(t, models.AuditOutcomeFailed, records[0].Outcome)
		})
	}
}

func TestQueryExecutor_RechecksUnderTargetDialect(t *testing.T) {
	f := newFixture(t)
	before := f.salesTotal(t)
	statement := "SELECT 1 AS [x']) AS a; INSERT INTO sales (region, amount) SELECT * FROM (SELECT 'zz', 999 --']"
	req := ExecuteRequest{
		RequestID:  uuid.New(),
		SQL:        models.GeneratedSQL{SQL: statement, Kind: models.KindSelect, Operation: "SELECT"},
		Validation: models.Accept(models.KindSelect),
		TargetDB:   "sales",
		Role:       analyst,
	}

	res, err := f.executor().Execute(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrNotValidated)
	assert.True(t, res.IsFailed())
	assert.Equal(t, before, f.salesTotal(t))
}

func TestQueryExecutor_UnknownTarget(t *testing.T) {
	f := newFixture(t)
	req := validated(t, "SELECT 1", analyst)
	req.TargetDB = "nowhere"

	res, err := f.executor().Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.IsFailed())
	assert.Equal(t, `unknown target database "nowhere"`, res.Message)
}

func TestQueryExecutor_BackendErrorIsFailed(t *testing.T) {
	f := newFixture(t)

	res, err := f.executor().Execute(context.Background(), validated(t, "SELECT nope FROM sales", analyst))
	require.NoError(t, err)
	assert.True(t, res.IsFailed())
	assert.Contains(t, res.Message, "no such column")
}

func TestQueryExecutor_ReturningRows(t *testing.T) {
	f := newFixture(t)

	res, err := f.executor().Execute(context.Background(),
		validated(t, "DELETE FROM sales WHERE region = 'east' RETURNING id, region", admin))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRows, res.Outcome)
	assert.Equal(t, []string{"id", "region"}, res.Columns)
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.True(t, res.Write)
	assert.Equal(t, 220.0, f.salesTotal(t))
}

func TestQueryExecutor_SelectAliasedToRowsAffectedIsNotWrite(t *testing.T) {
	f := newFixture(t)

	res, err := f.executor().Execute(context.Background(),
		validated(t, "SELECT COUNT(*) AS rows_affected FROM sales", analyst))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRows, res.Outcome)
	assert.Equal(t, []string{RowsAffectedColumn}, res.Columns)
	assert.False(t, res.Write)
}

func TestQueryExecutor_CancelledRequestStillCompletes(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.executor().Execute(ctx, validated(t, "UPDATE sales SET amount = amount + 1", admin))
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.RowsAffected)
	assert.Equal(t, 254.0, f.salesTotal(t))
}
