package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/registry"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

func TestSQLValidator_LogsRejections(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	v := NewSQLValidator(nil, zap.New(core))
	analyst := models.Role{Name: "analyst"}

	result := v.Validate("SELECT region, SUM(amount) FROM sales GROUP BY region", analyst, "")
	assert.True(t, result.Valid)
	assert.Equal(t, 0, logs.Len(), "accepted statements are not logged")

	result = v.Validate("DELETE FROM sales WHERE note = 'password=hunter2'", analyst, "")
	require.False(t, result.Valid)
	assert.Equal(t, models.ReasonDMLNotPermitted, result.Reason)
	assert.Equal(t, models.KindDelete, result.Kind)

	entries := logs.FilterMessage("statement rejected").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "analyst", fields["role"])
	assert.Equal(t, string(models.ReasonDMLNotPermitted), fields["reason"])
	assert.Equal(t, string(models.KindDelete), fields["statement_kind"])
	assert.NotContains(t, fields["sql"], "hunter2")
}

func TestSQLValidator_AllowsDMLForPermittedRole(t *testing.T) {
	v := NewSQLValidator(nil, zap.NewNop())

	result := v.Validate("UPDATE sales SET amount = 0 WHERE id = 1", models.Role{Name: "admin", AllowDML: true}, "")
	assert.Equal(t, models.Accept(models.KindUpdate), result)
}

func TestSQLValidator_UsesTargetDialect(t *testing.T) {
	targets, err := registry.NewTargetRegistry(map[string]models.TargetDescriptor{
		"shop":      {Kind: models.TargetKindSQLite, Path: "/data/shop.db"},
		"warehouse": {Kind: models.TargetKindPostgres, Host: "db", Database: "dw"},
	})
	require.NoError(t, err)
	core, logs := observer.New(zap.InfoLevel)
	v := NewSQLValidator(targets, zap.New(core))
	analyst := models.Role{Name: "analyst"}

	assert.True(t, v.Validate("SELECT [a;b] FROM sales", analyst, "shop").Valid)

	result := v.Validate("SELECT [a;b] FROM sales", analyst, "warehouse")
	assert.Equal(t, models.ReasonMultipleStatements, result.Reason)

	hidden := "SELECT 1 AS [x']) AS a; INSERT INTO sales SELECT * FROM (SELECT 999, 'zz' --']"
	for _, target := range []string{"shop", "", "missing"} {
		assert.False(t, v.Validate(hidden, analyst, target).Valid, target)
	}

	entries := logs.FilterMessage("statement rejected").All()
	require.NotEmpty(t, entries)
	fields := entries[0].ContextMap()
	assert.Equal(t, "warehouse", fields["target"])
	assert.Equal(t, string(sql.DialectPostgres), fields["dialect"])
}
