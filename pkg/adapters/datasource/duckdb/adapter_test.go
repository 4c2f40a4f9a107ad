package duckdb

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "/data/w.duckdb", DSN(models.TargetDescriptor{Path: "/data/w.duckdb"}))
	assert.Equal(t, "/data/w.duckdb?access_mode=read_only",
		DSN(models.TargetDescriptor{Path: "/data/w.duckdb", Options: map[string]string{"access_mode": "read_only"}}))
}

func TestConvertValue(t *testing.T) {
	now := time.Now()
	assert.Equal(t, now, convertValue("TIMESTAMP", now))
	assert.Equal(t, "12345678901234567890", convertValue("HUGEINT", new(big.Int).SetUint64(12345678901234567890)))
	assert.Equal(t, int32(7), convertValue("INTEGER", int32(7)))
}

func TestConnection(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping DuckDB file test in short mode")
	}
	ctx := context.Background()
	cm := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{PoolMaxConns: 1}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = cm.Close() })

	target := models.TargetDescriptor{ID: "lake", Kind: models.TargetKindDuckDB, Path: filepath.Join(t.TempDir(), "lake.duckdb")}
	conn, err := Open(ctx, target, cm)
	require.NoError(t, err)

	_, err = conn.Execute(ctx, "CREATE TABLE trips (id INTEGER PRIMARY KEY, city VARCHAR NOT NULL, km DOUBLE)", false)
	require.NoError(t, err)
	_, err = conn.Execute(ctx, "INSERT INTO trips VALUES (1, 'Oslo', 12.5), (2, 'Bergen', 7.0)", false)
	require.NoError(t, err)

	res, err := conn.Query(ctx, "SELECT city, km FROM trips ORDER BY id", 10)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Oslo", 12.5}, {"Bergen", 7.0}}, res.Rows)

	tables, err := conn.ExtractSchema(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "main", tables[0].SchemaName)
	require.Len(t, tables[0].Columns, 3)
	assert.True(t, tables[0].Columns[0].IsPrimaryKey)
	assert.False(t, tables[0].Columns[1].IsNullable)
}
