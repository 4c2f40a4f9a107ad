package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

const fixture = `
CREATE TABLE regions (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE sales (
	id INTEGER PRIMARY KEY,
	region_id INTEGER NOT NULL REFERENCES regions(id),
	amount REAL NOT NULL CHECK (amount >= 0),
	note TEXT
);
INSERT INTO regions (id, name) VALUES (1, 'north'), (2, 'south'), (3, 'east');
INSERT INTO sales (region_id, amount) VALUES (1, 100), (1, 50), (2, 70), (3, 10);
`

func newTarget(t *testing.T) models.TargetDescriptor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.db")
	db, err := sqlx.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(fixture)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return models.TargetDescriptor{ID: "shop", Kind: models.TargetKindSQLite, Path: path}
}

func openConn(t *testing.T) datasource.Connection {
	t.Helper()
	cm := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = cm.Close() })

	conn, err := datasource.NewAdapterFactory(cm).Open(context.Background(), newTarget(t))
	require.NoError(t, err)
	return conn
}

func TestDSN(t *testing.T) {
	dsn := DSN(models.TargetDescriptor{Path: "/data/shop.db", Options: map[string]string{"mode": "ro"}})
	assert.Equal(t, "file:/data/shop.db?_busy_timeout=5000&_foreign_keys=on&mode=ro", dsn)
}

func TestQuery(t *testing.T) {
	conn := openConn(t)
	ctx := context.Background()

	res, err := conn.Query(ctx, `
		SELECT r.name AS region, SUM(s.amount) AS total
		FROM sales s JOIN regions r ON r.id = s.region_id
		GROUP BY r.name
		ORDER BY total DESC`, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "total"}, res.ColumnNames())
	require.Len(t, res.Rows, 3)
	assert.Equal(t, []any{"north", 150.0}, res.Rows[0])
	assert.False(t, res.Truncated)

	t.Run("row cap", func(t *testing.T) {
		res, err := conn.Query(ctx, "SELECT id FROM sales ORDER BY id", 2)
		require.NoError(t, err)
		assert.Len(t, res.Rows, 2)
		assert.True(t, res.Truncated)
	})

	t.Run("no rows", func(t *testing.T) {
		res, err := conn.Query(ctx, "SELECT id FROM sales WHERE amount > 1000", 10)
		require.NoError(t, err)
		assert.Empty(t, res.Rows)
		assert.Equal(t, []string{"id"}, res.ColumnNames())
	})

	t.Run("trailing comment", func(t *testing.T) {
		res, err := conn.Query(ctx, "SELECT 1 AS one -- note", 10)
		require.NoError(t, err)
		assert.Equal(t, [][]any{{int64(1)}}, res.Rows)
	})

	t.Run("identical results on repeat", func(t *testing.T) {
		q := "SELECT region_id, amount FROM sales ORDER BY id"
		first, err := conn.Query(ctx, q, 10)
		require.NoError(t, err)
		second, err := conn.Query(ctx, q, 10)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestQuery_ReadOnlySession(t *testing.T) {
	target := newTarget(t)
	db, err := sqlx.Open("sqlite3", DSN(target))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)
	conn := NewConnection(db)
	ctx := context.Background()

	_, err = conn.Query(ctx, "SELECT 1 AS [x']) AS a; INSERT INTO regions SELECT * FROM (SELECT 9, 'zz' --']", 100)
	assert.Error(t, err)

	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM regions"))
	assert.Equal(t, 3, count, "a query cannot write")

	var queryOnly int
	require.NoError(t, db.Get(&queryOnly, "PRAGMA query_only"))
	assert.Equal(t, 0, queryOnly, "the session leaves read-only mode after the query")

	res, err := conn.Execute(ctx, "INSERT INTO regions (id, name) VALUES (4, 'west')", false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)
}

func TestExecute(t *testing.T) {
	conn := openConn(t)
	ctx := context.Background()

	res, err := conn.Execute(ctx, "UPDATE sales SET note = 'checked' WHERE region_id = 1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.RowsAffected)

	res, err = conn.Execute(ctx, "DELETE FROM sales WHERE region_id = 3 RETURNING id", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, res.Columns)
	assert.Equal(t, int64(1), res.RowsAffected)

	t.Run("constraint failure leaves no partial update", func(t *testing.T) {
		// The first row updates cleanly before the second violates the CHECK.
		_, err := conn.Execute(ctx, "UPDATE sales SET amount = amount - 60", false)
		require.Error(t, err)

		after, err := conn.Query(ctx, "SELECT amount FROM sales ORDER BY id", 10)
		require.NoError(t, err)
		assert.Equal(t, [][]any{{100.0}, {50.0}, {70.0}}, after.Rows)
	})
}

func TestExtractSchema(t *testing.T) {
	conn := openConn(t)

	tables, err := conn.ExtractSchema(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 2)

	assert.Equal(t, "regions", tables[0].TableName)
	assert.Equal(t, "sales", tables[1].TableName)

	sales := tables[1]
	require.Len(t, sales.Columns, 4)
	assert.Equal(t, models.SchemaColumn{ColumnName: "id", DataType: "INTEGER", IsNullable: true, IsPrimaryKey: true}, sales.Columns[0])
	assert.Equal(t, models.SchemaColumn{ColumnName: "amount", DataType: "REAL"}, sales.Columns[2])
	assert.True(t, sales.Columns[3].IsNullable)
}
