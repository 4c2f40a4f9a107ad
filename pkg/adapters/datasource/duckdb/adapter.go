// Package duckdb connects to DuckDB database files.
package duckdb

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/marcboeker/go-duckdb/v2" // registers the duckdb driver

	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// Dialect is DuckDB's SQL flavor.
var Dialect = datasource.Dialect{
	Kind:         models.TargetKindDuckDB,
	Name:         "DuckDB",
	LimitStyle:   datasource.LimitClause,
	ConvertValue: convertValue,
}

// DSN builds the driver connection string. Options become config parameters,
// e.g. access_mode=read_only.
func DSN(target models.TargetDescriptor) string {
	if len(target.Options) == 0 {
		return target.Path
	}
	query := url.Values{}
	for k, v := range target.Options {
		query.Set(k, v)
	}
	return target.Path + "?" + query.Encode()
}

// Open acquires the managed pool for target.
func Open(ctx context.Context, target models.TargetDescriptor, connMgr *datasource.ConnectionManager) (datasource.Connection, error) {
	return datasource.OpenDB(ctx, target, connMgr, "duckdb", DSN(target), Dialect, extractSchema)
}

// convertValue renders DuckDB's big-number and decimal types as text.
func convertValue(_ string, v any) any {
	if _, ok := v.(time.Time); ok {
		return v
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return v
}

const columnsQuery = `
SELECT
    c.table_schema AS schema_name,
    c.table_name,
    c.column_name,
    c.data_type,
    (c.is_nullable = 'YES') AS is_nullable,
    EXISTS (
        SELECT 1 FROM duckdb_constraints() k
        WHERE k.constraint_type = 'PRIMARY KEY'
          AND k.schema_name = c.table_schema
          AND k.table_name = c.table_name
          AND list_contains(k.constraint_column_names, c.column_name)
    ) AS is_primary_key
FROM information_schema.columns c
WHERE c.table_catalog = current_database()
  AND c.table_schema NOT IN ('information_schema', 'pg_catalog')
ORDER BY c.table_schema, c.table_name, c.ordinal_position`

func extractSchema(ctx context.Context, db *sqlx.DB) ([]models.SchemaTable, error) {
	var rows []datasource.ColumnRow
	if err := db.SelectContext(ctx, &rows, columnsQuery); err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	return datasource.GroupColumns(rows), nil
}
