package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// columnsQuery lists user columns with primary key membership, ordered so
// rows group by table.
const columnsQuery = `
SELECT
    c.table_schema AS schema_name,
    c.table_name,
    c.column_name,
    c.data_type,
    (c.is_nullable = 'YES') AS is_nullable,
    EXISTS (
        SELECT 1
        FROM information_schema.table_constraints tc
        JOIN information_schema.key_column_usage kcu
          ON kcu.constraint_name = tc.constraint_name
         AND kcu.table_schema = tc.table_schema
         AND kcu.table_name = tc.table_name
        WHERE tc.constraint_type = 'PRIMARY KEY'
          AND tc.table_schema = c.table_schema
          AND tc.table_name = c.table_name
          AND kcu.column_name = c.column_name
    ) AS is_primary_key
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema NOT IN ('pg_catalog', 'information_schema')
  AND c.table_schema NOT LIKE 'pg_toast%'
  AND t.table_type IN ('BASE TABLE', 'VIEW')
ORDER BY c.table_schema, c.table_name, c.ordinal_position`

// ExtractSchema returns user tables and views with their columns.
func (c *Connection) ExtractSchema(ctx context.Context) ([]models.SchemaTable, error) {
	rows, err := c.pool.Query(ctx, columnsQuery)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	columns, err := pgx.CollectRows(rows, pgx.RowToStructByName[datasource.ColumnRow])
	if err != nil {
		return nil, fmt.Errorf("scan column rows: %w", err)
	}

	tables := datasource.GroupColumns(columns)
	datasource.SortTables(tables)
	return tables, nil
}
