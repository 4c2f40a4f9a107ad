package mssql

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

const columnsQuery = `
SELECT
    s.name AS schema_name,
    o.name AS table_name,
    c.name AS column_name,
    tp.name AS data_type,
    CAST(c.is_nullable AS bit) AS is_nullable,
    CAST(CASE WHEN pk.column_id IS NOT NULL THEN 1 ELSE 0 END AS bit) AS is_primary_key
FROM sys.columns c
INNER JOIN sys.objects o ON c.object_id = o.object_id
INNER JOIN sys.schemas s ON o.schema_id = s.schema_id
INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
LEFT JOIN (
    SELECT ic.object_id, ic.column_id
    FROM sys.index_columns ic
    INNER JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
    WHERE i.is_primary_key = 1
) pk ON c.object_id = pk.object_id AND c.column_id = pk.column_id
WHERE o.type IN ('U', 'V')
  AND o.is_ms_shipped = 0
  AND s.name NOT IN ('sys', 'INFORMATION_SCHEMA')
ORDER BY s.name, o.name, c.column_id`

func extractSchema(ctx context.Context, db *sqlx.DB) ([]models.SchemaTable, error) {
	var rows []datasource.ColumnRow
	if err := db.SelectContext(ctx, &rows, columnsQuery); err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	return datasource.GroupColumns(rows), nil
}
