// Package sqlite connects to SQLite database files.
package sqlite

import (
	"context"
	"net/url"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// Dialect is SQLite's SQL flavor. Queries run with query_only set, so any
// write reaching the engine fails with SQLITE_READONLY.
var Dialect = datasource.Dialect{
	Kind:       models.TargetKindSQLite,
	Name:       "SQLite",
	LimitStyle: datasource.LimitClause,
	ReadOnly: &datasource.SessionToggle{
		Enable:  "PRAGMA query_only = ON",
		Disable: "PRAGMA query_only = OFF",
	},
}

// DSN builds a go-sqlite3 file URI. Target options are passed through as
// URI parameters, e.g. mode=ro.
func DSN(target models.TargetDescriptor) string {
	query := url.Values{}
	query.Set("_busy_timeout", "5000")
	query.Set("_foreign_keys", "on")
	for k, v := range target.Options {
		query.Set(k, v)
	}
	return "file:" + target.Path + "?" + query.Encode()
}

// Open acquires the managed pool for target.
func Open(ctx context.Context, target models.TargetDescriptor, connMgr *datasource.ConnectionManager) (datasource.Connection, error) {
	return datasource.OpenDB(ctx, target, connMgr, "sqlite3", DSN(target), Dialect, extractSchema)
}

// NewConnection wraps an already open database. The caller keeps ownership of db.
func NewConnection(db *sqlx.DB) *datasource.DBConnection {
	return datasource.NewDBConnection(db, Dialect, extractSchema)
}

const columnsQuery = `
SELECT
    '' AS schema_name,
    m.name AS table_name,
    p.name AS column_name,
    p.type AS data_type,
    p."notnull" = 0 AS is_nullable,
    p.pk > 0 AS is_primary_key
FROM sqlite_master m
JOIN pragma_table_info(m.name) p
WHERE m.type IN ('table', 'view')
  AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, p.cid`

func extractSchema(ctx context.Context, db *sqlx.DB) ([]models.SchemaTable, error) {
	var rows []datasource.ColumnRow
	if err := db.SelectContext(ctx, &rows, columnsQuery); err != nil {
		return nil, err
	}
	return datasource.GroupColumns(rows), nil
}
