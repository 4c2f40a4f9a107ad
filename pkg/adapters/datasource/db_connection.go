package datasource

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// SchemaFunc reads schema metadata through a database/sql pool.
type SchemaFunc func(ctx context.Context, db *sqlx.DB) ([]models.SchemaTable, error)

// DBConnection is a Connection over a managed database/sql pool.
type DBConnection struct {
	*SQLExecutor
	db      *sqlx.DB
	dialect Dialect
	schema  SchemaFunc
}

// NewDBConnection assembles a connection from a pool, its dialect and a schema reader.
func NewDBConnection(db *sqlx.DB, dialect Dialect, schema SchemaFunc) *DBConnection {
	return &DBConnection{
		SQLExecutor: NewSQLExecutor(db, dialect),
		db:          db,
		dialect:     dialect,
		schema:      schema,
	}
}

// OpenDB acquires the managed pool for target, opening it with driverName and
// dsn when needed, and wraps it as a Connection.
func OpenDB(ctx context.Context, target models.TargetDescriptor, connMgr *ConnectionManager,
	driverName, dsn string, dialect Dialect, schema SchemaFunc) (*DBConnection, error) {
	connector, err := connMgr.GetOrCreateConnection(ctx, target.ID, func(ctx context.Context, cfg ConnectionManagerConfig) (PoolConnector, error) {
		db, err := sqlx.Open(driverName, dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s connection: %w", target.Kind, err)
		}
		db.SetMaxOpenConns(int(cfg.PoolMaxConns))
		db.SetMaxIdleConns(int(cfg.PoolMinConns))
		db.SetConnMaxIdleTime(time.Duration(cfg.TTLMinutes) * time.Minute)
		return NewDBPoolWrapper(db, target.Kind), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pooled connection: %w", err)
	}

	db, err := GetDB(connector)
	if err != nil {
		return nil, err
	}
	return NewDBConnection(db, dialect, schema), nil
}

// ExtractSchema reads and sorts the target's tables.
func (c *DBConnection) ExtractSchema(ctx context.Context) ([]models.SchemaTable, error) {
	tables, err := c.schema(ctx, c.db)
	if err != nil {
		return nil, err
	}
	SortTables(tables)
	return tables, nil
}

// Ping verifies the pool is alive.
func (c *DBConnection) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Dialect returns the target's SQL dialect.
func (c *DBConnection) Dialect() Dialect {
	return c.dialect
}

// Close releases the handle. The pool itself is owned by the connection manager.
func (c *DBConnection) Close() error {
	return nil
}

// SortTables orders tables by schema then name.
func SortTables(tables []models.SchemaTable) {
	sort.SliceStable(tables, func(i, j int) bool {
		if tables[i].SchemaName != tables[j].SchemaName {
			return tables[i].SchemaName < tables[j].SchemaName
		}
		return tables[i].TableName < tables[j].TableName
	})
}

// GroupColumns folds column rows, already ordered by table then ordinal,
// into tables.
func GroupColumns(rows []ColumnRow) []models.SchemaTable {
	var tables []models.SchemaTable
	index := make(map[string]int)
	for _, r := range rows {
		key := r.SchemaName + "\x00" + r.TableName
		i, ok := index[key]
		if !ok {
			i = len(tables)
			index[key] = i
			tables = append(tables, models.SchemaTable{SchemaName: r.SchemaName, TableName: r.TableName})
		}
		tables[i].Columns = append(tables[i].Columns, models.SchemaColumn{
			ColumnName:   r.ColumnName,
			DataType:     r.DataType,
			IsNullable:   r.IsNullable,
			IsPrimaryKey: r.IsPrimaryKey,
		})
	}
	return tables
}

// ColumnRow is one row of a catalog column query.
type ColumnRow struct {
	SchemaName   string `db:"schema_name"`
	TableName    string `db:"table_name"`
	ColumnName   string `db:"column_name"`
	DataType     string `db:"data_type"`
	IsNullable   bool   `db:"is_nullable"`
	IsPrimaryKey bool   `db:"is_primary_key"`
}

var _ Connection = (*DBConnection)(nil)
