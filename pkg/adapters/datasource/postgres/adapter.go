// Package postgres connects to PostgreSQL targets through pgx.
package postgres

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// Dialect is PostgreSQL's SQL flavor.
var Dialect = datasource.Dialect{
	Kind:       models.TargetKindPostgres,
	Name:       "PostgreSQL",
	LimitStyle: datasource.LimitClause,
}

// Connection provides PostgreSQL query execution and schema extraction.
type Connection struct {
	pool *pgxpool.Pool
}

// Open acquires the managed pool for target.
func Open(ctx context.Context, target models.TargetDescriptor, connMgr *datasource.ConnectionManager) (*Connection, error) {
	connStr := buildConnectionString(target)

	connector, err := connMgr.GetOrCreateConnection(ctx, target.ID, func(ctx context.Context, cfg datasource.ConnectionManagerConfig) (datasource.PoolConnector, error) {
		poolConfig, err := pgxpool.ParseConfig(connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connection string: %w", err)
		}
		poolConfig.MaxConns = cfg.PoolMaxConns
		poolConfig.MinConns = cfg.PoolMinConns
		poolConfig.MaxConnIdleTime = time.Duration(cfg.TTLMinutes) * time.Minute

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return datasource.NewPostgresPoolWrapper(pool), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pooled connection: %w", err)
	}

	pool, err := datasource.GetPostgresPool(connector)
	if err != nil {
		return nil, fmt.Errorf("failed to extract postgres pool: %w", err)
	}
	return NewConnection(pool), nil
}

// NewConnection wraps an existing pool. The caller keeps ownership of pool.
func NewConnection(pool *pgxpool.Pool) *Connection {
	return &Connection{pool: pool}
}

// Query runs a capped SELECT in a read-only transaction. One extra row is
// requested to detect truncation.
func (c *Connection) Query(ctx context.Context, query string, limit int) (*datasource.QueryResult, error) {
	if limit <= 0 || limit > datasource.MaxQueryLimit {
		limit = datasource.MaxQueryLimit
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, Dialect.WrapLimit(query, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]datasource.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = datasource.ColumnInfo{
			Name: fd.Name,
			Type: pgTypeNameFromOID(fd.DataTypeOID),
		}
	}

	result := &datasource.QueryResult{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		if len(result.Rows) == limit {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		result.Rows = append(result.Rows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// Execute runs a write in a transaction. pgx reports RETURNING rows and the
// command tag through the same call, so returnsRows is not needed here.
func (c *Connection) Execute(ctx context.Context, statement string, _ bool) (*datasource.ExecuteResult, error) {
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	result, err := executeInTx(ctx, tx, statement)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return result, nil
}

func executeInTx(ctx context.Context, tx pgx.Tx, statement string) (*datasource.ExecuteResult, error) {
	rows, err := tx.Query(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	defer rows.Close()

	result := &datasource.ExecuteResult{}
	fieldDescs := rows.FieldDescriptions()
	if len(fieldDescs) > 0 {
		result.Columns = make([]string, len(fieldDescs))
		for i, fd := range fieldDescs {
			result.Columns[i] = fd.Name
		}
		result.Rows = make([][]any, 0)
	}

	// pgx defers execution errors until rows are consumed, so always drain.
	for rows.Next() {
		if len(fieldDescs) == 0 {
			continue
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		result.Rows = append(result.Rows, normalizeValues(values))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}

	result.RowsAffected = rows.CommandTag().RowsAffected()
	return result, nil
}

// normalizeValues turns pgx values into plain Go values: byte slices and
// UUIDs become strings, numerics use their canonical text.
func normalizeValues(values []any) []any {
	for i, v := range values {
		switch val := v.(type) {
		case [16]byte:
			values[i] = uuid.UUID(val).String()
		case driver.Valuer:
			if dv, err := val.Value(); err == nil {
				values[i] = datasource.NormalizeValue(dv)
			}
		default:
			values[i] = datasource.NormalizeValue(v)
		}
	}
	return values
}

// Ping verifies the pool is alive.
func (c *Connection) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Dialect returns PostgreSQL's dialect.
func (c *Connection) Dialect() datasource.Dialect {
	return Dialect
}

// Close releases the handle. Managed pools are closed by the connection manager.
func (c *Connection) Close() error {
	return nil
}

// Ensure Connection implements datasource.Connection at compile time.
var _ datasource.Connection = (*Connection)(nil)
