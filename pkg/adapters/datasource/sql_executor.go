package datasource

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLExecutor implements QueryExecutor over a database/sql pool. It backs
// every target whose driver speaks database/sql.
type SQLExecutor struct {
	db      *sqlx.DB
	dialect Dialect
}

// NewSQLExecutor creates an executor for db using the dialect's row cap.
func NewSQLExecutor(db *sqlx.DB, dialect Dialect) *SQLExecutor {
	return &SQLExecutor{db: db, dialect: dialect}
}

// Query runs a capped SELECT. One extra row is requested to detect
// truncation. When the dialect has a read-only toggle the query runs on a
// dedicated session switched into read-only mode.
func (e *SQLExecutor) Query(ctx context.Context, query string, limit int) (*QueryResult, error) {
	limit = effectiveLimit(limit)
	if e.dialect.ReadOnly == nil {
		return e.query(ctx, e.db, query, limit)
	}

	conn, err := e.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, e.dialect.ReadOnly.Enable); err != nil {
		return nil, fmt.Errorf("failed to enter read-only mode: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), e.dialect.ReadOnly.Disable); err != nil {
			// A session stuck in read-only mode must not go back to the pool.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}()
	return e.query(ctx, conn, query, limit)
}

func (e *SQLExecutor) query(ctx context.Context, q sqlx.QueryerContext, query string, limit int) (*QueryResult, error) {
	rows, err := q.QueryxContext(ctx, e.dialect.WrapLimit(query, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := columnInfo(rows)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		if len(result.Rows) == limit {
			result.Truncated = true
			break
		}
		values, err := e.scanRow(rows, columns)
		if err != nil {
			return nil, err
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// Execute runs a write in a transaction. Any error, including one surfaced
// while reading RETURNING rows, rolls the transaction back.
func (e *SQLExecutor) Execute(ctx context.Context, statement string, returnsRows bool) (result *ExecuteResult, err error) {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			}
		}
	}()

	if returnsRows {
		result, err = e.queryInTx(ctx, tx, statement)
	} else {
		result, err = execInTx(ctx, tx, statement)
	}
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

func execInTx(ctx context.Context, tx *sqlx.Tx, statement string) (*ExecuteResult, error) {
	res, err := tx.ExecContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		// Drivers without a count (DDL) report an error here; the write itself succeeded.
		affected = 0
	}
	return &ExecuteResult{RowsAffected: affected}, nil
}

func (e *SQLExecutor) queryInTx(ctx context.Context, tx *sqlx.Tx, statement string) (*ExecuteResult, error) {
	rows, err := tx.QueryxContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	defer rows.Close()

	columns, err := columnInfo(rows)
	if err != nil {
		return nil, err
	}

	result := &ExecuteResult{Rows: make([][]any, 0)}
	for _, c := range columns {
		result.Columns = append(result.Columns, c.Name)
	}
	for rows.Next() {
		values, err := e.scanRow(rows, columns)
		if err != nil {
			return nil, err
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	result.RowsAffected = int64(len(result.Rows))
	return result, nil
}

func columnInfo(rows *sqlx.Rows) ([]ColumnInfo, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}
	columns := make([]ColumnInfo, len(names))
	for i, name := range names {
		columns[i] = ColumnInfo{Name: name}
		if i < len(types) && types[i] != nil {
			columns[i].Type = types[i].DatabaseTypeName()
		}
	}
	return columns, nil
}

func (e *SQLExecutor) scanRow(rows *sqlx.Rows, columns []ColumnInfo) ([]any, error) {
	values, err := rows.SliceScan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}
	for i, v := range values {
		if e.dialect.ConvertValue != nil && i < len(columns) {
			v = e.dialect.ConvertValue(columns[i].Type, v)
		}
		values[i] = NormalizeValue(v)
	}
	return values, nil
}

var _ QueryExecutor = (*SQLExecutor)(nil)
