package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// MaxQueryLimit is the hard cap on rows returned by Query.
const MaxQueryLimit = 10000

// QueryExecutor runs statements against a target.
type QueryExecutor interface {
	// Query runs a SELECT wrapped in the dialect's row cap. limit <= 0 or
	// above MaxQueryLimit uses MaxQueryLimit. Truncated is set when the
	// statement produced more rows than limit.
	Query(ctx context.Context, query string, limit int) (*QueryResult, error)

	// Execute runs a write inside an explicit transaction. The transaction
	// commits only if the statement and result consumption both succeed;
	// otherwise it is rolled back and the error returned. returnsRows says
	// whether the statement has a RETURNING/OUTPUT clause.
	Execute(ctx context.Context, statement string, returnsRows bool) (*ExecuteResult, error)
}

// SchemaExtractor reads table and column metadata.
type SchemaExtractor interface {
	// ExtractSchema returns user tables sorted by schema then name, with
	// columns in ordinal order. System schemas are excluded.
	ExtractSchema(ctx context.Context) ([]models.SchemaTable, error)
}

// Connection is a target handle acquired from the connection manager.
// Closing it releases the handle; managed pools stay open until evicted.
type Connection interface {
	QueryExecutor
	SchemaExtractor
	Ping(ctx context.Context) error
	Dialect() Dialect
	Close() error
}

// ColumnInfo describes a result column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // Database type name (e.g., "TEXT", "INT4", "VARCHAR")
}

// QueryResult holds rows in backend column order.
type QueryResult struct {
	Columns   []ColumnInfo `json:"columns"`
	Rows      [][]any      `json:"rows"`
	Truncated bool         `json:"truncated"`
}

// ColumnNames returns the result's column names in order.
func (r *QueryResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// ExecuteResult holds the outcome of a committed write.
type ExecuteResult struct {
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	RowsAffected int64    `json:"rows_affected"`
}
