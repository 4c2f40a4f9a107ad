package datasource

import "context"

// PoolConnector is an interface that abstracts connection pool operations
// across different database types (PostgreSQL, SQL Server, SQLite, DuckDB).
type PoolConnector interface {
	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	// Close closes all connections in the pool
	Close() error

	// GetType returns the database type for logging/stats
	GetType() string
}

// PoolOpener creates a new pool for a target. It receives the manager's pool
// settings so every driver sizes its pool the same way.
type PoolOpener func(ctx context.Context, cfg ConnectionManagerConfig) (PoolConnector, error)
