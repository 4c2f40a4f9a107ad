package datasource

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
)

// PostgresPoolWrapper wraps *pgxpool.Pool to implement PoolConnector
type PostgresPoolWrapper struct {
	pool *pgxpool.Pool
}

// NewPostgresPoolWrapper creates a new PostgreSQL pool wrapper
func NewPostgresPoolWrapper(pool *pgxpool.Pool) *PostgresPoolWrapper {
	return &PostgresPoolWrapper{pool: pool}
}

// Ping verifies the PostgreSQL connection is alive
func (w *PostgresPoolWrapper) Ping(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

// Close closes all connections in the PostgreSQL pool
func (w *PostgresPoolWrapper) Close() error {
	w.pool.Close()
	return nil
}

// GetType returns the database type
func (w *PostgresPoolWrapper) GetType() string {
	return "postgres"
}

// GetPool returns the underlying *pgxpool.Pool
func (w *PostgresPoolWrapper) GetPool() *pgxpool.Pool {
	return w.pool
}

// DBPoolWrapper wraps a database/sql pool (SQL Server, SQLite, DuckDB).
type DBPoolWrapper struct {
	db     *sqlx.DB
	dbType string
}

// NewDBPoolWrapper creates a wrapper for a database/sql based pool.
func NewDBPoolWrapper(db *sqlx.DB, dbType string) *DBPoolWrapper {
	return &DBPoolWrapper{db: db, dbType: dbType}
}

// Ping verifies the connection is alive
func (w *DBPoolWrapper) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

// Close closes all connections in the pool
func (w *DBPoolWrapper) Close() error {
	return w.db.Close()
}

// GetType returns the database type
func (w *DBPoolWrapper) GetType() string {
	return w.dbType
}

// GetDB returns the underlying *sqlx.DB
func (w *DBPoolWrapper) GetDB() *sqlx.DB {
	return w.db
}

// GetPostgresPool extracts the underlying *pgxpool.Pool from a PoolConnector.
func GetPostgresPool(connector PoolConnector) (*pgxpool.Pool, error) {
	wrapper, ok := connector.(*PostgresPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not a PostgreSQL pool wrapper")
	}
	return wrapper.GetPool(), nil
}

// GetDB extracts the underlying *sqlx.DB from a PoolConnector.
func GetDB(connector PoolConnector) (*sqlx.DB, error) {
	wrapper, ok := connector.(*DBPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not a database/sql pool wrapper")
	}
	return wrapper.GetDB(), nil
}
