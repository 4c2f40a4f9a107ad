package audit

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Store persists audit records.
type Store interface {
	Insert(ctx context.Context, rec models.AuditRecord) error
	List(ctx context.Context, limit int) ([]models.AuditRecord, error)
	Close() error
}

// SQLStore keeps audit records in the query_audit table of a SQLite file.
type SQLStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLStore)(nil)

func storeDSN(path string) string {
	query := url.Values{}
	query.Set("_busy_timeout", "5000")
	query.Set("_journal_mode", "WAL")
	return "file:" + path + "?" + query.Encode()
}

// OpenStore opens the audit store at path. Run RunMigrations first.
func OpenStore(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", storeDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	// SQLite allows one writer; serializing here avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	return &SQLStore{db: db}, nil
}

const insertRecord = `
INSERT INTO query_audit (
    id, request_id, role_name, user_id, target_db, statement_kind,
    outcome, reason, duration_ms, created_at
) VALUES (
    :id, :request_id, :role_name, :user_id, :target_db, :statement_kind,
    :outcome, :reason, :duration_ms, :created_at
)`

func (s *SQLStore) Insert(ctx context.Context, rec models.AuditRecord) error {
	if _, err := s.db.NamedExecContext(ctx, insertRecord, rec); err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// List returns the newest records first. limit is clamped to [1, MaxListLimit].
func (s *SQLStore) List(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	records := make([]models.AuditRecord, 0)
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, request_id, role_name, user_id, target_db, statement_kind,
		       outcome, reason, duration_ms, created_at
		FROM query_audit
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	return records, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
