package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-ask/pkg/audit"
	"github.com/ekaya-inc/ekaya-ask/pkg/llm"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/registry"
	"github.com/ekaya-inc/ekaya-ask/pkg/schema"
)

var (
	analyst = models.Role{Name: "analyst"}
	admin   = models.Role{Name: "admin", AllowDML: true}
)

const totalsSQL = "SELECT region, SUM(amount) AS total FROM sales GROUP BY region ORDER BY total DESC"

// memStore is an in-memory audit.Store.
type memStore struct {
	mu      sync.Mutex
	records []models.AuditRecord
}

func (s *memStore) Insert(_ context.Context, rec models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memStore) List(_ context.Context, limit int) ([]models.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditRecord(nil), s.records...), nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) all() []models.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditRecord(nil), s.records...)
}

// fixture is a SQLite-backed pipeline with a scripted provider.
type fixture struct {
	db       *sqlx.DB
	targets  *registry.TargetRegistry
	factory  datasource.AdapterFactory
	catalog  schema.Catalog
	store    *memStore
	auditor  audit.Auditor
	logger   *zap.Logger
	sessions *SessionManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "sales.db")

	db, err := sqlx.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.MustExec(`CREATE TABLE sales (
		id INTEGER PRIMARY KEY,
		region TEXT NOT NULL,
		amount REAL NOT NULL CHECK (amount >= 0)
	)`)
	db.MustExec(`INSERT INTO sales (region, amount) VALUES
		('north', 100), ('north', 50), ('south', 70), ('east', 30)`)
	db.MustExec(`CREATE TABLE payroll (employee TEXT, salary REAL)`)

	targets, err := registry.NewTargetRegistry(map[string]models.TargetDescriptor{
		"sales": {Kind: models.TargetKindSQLite, Path: path},
	})
	require.NoError(t, err)

	cm := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, logger)
	t.Cleanup(func() { _ = cm.Close() })
	factory := datasource.NewAdapterFactory(cm)

	store := &memStore{}
	return &fixture{
		db:       db,
		targets:  targets,
		factory:  factory,
		catalog:  schema.NewCatalog(targets, factory, time.Minute, logger),
		store:    store,
		auditor:  audit.NewAuditor(audit.NewSecurityAuditor(logger), store, logger),
		logger:   logger,
		sessions: NewSessionManager(logger),
	}
}

func (f *fixture) generator(provider llm.TextCompletionProvider) SQLGenerator {
	return NewSQLGenerator(provider, GeneratorConfig{RetryDelay: time.Millisecond}, f.logger)
}

func (f *fixture) executor() QueryExecutor {
	return NewQueryExecutor(f.targets, f.factory, f.auditor, ExecutorConfig{Timeout: 10 * time.Second, MaxRows: 100}, f.logger)
}

func (f *fixture) pipeline(provider llm.TextCompletionProvider) *Pipeline {
	gen := f.generator(provider)
	return NewPipeline(
		NewPromptBuilder(f.catalog, 100, f.logger),
		gen,
		NewSQLValidator(f.targets, f.logger),
		f.executor(),
		NewResponseSynthesizer(gen, f.logger),
		f.auditor,
		f.sessions,
		f.logger,
	)
}

func (f *fixture) salesTotal(t *testing.T) float64 {
	t.Helper()
	var total float64
	require.NoError(t, f.db.Get(&total, `SELECT SUM(amount) FROM sales`))
	return total
}

func fenced(sql string) string {
	return "Here is the query:\n```sql\n" + sql + "\n```"
}
