package handlers

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-ask/pkg/audit"
	"github.com/ekaya-inc/ekaya-ask/pkg/auth"
	"github.com/ekaya-inc/ekaya-ask/pkg/llm"
	"github.com/ekaya-inc/ekaya-ask/pkg/mcp"
	"github.com/ekaya-inc/ekaya-ask/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/registry"
	"github.com/ekaya-inc/ekaya-ask/pkg/schema"
	"github.com/ekaya-inc/ekaya-ask/pkg/services"
	"github.com/ekaya-inc/ekaya-ask/pkg/testhelpers"
)

// apiFixture serves the API over a SQLite target with a scripted provider.
type apiFixture struct {
	db      *sqlx.DB
	roles   *registry.RoleRegistry
	targets *registry.TargetRegistry
	store   *audit.SQLStore
	mux     *http.ServeMux
	logger  *zap.Logger
}

func newAPIFixture(t *testing.T, provider llm.TextCompletionProvider) *apiFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "sales.db")

	db, err := sqlx.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.MustExec(`CREATE TABLE sales (id INTEGER PRIMARY KEY, region TEXT NOT NULL, amount REAL NOT NULL)`)
	db.MustExec(`INSERT INTO sales (region, amount) VALUES ('north', 100), ('north', 50), ('south', 70)`)

	roles, err := registry.NewRoleRegistry(map[string]models.Role{
		"analyst": {Name: "analyst"},
		"admin":   {Name: "admin", AllowDML: true},
		"auditor": {Name: "auditor", ViewAudit: true},
	}, logger)
	require.NoError(t, err)

	targets, err := registry.NewTargetRegistry(map[string]models.TargetDescriptor{
		"sales": {Kind: models.TargetKindSQLite, Path: path, DisplayName: "Sales"},
	})
	require.NoError(t, err)

	auditPath := filepath.Join(dir, "audit.db")
	require.NoError(t, audit.RunMigrations(auditPath, logger))
	store, err := audit.OpenStore(t.Context(), auditPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	auditor := audit.NewAuditor(audit.NewSecurityAuditor(logger), store, logger)

	cm := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, logger)
	t.Cleanup(func() { _ = cm.Close() })
	factory := datasource.NewAdapterFactory(cm)

	gen := services.NewSQLGenerator(provider, services.GeneratorConfig{RetryDelay: time.Millisecond}, logger)
	pipeline := services.NewPipeline(
		services.NewPromptBuilder(schema.NewCatalog(targets, factory, time.Minute, logger), 100, logger),
		gen,
		services.NewSQLValidator(targets, logger),
		services.NewQueryExecutor(targets, factory, auditor, services.ExecutorConfig{Timeout: 10 * time.Second, MaxRows: 100}, logger),
		services.NewResponseSynthesizer(gen, logger),
		auditor,
		services.NewSessionManager(logger),
		logger,
	)

	validator, err := auth.NewJWKSClient(t.Context(), auth.ValidatorConfig{HMACSecret: testhelpers.TestJWTSecret})
	require.NoError(t, err)
	t.Cleanup(validator.Close)
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(validator, logger), logger)

	mux := http.NewServeMux()
	NewAskHandler(pipeline, roles, nil, "", logger).RegisterRoutes(mux, authMiddleware)
	NewDirectoryHandler(roles, targets, store, logger).RegisterRoutes(mux, authMiddleware)
	mcpServer := mcp.NewAskServer("test", &tools.ToolDeps{
		Pipeline:      pipeline,
		Roles:         roles,
		Targets:       targets,
		DefaultTarget: "sales",
		Logger:        logger,
	})
	NewMCPHandler(mcpServer, logger).RegisterRoutes(mux, authMiddleware)

	return &apiFixture{db: db, roles: roles, targets: targets, store: store, mux: mux, logger: logger}
}

// do sends body to path as a caller holding role.
func (f *apiFixture) do(t *testing.T, method, path, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		token := testhelpers.SignTestJWT(t, testhelpers.TestJWTSecret, "user-"+role, role)
		req.Header.Set("Authorization", testhelpers.BearerHeader(token))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) salesTotal(t *testing.T) float64 {
	t.Helper()
	var total float64
	require.NoError(t, f.db.Get(&total, `SELECT SUM(amount) FROM sales`))
	return total
}

func fenced(sql string) string {
	return "```sql\n" + sql + "\n```"
}
