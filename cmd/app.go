package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/audit"
	"github.com/ekaya-inc/ekaya-ask/pkg/config"
	"github.com/ekaya-inc/ekaya-ask/pkg/llm"
	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/registry"
	"github.com/ekaya-inc/ekaya-ask/pkg/schema"
	"github.com/ekaya-inc/ekaya-ask/pkg/services"

	// Register datasource adapters
	_ "github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource/duckdb"
	_ "github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource/sqlite"
)

// app is the pipeline and everything it owns, built from one Config.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	roles    *registry.RoleRegistry
	targets  *registry.TargetRegistry
	connMgr  *datasource.ConnectionManager
	store    *audit.SQLStore // nil when the audit store is disabled
	pipeline *services.Pipeline
}

// loadConfig reads the file named by --config and builds the logger. One-shot
// commands log at warn unless --log-level says otherwise, so their output
// stays readable.
func loadConfig(oneShot bool) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath, Version)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.LogLevel
	switch {
	case logLevel != "":
		level = logLevel
	case oneShot:
		level = "warn"
	}
	logger, err := logging.NewLogger(cfg.Env, level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newApp wires registries, adapters, the audit trail and the pipeline stages.
// The caller must Close the returned app.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	roles, err := registry.LoadRoles(cfg.Registry.RolesFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	targets, err := registry.LoadTargets(cfg.Registry.TargetsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load targets: %w", err)
	}

	provider, err := llm.NewProvider(llm.Config{
		Provider:    cfg.LLM.Provider,
		Endpoint:    cfg.LLM.Endpoint,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout(),
	}, llm.CircuitBreakerConfig{
		Threshold:  cfg.LLM.BreakerThreshold,
		ResetAfter: time.Duration(cfg.LLM.BreakerResetSeconds) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		roles:   roles,
		targets: targets,
		connMgr: datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
			TTLMinutes:   cfg.Datasource.ConnectionTTLMinutes,
			MaxPools:     cfg.Datasource.MaxPools,
			PoolMaxConns: cfg.Datasource.PoolMaxConns,
			PoolMinConns: cfg.Datasource.PoolMinConns,
		}, logger),
	}
	adapters := datasource.NewAdapterFactory(a.connMgr)

	var store audit.Store
	if !cfg.Audit.Disabled {
		if err := audit.RunMigrations(cfg.Audit.StorePath, logger); err != nil {
			a.Close()
			return nil, err
		}
		a.store, err = audit.OpenStore(ctx, cfg.Audit.StorePath)
		if err != nil {
			a.Close()
			return nil, err
		}
		store = a.store
	}
	auditor := audit.NewAuditor(audit.NewSecurityAuditor(logger), store, logger)

	catalog := schema.NewCatalog(targets, adapters, cfg.Pipeline.SchemaCacheTTL(), logger)
	generator := services.NewSQLGenerator(provider, services.GeneratorConfig{
		MaxAttempts:    cfg.Pipeline.MaxAttempts,
		AnswerMaxRows:  cfg.Pipeline.AnswerMaxRows,
		AnswerMaxBytes: cfg.Pipeline.AnswerMaxBytes,
	}, logger)
	a.pipeline = services.NewPipeline(
		services.NewPromptBuilder(catalog, cfg.Pipeline.MaxRows, logger),
		generator,
		services.NewSQLValidator(targets, logger),
		services.NewQueryExecutor(targets, adapters, auditor, services.ExecutorConfig{
			Timeout: cfg.Pipeline.ExecutionTimeout(),
			MaxRows: cfg.Pipeline.MaxRows,
		}, logger),
		services.NewResponseSynthesizer(generator, logger),
		auditor,
		services.NewSessionManager(logger),
		logger,
	)

	logger.Info("Pipeline ready",
		zap.Strings("roles", roles.Names()),
		zap.Int("targets", len(targets.List())),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Bool("audit_store", a.store != nil),
	)
	return a, nil
}

// Close releases pooled target connections and the audit store.
func (a *app) Close() {
	if err := a.connMgr.Close(); err != nil {
		a.logger.Error("Failed to close datasource connections", zap.Error(err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("Failed to close audit store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
