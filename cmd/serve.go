package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/auth"
	"github.com/ekaya-inc/ekaya-ask/pkg/config"
	"github.com/ekaya-inc/ekaya-ask/pkg/handlers"
	"github.com/ekaya-inc/ekaya-ask/pkg/mcp"
	"github.com/ekaya-inc/ekaya-ask/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-ask/pkg/middleware"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and MCP endpoint",
	Long: `serve exposes the pipeline over HTTP:

  POST /api/ask            answer a question, collected
  POST /api/ask/stream     answer a question as server-sent events
  POST /api/validate       check a statement against the caller's role
  GET  /api/me             the caller's role
  GET  /api/targets        configured target databases
  GET  /api/audit          recent audit records, for roles with view_audit
  POST /mcp                MCP tools (ask_database, validate_sql, list_targets)

SIGHUP reloads the roles file without dropping in-flight requests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(false)
		if err != nil {
			return err
		}
		if err := cfg.ValidateServe(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	authService, closeAuth, err := newAuthService(ctx, cfg, a, logger)
	if err != nil {
		return err
	}
	defer closeAuth()
	authMiddleware := auth.NewMiddleware(authService, logger)

	tlsEnabled := cfg.TLSCertPath != ""
	sessionStore, err := auth.NewSessionStore(cfg.SessionKey, tlsEnabled)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, a.connMgr, logger).RegisterRoutes(mux)
	handlers.NewAskHandler(a.pipeline, a.roles, sessionStore, cfg.Registry.DefaultTarget, logger).RegisterRoutes(mux, authMiddleware)

	var auditLister handlers.AuditLister
	if a.store != nil {
		auditLister = a.store
	}
	handlers.NewDirectoryHandler(a.roles, a.targets, auditLister, logger).RegisterRoutes(mux, authMiddleware)

	if !cfg.MCP.Disabled {
		mcpServer := mcp.NewAskServer(cfg.Version, &tools.ToolDeps{
			Pipeline:      a.pipeline,
			Roles:         a.roles,
			Targets:       a.targets,
			DefaultTarget: cfg.Registry.DefaultTarget,
			Logger:        logger,
		})
		handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux, authMiddleware)
	}

	go reloadRolesOnHangup(ctx, a, logger)

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-ask",
			zap.String("addr", server.Addr),
			zap.Bool("tls", tlsEnabled),
			zap.Bool("auth", !cfg.Auth.Disabled),
			zap.Bool("mcp", !cfg.MCP.Disabled),
			zap.String("version", cfg.Version),
		)
		var err error
		if tlsEnabled {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
		_ = server.Close()
		return err
	}
	return nil
}

// newAuthService verifies bearer tokens, or assigns the default role to every
// request when verification is disabled.
func newAuthService(ctx context.Context, cfg *config.Config, a *app, logger *zap.Logger) (auth.AuthService, func(), error) {
	if cfg.Auth.Disabled {
		if _, err := a.roles.Get(cfg.Registry.DefaultRole); err != nil {
			return nil, nil, fmt.Errorf("default_role: %w", err)
		}
		logger.Warn("Auth verification disabled; every request runs as the default role",
			zap.String("role", cfg.Registry.DefaultRole))
		return auth.NewStaticAuthService(cfg.Registry.DefaultRole), func() {}, nil
	}

	validator, err := auth.NewJWKSClient(ctx, auth.ValidatorConfig{
		HMACSecret:    cfg.Auth.JWTSecret,
		JWKSEndpoints: cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize token validation: %w", err)
	}
	return auth.NewAuthService(validator, logger), validator.Close, nil
}

// reloadRolesOnHangup re-reads the roles file on every SIGHUP until ctx ends.
// A failed reload keeps the current roles.
func reloadRolesOnHangup(ctx context.Context, a *app, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := a.roles.Reload(); err != nil {
				logger.Error("Role reload failed", zap.Error(err))
			}
		}
	}
}
