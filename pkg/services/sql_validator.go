package services

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/schema"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

// SQLValidator is the static gate between generation and execution. It never
// touches a connection.
type SQLValidator interface {
	// Validate checks statement for role under the quoting rules of
	// targetDB's engine. An empty or unknown target is checked under every
	// supported dialect.
	Validate(statement string, role models.Role, targetDB string) models.ValidationResult
}

type sqlValidator struct {
	targets schema.TargetResolver
	logger  *zap.Logger
}

var _ SQLValidator = (*sqlValidator)(nil)

// NewSQLValidator creates a validator resolving target dialects through
// targets, which may be nil.
func NewSQLValidator(targets schema.TargetResolver, logger *zap.Logger) SQLValidator {
	return &sqlValidator{targets: targets, logger: logger.Named("validator")}
}

func (v *sqlValidator) Validate(statement string, role models.Role, targetDB string) models.ValidationResult {
	dialect := targetDialect(v.targets, targetDB)
	result := sql.Validate(statement, role, dialect)
	if !result.Valid {
		v.logger.Info("statement rejected",
			zap.String("role", role.Name),
			zap.String("target", targetDB),
			zap.String("dialect", string(dialect)),
			zap.String("reason", string(result.Reason)),
			zap.String("statement_kind", string(result.Kind)),
			zap.String("detail", result.Detail),
			zap.String("sql", logging.SanitizeQuery(statement)),
		)
	}
	return result
}

// targetDialect resolves the dialect of targetDB, falling back to
// sql.DialectAny when it cannot be resolved.
func targetDialect(targets schema.TargetResolver, targetDB string) sql.Dialect {
	if targets == nil || targetDB == "" {
		return sql.DialectAny
	}
	target, err := targets.Get(targetDB)
	if err != nil {
		return sql.DialectAny
	}
	return sql.DialectOf(target.Kind)
}
