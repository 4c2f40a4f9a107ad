package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/prompts"
	"github.com/ekaya-inc/ekaya-ask/pkg/schema"
)

// PromptBuilder assembles the SQL generation prompt for a question.
type PromptBuilder interface {
	// Build describes the target's schema, as visible to role, together with
	// the question. Identical inputs and schema snapshot yield an identical
	// Prompt. Fails with ErrSchemaUnavailable when metadata cannot be fetched.
	Build(ctx context.Context, question string, role models.Role, targetDB string) (models.Prompt, error)
}

type promptBuilder struct {
	catalog  schema.Catalog
	rowLimit int
	logger   *zap.Logger
}

var _ PromptBuilder = (*promptBuilder)(nil)

// NewPromptBuilder creates a PromptBuilder backed by the schema catalog.
// rowLimit is mentioned to the generator as advisory guidance.
func NewPromptBuilder(catalog schema.Catalog, rowLimit int, logger *zap.Logger) PromptBuilder {
	return &promptBuilder{
		catalog:  catalog,
		rowLimit: rowLimit,
		logger:   logger.Named("prompt"),
	}
}

func (b *promptBuilder) Build(ctx context.Context, question string, role models.Role, targetDB string) (models.Prompt, error) {
	snap, err := b.catalog.Snapshot(ctx, targetDB)
	if err != nil {
		return models.Prompt{}, fmt.Errorf("failed to load schema for %s: %w", targetDB, err)
	}

	tables := visibleTables(snap.Tables, role)
	b.logger.Debug("building prompt",
		zap.String("target", targetDB),
		zap.String("role", role.Name),
		zap.Int("tables", len(tables)),
		zap.Int("schema_tables", len(snap.Tables)),
	)

	text := prompts.BuildSQLGenerationPrompt(prompts.SQLGenerationInput{
		Question: question,
		RoleName: role.Name,
		AllowDML: role.AllowDML,
		Dialect:  snap.Dialect,
		RowLimit: b.rowLimit,
		Tables:   tables,
	})
	return models.Prompt{Text: text, TargetDB: targetDB, RoleName: role.Name}, nil
}

// visibleTables keeps the tables role may reference. A table permitted only
// through an unqualified allow-list entry is described unqualified, so the
// generator writes the reference form the validator accepts.
func visibleTables(tables []models.SchemaTable, role models.Role) []prompts.TableContext {
	out := make([]prompts.TableContext, 0, len(tables))
	for _, t := range tables {
		schemaName := t.SchemaName
		switch {
		case role.PermitsTable(t.SchemaName, t.TableName):
		case role.PermitsTable("", t.TableName):
			schemaName = ""
		default:
			continue
		}

		cols := make([]prompts.ColumnContext, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = prompts.ColumnContext{
				Name:         c.ColumnName,
				DataType:     c.DataType,
				IsNullable:   c.IsNullable,
				IsPrimaryKey: c.IsPrimaryKey,
			}
		}
		out = append(out, prompts.TableContext{Schema: schemaName, Name: t.TableName, Columns: cols})
	}
	return out
}
