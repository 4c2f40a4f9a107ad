// Package prompts builds the text sent to the completion provider.
//
// Builders are pure: identical inputs always yield byte-identical output, so
// prompts can be asserted on in tests and cached by callers.
package prompts

import (
	"fmt"
	"sort"
	"strings"
)

// TableContext describes one table the generator may query.
type TableContext struct {
	Schema  string
	Name    string
	Columns []ColumnContext // ordinal order
}

// QualifiedName returns schema.name, or name when no schema is set.
func (t TableContext) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ColumnContext provides column details for SQL generation.
type ColumnContext struct {
	Name         string
	DataType     string
	IsNullable   bool
	IsPrimaryKey bool
}

// SQLGenerationInput is everything the SQL generation prompt depends on.
type SQLGenerationInput struct {
	Question string
	RoleName string
	AllowDML bool
	Dialect  string // e.g. "PostgreSQL"
	RowLimit int    // advisory; the executor enforces its own cap
	Tables   []TableContext
}

// BuildSQLGenerationPrompt creates the prompt asking for exactly one SQL
// statement answering the question. Tables are emitted sorted by qualified
// name; columns keep their given order.
func BuildSQLGenerationPrompt(in SQLGenerationInput) string {
	var prompt strings.Builder

	prompt.WriteString("# SQL Generation\n\n")
	prompt.WriteString(fmt.Sprintf("Write one %s statement that answers the question below.\n\n", in.Dialect))

	prompt.WriteString("## Requester\n\n")
	prompt.WriteString(fmt.Sprintf("Role: %s\n", in.RoleName))
	if in.AllowDML {
		prompt.WriteString("Permissions: read and write (INSERT, UPDATE, DELETE allowed when the question asks for a change)\n\n")
	} else {
		prompt.WriteString("Permissions: read-only (SELECT only)\n\n")
	}

	prompt.WriteString("## Database Schema\n\n")
	tables := make([]TableContext, len(in.Tables))
	copy(tables, in.Tables)
	sort.SliceStable(tables, func(i, j int) bool {
		return tables[i].QualifiedName() < tables[j].QualifiedName()
	})
	if len(tables) == 0 {
		prompt.WriteString("(no tables are available to this role)\n\n")
	}
	for _, table := range tables {
		prompt.WriteString(fmt.Sprintf("### %s\n", table.QualifiedName()))
		for _, col := range table.Columns {
			flags := ""
			if col.IsPrimaryKey {
				flags += " [PK]"
			}
			if col.IsNullable {
				flags += " (nullable)"
			}
			prompt.WriteString(fmt.Sprintf("- %s (%s)%s\n", col.Name, col.DataType, flags))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Use only the tables and columns listed above.\n")
	prompt.WriteString("- Produce exactly one statement. Do not chain statements with semicolons.\n")
	if !in.AllowDML {
		prompt.WriteString("- Only SELECT statements are permitted. Never modify data or schema.\n")
	}
	prompt.WriteString("- Do not call stored procedures or use vendor-specific administrative commands.\n")
	prompt.WriteString("- Prefer explicit column lists and readable column aliases.\n")
	if in.RowLimit > 0 {
		prompt.WriteString(fmt.Sprintf("- Results are capped at %d rows; aggregate rather than listing when possible.\n", in.RowLimit))
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(strings.TrimSpace(in.Question))
	prompt.WriteString("\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Return ONLY the SQL statement inside a ```sql code block, no additional text.\n")

	return prompt.String()
}
