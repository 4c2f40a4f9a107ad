package sql

import "github.com/ekaya-inc/ekaya-ask/pkg/models"

// Dialect selects the quoting and comment rules text is tokenized with.
// Engines disagree on where literals, quoted identifiers and comments end,
// so a statement is only meaningful to the gate under its target's rules.
type Dialect string

const (
	// DialectAny is used when the target is not known. Validate accepts
	// text only when every supported dialect accepts it; lexing alone
	// follows the PostgreSQL rules.
	DialectAny      Dialect = ""
	DialectPostgres Dialect = Dialect(models.TargetKindPostgres)
	DialectDuckDB   Dialect = Dialect(models.TargetKindDuckDB)
	DialectSQLite   Dialect = Dialect(models.TargetKindSQLite)
	DialectMSSQL    Dialect = Dialect(models.TargetKindMSSQL)
)

// Dialects lists every supported dialect.
var Dialects = []Dialect{DialectPostgres, DialectDuckDB, DialectSQLite, DialectMSSQL}

// DialectOf maps a target kind to its dialect. Unknown kinds map to DialectAny.
func DialectOf(kind string) Dialect {
	for _, d := range Dialects {
		if string(d) == kind {
			return d
		}
	}
	return DialectAny
}

// bracketIdents reports whether [name] is a quoted identifier rather than
// a subscript or list.
func (d Dialect) bracketIdents() bool {
	return d == DialectSQLite || d == DialectMSSQL
}

// bracketEscape reports whether ]] inside a bracketed identifier stands for ].
// SQLite ends the identifier at the first ].
func (d Dialect) bracketEscape() bool {
	return d == DialectMSSQL
}

// escapeStrings reports whether E'...' literals with backslash escapes exist.
func (d Dialect) escapeStrings() bool {
	return !d.bracketIdents()
}

// dollarQuotes reports whether $tag$...$tag$ bodies are string literals.
func (d Dialect) dollarQuotes() bool {
	return !d.bracketIdents()
}

// lineCommentEnd reports whether c ends a -- comment. PostgreSQL and DuckDB
// stop at a carriage return as well as a newline; SQLite only at a newline.
func (d Dialect) lineCommentEnd(c byte) bool {
	if c == '\n' {
		return true
	}
	return c == '\r' && (d == DialectAny || d == DialectPostgres || d == DialectDuckDB)
}
