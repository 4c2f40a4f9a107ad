package datasource

import "fmt"

// LimitStyle selects how a row cap is applied around a query.
type LimitStyle int

const (
	// LimitClause wraps with "SELECT * FROM (q) AS _limited LIMIT n".
	LimitClause LimitStyle = iota
	// LimitTop wraps with "SELECT TOP (n) * FROM (q) AS _limited".
	LimitTop
)

// Dialect describes the SQL flavor of a target.
type Dialect struct {
	Kind       string // models.TargetKind*
	Name       string // human-readable name used in prompts
	LimitStyle LimitStyle

	// ConvertValue, when set, rewrites driver values that NormalizeValue
	// cannot render, keyed by the column's database type name.
	ConvertValue func(dbType string, v any) any

	// ReadOnly, when set, switches the session used by Query into a mode
	// that refuses writes for the duration of the query.
	ReadOnly *SessionToggle
}

// SessionToggle is a pair of statements that turn a session setting on and off.
type SessionToggle struct {
	Enable  string
	Disable string
}

// WrapLimit caps query at limit rows. The inner query sits on its own lines
// so a trailing line comment cannot swallow the closing parenthesis.
func (d Dialect) WrapLimit(query string, limit int) string {
	if d.LimitStyle == LimitTop {
		return fmt.Sprintf("SELECT TOP (%d) * FROM (\n%s\n) AS _limited", limit, query)
	}
	return fmt.Sprintf("SELECT * FROM (\n%s\n) AS _limited LIMIT %d", query, limit)
}

// effectiveLimit applies MaxQueryLimit.
func effectiveLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// NormalizeValue converts driver values into what callers see: byte slices
// become strings. Everything else passes through unchanged.
func NormalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
