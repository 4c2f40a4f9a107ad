// Package sql statically checks candidate statements before they may run.
//
// The checks are token based: text is split by a lexer that follows the
// target dialect's quoting and comment rules, so keywords hidden in literals
// or comments are never mistaken for structure, and structure hidden behind
// unusual casing or comments is never missed.
package sql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// Validate checks text against role under dialect. With DialectAny the text
// must pass under every supported dialect and the first rejection is
// returned. Rules apply in order and the first failure is terminal:
//
//  1. the text must tokenize and hold exactly one statement
//  2. the root operation must be classifiable
//  3. write kinds need role.AllowDML
//  4. referenced tables must be in the role's allow-list, if it has one
//  5. string literals must not carry injection payloads
func Validate(text string, role models.Role, dialect Dialect) models.ValidationResult {
	if dialect != DialectAny {
		return validate(text, role, dialect)
	}
	var accepted models.ValidationResult
	for i, d := range Dialects {
		result := validate(text, role, d)
		if !result.Valid {
			return result
		}
		if i > 0 && result.Kind != accepted.Kind {
			return models.Reject(models.KindUnknown, models.ReasonUnparseable,
				fmt.Sprintf("statement reads as %s under %s and %s under %s", accepted.Kind, Dialects[0], result.Kind, d))
		}
		accepted = result
	}
	return accepted
}

func validate(text string, role models.Role, dialect Dialect) models.ValidationResult {
	stmt, err := Parse(text, dialect)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			return models.Reject(models.KindUnknown, perr.Reason, perr.Detail)
		}
		return models.Reject(models.KindUnknown, models.ReasonUnparseable, err.Error())
	}

	if stmt.Kind == models.KindUnknown {
		detail := "statement does not start with a recognized operation"
		if stmt.Operation != "" {
			detail = fmt.Sprintf("cannot classify %s statement", stmt.Operation)
		}
		return models.Reject(models.KindUnknown, models.ReasonUnparseable, detail)
	}

	if stmt.Kind.IsWrite() && !role.AllowDML {
		return models.Reject(stmt.Kind, models.ReasonDMLNotPermitted,
			fmt.Sprintf("role %q may not run %s statements", role.Name, stmt.Operation))
	}

	if role.HasTableAllowList() {
		if detail, ok := checkAllowList(stmt, role); !ok {
			return models.Reject(stmt.Kind, models.ReasonObjectNotPermitted, detail)
		}
	}

	if hit := CheckLiterals(stmt.Literals); hit != nil {
		return models.Reject(stmt.Kind, models.ReasonInjectionSuspected,
			fmt.Sprintf("string literal matches injection fingerprint %s", hit.Fingerprint))
	}

	return models.Accept(stmt.Kind)
}

func checkAllowList(stmt *Statement, role models.Role) (string, bool) {
	if stmt.Kind == models.KindDDL {
		return fmt.Sprintf("role %q is limited to listed tables and may not run %s", role.Name, stmt.Operation), false
	}
	for _, ref := range stmt.Tables {
		switch {
		case ref.Source != "":
			return fmt.Sprintf("%s is not a table the role may read", ref.Source), false
		case ref.Catalog != "":
			return fmt.Sprintf("cross-database reference %s is not permitted", ref), false
		case !role.PermitsTable(ref.Schema, ref.Name):
			return fmt.Sprintf("table %s is not permitted for role %q", ref, role.Name), false
		}
	}
	return "", true
}

// Normalize trims text to its last token and drops a trailing semicolon so
// the statement can be embedded in a wrapper query. Text that does not
// tokenize is returned trimmed.
func Normalize(text string, dialect Dialect) string {
	tokens, err := lex(text, dialect)
	if err != nil || len(tokens) == 0 {
		return strings.TrimSpace(text)
	}
	last := tokens[len(tokens)-1]
	if last.isPunct(";") {
		if len(tokens) == 1 {
			return ""
		}
		last = tokens[len(tokens)-2]
	}
	return strings.TrimSpace(text[:last.pos+len(last.text)])
}

// ReturnsRows reports whether a write statement yields a result set through a
// RETURNING or OUTPUT clause.
func ReturnsRows(text string, dialect Dialect) bool {
	tokens, err := lex(text, dialect)
	if err != nil {
		return false
	}
	for _, t := range tokens {
		if t.isWord("RETURNING", "OUTPUT") {
			return true
		}
	}
	return false
}
