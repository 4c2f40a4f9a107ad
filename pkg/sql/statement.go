package sql

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// TableRef is an object referenced in a table position.
type TableRef struct {
	Catalog string
	Schema  string
	Name    string
	// Source is set when the position holds something other than a plain
	// table name: a table-valued function, a string literal (file scans) or
	// a bind parameter.
	Source string
}

// String renders the reference as written, lowercased where unquoted.
func (r TableRef) String() string {
	if r.Source != "" {
		return r.Source
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Catalog, r.Schema, r.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// Statement is the result of analyzing one SQL statement.
type Statement struct {
	Kind      models.StatementKind
	Operation string // root keyword, upper-cased
	Tables    []TableRef
	Literals  []string
	CTEs      []string
}

// ParseError is a structural rejection found while analyzing text.
type ParseError struct {
	Reason models.RejectReason
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func unparseable(format string, args ...any) *ParseError {
	return &ParseError{Reason: models.ReasonUnparseable, Detail: fmt.Sprintf(format, args...)}
}

func multiple(format string, args ...any) *ParseError {
	return &ParseError{Reason: models.ReasonMultipleStatements, Detail: fmt.Sprintf(format, args...)}
}

var rootKinds = map[string]models.StatementKind{
	"SELECT":   models.KindSelect,
	"VALUES":   models.KindSelect,
	"INSERT":   models.KindInsert,
	"REPLACE":  models.KindInsert,
	"UPSERT":   models.KindInsert,
	"UPDATE":   models.KindUpdate,
	"DELETE":   models.KindDelete,
	"MERGE":    models.KindMerge,
	"CREATE":   models.KindDDL,
	"DROP":     models.KindDDL,
	"ALTER":    models.KindDDL,
	"TRUNCATE": models.KindDDL,
	"RENAME":   models.KindDDL,
	"COMMENT":  models.KindDDL,
	"GRANT":    models.KindDDL,
	"REVOKE":   models.KindDDL,
}

// statementStarters are keywords that begin a statement of their own in at
// least one supported dialect. Seen anywhere but the root of a query they
// mean chaining or a nested write.
var statementStarters = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "UPSERT": true, "REPLACE": true,
	"CREATE": true, "DROP": true, "ALTER": true, "TRUNCATE": true, "RENAME": true,
	"GRANT": true, "REVOKE": true, "EXEC": true, "EXECUTE": true, "CALL": true,
	"DECLARE": true, "USE": true, "COPY": true, "VACUUM": true, "ATTACH": true, "DETACH": true,
	"PRAGMA": true, "BEGIN": true, "COMMIT": true, "ROLLBACK": true, "SAVEPOINT": true,
	"SHUTDOWN": true, "BACKUP": true, "RESTORE": true, "KILL": true, "WAITFOR": true,
	"DBCC": true, "INSTALL": true, "CHECKPOINT": true, "REINDEX": true, "LISTEN": true,
	"NOTIFY": true, "DEALLOCATE": true, "PREPARE": true, "REVERT": true,
}

// dynamicSQL keywords stay statement starters even when followed by "(".
var dynamicSQL = map[string]bool{"EXEC": true, "EXECUTE": true}

var setOperators = map[string]bool{
	"UNION": true, "INTERSECT": true, "EXCEPT": true, "MINUS": true, "ALL": true, "DISTINCT": true,
}

// clauseEnd keywords never name a table.
var clauseEnd = map[string]bool{
	"WHERE": true, "GROUP": true, "HAVING": true, "ORDER": true, "LIMIT": true, "OFFSET": true,
	"FETCH": true, "UNION": true, "INTERSECT": true, "EXCEPT": true, "MINUS": true, "WINDOW": true,
	"QUALIFY": true, "FOR": true, "RETURNING": true, "SET": true, "VALUES": true, "SELECT": true,
	"OUTPUT": true, "OPTION": true, "WHEN": true, "ON": true, "USING": true,
}

// notAlias words never serve as a bare table alias.
var notAlias = map[string]bool{
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "FULL": true, "OUTER": true,
	"CROSS": true, "NATURAL": true, "ON": true, "USING": true, "WITH": true, "TABLESAMPLE": true,
	"PIVOT": true, "UNPIVOT": true, "ASOF": true, "POSITIONAL": true, "ANTI": true, "SEMI": true,
	"APPLY": true, "LATERAL": true, "DEFAULT": true,
}

// Parse tokenizes text under dialect and classifies it as a single SQL
// statement. Structural problems are returned as *ParseError; a statement
// whose root keyword is not recognized is returned with KindUnknown and no
// error.
func Parse(text string, dialect Dialect) (*Statement, error) {
	tokens, err := lex(text, dialect)
	if err != nil {
		return nil, unparseable("%v", err)
	}

	for i, t := range tokens {
		if t.isPunct(";") && i != len(tokens)-1 {
			return nil, multiple("statement separator at offset %d", t.pos)
		}
	}
	if n := len(tokens); n > 0 && tokens[n-1].isPunct(";") {
		tokens = tokens[:n-1]
	}
	if len(tokens) == 0 {
		return nil, unparseable("empty statement")
	}

	a := &analyzer{tokens: tokens}
	if err := a.computeDepths(); err != nil {
		return nil, err
	}
	return a.analyze()
}

// Classify returns the statement kind and root keyword of text under dialect.
func Classify(text string, dialect Dialect) (models.StatementKind, string, error) {
	stmt, err := Parse(text, dialect)
	if err != nil {
		return models.KindUnknown, "", err
	}
	return stmt.Kind, stmt.Operation, nil
}

type analyzer struct {
	tokens []token
	// depth[i] is the paren/bracket nesting level token i sits at; an
	// opening paren shares the depth of its surroundings.
	depth []int
	// match[i] is the index of the closer for the opener at i.
	match map[int]int
	// opener[i] is the index of the innermost open paren enclosing token i, or -1.
	opener []int
	ctes   map[string]bool
	stmt   *Statement
}

func (a *analyzer) computeDepths() error {
	a.depth = make([]int, len(a.tokens))
	a.opener = make([]int, len(a.tokens))
	a.match = make(map[int]int)
	var stack []int
	for i, t := range a.tokens {
		a.depth[i] = len(stack)
		if len(stack) > 0 {
			a.opener[i] = stack[len(stack)-1]
		} else {
			a.opener[i] = -1
		}
		switch {
		case t.isPunct("(") || t.isPunct("["):
			stack = append(stack, i)
		case t.isPunct(")") || t.isPunct("]"):
			want := "("
			if t.value == "]" {
				want = "["
			}
			if len(stack) == 0 || a.tokens[stack[len(stack)-1]].value != want {
				return unparseable("unbalanced %q at offset %d", t.value, t.pos)
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			a.match[open] = i
			a.depth[i] = len(stack)
			if len(stack) > 0 {
				a.opener[i] = stack[len(stack)-1]
			} else {
				a.opener[i] = -1
			}
		}
	}
	if len(stack) > 0 {
		return unparseable("unclosed %q at offset %d", a.tokens[stack[len(stack)-1]].value, a.tokens[stack[len(stack)-1]].pos)
	}
	return nil
}

func (a *analyzer) tok(i int) token {
	if i >= 0 && i < len(a.tokens) {
		return a.tokens[i]
	}
	return token{kind: tokPunct, value: ""}
}

func (a *analyzer) analyze() (*Statement, error) {
	a.stmt = &Statement{Kind: models.KindUnknown}
	a.ctes = make(map[string]bool)

	root, err := a.findRoot()
	if err != nil {
		return nil, err
	}
	if root < 0 {
		return a.stmt, nil
	}
	rootTok := a.tokens[root]
	a.stmt.Operation = rootTok.value
	kind, ok := rootKinds[rootTok.value]
	if !ok {
		return a.stmt, nil
	}
	// Only queries may be parenthesized or preceded by WITH in every dialect
	// we accept; anything else is treated as unclassifiable.
	if root > 0 && kind != models.KindSelect && !a.tokens[0].isWord("WITH") {
		return a.stmt, nil
	}
	if kind != models.KindSelect && a.tok(root-1).isPunct("(") {
		return a.stmt, nil
	}
	if a.tokens[0].isWord("WITH") && kind == models.KindDDL {
		return a.stmt, nil
	}
	a.stmt.Kind = kind

	switch {
	case kind == models.KindSelect:
		err = a.checkQuery(root)
	case kind.IsWrite() && kind != models.KindDDL:
		err = a.checkWrite(root, kind)
	}
	if err != nil {
		return nil, err
	}

	a.collectLiterals()
	a.collectTables(root, kind)
	return a.stmt, nil
}

// findRoot skips leading parens and any WITH clause and returns the index of
// the root keyword, or -1 when the statement does not start with a word.
func (a *analyzer) findRoot() (int, error) {
	i := 0
	for a.tok(i).isPunct("(") {
		i++
	}
	if a.tok(i).isWord("WITH") {
		next, err := a.skipWith(i + 1)
		if err != nil {
			return -1, err
		}
		i = next
		for a.tok(i).isPunct("(") {
			i++
		}
	}
	if a.tok(i).kind != tokWord {
		return -1, nil
	}
	return i, nil
}

// skipWith consumes "[RECURSIVE] name [(cols)] AS [NOT] [MATERIALIZED] (body), ..."
// recording CTE names and rejecting data-modifying bodies.
func (a *analyzer) skipWith(i int) (int, error) {
	if a.tok(i).isWord("RECURSIVE") {
		i++
	}
	for {
		name := a.tok(i)
		if name.kind != tokWord && name.kind != tokQuotedIdent {
			return -1, unparseable("expected common table expression name at offset %d", name.pos)
		}
		a.ctes[identValue(name)] = true
		a.stmt.CTEs = append(a.stmt.CTEs, identValue(name))
		i++
		if a.tok(i).isPunct("(") {
			i = a.match[i] + 1
		}
		if !a.tok(i).isWord("AS") {
			return -1, unparseable("expected AS after common table expression %q", identValue(name))
		}
		i++
		if a.tok(i).isWord("NOT") {
			i++
		}
		if a.tok(i).isWord("MATERIALIZED") {
			i++
		}
		if !a.tok(i).isPunct("(") {
			return -1, unparseable("expected ( after AS in common table expression %q", identValue(name))
		}
		closeIdx := a.match[i]
		for j := i + 1; j < closeIdx; j++ {
			if a.isNestedStatement(j) {
				return -1, unparseable("data-modifying %s inside WITH clause", a.tokens[j].value)
			}
		}
		i = closeIdx + 1
		if !a.tok(i).isPunct(",") {
			return i, nil
		}
		i++
	}
}

// isNestedStatement reports whether token j is a statement-starting keyword
// used as a statement rather than as a function name, qualified column or
// row-locking clause.
func (a *analyzer) isNestedStatement(j int) bool {
	t := a.tokens[j]
	if t.kind != tokWord || !statementStarters[t.value] {
		return false
	}
	prev, next := a.tok(j-1), a.tok(j+1)
	if prev.isPunct(".") || next.isPunct(".") {
		return false
	}
	if next.isPunct("(") && !dynamicSQL[t.value] {
		return false
	}
	if t.value == "UPDATE" && (prev.isWord("FOR") || (prev.isWord("KEY") && a.tok(j-2).isWord("NO"))) {
		return false
	}
	return true
}

// checkQuery enforces the single-statement and read-only structure of a SELECT root.
func (a *analyzer) checkQuery(root int) error {
	rootDepth := a.depth[root]
	for j := root + 1; j < len(a.tokens); j++ {
		t := a.tokens[j]
		if t.kind != tokWord {
			continue
		}
		if a.isNestedStatement(j) {
			if a.depth[j] <= rootDepth {
				return multiple("%s follows the query at offset %d", t.value, t.pos)
			}
			return unparseable("data-modifying %s nested in query", t.value)
		}
		if t.value == "INTO" && !a.tok(j-1).isPunct(".") {
			return unparseable("SELECT INTO creates objects and is not a query")
		}
		if t.isWord("SELECT", "VALUES") && a.startsNewQuery(j, rootDepth) {
			return multiple("second query at offset %d", t.pos)
		}
	}
	return nil
}

// startsNewQuery reports whether a SELECT/VALUES at j begins a statement of
// its own rather than a subquery or a set-operation operand.
func (a *analyzer) startsNewQuery(j, rootDepth int) bool {
	if a.depth[j] > rootDepth {
		return false
	}
	prev := a.tok(j - 1)
	if prev.isPunct("(") {
		return false
	}
	return !(prev.kind == tokWord && setOperators[prev.value])
}

// isWriteClause reports whether a DML keyword is an upsert or MERGE action
// clause rather than a statement of its own.
func isWriteClause(prev token, prevPrev token, kw string) bool {
	switch {
	case prev.isWord("THEN") && (kw == "UPDATE" || kw == "DELETE" || kw == "INSERT"):
		return true
	case prev.isWord("DO") && kw == "UPDATE":
		return true
	case prev.isWord("OR") && kw == "REPLACE":
		return true
	case prev.isWord("ON") && (kw == "UPDATE" || kw == "DELETE"):
		return true
	case prev.isWord("FOR") && kw == "UPDATE":
		return true
	case prev.isWord("KEY") && prevPrev.isWord("DUPLICATE") && kw == "UPDATE":
		return true
	}
	return false
}

// checkWrite enforces single-statement structure for DML roots.
func (a *analyzer) checkWrite(root int, kind models.StatementKind) error {
	rootDepth := a.depth[root]
	selects := 0
	sawValues := false
	for j := root + 1; j < len(a.tokens); j++ {
		t := a.tokens[j]
		if t.kind != tokWord {
			continue
		}
		if t.value == "VALUES" && a.depth[j] <= rootDepth {
			sawValues = true
		}
		if a.isNestedStatement(j) {
			if isWriteClause(a.tok(j-1), a.tok(j-2), t.value) {
				continue
			}
			if a.depth[j] <= rootDepth {
				return multiple("%s follows the %s at offset %d", t.value, a.stmt.Operation, t.pos)
			}
			return unparseable("data-modifying %s nested in %s", t.value, a.stmt.Operation)
		}
		if t.isWord("SELECT") && a.startsNewQuery(j, rootDepth) {
			selects++
			if kind != models.KindInsert || selects > 1 || sawValues {
				return multiple("query follows the %s at offset %d", a.stmt.Operation, t.pos)
			}
		}
	}
	return nil
}

func (a *analyzer) collectLiterals() {
	for _, t := range a.tokens {
		if t.kind == tokString {
			a.stmt.Literals = append(a.stmt.Literals, t.value)
		}
	}
}

// collectTables records every object named in a table position, including
// those inside WITH bodies ahead of the root keyword.
func (a *analyzer) collectTables(root int, kind models.StatementKind) {
	for j := 0; j < len(a.tokens); j++ {
		t := a.tokens[j]
		if t.kind != tokWord {
			continue
		}
		next := a.tok(j + 1)
		switch t.value {
		case "FROM":
			if a.tok(j-1).isWord("DISTINCT") || a.insideFunctionCall(j) || a.stmt.Operation == "REVOKE" {
				continue
			}
			a.tableList(j+1, true)
		case "JOIN":
			a.tableList(j+1, true)
		case "INTO":
			a.tableFactor(j+1, false)
		case "USING":
			if a.depth[j] == a.depth[root] && (kind == models.KindMerge || kind == models.KindDelete) {
				a.tableList(j+1, true)
			}
		case "UPDATE", "TRUNCATE":
			if j == root {
				a.tableList(j+1, false)
			}
		case "DELETE", "MERGE":
			if j == root && !next.isWord("FROM", "INTO") {
				a.tableFactor(j+1, false)
			}
		case "INSERT", "REPLACE", "UPSERT":
			if j == root && !next.isWord("INTO", "OR") {
				a.tableFactor(j+1, false)
			}
		case "TABLE":
			switch {
			case kind == models.KindDDL && a.stmt.Operation == "DROP":
				a.tableList(j+1, false)
			case kind == models.KindDDL:
				a.tableFactor(j+1, false)
			case a.tok(j-1).isPunct("(") || setOperators[a.tok(j-1).value]:
				// TABLE x used as a query.
				a.tableFactor(j+1, false)
			}
		}
	}
}

// insideFunctionCall reports whether token j sits directly inside a call
// like EXTRACT(x FROM y) rather than inside a subquery.
func (a *analyzer) insideFunctionCall(j int) bool {
	open := a.opener[j]
	if open < 0 || !a.tokens[open].isPunct("(") {
		return false
	}
	if a.isSubqueryParen(open) {
		return false
	}
	prev := a.tok(open - 1)
	return prev.kind == tokWord || prev.kind == tokQuotedIdent
}

func (a *analyzer) isSubqueryParen(open int) bool {
	k := open + 1
	for a.tok(k).isPunct("(") {
		k++
	}
	return a.tok(k).isWord("SELECT", "WITH", "VALUES", "TABLE")
}

// listEnd keywords close a comma-separated table list at the list's depth.
var listEnd = map[string]bool{
	"WHERE": true, "GROUP": true, "HAVING": true, "ORDER": true, "LIMIT": true, "OFFSET": true,
	"FETCH": true, "UNION": true, "INTERSECT": true, "EXCEPT": true, "MINUS": true, "WINDOW": true,
	"QUALIFY": true, "FOR": true, "RETURNING": true, "SET": true, "VALUES": true, "SELECT": true,
	"OUTPUT": true, "OPTION": true, "WHEN": true,
}

// tableList reads comma-separated table factors starting at i. Commas that
// follow a JOIN condition still belong to the list.
func (a *analyzer) tableList(i int, allowFunc bool) {
	if i >= len(a.tokens) {
		return
	}
	listDepth := a.depth[i]
	for i < len(a.tokens) {
		i = a.tableFactor(i, allowFunc)
		for {
			if i >= len(a.tokens) || a.depth[i] < listDepth {
				return
			}
			t := a.tokens[i]
			if a.depth[i] == listDepth {
				if t.isPunct(",") {
					i++
					break
				}
				if t.kind == tokWord && listEnd[t.value] {
					return
				}
			}
			if t.isPunct("(") || t.isPunct("[") {
				i = a.match[i] + 1
				continue
			}
			i++
		}
	}
}

// tableFactor parses one table reference at i and returns the index after
// its name. Parenthesized factors are left to the enclosing scan.
func (a *analyzer) tableFactor(i int, allowFunc bool) int {
	for a.tok(i).isWord("ONLY", "LATERAL", "IF", "NOT", "EXISTS", "TABLE") {
		i++
	}
	t := a.tok(i)
	switch t.kind {
	case tokString:
		a.addTable(TableRef{Source: "'" + t.value + "'"})
		return i + 1
	case tokParam:
		a.addTable(TableRef{Source: t.text})
		return i + 1
	case tokPunct:
		if t.isPunct("(") {
			if !a.isSubqueryParen(i) {
				a.tableList(i+1, allowFunc)
			}
			return i
		}
		if !t.isPunct("[") {
			return i
		}
	case tokWord:
		if clauseEnd[t.value] || notAlias[t.value] {
			return i
		}
	case tokQuotedIdent:
	default:
		return i
	}

	var parts []string
	for {
		part, next, ok := a.identAt(i)
		if !ok {
			break
		}
		parts = append(parts, part)
		i = next
		if !a.tok(i).isPunct(".") {
			break
		}
		i++
	}
	if len(parts) == 0 {
		return i
	}

	if allowFunc && a.tok(i).isPunct("(") {
		a.addTable(TableRef{Source: strings.Join(parts, ".") + "()"})
		return a.match[i] + 1
	}

	if len(parts) == 1 && a.ctes[parts[0]] {
		return i
	}
	ref := TableRef{Name: parts[len(parts)-1]}
	if len(parts) >= 2 {
		ref.Schema = parts[len(parts)-2]
	}
	if len(parts) >= 3 {
		ref.Catalog = strings.Join(parts[:len(parts)-2], ".")
	}
	a.addTable(ref)
	return i
}

func (a *analyzer) addTable(ref TableRef) {
	for _, existing := range a.stmt.Tables {
		if existing == ref {
			return
		}
	}
	a.stmt.Tables = append(a.stmt.Tables, ref)
}

// identAt reads a bare, quoted or bracketed identifier at i. Brackets reach
// here as punctuation only in dialects where they are not identifier quotes.
func (a *analyzer) identAt(i int) (string, int, bool) {
	t := a.tok(i)
	switch {
	case t.kind == tokWord:
		return identValue(t), i + 1, true
	case t.kind == tokQuotedIdent:
		return t.value, i + 1, true
	case t.isPunct("["):
		closeIdx := a.match[i]
		var words []string
		for k := i + 1; k < closeIdx; k++ {
			words = append(words, a.tokens[k].text)
		}
		if len(words) == 0 {
			return "", i, false
		}
		return strings.Join(words, " "), closeIdx + 1, true
	}
	return "", i, false
}

// identValue normalizes an identifier token: unquoted names fold to lower case.
func identValue(t token) string {
	if t.kind == tokQuotedIdent {
		return t.value
	}
	return strings.ToLower(t.text)
}
