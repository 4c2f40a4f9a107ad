package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

func tableNames(stmt *Statement) []string {
	out := make([]string, 0, len(stmt.Tables))
	for _, ref := range stmt.Tables {
		out = append(out, ref.String())
	}
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		kind models.StatementKind
		op   string
	}{
		{"plain select", "SELECT 1", models.KindSelect, "SELECT"},
		{"lower case", "select * from t", models.KindSelect, "SELECT"},
		{"parenthesized union", "(SELECT 1) UNION (SELECT 2)", models.KindSelect, "SELECT"},
		{"values list", "VALUES (1), (2)", models.KindSelect, "VALUES"},
		{"read-only CTE", "WITH x AS (SELECT 1) SELECT * FROM x", models.KindSelect, "SELECT"},
		{"recursive CTE with columns", "WITH RECURSIVE n(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM n WHERE i < 5) SELECT i FROM n", models.KindSelect, "SELECT"},
		{"leading comment", "/* report */ -- daily\nSELECT 1", models.KindSelect, "SELECT"},
		{"insert", "INSERT INTO t VALUES (1)", models.KindInsert, "INSERT"},
		{"sqlite insert or replace", "INSERT OR REPLACE INTO t VALUES (1)", models.KindInsert, "INSERT"},
		{"replace into", "REPLACE INTO t VALUES (1)", models.KindInsert, "REPLACE"},
		{"CTE feeding insert", "WITH s AS (SELECT 1 AS a) INSERT INTO t SELECT a FROM s", models.KindInsert, "INSERT"},
		{"upsert", "INSERT INTO t (id) VALUES (1) ON CONFLICT (id) DO UPDATE SET n = t.n + 1", models.KindInsert, "INSERT"},
		{"update", "UPDATE t SET a = 1 WHERE id = 2", models.KindUpdate, "UPDATE"},
		{"delete", "DELETE FROM t WHERE id = 2", models.KindDelete, "DELETE"},
		{"merge", "MERGE INTO t USING s ON t.id = s.id WHEN MATCHED THEN UPDATE SET a = s.a WHEN NOT MATCHED THEN INSERT (id) VALUES (s.id)", models.KindMerge, "MERGE"},
		{"create table", "CREATE TABLE t (id int)", models.KindDDL, "CREATE"},
		{"drop table", "DROP TABLE IF EXISTS t", models.KindDDL, "DROP"},
		{"alter table", "ALTER TABLE t ADD COLUMN c int", models.KindDDL, "ALTER"},
		{"truncate", "TRUNCATE t", models.KindDDL, "TRUNCATE"},
		{"grant", "GRANT SELECT ON t TO bob", models.KindDDL, "GRANT"},
		{"stored procedure call", "CALL refresh_stats()", models.KindUnknown, "CALL"},
		{"exec", "EXEC sp_who", models.KindUnknown, "EXEC"},
		{"explain", "EXPLAIN SELECT 1", models.KindUnknown, "EXPLAIN"},
		{"pragma", "PRAGMA table_info(t)", models.KindUnknown, "PRAGMA"},
		{"parenthesized write", "(DELETE FROM t)", models.KindUnknown, "DELETE"},
		{"prose", "Here is your query", models.KindUnknown, "HERE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, op, err := Classify(tt.sql, DialectPostgres)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.op, op)
		})
	}
}

func TestParse_StructuralRejections(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		reason models.RejectReason
	}{
		{"semicolon chaining", "SELECT 1; DROP TABLE x;", models.ReasonMultipleStatements},
		{"double semicolon", "SELECT 1;;", models.ReasonMultipleStatements},
		{"batch without separator", "SELECT 1 SELECT 2", models.ReasonMultipleStatements},
		{"write after comment newline", "SELECT 1 --\nDROP TABLE x", models.ReasonMultipleStatements},
		{"dynamic exec after query", "SELECT 1 EXEC('DROP TABLE t')", models.ReasonMultipleStatements},
		{"query after update", "UPDATE t SET a = 1 SELECT * FROM secret", models.ReasonMultipleStatements},
		{"delete after update", "UPDATE t SET a = 1 DELETE FROM t", models.ReasonMultipleStatements},
		{"select after insert values", "INSERT INTO t VALUES (1) SELECT 2", models.ReasonMultipleStatements},
		{"write inside CTE", "WITH d AS (DELETE FROM t RETURNING *) SELECT * FROM d", models.ReasonUnparseable},
		{"write nested in subquery", "SELECT * FROM (DELETE FROM t RETURNING *) x", models.ReasonUnparseable},
		{"select into", "SELECT * INTO backup FROM t", models.ReasonUnparseable},
		{"empty", "   ", models.ReasonUnparseable},
		{"only separator", ";", models.ReasonUnparseable},
		{"unclosed paren", "SELECT (1", models.ReasonUnparseable},
		{"stray close paren", "SELECT 1)", models.ReasonUnparseable},
		{"unterminated literal", "SELECT 'abc", models.ReasonUnparseable},
		{"nested comment", "SELECT /* /* */ */ 1", models.ReasonUnparseable},
		{"malformed CTE", "WITH x SELECT 1", models.ReasonUnparseable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.sql, DialectPostgres)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.reason, perr.Reason)
			assert.NotEmpty(t, perr.Detail)
		})
	}
}

func TestParse_AcceptedShapes(t *testing.T) {
	accepted := []string{
		"SELECT 1;",
		"SELECT 1;  -- done",
		"SELECT 'a; DROP TABLE t' AS s",
		"SELECT * FROM t FOR UPDATE",
		"SELECT * FROM t FOR NO KEY UPDATE SKIP LOCKED",
		"SELECT REPLACE(name, 'a', 'b') FROM t",
		"SELECT t.update FROM t",
		"SELECT 1 UNION ALL SELECT 2 EXCEPT SELECT 3",
		"SELECT * FROM t WHERE EXISTS (SELECT 1 FROM u WHERE u.id = t.id)",
		"INSERT INTO t (a) SELECT a FROM s UNION SELECT b FROM u",
		"INSERT INTO t (id) VALUES (1) ON DUPLICATE KEY UPDATE n = n + 1",
	}
	for _, sql := range accepted {
		t.Run(sql, func(t *testing.T) {
			_, err := Parse(sql, DialectPostgres)
			assert.NoError(t, err)
		})
	}
}

func TestParse_Tables(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"single table", "SELECT region FROM sales GROUP BY region", []string{"sales"}},
		{"unquoted names fold", "SELECT * FROM Public.Sales", []string{"public.sales"}},
		{"quoted names keep case", `SELECT * FROM "Sales"`, []string{"Sales"}},
		{"bracketed names", "SELECT * FROM [dbo].[sales]", []string{"dbo.sales"}},
		{"catalog qualified", "SELECT * FROM warehouse.dbo.sales", []string{"warehouse.dbo.sales"}},
		{"comma list with aliases", "SELECT * FROM a AS x, b y WHERE x.id = y.id", []string{"a", "b"}},
		{"comma after join condition", "SELECT * FROM a JOIN b ON a.id = b.id, c WHERE 1 = 1", []string{"a", "b", "c"}},
		{"subquery in where", "SELECT * FROM a WHERE id IN (SELECT id FROM b)", []string{"a", "b"}},
		{"derived table", "SELECT * FROM (SELECT * FROM b) AS d", []string{"b"}},
		{"parenthesized join", "SELECT * FROM (a CROSS JOIN b)", []string{"a", "b"}},
		{"CTE names excluded", "WITH top AS (SELECT * FROM sales) SELECT * FROM top", []string{"sales"}},
		{"extract is not a table", "SELECT EXTRACT(YEAR FROM created_at) FROM orders", []string{"orders"}},
		{"is distinct from", "SELECT * FROM a WHERE x IS DISTINCT FROM y", []string{"a"}},
		{"table function", "SELECT * FROM generate_series(1, 10)", []string{"generate_series()"}},
		{"file scan literal", "SELECT * FROM 'data.csv'", []string{"'data.csv'"}},
		{"lateral function", "SELECT * FROM a, LATERAL unnest(a.tags) t", []string{"a", "unnest()"}},
		{"insert target and source", "INSERT INTO t (a) SELECT a FROM s", []string{"t", "s"}},
		{"insert without into", "INSERT t VALUES (1)", []string{"t"}},
		{"update with from", "UPDATE t SET a = s.a FROM s WHERE s.id = t.id", []string{"t", "s"}},
		{"delete using", "DELETE FROM t USING s WHERE s.id = t.id", []string{"t", "s"}},
		{"delete without from", "DELETE t WHERE id = 1", []string{"t"}},
		{"merge", "MERGE INTO t USING s ON t.id = s.id WHEN MATCHED THEN DELETE", []string{"t", "s"}},
		{"drop list", "DROP TABLE IF EXISTS a, b", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Parse(tt.sql, DialectPostgres)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, tableNames(stmt))
		})
	}
}

func TestParse_Literals(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE name = 'O''Brien' AND note = $$x$$", DialectPostgres)
	require.NoError(t, err)
	assert.Equal(t, []string{"O'Brien", "x"}, stmt.Literals)
}
