package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "bare statement",
			response: "SELECT region, SUM(amount) FROM sales GROUP BY region",
			want:     "SELECT region, SUM(amount) FROM sales GROUP BY region",
		},
		{
			name:     "sql fence with prose",
			response: "Here is the query:\n```sql\nSELECT 1;\n```\nIt returns one.",
			want:     "SELECT 1;",
		},
		{
			name:     "sql fence preferred over earlier untagged fence",
			response: "```\nSELECT 'draft'\n```\nFinal:\n```SQL\nSELECT 'final'\n```",
			want:     "SELECT 'final'",
		},
		{
			name:     "untagged fence that leads with a statement",
			response: "```\nshell output\n```\n```\nselect * from t\n```",
			want:     "select * from t",
		},
		{
			name:     "think block stripped",
			response: "<think>\nSELECT wrong FROM nowhere;\n</think>\nSELECT id FROM users;",
			want:     "SELECT id FROM users;",
		},
		{
			name:     "unterminated think block dropped",
			response: "SELECT 1\n<think>I should also DROP",
			want:     "SELECT 1",
		},
		{
			name:     "label stripped",
			response: "SQL: SELECT name FROM products",
			want:     "SELECT name FROM products",
		},
		{
			name:     "leading prose skipped",
			response: "Sure! To answer that:\n\nWITH t AS (SELECT 1 AS x)\nSELECT x FROM t;\n\nThis uses a CTE.",
			want:     "WITH t AS (SELECT 1 AS x)\nSELECT x FROM t;",
		},
		{
			name:     "capitalized prose is not a statement",
			response: "With this in mind, here it is:\nselect 2",
			want:     "select 2",
		},
		{
			name:     "second statement kept for the validator",
			response: "SELECT 1;\nDROP TABLE users;",
			want:     "SELECT 1;\nDROP TABLE users;",
		},
		{
			name:     "parenthesized query",
			response: "(SELECT 1) UNION (SELECT 2)",
			want:     "(SELECT 1) UNION (SELECT 2)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractSQL(tt.response)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractSQL_NoStatement(t *testing.T) {
	for _, response := range []string{
		"",
		"I cannot answer that question with the available tables.",
		"<think>SELECT 1</think>",
		"```sql\n\n```",
	} {
		_, err := ExtractSQL(response)
		require.ErrorIs(t, err, ErrNoStatement, "response %q", response)
		assert.True(t, IsRetryable(err))
		assert.Equal(t, ErrorTypeExtraction, GetErrorType(err))
	}
}
