package prompts

import (
	"fmt"
	"strings"
	"time"
)

// ResultSet is a compact, already-serialized view of query output.
type ResultSet struct {
	Columns   []string
	Rows      [][]string
	TotalRows int  // rows returned by the database
	Truncated bool // Rows holds fewer than TotalRows, or the database capped the result
}

// FormatValue renders a single cell for inclusion in a prompt.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

// CompactRows serializes rows until either maxRows rows or roughly maxBytes
// of cell text have been emitted. It reports whether anything was dropped.
func CompactRows(rows [][]any, maxRows, maxBytes int) ([][]string, bool) {
	out := make([][]string, 0, min(len(rows), maxRows))
	size := 0
	for i, row := range rows {
		if i >= maxRows {
			return out, true
		}
		cells := make([]string, len(row))
		rowSize := 0
		for j, v := range row {
			cells[j] = FormatValue(v)
			rowSize += len(cells[j]) + 3
		}
		if size+rowSize > maxBytes && len(out) > 0 {
			return out, true
		}
		size += rowSize
		out = append(out, cells)
	}
	return out, false
}

// BuildAnswerPrompt asks for a short natural-language answer grounded only
// in the given result set.
func BuildAnswerPrompt(question string, rs ResultSet) string {
	var prompt strings.Builder

	prompt.WriteString("# Answer Synthesis\n\n")
	prompt.WriteString("Answer the question using only the query result below.\n\n")

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(strings.TrimSpace(question))
	prompt.WriteString("\n\n")

	prompt.WriteString("## Query Result\n\n")
	prompt.WriteString(strings.Join(rs.Columns, " | "))
	prompt.WriteString("\n")
	for _, row := range rs.Rows {
		prompt.WriteString(strings.Join(row, " | "))
		prompt.WriteString("\n")
	}
	if rs.Truncated {
		prompt.WriteString(fmt.Sprintf("(showing %d of %d rows)\n", len(rs.Rows), rs.TotalRows))
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Guidelines\n\n")
	prompt.WriteString("- Reply in one to three plain sentences.\n")
	prompt.WriteString("- Name the specific values that answer the question, such as the highest or lowest entry.\n")
	prompt.WriteString("- Do not invent rows or values that are not in the result.\n")
	prompt.WriteString("- Do not mention SQL, tables or the query itself.\n")

	return prompt.String()
}
