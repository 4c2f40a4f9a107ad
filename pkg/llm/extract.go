package llm

import (
	"regexp"
	"strings"
)

// thinkBlockPattern matches <think>...</think> reasoning blocks anywhere in a response.
var thinkBlockPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// fencePattern matches a fenced code block and captures its language tag and body.
var fencePattern = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)[ \\t]*\\r?\\n?(.*?)```")

// labelPattern matches a leading "SQL:" or "Query:" label on a line.
var labelPattern = regexp.MustCompile(`(?i)^\s*(sql|query|sql query)\s*:\s*`)

// statementLeaders are first words that make a line look like the start of SQL.
var statementLeaders = map[string]bool{
	"SELECT": true, "WITH": true, "VALUES": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"MERGE": true, "REPLACE": true, "UPSERT": true, "CREATE": true, "DROP": true, "ALTER": true,
	"TRUNCATE": true, "CALL": true, "EXEC": true, "EXECUTE": true, "EXPLAIN": true, "(": true,
}

// ErrNoStatement is returned when a response holds nothing that looks like SQL.
var ErrNoStatement = NewError(ErrorTypeExtraction, "response contains no SQL statement", true, nil)

// ExtractSQL pulls the candidate statement out of a raw completion. It strips
// reasoning blocks and prefers the first non-empty fenced block, tagged sql
// ones first. Without fences it starts at the first line that opens with a
// statement keyword. Commentary after a terminating semicolon is dropped only
// when it does not itself look like SQL; a second statement is never removed.
func ExtractSQL(response string) (string, error) {
	cleaned := thinkBlockPattern.ReplaceAllString(response, "")
	if i := strings.Index(cleaned, "<think>"); i >= 0 {
		// Unterminated reasoning block: everything after it is reasoning.
		cleaned = cleaned[:i]
	}

	if sql, ok := fromFences(cleaned); ok {
		return sql, nil
	}

	lines := strings.Split(cleaned, "\n")
	start := -1
	for i, line := range lines {
		line = labelPattern.ReplaceAllString(line, "")
		if leadsStatement(line) {
			lines[i] = line
			start = i
			break
		}
	}
	if start < 0 {
		return "", ErrNoStatement
	}

	lines = lines[start:]
	for i, line := range lines {
		if !strings.HasSuffix(strings.TrimSpace(line), ";") {
			continue
		}
		if !restLooksLikeSQL(lines[i+1:]) {
			lines = lines[:i+1]
		}
		break
	}

	sql := strings.TrimSpace(strings.Join(lines, "\n"))
	if sql == "" {
		return "", ErrNoStatement
	}
	return sql, nil
}

func fromFences(text string) (string, bool) {
	matches := fencePattern.FindAllStringSubmatch(text, -1)
	var fallback string
	for _, m := range matches {
		body := strings.TrimSpace(m[2])
		if body == "" {
			continue
		}
		if strings.EqualFold(m[1], "sql") {
			return body, true
		}
		if fallback == "" && leadsStatement(body) {
			fallback = body
		}
	}
	return fallback, fallback != ""
}

func leadsStatement(line string) bool {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "(") {
		return true
	}
	end := strings.IndexFunc(line, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		end = len(line)
	}
	word := line[:end]
	// Prose starts sentences with "With" or "Select"; SQL keywords are
	// written in a single case.
	if word != strings.ToUpper(word) && word != strings.ToLower(word) {
		return false
	}
	return statementLeaders[strings.ToUpper(word)]
}

func restLooksLikeSQL(lines []string) bool {
	for _, line := range lines {
		if leadsStatement(line) {
			return true
		}
	}
	return false
}
