package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func serveMCP(t *testing.T, reqBody, respBody string) (*observer.ObservedLogs, *httptest.ResponseRecorder) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(respBody))
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(reqBody))
	MCPRequestLogger(zap.New(core))(handler).ServeHTTP(rec, req)
	return logs, rec
}

func TestMCPRequestLogger(t *testing.T) {
	t.Run("logs successful tool call", func(t *testing.T) {
		logs, _ := serveMCP(t,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ask_database","arguments":{"question":"total sales by region","target_db":"sales"}}}`,
			`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"North leads."}]}}`)

		require.Equal(t, 2, logs.Len(), "request and response are logged")

		requestLog := logs.All()[0]
		assert.Equal(t, "MCP request", requestLog.Message)
		assert.Equal(t, "tools/call", requestLog.ContextMap()["method"])
		assert.Equal(t, "ask_database", requestLog.ContextMap()["tool"])
		assert.NotNil(t, requestLog.ContextMap()["arguments"])

		responseLog := logs.All()[1]
		assert.Equal(t, "MCP response success", responseLog.Message)
		assert.Equal(t, "ask_database", responseLog.ContextMap()["tool"])
	})

	t.Run("logs error response", func(t *testing.T) {
		logs, rec := serveMCP(t,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"validate_sql","arguments":{"sql":"SELECT 1"}}}`,
			`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"sql is required"}}`)

		require.Equal(t, 2, logs.Len())
		responseLog := logs.All()[1]
		assert.Equal(t, "MCP response error", responseLog.Message)
		assert.Equal(t, int64(-32602), responseLog.ContextMap()["error_code"])
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("logs tool error code", func(t *testing.T) {
		logs, _ := serveMCP(t,
			`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"ask_database","arguments":{"question":"delete old sales"}}}`,
			`{"jsonrpc":"2.0","id":2,"result":{"isError":true,"content":[{"type":"text","text":"{\"error\":true,\"code\":\"dml_not_permitted\",\"message\":\"role may not write\"}"}]}}`)

		require.Equal(t, 2, logs.Len())
		responseLog := logs.All()[1]
		assert.Equal(t, "MCP tool error", responseLog.Message)
		assert.Equal(t, "dml_not_permitted", responseLog.ContextMap()["tool_error_code"])
	})

	t.Run("passes the body through", func(t *testing.T) {
		core, _ := observer.New(zapcore.DebugLevel)
		var seen string
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buf := new(bytes.Buffer)
			_, _ = buf.ReadFrom(r.Body)
			seen = buf.String()
		})
		body := `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`
		MCPRequestLogger(zap.New(core))(handler).ServeHTTP(httptest.NewRecorder(),
			httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body)))
		assert.Equal(t, body, seen)
	})
}

func TestSanitizeArguments(t *testing.T) {
	t.Run("redacts sensitive keywords", func(t *testing.T) {
		result := sanitizeArguments(map[string]any{
			"password":      "secret",
			"Api_Key":       "abc123",
			"AccessToken":   "xyz789",
			"client_secret": "hidden",
			"question":      "visible",
		})

		assert.Equal(t, "[REDACTED]", result["password"])
		assert.Equal(t, "[REDACTED]", result["Api_Key"])
		assert.Equal(t, "[REDACTED]", result["AccessToken"])
		assert.Equal(t, "[REDACTED]", result["client_secret"])
		assert.Equal(t, "visible", result["question"])
	})

	t.Run("truncates long strings", func(t *testing.T) {
		result := sanitizeArguments(map[string]any{
			"question": strings.Repeat("x", 250),
			"short":    "abc",
		})

		truncated := result["question"].(string)
		assert.Len(t, truncated, maxLoggedArgument+3)
		assert.True(t, strings.HasSuffix(truncated, "..."))
		assert.Equal(t, "abc", result["short"])
	})

	t.Run("sanitizes sql", func(t *testing.T) {
		result := sanitizeArguments(map[string]any{
			"sql": "SELECT * FROM remote('host=db password=hunter2') WHERE region = '" + strings.Repeat("n", 120) + "'",
		})
		sanitized := result["sql"].(string)
		assert.NotContains(t, sanitized, "hunter2")
		assert.True(t, strings.HasSuffix(sanitized, "..."))
	})

	t.Run("nil and empty", func(t *testing.T) {
		assert.Nil(t, sanitizeArguments(nil))
		assert.Empty(t, sanitizeArguments(map[string]any{}))
	})

	t.Run("preserves non-string values", func(t *testing.T) {
		result := sanitizeArguments(map[string]any{"limit": 42, "verbose": true})
		assert.Equal(t, 42, result["limit"])
		assert.Equal(t, true, result["verbose"])
	})
}
