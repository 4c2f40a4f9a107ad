package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
)

const maxLoggedArgument = 200

// MCPRequestLogger returns middleware that logs each MCP JSON-RPC exchange at
// DEBUG: the tool and its sanitized arguments on the way in, and on the way
// out either the JSON-RPC error, the code of a tool-level error result, or
// success. Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			call := parseCall(body, logger)
			logger.Debug("MCP request",
				zap.String("method", call.Method),
				zap.String("tool", call.Params.Name),
				zap.Any("arguments", sanitizeArguments(call.Params.Arguments)),
			)

			recorder := &mcpResponseRecorder{ResponseWriter: w, body: &bytes.Buffer{}}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			logResponse(logger, call.Params.Name, recorder.body.Bytes(), time.Since(start))
		})
	}
}

// parseCall decodes the JSON-RPC envelope. Bodies that are not JSON-RPC
// yield a zero request; the handler decides what to do with them.
func parseCall(body []byte, logger *zap.Logger) jsonRPCRequest {
	var call jsonRPCRequest
	if err := json.Unmarshal(body, &call); err != nil {
		logger.Debug("Failed to parse MCP request JSON", zap.Error(err))
	}
	return call
}

func logResponse(logger *zap.Logger, tool string, body []byte, elapsed time.Duration) {
	var resp jsonRPCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		logger.Debug("Failed to parse MCP response JSON", zap.Error(err))
		return
	}

	switch {
	case resp.Error != nil:
		logger.Debug("MCP response error",
			zap.String("tool", tool),
			zap.Int("error_code", resp.Error.Code),
			zap.String("error_message", resp.Error.Message),
			zap.Duration("duration", elapsed),
		)
	case resp.Result.IsError:
		logger.Debug("MCP tool error",
			zap.String("tool", tool),
			zap.String("tool_error_code", resp.Result.errorCode()),
			zap.Duration("duration", elapsed),
		)
	default:
		logger.Debug("MCP response success",
			zap.String("tool", tool),
			zap.Duration("duration", elapsed),
		)
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result toolResult    `json:"result"`
	Error  *jsonRPCError `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolResult is the part of a tools/call result the logger reads. Tool
// errors carry a JSON body with a "code" field in their first text block.
type toolResult struct {
	IsError bool `json:"isError"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (r toolResult) errorCode() string {
	for _, c := range r.Content {
		if c.Type != "text" {
			continue
		}
		var body struct {
			Code string `json:"code"`
		}
		if json.Unmarshal([]byte(c.Text), &body) == nil && body.Code != "" {
			return body.Code
		}
	}
	return "unknown"
}

// mcpResponseRecorder is a response writer that captures the response body.
type mcpResponseRecorder struct {
	http.ResponseWriter
	body *bytes.Buffer
}

// Write captures the response body and writes it to the underlying writer.
func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// sensitiveKeywords mark argument names whose values are never logged.
var sensitiveKeywords = []string{"password", "secret", "token", "key", "credential"}

// sanitizeArguments redacts sensitive fields, passes SQL through the query
// sanitizer and truncates long values.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	result := make(map[string]any, len(args))
	for k, v := range args {
		lowerKey := strings.ToLower(k)
		if slices.ContainsFunc(sensitiveKeywords, func(kw string) bool { return strings.Contains(lowerKey, kw) }) {
			result[k] = logging.RedactedText
			continue
		}

		str, ok := v.(string)
		switch {
		case ok && lowerKey == "sql":
			result[k] = logging.SanitizeQuery(str)
		case ok:
			result[k] = logging.TruncateString(str, maxLoggedArgument)
		default:
			result[k] = v
		}
	}
	return result
}
