package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/auth"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/services"
)

// MaxQuestionLength bounds the question accepted over HTTP.
const MaxQuestionLength = 4000

// Asker is the part of the pipeline the HTTP surface drives.
type Asker interface {
	Submit(ctx context.Context, q models.UserQuery) (*services.Submission, error)
	Validate(statement string, role models.Role, targetDB string) models.ValidationResult
}

// RoleResolver looks up a role by name.
type RoleResolver interface {
	Get(name string) (models.Role, error)
}

// SessionIdentifier assigns a session id to a browser.
type SessionIdentifier interface {
	SessionID(w http.ResponseWriter, r *http.Request) (string, error)
}

// AskRequest is the body of POST /api/ask and /api/ask/stream.
type AskRequest struct {
	Question string `json:"question"`
	TargetDB string `json:"target_db,omitempty"`
}

// ValidateRequest is the body of POST /api/validate.
type ValidateRequest struct {
	SQL      string `json:"sql"`
	TargetDB string `json:"target_db,omitempty"`
}

// AskResponse reports every stage a request reached.
type AskResponse struct {
	RequestID  string                  `json:"request_id"`
	SQL        string                  `json:"sql"`
	Kind       models.StatementKind    `json:"statement_kind"`
	Attempts   int                     `json:"attempts"`
	Validation models.ValidationResult `json:"validation"`
	Result     *models.ExecutionResult `json:"result,omitempty"`
	Answer     *models.Answer          `json:"answer,omitempty"`
}

// RejectionResponse is the 422 body for a statement the validator refused.
type RejectionResponse struct {
	Error     string               `json:"error"`
	Message   string               `json:"message"`
	RequestID string               `json:"request_id"`
	SQL       string               `json:"sql"`
	Kind      models.StatementKind `json:"statement_kind"`
}

// AskHandler serves the question-answering endpoints.
type AskHandler struct {
	asker         Asker
	roles         RoleResolver
	sessions      SessionIdentifier
	defaultTarget string
	logger        *zap.Logger
}

// NewAskHandler creates an AskHandler. sessions may be nil, in which case
// requests never supersede one another.
func NewAskHandler(asker Asker, roles RoleResolver, sessions SessionIdentifier, defaultTarget string, logger *zap.Logger) *AskHandler {
	return &AskHandler{
		asker:         asker,
		roles:         roles,
		sessions:      sessions,
		defaultTarget: defaultTarget,
		logger:        logger,
	}
}

// RegisterRoutes registers the ask handler's routes on the given mux.
func (h *AskHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/ask", authMiddleware.RequireAuth(h.Ask))
	mux.HandleFunc("POST /api/ask/stream", authMiddleware.RequireAuth(h.AskStream))
	mux.HandleFunc("POST /api/validate", authMiddleware.RequireAuth(h.Validate))
}

// Ask handles POST /api/ask. The answer is collected before responding.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.submit(w, r)
	if !ok {
		return
	}

	resp := toAskResponse(sub)
	if sub.Answer != nil {
		answer, err := sub.Answer.Collect()
		if err != nil {
			h.writeError(w, err)
			return
		}
		resp.Answer = &answer
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: resp}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// AskStream handles POST /api/ask/stream. After the statement has run, the
// response becomes a Server-Sent Events stream: one "result" event, a
// "token" event per answer token and a final "done" event with the
// assembled answer.
func (h *AskHandler) AskStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("SSE not supported")
		if err := ErrorResponse(w, http.StatusInternalServerError, "sse_unsupported", "SSE not supported"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	sub, ok := h.submit(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	h.writeEvent(w, "result", toAskResponse(sub))
	flusher.Flush()

	if sub.Answer == nil {
		h.writeEvent(w, "done", struct{}{})
		flusher.Flush()
		return
	}

	for tok := range sub.Answer.Tokens() {
		h.writeEvent(w, "token", map[string]string{"text": tok})
		flusher.Flush()
	}
	if err := sub.Answer.Err(); err != nil {
		_, code, message := statusForError(err)
		h.writeEvent(w, "error", map[string]string{"error": code, "message": message})
		flusher.Flush()
		return
	}
	h.writeEvent(w, "done", sub.Answer.Answer())
	flusher.Flush()
}

func (h *AskHandler) writeEvent(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// submit decodes the request and runs the pipeline. It writes the response
// itself and returns false for everything except a statement that ran.
func (h *AskHandler) submit(w http.ResponseWriter, r *http.Request) (*services.Submission, bool) {
	id, role, ok := h.identity(w, r)
	if !ok {
		return nil, false
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid_request", "Invalid request body")
		return nil, false
	}
	req.Question = strings.TrimSpace(req.Question)
	switch {
	case req.Question == "":
		h.badRequest(w, "missing_question", "Question is required")
		return nil, false
	case len(req.Question) > MaxQuestionLength:
		h.badRequest(w, "question_too_long", fmt.Sprintf("Question exceeds %d characters", MaxQuestionLength))
		return nil, false
	}
	if req.TargetDB == "" {
		req.TargetDB = h.defaultTarget
	}
	if req.TargetDB == "" {
		h.badRequest(w, "missing_target", "target_db is required")
		return nil, false
	}

	sessionID := ""
	if h.sessions != nil {
		sid, err := h.sessions.SessionID(w, r)
		if err != nil {
			h.logger.Warn("Failed to assign session", zap.Error(err))
		}
		sessionID = sid
	}

	sub, err := h.asker.Submit(r.Context(), models.UserQuery{
		ID:        uuid.New(),
		Question:  req.Question,
		Role:      role,
		TargetDB:  req.TargetDB,
		UserID:    id.UserID,
		SessionID: sessionID,
	})
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}

	if !sub.Validation.Valid {
		resp := RejectionResponse{
			Error:     string(sub.Validation.Reason),
			Message:   sub.Validation.Detail,
			RequestID: sub.RequestID.String(),
			SQL:       sub.GeneratedSQL.SQL,
			Kind:      sub.Validation.Kind,
		}
		if err := WriteJSON(w, http.StatusUnprocessableEntity, resp); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return nil, false
	}

	if sub.Execution != nil && sub.Execution.IsFailed() {
		if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: toAskResponse(sub)}); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return nil, false
	}
	return sub, true
}

// Validate handles POST /api/validate.
func (h *AskHandler) Validate(w http.ResponseWriter, r *http.Request) {
	_, role, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid_request", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		h.badRequest(w, "missing_sql", "SQL is required")
		return
	}

	if req.TargetDB == "" {
		req.TargetDB = h.defaultTarget
	}
	result := h.asker.Validate(req.SQL, role, req.TargetDB)
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// identity returns the caller and their role, writing an error when the
// role is not configured.
func (h *AskHandler) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, models.Role, bool) {
	id, err := auth.RequireIdentity(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return auth.Identity{}, models.Role{}, false
	}
	role, err := h.roles.Get(id.RoleName)
	if err != nil {
		h.logger.Warn("Request with unconfigured role",
			zap.String("user_id", id.UserID),
			zap.String("role", id.RoleName))
		h.writeError(w, err)
		return auth.Identity{}, models.Role{}, false
	}
	return id, role, true
}

func (h *AskHandler) writeError(w http.ResponseWriter, err error) {
	status, code, message := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("code", code), zap.Error(err))
	}
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *AskHandler) badRequest(w http.ResponseWriter, code, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func toAskResponse(sub *services.Submission) AskResponse {
	return AskResponse{
		RequestID:  sub.RequestID.String(),
		SQL:        sub.GeneratedSQL.SQL,
		Kind:       sub.GeneratedSQL.Kind,
		Attempts:   sub.GeneratedSQL.Attempts,
		Validation: sub.Validation,
		Result:     sub.Execution,
	}
}
