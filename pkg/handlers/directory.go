package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/audit"
	"github.com/ekaya-inc/ekaya-ask/pkg/auth"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// TargetLister lists the configured target databases.
type TargetLister interface {
	List() []models.TargetDescriptor
}

// AuditLister reads the persisted audit trail.
type AuditLister interface {
	List(ctx context.Context, limit int) ([]models.AuditRecord, error)
}

// MeResponse describes the caller and what their role allows.
type MeResponse struct {
	UserID    string   `json:"user_id"`
	Email     string   `json:"email,omitempty"`
	Role      string   `json:"role"`
	AllowDML  bool     `json:"allow_dml"`
	Tables    []string `json:"tables,omitempty"`
	ViewAudit bool     `json:"view_audit"`
}

// TargetResponse is a target database without connection details.
type TargetResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name,omitempty"`
}

// AuditResponse wraps a page of audit records.
type AuditResponse struct {
	Records []models.AuditRecord `json:"records"`
	Total   int                  `json:"total"`
}

// DirectoryHandler serves read-only lookups: the caller, the targets they
// can query and the audit trail.
type DirectoryHandler struct {
	roles   RoleResolver
	targets TargetLister
	audit   AuditLister
	logger  *zap.Logger
}

// NewDirectoryHandler creates a DirectoryHandler. auditLister may be nil
// when the audit store is disabled.
func NewDirectoryHandler(roles RoleResolver, targets TargetLister, auditLister AuditLister, logger *zap.Logger) *DirectoryHandler {
	return &DirectoryHandler{
		roles:   roles,
		targets: targets,
		audit:   auditLister,
		logger:  logger,
	}
}

// RegisterRoutes registers the directory handler's routes on the given mux.
func (h *DirectoryHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/me", authMiddleware.RequireAuth(h.Me))
	mux.HandleFunc("GET /api/targets", authMiddleware.RequireAuth(h.Targets))
	mux.HandleFunc("GET /api/audit", authMiddleware.RequireAuth(h.Audit))
}

// Me handles GET /api/me.
func (h *DirectoryHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, role, ok := h.identity(w, r)
	if !ok {
		return
	}

	resp := MeResponse{
		UserID:    id.UserID,
		Email:     id.Email,
		Role:      role.Name,
		AllowDML:  role.AllowDML,
		Tables:    role.Tables,
		ViewAudit: role.ViewAudit,
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: resp}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Targets handles GET /api/targets.
func (h *DirectoryHandler) Targets(w http.ResponseWriter, r *http.Request) {
	targets := h.targets.List()
	resp := make([]TargetResponse, len(targets))
	for i, t := range targets {
		resp[i] = TargetResponse{ID: t.ID, Kind: t.Kind, DisplayName: t.DisplayName}
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: resp}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Audit handles GET /api/audit?limit=n, newest first. Only roles with
// view_audit may read the trail.
func (h *DirectoryHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id, role, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !role.ViewAudit {
		h.logger.Warn("Audit trail access denied",
			zap.String("user_id", id.UserID),
			zap.String("role", role.Name))
		h.fail(w, http.StatusForbidden, "forbidden", "Role may not read the audit trail")
		return
	}
	if h.audit == nil {
		h.fail(w, http.StatusNotFound, "audit_disabled", "The audit store is disabled")
		return
	}

	limit := audit.DefaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.fail(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.audit.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list audit records", zap.Error(err))
		h.fail(w, http.StatusInternalServerError, "internal_error", "Failed to list audit records")
		return
	}

	resp := AuditResponse{Records: records, Total: len(records)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: resp}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// identity returns the caller and their configured role, writing an error
// response when either is missing.
func (h *DirectoryHandler) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, models.Role, bool) {
	id, err := auth.RequireIdentity(r.Context())
	if err != nil {
		h.fail(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return auth.Identity{}, models.Role{}, false
	}
	role, err := h.roles.Get(id.RoleName)
	if err != nil {
		status, code, message := statusForError(err)
		h.fail(w, status, code, message)
		return auth.Identity{}, models.Role{}, false
	}
	return id, role, true
}

func (h *DirectoryHandler) fail(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
