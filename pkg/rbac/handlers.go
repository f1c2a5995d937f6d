package rbac

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tasklane/pkg/httputil"
	"github.com/platinummonkey/tasklane/pkg/middleware"
	"github.com/platinummonkey/tasklane/pkg/observability"
)

// Handlers provides HTTP handlers for RBAC operations
type Handlers struct {
	admin    *Admin
	store    Store
	resolver *Resolver
	guard    *Middleware
}

// NewHandlers creates new RBAC handlers. Reads go to store directly; every
// write goes through admin.
func NewHandlers(admin *Admin, store Store, resolver *Resolver, guard *Middleware) *Handlers {
	return &Handlers{
		admin:    admin,
		store:    store,
		resolver: resolver,
		guard:    guard,
	}
}

// RegisterRoutes registers all RBAC routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	view := h.guard.RequirePermission(PermRoleView, NoScope)
	manage := h.guard.RequirePermission(PermRoleManage, NoScope)

	// Roles
	router.Handle("/rbac/roles", view(http.HandlerFunc(h.ListRoles))).Methods(http.MethodGet)
	router.Handle("/rbac/roles", manage(http.HandlerFunc(h.CreateRole))).Methods(http.MethodPost)
	router.Handle("/rbac/roles/{id}", view(http.HandlerFunc(h.GetRole))).Methods(http.MethodGet)
	router.Handle("/rbac/roles/{id}", manage(http.HandlerFunc(h.UpdateRole))).Methods(http.MethodPut)
	router.Handle("/rbac/roles/{id}", manage(http.HandlerFunc(h.DeleteRole))).Methods(http.MethodDelete)
	router.Handle("/rbac/roles/{id}/permissions", manage(http.HandlerFunc(h.SetRolePermissions))).Methods(http.MethodPut)
	router.Handle("/rbac/permissions", view(http.HandlerFunc(h.ListPermissions))).Methods(http.MethodGet)

	// Assignments
	router.Handle("/rbac/users/{id}/assignments", view(http.HandlerFunc(h.ListAssignments))).Methods(http.MethodGet)
	router.Handle("/rbac/users/{id}/assignments", manage(http.HandlerFunc(h.AssignRole))).Methods(http.MethodPost)
	router.Handle("/rbac/assignments/{id}", manage(http.HandlerFunc(h.RevokeAssignment))).Methods(http.MethodDelete)

	// Checks. Callers may always ask about themselves; asking about someone
	// else needs role.view.
	router.Handle("/rbac/users/{id}/permissions", middleware.RequireAuth(http.HandlerFunc(h.GetUserPermissions))).Methods(http.MethodGet)
	router.Handle("/rbac/check", middleware.RequireAuth(http.HandlerFunc(h.CheckPermission))).Methods(http.MethodPost)
}

type roleRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions" validate:"dive,required"`
}

type permissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,dive,required"`
}

type assignRequest struct {
	RoleID    int64  `json:"role_id" validate:"required,gt=0"`
	ScopeType string `json:"scope_type" validate:"omitempty,oneof=global project"`
	ScopeID   *int64 `json:"scope_id,omitempty" validate:"omitempty,gt=0"`
}

type checkRequest struct {
	UserID     int64  `json:"user_id,omitempty" validate:"omitempty,gt=0"`
	Permission string `json:"permission" validate:"required"`
	ProjectID  *int64 `json:"project_id,omitempty" validate:"omitempty,gt=0"`
}

// ListRoles handles GET /rbac/roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// CreateRole handles POST /rbac/roles
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}

	role, err := h.admin.CreateRole(r.Context(), actorID(r), RoleInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// GetRole handles GET /rbac/roles/{id}
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole handles PUT /rbac/roles/{id}
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req roleRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}

	role, err := h.admin.UpdateRole(r.Context(), actorID(r), id, RoleInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// DeleteRole handles DELETE /rbac/roles/{id}
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.admin.DeleteRole(r.Context(), actorID(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// SetRolePermissions handles PUT /rbac/roles/{id}/permissions
func (h *Handlers) SetRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req permissionsRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}

	role, err := h.admin.SetRolePermissions(r.Context(), actorID(r), id, req.Permissions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// ListPermissions handles GET /rbac/permissions
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// ListAssignments handles GET /rbac/users/{id}/assignments
func (h *Handlers) ListAssignments(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	assignments, err := h.store.ListUserAssignments(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, assignments)
}

// AssignRole handles POST /rbac/users/{id}/assignments
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req assignRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}

	assignment, err := h.admin.AssignRole(r.Context(), actorID(r), AssignmentInput{
		UserID:    userID,
		RoleID:    req.RoleID,
		ScopeType: ScopeType(req.ScopeType),
		ScopeID:   req.ScopeID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, assignment)
}

// RevokeAssignment handles DELETE /rbac/assignments/{id}
func (h *Handlers) RevokeAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.admin.RevokeAssignment(r.Context(), actorID(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GetUserPermissions handles GET /rbac/users/{id}/permissions?project_id=
func (h *Handlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	projectID, err := httputil.ParseQueryOptionalInt64(r, "project_id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid project_id")
		return
	}
	if !h.canInspect(r, userID) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	perms, err := h.resolver.EffectivePermissions(r.Context(), userID, projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":     userID,
		"project_id":  projectID,
		"permissions": perms,
	})
}

// CheckPermission handles POST /rbac/check
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	userID := req.UserID
	if userID == 0 {
		userID = actorID(r)
	}
	if !h.canInspect(r, userID) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	allowed := h.resolver.HasPermission(r.Context(), userID, req.Permission, req.ProjectID)
	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":    userID,
		"permission": req.Permission,
		"project_id": req.ProjectID,
		"allowed":    allowed,
	})
}

func (h *Handlers) canInspect(r *http.Request, userID int64) bool {
	caller := actorID(r)
	return caller == userID || h.resolver.HasPermission(r.Context(), caller, PermRoleView, nil)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, ErrUnknownPermission), errors.Is(err, ErrInvalidAssignment), errors.Is(err, ErrInvalidRole):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrSystemRole):
		httputil.WriteConflict(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("rbac request failed")
		httputil.WriteInternalError(w)
	}
}

func actorID(r *http.Request) int64 {
	if ac := middleware.GetAuthContext(r); ac != nil {
		return ac.UserID
	}
	return 0
}
