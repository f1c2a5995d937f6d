package settings

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tasklane/pkg/httputil"
	"github.com/platinummonkey/tasklane/pkg/middleware"
	"github.com/platinummonkey/tasklane/pkg/observability"
	"github.com/platinummonkey/tasklane/pkg/rbac"
)

// Handlers provides HTTP handlers for settings
type Handlers struct {
	service  *Service
	resolver *Resolver
	checker  rbac.Checker
	guard    *rbac.Middleware
}

// NewHandlers creates settings handlers. checker gates project-scoped
// reads; guard gates project and global writes.
func NewHandlers(service *Service, resolver *Resolver, checker rbac.Checker, guard *rbac.Middleware) *Handlers {
	return &Handlers{
		service:  service,
		resolver: resolver,
		checker:  checker,
		guard:    guard,
	}
}

// RegisterRoutes registers all settings routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	authed := middleware.RequireAuth
	manageProject := h.guard.RequirePermission(rbac.PermSettingsProjectManage, rbac.ScopeFromPath("project_id"))
	viewProject := h.guard.RequirePermission(rbac.PermProjectView, rbac.ScopeFromPath("project_id"))
	manageGlobal := h.guard.RequirePermission(rbac.PermSettingsGlobalManage, rbac.NoScope)

	// Effective values
	router.Handle("/settings/effective", authed(http.HandlerFunc(h.ResolveAll))).Methods(http.MethodGet)
	router.Handle("/settings/effective/{category}", authed(http.HandlerFunc(h.Resolve))).Methods(http.MethodGet)
	router.Handle("/settings/explain/{category}", authed(http.HandlerFunc(h.Explain))).Methods(http.MethodGet)

	// User layer, always the caller's own
	router.Handle("/settings/user", authed(http.HandlerFunc(h.ListUser))).Methods(http.MethodGet)
	router.Handle("/settings/user/{category}", authed(http.HandlerFunc(h.PutUser))).Methods(http.MethodPut)
	router.Handle("/settings/user/{category}", authed(http.HandlerFunc(h.DeleteUser))).Methods(http.MethodDelete)

	// Project layer
	router.Handle("/projects/{project_id}/settings", viewProject(http.HandlerFunc(h.ListProject))).Methods(http.MethodGet)
	router.Handle("/projects/{project_id}/settings/{category}", manageProject(http.HandlerFunc(h.PutProject))).Methods(http.MethodPut)
	router.Handle("/projects/{project_id}/settings/{category}", manageProject(http.HandlerFunc(h.DeleteProject))).Methods(http.MethodDelete)
	router.Handle("/projects/{project_id}/settings/{category}/enabled", manageProject(http.HandlerFunc(h.SetProjectEnabled))).Methods(http.MethodPatch)

	// Global layer
	router.Handle("/settings/global", authed(http.HandlerFunc(h.ListGlobal))).Methods(http.MethodGet)
	router.Handle("/settings/global/{category}", manageGlobal(http.HandlerFunc(h.PutGlobal))).Methods(http.MethodPut)
	router.Handle("/settings/global/{category}", manageGlobal(http.HandlerFunc(h.DeleteGlobal))).Methods(http.MethodDelete)
}

type putRequest struct {
	Value json.RawMessage `json:"value" validate:"required"`
	// Enabled applies to project settings only and defaults to true.
	Enabled *bool `json:"enabled,omitempty"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// ResolveAll handles GET /settings/effective?project_id=
func (h *Handlers) ResolveAll(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := h.readScope(w, r)
	if !ok {
		return
	}
	resolved, err := h.resolver.ResolveAll(r.Context(), userID, projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"project_id": projectID,
		"settings":   resolved,
	})
}

// Resolve handles GET /settings/effective/{category}?project_id=
func (h *Handlers) Resolve(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := h.readScope(w, r)
	if !ok {
		return
	}
	resolved, err := h.resolver.Resolve(r.Context(), mux.Vars(r)["category"], userID, projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, resolved)
}

// Explain handles GET /settings/explain/{category}?project_id=
func (h *Handlers) Explain(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := h.readScope(w, r)
	if !ok {
		return
	}
	exp, err := h.resolver.Explain(r.Context(), mux.Vars(r)["category"], userID, projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, exp)
}

// ListUser handles GET /settings/user
func (h *Handlers) ListUser(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, ScopeUser, actorID(r))
}

// PutUser handles PUT /settings/user/{category}
func (h *Handlers) PutUser(w http.ResponseWriter, r *http.Request) {
	h.put(w, r, ScopeUser, actorID(r))
}

// DeleteUser handles DELETE /settings/user/{category}
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, ScopeUser, actorID(r))
}

// ListProject handles GET /projects/{project_id}/settings
func (h *Handlers) ListProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}
	h.list(w, r, ScopeProject, projectID)
}

// PutProject handles PUT /projects/{project_id}/settings/{category}
func (h *Handlers) PutProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}
	h.put(w, r, ScopeProject, projectID)
}

// DeleteProject handles DELETE /projects/{project_id}/settings/{category}
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}
	h.delete(w, r, ScopeProject, projectID)
}

// SetProjectEnabled handles PATCH /projects/{project_id}/settings/{category}/enabled
func (h *Handlers) SetProjectEnabled(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}
	var req enabledRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	setting, err := h.service.SetEnabled(r.Context(), actorID(r), projectID, mux.Vars(r)["category"], *req.Enabled)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, setting)
}

// ListGlobal handles GET /settings/global
func (h *Handlers) ListGlobal(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, ScopeGlobal, 0)
}

// PutGlobal handles PUT /settings/global/{category}
func (h *Handlers) PutGlobal(w http.ResponseWriter, r *http.Request) {
	h.put(w, r, ScopeGlobal, 0)
}

// DeleteGlobal handles DELETE /settings/global/{category}
func (h *Handlers) DeleteGlobal(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, ScopeGlobal, 0)
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request, scope Scope, ownerID int64) {
	list, err := h.service.List(r.Context(), scope, ownerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []Setting{}
	}
	httputil.WriteSuccess(w, list)
}

func (h *Handlers) put(w http.ResponseWriter, r *http.Request, scope Scope, ownerID int64) {
	var req putRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	enabled := req.Enabled == nil || *req.Enabled

	setting, err := h.service.Put(r.Context(), actorID(r), scope, ownerID, mux.Vars(r)["category"], req.Value, enabled)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, setting)
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request, scope Scope, ownerID int64) {
	if err := h.service.Delete(r.Context(), actorID(r), scope, ownerID, mux.Vars(r)["category"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// readScope returns the caller and the optional project_id query value.
// Reading inside a project needs project.view there.
func (h *Handlers) readScope(w http.ResponseWriter, r *http.Request) (int64, *int64, bool) {
	userID := actorID(r)
	projectID, err := httputil.ParseQueryOptionalInt64(r, "project_id")
	if err != nil || (projectID != nil && *projectID <= 0) {
		httputil.WriteBadRequest(w, "invalid project_id")
		return 0, nil, false
	}
	if projectID != nil && !h.checker.HasPermission(r.Context(), userID, rbac.PermProjectView, projectID) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return 0, nil, false
	}
	return userID, projectID, true
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnknownCategory), errors.Is(err, ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, ErrInvalidValue):
		httputil.WriteBadRequest(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("settings request failed")
		httputil.WriteInternalError(w)
	}
}

func actorID(r *http.Request) int64 {
	if ac := middleware.GetAuthContext(r); ac != nil {
		return ac.UserID
	}
	return 0
}
