package rbac

import (
	"errors"
	"strconv"
	"time"
)

var (
	// ErrNotFound is returned when a role or assignment does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrDuplicate is returned when a role name or assignment already exists.
	ErrDuplicate = errors.New("rbac: already exists")
	// ErrSystemRole is returned when a write targets an immutable system role.
	ErrSystemRole = errors.New("rbac: system roles cannot be modified")
	// ErrUnknownPermission is returned when a role references a key missing
	// from the registry.
	ErrUnknownPermission = errors.New("rbac: unknown permission")
	// ErrInvalidRole is returned for a role definition missing required fields.
	ErrInvalidRole = errors.New("rbac: invalid role")
	// ErrInvalidAssignment is returned for inconsistent scope type and id.
	ErrInvalidAssignment = errors.New("rbac: invalid assignment scope")
	// ErrCacheInvalidation is returned when a mutation committed but the
	// permission cache could not be invalidated.
	ErrCacheInvalidation = errors.New("rbac: cache invalidation failed")
)

// ScopeType is the scope an assignment applies in. The empty value is the
// legacy unscoped assignment and behaves like ScopeGlobal.
type ScopeType string

const (
	ScopeUnscoped ScopeType = ""
	ScopeGlobal   ScopeType = "global"
	ScopeProject  ScopeType = "project"
)

// Permission is a capability identifier such as "task.update".
type Permission struct {
	Key         string `json:"key"`
	Module      string `json:"module"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

// Role is a named set of permission keys.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsSystem    bool      `json:"is_system"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleAssignment grants a role to a user within a scope. Assignments are
// created and deleted, never updated.
type RoleAssignment struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	RoleID    int64     `json:"role_id"`
	RoleName  string    `json:"role_name,omitempty"`
	ScopeType ScopeType `json:"scope_type,omitempty"`
	ScopeID   *int64    `json:"scope_id,omitempty"`
	GrantedBy *int64    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`

	// Permissions of the assigned role, populated by FindRoleAssignments.
	Permissions []string `json:"permissions,omitempty"`
}

// Validate checks that the scope type and id agree.
func (a *RoleAssignment) Validate() error {
	switch a.ScopeType {
	case ScopeUnscoped, ScopeGlobal:
		if a.ScopeID != nil {
			return ErrInvalidAssignment
		}
	case ScopeProject:
		if a.ScopeID == nil || *a.ScopeID <= 0 {
			return ErrInvalidAssignment
		}
	default:
		return ErrInvalidAssignment
	}
	if a.UserID <= 0 || a.RoleID <= 0 {
		return ErrInvalidAssignment
	}
	return nil
}

// ScopeFilter selects the assignments that apply to a check. Unscoped and
// global assignments always apply; project assignments apply only when
// ProjectID names their project.
type ScopeFilter struct {
	ProjectID *int64
}

// NewScopeFilter builds the filter for a check against scopeID (nil for an
// unscoped check).
func NewScopeFilter(scopeID *int64) ScopeFilter {
	return ScopeFilter{ProjectID: scopeID}
}

// Matches reports whether a is selected by f.
func (f ScopeFilter) Matches(a RoleAssignment) bool {
	switch a.ScopeType {
	case ScopeUnscoped, ScopeGlobal:
		return true
	case ScopeProject:
		return f.ProjectID != nil && a.ScopeID != nil && *a.ScopeID == *f.ProjectID
	}
	return false
}

// Key identifies the filter in cache keys.
func (f ScopeFilter) Key() string {
	if f.ProjectID == nil {
		return "global"
	}
	return "p" + strconv.FormatInt(*f.ProjectID, 10)
}
