package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Permission keys known to tasklane.
const (
	PermProjectView    = "project.view"
	PermProjectCreate  = "project.create"
	PermProjectUpdate  = "project.update"
	PermProjectDelete  = "project.delete"
	PermProjectArchive = "project.archive"

	PermTaskView   = "task.view"
	PermTaskCreate = "task.create"
	PermTaskUpdate = "task.update"
	PermTaskDelete = "task.delete"
	PermTaskAssign = "task.assign"

	PermCommentCreate = "comment.create"
	PermCommentDelete = "comment.delete"

	PermTimeTrack   = "time.track"
	PermTimeViewAll = "time.view_all"

	PermRoleView   = "role.view"
	PermRoleManage = "role.manage"
	PermUserManage = "user.manage"

	PermSettingsProjectManage = "settings.project.manage"
	PermSettingsGlobalManage  = "settings.global.manage"

	PermActivityView = "activity.view"
	PermReportView   = "report.view"
)

// System role names seeded at startup.
const (
	RoleAdmin          = "admin"
	RoleProjectManager = "project_manager"
	RoleMember         = "member"
	RoleViewer         = "viewer"
)

// Registry is the set of permission keys a deployment recognizes. Role
// definitions are validated against it; checks for keys outside it never
// match because no role can hold them.
type Registry struct {
	perms map[string]Permission
}

// NewRegistry builds a registry, rejecting empty or duplicate keys.
func NewRegistry(perms ...Permission) (*Registry, error) {
	r := &Registry{perms: make(map[string]Permission, len(perms))}
	for _, p := range perms {
		if strings.TrimSpace(p.Key) == "" {
			return nil, fmt.Errorf("permission key cannot be empty")
		}
		if _, exists := r.perms[p.Key]; exists {
			return nil, fmt.Errorf("duplicate permission key %q", p.Key)
		}
		if p.Module == "" {
			p.Module, _, _ = strings.Cut(p.Key, ".")
		}
		r.perms[p.Key] = p
	}
	return r, nil
}

// MustNewRegistry is NewRegistry that panics on error.
func MustNewRegistry(perms ...Permission) *Registry {
	r, err := NewRegistry(perms...)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultRegistry returns the built-in tasklane permissions.
func DefaultRegistry() *Registry {
	return MustNewRegistry(
		Permission{Key: PermProjectView, Category: "read", Description: "View projects"},
		Permission{Key: PermProjectCreate, Category: "write", Description: "Create projects"},
		Permission{Key: PermProjectUpdate, Category: "write", Description: "Edit project details"},
		Permission{Key: PermProjectDelete, Category: "admin", Description: "Delete projects"},
		Permission{Key: PermProjectArchive, Category: "admin", Description: "Archive and restore projects"},
		Permission{Key: PermTaskView, Category: "read", Description: "View tasks"},
		Permission{Key: PermTaskCreate, Category: "write", Description: "Create tasks"},
		Permission{Key: PermTaskUpdate, Category: "write", Description: "Edit tasks"},
		Permission{Key: PermTaskDelete, Category: "write", Description: "Delete tasks"},
		Permission{Key: PermTaskAssign, Category: "write", Description: "Assign tasks to members"},
		Permission{Key: PermCommentCreate, Category: "write", Description: "Comment on tasks"},
		Permission{Key: PermCommentDelete, Category: "admin", Description: "Delete any comment"},
		Permission{Key: PermTimeTrack, Category: "write", Description: "Log time"},
		Permission{Key: PermTimeViewAll, Category: "read", Description: "View everyone's time entries"},
		Permission{Key: PermRoleView, Category: "read", Description: "View roles and assignments"},
		Permission{Key: PermRoleManage, Category: "admin", Description: "Create, edit and assign roles"},
		Permission{Key: PermUserManage, Category: "admin", Description: "Manage user accounts"},
		Permission{Key: PermSettingsProjectManage, Module: "settings", Category: "admin", Description: "Configure project settings overrides"},
		Permission{Key: PermSettingsGlobalManage, Module: "settings", Category: "admin", Description: "Configure organization-wide settings"},
		Permission{Key: PermActivityView, Category: "read", Description: "View the activity log"},
		Permission{Key: PermReportView, Category: "read", Description: "View reports"},
	)
}

// Known reports whether key is registered.
func (r *Registry) Known(key string) bool {
	_, ok := r.perms[key]
	return ok
}

// Validate returns ErrUnknownPermission naming the first unregistered key.
func (r *Registry) Validate(keys []string) error {
	for _, k := range keys {
		if !r.Known(k) {
			return fmt.Errorf("%w: %q", ErrUnknownPermission, k)
		}
	}
	return nil
}

// All returns every registered permission sorted by key.
func (r *Registry) All() []Permission {
	out := make([]Permission, 0, len(r.perms))
	for _, p := range r.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Keys returns every registered key sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.perms))
	for k := range r.perms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SystemRoles returns the immutable roles seeded into every deployment.
// Admin holds every key in the registry.
func SystemRoles(registry *Registry) []Role {
	return []Role{
		{
			Name:        RoleAdmin,
			Description: "Full access to every project and setting",
			IsSystem:    true,
			Permissions: registry.Keys(),
		},
		{
			Name:        RoleProjectManager,
			Description: "Runs projects and their members",
			IsSystem:    true,
			Permissions: []string{
				PermProjectView, PermProjectCreate, PermProjectUpdate, PermProjectArchive,
				PermTaskView, PermTaskCreate, PermTaskUpdate, PermTaskDelete, PermTaskAssign,
				PermCommentCreate, PermCommentDelete,
				PermTimeTrack, PermTimeViewAll,
				PermRoleView, PermSettingsProjectManage, PermActivityView, PermReportView,
			},
		},
		{
			Name:        RoleMember,
			Description: "Works on tasks",
			IsSystem:    true,
			Permissions: []string{
				PermProjectView,
				PermTaskView, PermTaskCreate, PermTaskUpdate,
				PermCommentCreate, PermTimeTrack,
			},
		},
		{
			Name:        RoleViewer,
			Description: "Read-only access",
			IsSystem:    true,
			Permissions: []string{PermProjectView, PermTaskView},
		},
	}
}

// normalizeKeys sorts and deduplicates keys.
func normalizeKeys(keys []string) []string {
	if len(keys) == 0 {
		return []string{}
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	out := sorted[:1]
	for _, k := range sorted[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}
