// Package rbac provides role-based access control for tasklane.
//
// # Overview
//
// Permissions are free-form keys such as "project.create" or "task.update",
// registered in a Registry. Roles are named sets of keys. A RoleAssignment
// binds a role to a user in a scope:
//
//	scope_type NULL or "global"   applies to every check
//	scope_type "project", id P    applies only to checks scoped to project P
//
// # Checking permissions
//
// Resolver.HasPermission is the authorization gate:
//
//	resolver := rbac.NewResolver(store, rbac.WithCache(cache))
//	if !resolver.HasPermission(ctx, userID, rbac.PermTaskUpdate, &projectID) {
//		// 403
//	}
//
// It returns true only when a role held in an applicable scope contains the
// key. It never returns an error: a store or cache failure denies, is logged
// and is counted as result="error". A project assignment never satisfies an
// unscoped check.
//
// The resolver has no admin shortcut. Middleware.RequirePermission wraps it
// for HTTP routes, and AllowRoleBypass adds a coarse-role shortcut there for
// deployments that want one.
//
// # Writes and caching
//
// All role, permission and assignment mutations go through Admin. Admin
// invalidates the PermissionCache for every affected user before returning.
// Caches keep a per-user generation counter; invalidation bumps it, so a
// permission set loaded before a mutation and stored after it can never be
// served. NoopCache, MemoryCache and RedisCache are provided.
//
// Startup order matters on Postgres, where role_permissions references
// permissions: call Admin.EnsurePermissions before Admin.SeedSystemRoles.
//
// # Schema
//
// Migrations returns the permissions, roles, role_permissions and
// role_assignments tables for database.Migrate under Component "rbac".
package rbac
