package rbac

import (
	"context"
	"database/sql"
	"testing"

	"github.com/platinummonkey/tasklane/pkg/database"
)

// NewTestStore returns a store over a private in-memory SQLite database with
// the RBAC schema applied and the default registry's permissions synced.
func NewTestStore(t testing.TB) (*SQLStore, *sql.DB) {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := database.Migrate(ctx, db, database.DriverSQLite, Component, Migrations()); err != nil {
		t.Fatalf("migrate rbac schema: %v", err)
	}

	store := NewSQLStore(db)
	if err := store.UpsertPermissions(ctx, DefaultRegistry().All()); err != nil {
		t.Fatalf("sync permissions: %v", err)
	}
	return store, db
}

// GrantTestRole creates a custom role holding perms and assigns it to userID
// in the given scope, bypassing Admin. It returns the assignment.
func GrantTestRole(t testing.TB, store *SQLStore, userID int64, roleName string, scopeType ScopeType, scopeID *int64, perms ...string) *RoleAssignment {
	t.Helper()
	ctx := context.Background()

	role, err := store.GetRoleByName(ctx, roleName)
	if err != nil {
		role = &Role{Name: roleName, Permissions: perms}
		if err := store.CreateRole(ctx, role); err != nil {
			t.Fatalf("create role %s: %v", roleName, err)
		}
	}

	a := &RoleAssignment{UserID: userID, RoleID: role.ID, ScopeType: scopeType, ScopeID: scopeID}
	if err := store.CreateAssignment(ctx, a); err != nil {
		t.Fatalf("assign role %s: %v", roleName, err)
	}
	return a
}
