package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tasklane/pkg/activity"
)

func TestAdmin_SeedSystemRoles(t *testing.T) {
	f := newFixture(t, NoopCache{})
	ctx := context.Background()

	roles, err := f.store.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 4)
	for _, r := range roles {
		assert.True(t, r.IsSystem, r.Name)
	}
	assert.ElementsMatch(t, DefaultRegistry().Keys(), f.role(t, RoleAdmin).Permissions)

	created, err := f.admin.SeedSystemRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestAdmin_SeedRestoresDriftedSystemRole(t *testing.T) {
	f := newFixture(t, NewMemoryCache(100, time.Minute))
	ctx := context.Background()

	viewer := f.role(t, RoleViewer)
	_, err := f.admin.AssignRole(ctx, 1, AssignmentInput{UserID: 50, RoleID: viewer.ID, ScopeType: ScopeGlobal})
	require.NoError(t, err)
	require.NoError(t, f.store.SetRolePermissions(ctx, viewer.ID, []string{PermProjectDelete}))

	_, err = f.admin.SeedSystemRoles(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{PermProjectView, PermTaskView}, f.role(t, RoleViewer).Permissions)
	assert.False(t, f.resolver.HasPermission(ctx, 50, PermProjectDelete, nil))
}

func TestAdmin_SeedRejectsCustomRoleSquattingSystemName(t *testing.T) {
	store, _ := NewTestStore(t)
	require.NoError(t, store.CreateRole(context.Background(), &Role{Name: RoleMember}))

	_, err := NewAdmin(store, DefaultRegistry()).SeedSystemRoles(context.Background())
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestAdmin_SystemRolesAreImmutable(t *testing.T) {
	f := newFixture(t, NoopCache{})
	ctx := context.Background()
	admin := f.role(t, RoleAdmin)

	_, err := f.admin.UpdateRole(ctx, 1, admin.ID, RoleInput{Name: "root"})
	assert.ErrorIs(t, err, ErrSystemRole)
	_, err = f.admin.SetRolePermissions(ctx, 1, admin.ID, nil)
	assert.ErrorIs(t, err, ErrSystemRole)
	assert.ErrorIs(t, f.admin.DeleteRole(ctx, 1, admin.ID), ErrSystemRole)
}

func TestAdmin_CreateRoleValidation(t *testing.T) {
	f := newFixture(t, NoopCache{})
	ctx := context.Background()

	_, err := f.admin.CreateRole(ctx, 1, RoleInput{Name: "qa", Permissions: []string{"task.teleport"}})
	assert.ErrorIs(t, err, ErrUnknownPermission)

	_, err = f.admin.CreateRole(ctx, 1, RoleInput{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidRole)

	role, err := f.admin.CreateRole(ctx, 1, RoleInput{Name: " qa ", Permissions: []string{PermTaskView, PermTaskUpdate}})
	require.NoError(t, err)
	assert.Equal(t, "qa", role.Name)
	assert.Equal(t, []string{PermTaskUpdate, PermTaskView}, role.Permissions)

	_, err = f.admin.CreateRole(ctx, 1, RoleInput{Name: "qa"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestAdmin_AssignRoleValidation(t *testing.T) {
	f := newFixture(t, NoopCache{})
	ctx := context.Background()
	member := f.role(t, RoleMember)

	cases := []AssignmentInput{
		{UserID: 1, RoleID: member.ID, ScopeType: ScopeProject},
		{UserID: 1, RoleID: member.ID, ScopeType: ScopeGlobal, ScopeID: int64Ptr(2)},
		{UserID: 1, RoleID: member.ID, ScopeType: "team", ScopeID: int64Ptr(2)},
		{UserID: 0, RoleID: member.ID},
	}
	for _, in := range cases {
		_, err := f.admin.AssignRole(ctx, 1, in)
		assert.ErrorIs(t, err, ErrInvalidAssignment, "%+v", in)
	}

	_, err := f.admin.AssignRole(ctx, 1, AssignmentInput{UserID: 1, RoleID: 999})
	assert.ErrorIs(t, err, ErrNotFound)

	a, err := f.admin.AssignRole(ctx, 9, AssignmentInput{UserID: 1, RoleID: member.ID, ScopeType: ScopeProject, ScopeID: int64Ptr(2)})
	require.NoError(t, err)
	assert.Equal(t, RoleMember, a.RoleName)
	assert.Equal(t, int64(9), *a.GrantedBy)

	_, err = f.admin.AssignRole(ctx, 9, AssignmentInput{UserID: 1, RoleID: member.ID, ScopeType: ScopeProject, ScopeID: int64Ptr(2)})
	assert.ErrorIs(t, err, ErrDuplicate)
}

// cacheCoherence checks that every Admin mutation is visible to a resolver
// with a warm cache as soon as the call returns.
func cacheCoherence(t *testing.T, cache PermissionCache) {
	f := newFixture(t, cache)
	ctx := context.Background()
	const user = int64(100)
	project := int64Ptr(8)

	role, err := f.admin.CreateRole(ctx, 1, RoleInput{Name: "editor", Permissions: []string{PermTaskUpdate, PermTaskView}})
	require.NoError(t, err)

	// warm the cache with a denial
	assert.False(t, f.resolver.HasPermission(ctx, user, PermTaskUpdate, project))

	a, err := f.admin.AssignRole(ctx, 1, AssignmentInput{UserID: user, RoleID: role.ID, ScopeType: ScopeProject, ScopeID: project})
	require.NoError(t, err)
	assert.True(t, f.resolver.HasPermission(ctx, user, PermTaskUpdate, project))

	_, err = f.admin.SetRolePermissions(ctx, 1, role.ID, []string{PermTaskView})
	require.NoError(t, err)
	assert.False(t, f.resolver.HasPermission(ctx, user, PermTaskUpdate, project))
	assert.True(t, f.resolver.HasPermission(ctx, user, PermTaskView, project))

	_, err = f.admin.UpdateRole(ctx, 1, role.ID, RoleInput{Name: "editor", Permissions: []string{PermTaskView, PermTaskDelete}})
	require.NoError(t, err)
	assert.True(t, f.resolver.HasPermission(ctx, user, PermTaskDelete, project))

	require.NoError(t, f.admin.RevokeAssignment(ctx, 1, a.ID))
	assert.False(t, f.resolver.HasPermission(ctx, user, PermTaskView, project))

	_, err = f.admin.AssignRole(ctx, 1, AssignmentInput{UserID: user, RoleID: role.ID, ScopeType: ScopeGlobal})
	require.NoError(t, err)
	assert.True(t, f.resolver.HasPermission(ctx, user, PermTaskView, nil))

	require.NoError(t, f.admin.DeleteRole(ctx, 1, role.ID))
	assert.False(t, f.resolver.HasPermission(ctx, user, PermTaskView, nil))
	assert.False(t, f.resolver.HasPermission(ctx, user, PermTaskView, project))
}

func TestAdmin_CacheCoherence_Memory(t *testing.T) {
	cacheCoherence(t, NewMemoryCache(1000, time.Hour))
}

func TestAdmin_CacheCoherence_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cacheCoherence(t, NewRedisCache(client, "test:perm", time.Hour))
}

func TestAdmin_RoleWriteInvalidatesGrantsMadeDuringWrite(t *testing.T) {
	mutations := map[string]func(ctx context.Context, a *Admin, roleID int64) error{
		"set permissions": func(ctx context.Context, a *Admin, roleID int64) error {
			_, err := a.SetRolePermissions(ctx, 1, roleID, []string{PermProjectView})
			return err
		},
		"update": func(ctx context.Context, a *Admin, roleID int64) error {
			_, err := a.UpdateRole(ctx, 1, roleID, RoleInput{Name: "deleter", Permissions: []string{PermProjectView}})
			return err
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			sqlStore, _ := NewTestStore(t)
			store := &hookedStore{SQLStore: sqlStore}
			cache := NewMemoryCache(100, time.Hour)
			resolver := NewResolver(store, WithCache(cache))
			admin := NewAdmin(store, DefaultRegistry(), WithAdminCache(cache))
			ctx := context.Background()

			role, err := admin.CreateRole(ctx, 1, RoleInput{Name: "deleter", Permissions: []string{PermProjectDelete, PermProjectView}})
			require.NoError(t, err)

			// user 77 is granted the role after the holders were read and
			// checks before the role write lands
			store.beforeHolders = func() {
				_, err := admin.AssignRole(ctx, 1, AssignmentInput{UserID: 77, RoleID: role.ID, ScopeType: ScopeGlobal})
				require.NoError(t, err)
				require.True(t, resolver.HasPermission(ctx, 77, PermProjectDelete, nil))
			}

			require.NoError(t, mutate(ctx, admin, role.ID))
			assert.False(t, resolver.HasPermission(ctx, 77, PermProjectDelete, nil))
			assert.True(t, resolver.HasPermission(ctx, 77, PermProjectView, nil))
		})
	}
}

func TestAdmin_InvalidationFailureIsReported(t *testing.T) {
	store, _ := NewTestStore(t)
	ctx := context.Background()
	admin := NewAdmin(store, DefaultRegistry(), WithAdminCache(brokenCache{}))

	role, err := admin.CreateRole(ctx, 1, RoleInput{Name: "ops", Permissions: []string{PermReportView}})
	require.NoError(t, err)

	_, err = admin.AssignRole(ctx, 1, AssignmentInput{UserID: 3, RoleID: role.ID})
	assert.ErrorIs(t, err, ErrCacheInvalidation)

	// the grant itself committed
	list, err := store.ListUserAssignments(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAdmin_RecordsActivity(t *testing.T) {
	f := newFixture(t, NoopCache{})
	ctx := context.Background()

	role, err := f.admin.CreateRole(ctx, 4, RoleInput{Name: "ops", Permissions: []string{PermReportView}})
	require.NoError(t, err)
	a, err := f.admin.AssignRole(ctx, 4, AssignmentInput{UserID: 3, RoleID: role.ID, ScopeType: ScopeProject, ScopeID: int64Ptr(6)})
	require.NoError(t, err)
	require.NoError(t, f.admin.RevokeAssignment(ctx, 4, a.ID))
	require.NoError(t, f.admin.DeleteRole(ctx, 4, role.ID))

	types := f.events.types()
	require.GreaterOrEqual(t, len(types), 4)
	assert.Equal(t, []activity.EventType{
		activity.EventTypeRoleCreate,
		activity.EventTypeRoleAssign,
		activity.EventTypeRoleRevoke,
		activity.EventTypeRoleDelete,
	}, types[len(types)-4:])

	assign := f.events.events[len(f.events.events)-3]
	assert.Equal(t, int64(4), *assign.ActorUserID)
	assert.Equal(t, int64(6), *assign.ProjectID)
}

func TestAdmin_ActivityFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t, NoopCache{})
	f.events.err = errors.New("activity sink down")

	_, err := f.admin.CreateRole(context.Background(), 1, RoleInput{Name: "ops"})
	assert.NoError(t, err)
}

func TestAdmin_EnsurePermissions(t *testing.T) {
	store, _ := NewTestStore(t)
	registry := MustNewRegistry(
		Permission{Key: "invoice.view", Category: "read"},
		Permission{Key: "invoice.approve", Category: "admin"},
	)
	admin := NewAdmin(store, registry)

	require.NoError(t, admin.EnsurePermissions(context.Background()))
	perms, err := store.ListPermissions(context.Background())
	require.NoError(t, err)

	var found int
	for _, p := range perms {
		if p.Module == "invoice" {
			found++
		}
	}
	assert.Equal(t, 2, found)
}
