package rbac

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/platinummonkey/tasklane/pkg/activity"
	"github.com/platinummonkey/tasklane/pkg/observability"
)

// Admin is the only write path for roles, permissions and assignments.
// Every mutation invalidates the permission cache for the affected users
// before it returns, so a check that starts after a successful call sees
// the new state.
type Admin struct {
	store    Store
	registry *Registry
	cache    PermissionCache
	activity activity.Logger
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// AdminOption configures an Admin.
type AdminOption func(*Admin)

// WithAdminCache sets the cache to invalidate. It must be the instance the
// Resolver reads from.
func WithAdminCache(cache PermissionCache) AdminOption {
	return func(a *Admin) {
		if cache != nil {
			a.cache = cache
		}
	}
}

// WithActivityLogger records successful mutations.
func WithActivityLogger(l activity.Logger) AdminOption {
	return func(a *Admin) {
		if l != nil {
			a.activity = l
		}
	}
}

// WithAdminLogger sets the logger.
func WithAdminLogger(logger *observability.Logger) AdminOption {
	return func(a *Admin) { a.logger = logger }
}

// WithAdminMetrics counts cache invalidations.
func WithAdminMetrics(metrics *observability.Metrics) AdminOption {
	return func(a *Admin) { a.metrics = metrics }
}

// NewAdmin creates the write facade.
func NewAdmin(store Store, registry *Registry, opts ...AdminOption) *Admin {
	a := &Admin{
		store:    store,
		registry: registry,
		cache:    NoopCache{},
		activity: activity.NoopLogger{},
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RoleInput is the mutable part of a custom role.
type RoleInput struct {
	Name        string
	Description string
	Permissions []string
}

// AssignmentInput describes a grant.
type AssignmentInput struct {
	UserID    int64
	RoleID    int64
	ScopeType ScopeType
	ScopeID   *int64
}

// EnsurePermissions writes every registry permission to the store.
func (a *Admin) EnsurePermissions(ctx context.Context) error {
	perms := a.registry.All()
	if err := a.store.UpsertPermissions(ctx, perms); err != nil {
		return err
	}
	event := activity.NewEvent(ctx, activity.EventTypePermissionSync, 0, activity.ResourceTypePermission, "")
	event.Metadata = map[string]interface{}{"count": len(perms)}
	a.record(ctx, event)
	return nil
}

// SeedSystemRoles creates missing system roles and brings existing ones in
// line with their definitions. It returns the number of roles created.
func (a *Admin) SeedSystemRoles(ctx context.Context) (int, error) {
	created := 0
	for _, def := range SystemRoles(a.registry) {
		existing, err := a.store.GetRoleByName(ctx, def.Name)
		switch {
		case errors.Is(err, ErrNotFound):
			if err := a.store.CreateRole(ctx, &def); err != nil {
				return created, fmt.Errorf("seed role %s: %w", def.Name, err)
			}
			created++
			a.record(ctx, roleEvent(ctx, activity.EventTypeRoleCreate, 0, &def, nil))
			continue
		case err != nil:
			return created, fmt.Errorf("seed role %s: %w", def.Name, err)
		}

		if !existing.IsSystem {
			return created, fmt.Errorf("seed role %s: %w: name taken by a custom role", def.Name, ErrDuplicate)
		}
		want := normalizeKeys(def.Permissions)
		if slices.Equal(normalizeKeys(existing.Permissions), want) {
			continue
		}
		holders, err := a.store.RoleHolders(ctx, existing.ID)
		if err != nil {
			return created, err
		}
		if err := a.store.SetRolePermissions(ctx, existing.ID, want); err != nil {
			return created, fmt.Errorf("seed role %s: %w", def.Name, err)
		}
		if err := a.invalidateHolders(ctx, existing.ID, holders); err != nil {
			return created, err
		}
		after := *existing
		after.Permissions = want
		a.record(ctx, roleEvent(ctx, activity.EventTypeRolePermissionsSet, 0, &after, existing))
	}
	return created, nil
}

// CreateRole creates a custom role.
func (a *Admin) CreateRole(ctx context.Context, actor int64, in RoleInput) (*Role, error) {
	if err := a.validateRoleInput(in); err != nil {
		return nil, err
	}
	role := &Role{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Permissions: normalizeKeys(in.Permissions),
	}
	if err := a.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	a.record(ctx, roleEvent(ctx, activity.EventTypeRoleCreate, actor, role, nil))
	return role, nil
}

// UpdateRole replaces a custom role's name, description and permissions and
// invalidates every holder, including users granted the role while the
// update was in flight.
func (a *Admin) UpdateRole(ctx context.Context, actor int64, roleID int64, in RoleInput) (*Role, error) {
	before, err := a.mutableRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if err := a.validateRoleInput(in); err != nil {
		return nil, err
	}
	holders, err := a.store.RoleHolders(ctx, roleID)
	if err != nil {
		return nil, err
	}

	role := *before
	role.Name = strings.TrimSpace(in.Name)
	role.Description = in.Description
	role.Permissions = normalizeKeys(in.Permissions)
	if err := a.store.UpdateRole(ctx, &role); err != nil {
		return nil, err
	}
	if err := a.invalidateHolders(ctx, roleID, holders); err != nil {
		return nil, err
	}
	a.record(ctx, roleEvent(ctx, activity.EventTypeRoleUpdate, actor, &role, before))
	return &role, nil
}

// SetRolePermissions replaces a custom role's permission set.
func (a *Admin) SetRolePermissions(ctx context.Context, actor int64, roleID int64, keys []string) (*Role, error) {
	before, err := a.mutableRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if err := a.registry.Validate(keys); err != nil {
		return nil, err
	}
	holders, err := a.store.RoleHolders(ctx, roleID)
	if err != nil {
		return nil, err
	}

	keys = normalizeKeys(keys)
	if err := a.store.SetRolePermissions(ctx, roleID, keys); err != nil {
		return nil, err
	}
	if err := a.invalidateHolders(ctx, roleID, holders); err != nil {
		return nil, err
	}

	role := *before
	role.Permissions = keys
	a.record(ctx, roleEvent(ctx, activity.EventTypeRolePermissionsSet, actor, &role, before))
	return &role, nil
}

// DeleteRole deletes a custom role and its assignments. Holders are
// collected before the delete so they can be invalidated after it.
func (a *Admin) DeleteRole(ctx context.Context, actor int64, roleID int64) error {
	before, err := a.mutableRole(ctx, roleID)
	if err != nil {
		return err
	}
	holders, err := a.store.RoleHolders(ctx, roleID)
	if err != nil {
		return err
	}
	if err := a.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	if err := a.invalidate(ctx, holders...); err != nil {
		return err
	}

	event := roleEvent(ctx, activity.EventTypeRoleDelete, actor, nil, before)
	event.Metadata = map[string]interface{}{"affected_users": len(holders)}
	a.record(ctx, event)
	return nil
}

// AssignRole grants a role to a user in a scope.
func (a *Admin) AssignRole(ctx context.Context, actor int64, in AssignmentInput) (*RoleAssignment, error) {
	assignment := &RoleAssignment{
		UserID:    in.UserID,
		RoleID:    in.RoleID,
		ScopeType: in.ScopeType,
		ScopeID:   in.ScopeID,
	}
	if err := assignment.Validate(); err != nil {
		return nil, err
	}
	role, err := a.store.GetRole(ctx, in.RoleID)
	if err != nil {
		return nil, err
	}
	if actor > 0 {
		assignment.GrantedBy = &actor
	}
	if err := a.store.CreateAssignment(ctx, assignment); err != nil {
		return nil, err
	}
	assignment.RoleName = role.Name

	if err := a.invalidate(ctx, assignment.UserID); err != nil {
		return nil, err
	}
	a.record(ctx, assignmentEvent(ctx, activity.EventTypeRoleAssign, actor, assignment))
	return assignment, nil
}

// RevokeAssignment deletes an assignment.
func (a *Admin) RevokeAssignment(ctx context.Context, actor int64, assignmentID int64) error {
	assignment, err := a.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	if err := a.store.DeleteAssignment(ctx, assignmentID); err != nil {
		return err
	}
	if err := a.invalidate(ctx, assignment.UserID); err != nil {
		return err
	}
	a.record(ctx, assignmentEvent(ctx, activity.EventTypeRoleRevoke, actor, assignment))
	return nil
}

func (a *Admin) mutableRole(ctx context.Context, roleID int64) (*Role, error) {
	role, err := a.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystem {
		return nil, fmt.Errorf("%w: %s", ErrSystemRole, role.Name)
	}
	return role, nil
}

func (a *Admin) validateRoleInput(in RoleInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRole)
	}
	return a.registry.Validate(in.Permissions)
}

// invalidateHolders invalidates the holders read before a role write plus
// the holders read after it. A grant that commits between the two reads is
// only visible to the second one.
func (a *Admin) invalidateHolders(ctx context.Context, roleID int64, before []int64) error {
	after, err := a.store.RoleHolders(ctx, roleID)
	if err != nil {
		invErr := a.invalidate(ctx, before...)
		err = fmt.Errorf("%w: re-read holders of role %d: %w", ErrCacheInvalidation, roleID, err)
		a.logger.WithError(err).Error("permission cache invalidation incomplete after commit")
		return errors.Join(err, invErr)
	}
	users := append(slices.Clone(before), after...)
	slices.Sort(users)
	return a.invalidate(ctx, slices.Compact(users)...)
}

// invalidate bumps the cache generation of every user. The mutation has
// already committed, so failures are reported as ErrCacheInvalidation
// rather than rolled back.
func (a *Admin) invalidate(ctx context.Context, userIDs ...int64) error {
	var errs []error
	for _, id := range userIDs {
		err := a.cache.InvalidateUser(ctx, id)
		status := "success"
		if err != nil {
			status = "failure"
			errs = append(errs, fmt.Errorf("user %d: %w", id, err))
		}
		if a.metrics != nil {
			a.metrics.CacheInvalidationsTotal.WithLabelValues(a.cache.Name(), status).Inc()
		}
	}
	if len(errs) == 0 {
		return nil
	}
	err := fmt.Errorf("%w: %w", ErrCacheInvalidation, errors.Join(errs...))
	a.logger.WithError(err).WithField("users", len(errs)).Error("permission cache invalidation failed after commit")
	return err
}

func (a *Admin) record(ctx context.Context, event *activity.Event) {
	if err := a.activity.Log(ctx, event); err != nil {
		a.logger.WithError(err).WithField("event_type", string(event.EventType)).Warn("failed to record activity")
	}
}

func roleEvent(ctx context.Context, eventType activity.EventType, actor int64, after, before *Role) *activity.Event {
	subject := after
	if subject == nil {
		subject = before
	}
	event := activity.NewEvent(ctx, eventType, actor, activity.ResourceTypeRole, strconv.FormatInt(subject.ID, 10))
	event.Message = fmt.Sprintf("%s %s", eventType, subject.Name)
	event.Changes = &activity.ChangeDetails{Before: roleSnapshot(before), After: roleSnapshot(after)}
	return event
}

func roleSnapshot(r *Role) map[string]interface{} {
	if r == nil {
		return nil
	}
	return map[string]interface{}{
		"name":        r.Name,
		"description": r.Description,
		"permissions": r.Permissions,
	}
}

func assignmentEvent(ctx context.Context, eventType activity.EventType, actor int64, as *RoleAssignment) *activity.Event {
	event := activity.NewEvent(ctx, eventType, actor, activity.ResourceTypeAssignment, strconv.FormatInt(as.ID, 10))
	if as.ScopeType == ScopeProject {
		event.ProjectID = as.ScopeID
	}
	event.Metadata = map[string]interface{}{
		"user_id":    as.UserID,
		"role_id":    as.RoleID,
		"scope_type": string(as.ScopeType),
	}
	return event
}
