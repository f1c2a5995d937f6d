package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tasklane/pkg/database"
)

// AssignmentReader is the read shape the resolver depends on.
type AssignmentReader interface {
	// FindRoleAssignments returns the user's assignments selected by filter,
	// each carrying its role's permission keys.
	FindRoleAssignments(ctx context.Context, userID int64, filter ScopeFilter) ([]RoleAssignment, error)
}

// Store is the full RBAC persistence surface used by Admin and the handlers.
type Store interface {
	AssignmentReader

	ListPermissions(ctx context.Context) ([]Permission, error)
	UpsertPermissions(ctx context.Context, perms []Permission) error

	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, roleID int64) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, role *Role) error
	SetRolePermissions(ctx context.Context, roleID int64, keys []string) error
	DeleteRole(ctx context.Context, roleID int64) error
	RoleHolders(ctx context.Context, roleID int64) ([]int64, error)

	CreateAssignment(ctx context.Context, a *RoleAssignment) error
	GetAssignment(ctx context.Context, id int64) (*RoleAssignment, error)
	ListUserAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error)
	DeleteAssignment(ctx context.Context, id int64) error
}

// SQLStore handles RBAC data persistence
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore creates a new RBAC store
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// FindRoleAssignments loads the user's assignments matching filter together
// with each role's permission keys.
func (s *SQLStore) FindRoleAssignments(ctx context.Context, userID int64, filter ScopeFilter) ([]RoleAssignment, error) {
	query := `
		SELECT ra.id, ra.user_id, ra.role_id, r.name, ra.scope_type, ra.scope_id, ra.granted_by, ra.granted_at, rp.permission_key
		FROM role_assignments ra
		JOIN roles r ON r.id = ra.role_id
		LEFT JOIN role_permissions rp ON rp.role_id = ra.role_id
		WHERE ra.user_id = $1 AND (ra.scope_type IS NULL OR ra.scope_type = 'global'`
	args := []interface{}{userID}
	if filter.ProjectID != nil {
		query += ` OR (ra.scope_type = 'project' AND ra.scope_id = $2)`
		args = append(args, *filter.ProjectID)
	}
	query += `)
		ORDER BY ra.id, rp.permission_key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find role assignments: %w", err)
	}
	defer rows.Close()

	var (
		assignments []RoleAssignment
		current     *RoleAssignment
	)
	for rows.Next() {
		var permKey sql.NullString
		a, err := scanAssignment(rows, &permKey)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role assignment: %w", err)
		}
		if current == nil || current.ID != a.ID {
			a.Permissions = []string{}
			assignments = append(assignments, a)
			current = &assignments[len(assignments)-1]
		}
		if permKey.Valid {
			current.Permissions = append(current.Permissions, permKey.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate role assignments: %w", err)
	}
	return assignments, nil
}

// ListPermissions returns every stored permission ordered by key.
func (s *SQLStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, module, category, description FROM permissions ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Key, &p.Module, &p.Category, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// UpsertPermissions inserts new permissions and refreshes the metadata of
// existing ones.
func (s *SQLStore) UpsertPermissions(ctx context.Context, perms []Permission) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, p := range perms {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO permissions (key, module, category, description)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (key) DO UPDATE SET
					module = excluded.module,
					category = excluded.category,
					description = excluded.description
			`, p.Key, p.Module, p.Category, p.Description)
			if err != nil {
				return fmt.Errorf("failed to upsert permission %s: %w", p.Key, err)
			}
		}
		return nil
	})
}

// CreateRole creates a role and links its permissions.
func (s *SQLStore) CreateRole(ctx context.Context, role *Role) error {
	now := s.now()
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO roles (name, description, is_system, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, role.Name, role.Description, role.IsSystem, now, now).Scan(&role.ID)
		if err != nil {
			return err
		}
		return replaceRolePermissions(ctx, tx, role.ID, role.Permissions)
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: role %q", ErrDuplicate, role.Name)
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.Permissions = normalizeKeys(role.Permissions)
	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

const roleColumns = `id, name, description, is_system, created_at, updated_at`

// GetRole retrieves a role by ID
func (s *SQLStore) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	return s.getRole(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID)
}

// GetRoleByName retrieves a role by name
func (s *SQLStore) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return s.getRole(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name)
}

func (s *SQLStore) getRole(ctx context.Context, query string, arg interface{}) (*Role, error) {
	var role Role
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: role %v", ErrNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	perms, err := s.rolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

// ListRoles lists all roles, system roles first.
func (s *SQLStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY is_system DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	roles := []Role{}
	index := map[int64]int{}
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		role.Permissions = []string{}
		index[role.ID] = len(roles)
		roles = append(roles, role)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}

	// second pass after closing: sqlite test pools hold a single connection
	permRows, err := s.db.QueryContext(ctx, `SELECT role_id, permission_key FROM role_permissions ORDER BY role_id, permission_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer permRows.Close()
	for permRows.Next() {
		var (
			roleID int64
			key    string
		)
		if err := permRows.Scan(&roleID, &key); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		if i, ok := index[roleID]; ok {
			roles[i].Permissions = append(roles[i].Permissions, key)
		}
	}
	return roles, permRows.Err()
}

// UpdateRole updates name and description. When role.Permissions is non-nil
// the permission set is replaced in the same transaction.
func (s *SQLStore) UpdateRole(ctx context.Context, role *Role) error {
	now := s.now()
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE roles SET name = $1, description = $2, updated_at = $3 WHERE id = $4
		`, role.Name, role.Description, now, role.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: role %d", ErrNotFound, role.ID)
		}
		if role.Permissions == nil {
			return nil
		}
		return replaceRolePermissions(ctx, tx, role.ID, role.Permissions)
	})
	switch {
	case err == nil:
		role.UpdatedAt = now
		return nil
	case errors.Is(err, ErrNotFound):
		return err
	case database.IsUniqueViolation(err):
		return fmt.Errorf("%w: role %q", ErrDuplicate, role.Name)
	default:
		return fmt.Errorf("failed to update role: %w", err)
	}
}

// SetRolePermissions replaces the role's permission set.
func (s *SQLStore) SetRolePermissions(ctx context.Context, roleID int64, keys []string) error {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM roles WHERE id = $1`, roleID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: role %d", ErrNotFound, roleID)
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE roles SET updated_at = $1 WHERE id = $2`, s.now(), roleID); err != nil {
			return err
		}
		return replaceRolePermissions(ctx, tx, roleID, keys)
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to set role permissions: %w", err)
	}
	return err
}

// DeleteRole deletes a role together with its links and assignments.
func (s *SQLStore) DeleteRole(ctx context.Context, roleID int64) error {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM role_assignments WHERE role_id = $1`,
			`DELETE FROM role_permissions WHERE role_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, roleID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: role %d", ErrNotFound, roleID)
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return err
}

// RoleHolders returns the distinct users holding roleID in any scope.
func (s *SQLStore) RoleHolders(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM role_assignments WHERE role_id = $1 ORDER BY user_id`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role holders: %w", err)
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan role holder: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// CreateAssignment grants a role to a user.
func (s *SQLStore) CreateAssignment(ctx context.Context, a *RoleAssignment) error {
	if a.GrantedAt.IsZero() {
		a.GrantedAt = s.now()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO role_assignments (user_id, role_id, scope_type, scope_id, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, a.UserID, a.RoleID, nullScopeType(a.ScopeType), a.ScopeID, a.GrantedBy, a.GrantedAt).Scan(&a.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: user %d already holds role %d in that scope", ErrDuplicate, a.UserID, a.RoleID)
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

const assignmentSelect = `
	SELECT ra.id, ra.user_id, ra.role_id, r.name, ra.scope_type, ra.scope_id, ra.granted_by, ra.granted_at
	FROM role_assignments ra
	JOIN roles r ON r.id = ra.role_id`

// GetAssignment retrieves an assignment by ID
func (s *SQLStore) GetAssignment(ctx context.Context, id int64) (*RoleAssignment, error) {
	a, err := scanAssignment(s.db.QueryRowContext(ctx, assignmentSelect+` WHERE ra.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: assignment %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &a, nil
}

// ListUserAssignments returns every assignment the user holds, in any scope.
func (s *SQLStore) ListUserAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, assignmentSelect+` WHERE ra.user_id = $1 ORDER BY ra.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	out := []RoleAssignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAssignment revokes an assignment.
func (s *SQLStore) DeleteAssignment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM role_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: assignment %d", ErrNotFound, id)
	}
	return nil
}

func (s *SQLStore) rolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT permission_key FROM role_permissions WHERE role_id = $1 ORDER BY permission_key`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func replaceRolePermissions(ctx context.Context, tx *sql.Tx, roleID int64, keys []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	for _, k := range normalizeKeys(keys) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO role_permissions (role_id, permission_key) VALUES ($1, $2)`, roleID, k); err != nil {
			return fmt.Errorf("link permission %s: %w", k, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAssignment scans the assignmentSelect columns followed by extra.
func scanAssignment(row rowScanner, extra ...interface{}) (RoleAssignment, error) {
	var (
		a         RoleAssignment
		scopeType sql.NullString
		scopeID   sql.NullInt64
		grantedBy sql.NullInt64
	)
	dest := append([]interface{}{
		&a.ID, &a.UserID, &a.RoleID, &a.RoleName, &scopeType, &scopeID, &grantedBy, &a.GrantedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return a, err
	}

	a.ScopeType = ScopeType(scopeType.String)
	if scopeID.Valid {
		id := scopeID.Int64
		a.ScopeID = &id
	}
	if grantedBy.Valid {
		id := grantedBy.Int64
		a.GrantedBy = &id
	}
	return a, nil
}

func nullScopeType(t ScopeType) interface{} {
	if t == ScopeUnscoped {
		return nil
	}
	return string(t)
}
