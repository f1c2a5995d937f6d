package rbac

import "github.com/platinummonkey/tasklane/pkg/database"

// Component is the migration component name for the RBAC schema.
const Component = "rbac"

// Migrations returns all RBAC migrations
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     1,
			Description: "Create permissions table",
			Postgres: `
				CREATE TABLE permissions (
					key VARCHAR(100) PRIMARY KEY,
					module VARCHAR(50) NOT NULL,
					category VARCHAR(50) NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT ''
				);
			`,
			SQLite: `
				CREATE TABLE permissions (
					key TEXT PRIMARY KEY,
					module TEXT NOT NULL,
					category TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT ''
				);
			`,
		},
		{
			Version:     2,
			Description: "Create roles and role_permissions tables",
			Postgres: `
				CREATE TABLE roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE TABLE role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_key VARCHAR(100) NOT NULL REFERENCES permissions(key) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_key)
				);
			`,
			SQLite: `
				CREATE TABLE roles (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					is_system BOOLEAN NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE TABLE role_permissions (
					role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_key TEXT NOT NULL REFERENCES permissions(key) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_key)
				);
			`,
		},
		{
			Version:     3,
			Description: "Create role_assignments table",
			Postgres: `
				CREATE TABLE role_assignments (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					scope_type VARCHAR(20),
					scope_id BIGINT,
					granted_by BIGINT,
					granted_at TIMESTAMPTZ NOT NULL,
					CHECK (scope_type IS NULL OR scope_type IN ('global', 'project'))
				);

				CREATE UNIQUE INDEX idx_role_assignments_unique
					ON role_assignments(user_id, role_id, COALESCE(scope_type, ''), COALESCE(scope_id, 0));
				CREATE INDEX idx_role_assignments_user ON role_assignments(user_id);
				CREATE INDEX idx_role_assignments_role ON role_assignments(role_id);
			`,
			SQLite: `
				CREATE TABLE role_assignments (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id INTEGER NOT NULL,
					role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					scope_type TEXT,
					scope_id INTEGER,
					granted_by INTEGER,
					granted_at TIMESTAMP NOT NULL,
					CHECK (scope_type IS NULL OR scope_type IN ('global', 'project'))
				);

				CREATE UNIQUE INDEX idx_role_assignments_unique
					ON role_assignments(user_id, role_id, COALESCE(scope_type, ''), COALESCE(scope_id, 0));
				CREATE INDEX idx_role_assignments_user ON role_assignments(user_id);
				CREATE INDEX idx_role_assignments_role ON role_assignments(role_id);
			`,
		},
	}
}
