package settings

import "github.com/platinummonkey/tasklane/pkg/database"

// Component is the migration component name for the settings schema.
const Component = "settings"

// Migrations returns the settings schema migrations.
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     1,
			Description: "Create settings table",
			Postgres: `
				CREATE TABLE settings (
					id BIGSERIAL PRIMARY KEY,
					scope VARCHAR(20) NOT NULL CHECK (scope IN ('user', 'project', 'global')),
					owner_id BIGINT NOT NULL DEFAULT 0,
					category VARCHAR(100) NOT NULL,
					value JSONB NOT NULL,
					enabled BOOLEAN NOT NULL DEFAULT TRUE,
					updated_at TIMESTAMPTZ NOT NULL,
					updated_by BIGINT,
					UNIQUE (scope, owner_id, category)
				);

				CREATE INDEX idx_settings_category ON settings(category);
			`,
			SQLite: `
				CREATE TABLE settings (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					scope TEXT NOT NULL CHECK (scope IN ('user', 'project', 'global')),
					owner_id INTEGER NOT NULL DEFAULT 0,
					category TEXT NOT NULL,
					value TEXT NOT NULL,
					enabled BOOLEAN NOT NULL DEFAULT 1,
					updated_at TIMESTAMP NOT NULL,
					updated_by INTEGER,
					UNIQUE (scope, owner_id, category)
				);

				CREATE INDEX idx_settings_category ON settings(category);
			`,
		},
	}
}
