package activity

import "github.com/platinummonkey/tasklane/pkg/database"

// Component is the migration component name for the activity schema.
const Component = "activity"

// Migrations returns the activity log schema migrations.
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     1,
			Description: "Create activity_events table",
			Postgres: `
				CREATE TABLE activity_events (
					id BIGSERIAL PRIMARY KEY,
					occurred_at TIMESTAMPTZ NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					actor_user_id BIGINT,
					resource_type VARCHAR(50),
					resource_id VARCHAR(255),
					project_id BIGINT,
					request_id VARCHAR(128),
					message TEXT,
					changes JSONB,
					metadata JSONB
				);

				CREATE INDEX idx_activity_events_occurred_at ON activity_events(occurred_at DESC);
				CREATE INDEX idx_activity_events_actor ON activity_events(actor_user_id);
				CREATE INDEX idx_activity_events_project ON activity_events(project_id);
				CREATE INDEX idx_activity_events_type ON activity_events(event_type);
			`,
			SQLite: `
				CREATE TABLE activity_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					occurred_at TIMESTAMP NOT NULL,
					event_type TEXT NOT NULL,
					status TEXT NOT NULL,
					actor_user_id INTEGER,
					resource_type TEXT,
					resource_id TEXT,
					project_id INTEGER,
					request_id TEXT,
					message TEXT,
					changes TEXT,
					metadata TEXT
				);

				CREATE INDEX idx_activity_events_occurred_at ON activity_events(occurred_at);
				CREATE INDEX idx_activity_events_actor ON activity_events(actor_user_id);
				CREATE INDEX idx_activity_events_project ON activity_events(project_id);
			`,
		},
	}
}
