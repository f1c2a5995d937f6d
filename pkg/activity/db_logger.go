package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DBLogger records activity events in the activity_events table and
// implements Store over the same table. The schema comes from Migrations.
type DBLogger struct {
	db  *sql.DB
	now func() time.Time
}

// NewDBLogger creates a new database-backed activity logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db, now: time.Now}, nil
}

const eventColumns = `id, occurred_at, event_type, status, actor_user_id, resource_type, resource_id,
	project_id, request_id, message, changes, metadata`

// Log inserts an event and sets its ID.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	changesJSON, err := marshalNullable(event.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}
	var metadataJSON sql.NullString
	if len(event.Metadata) > 0 {
		if metadataJSON, err = marshalNullable(event.Metadata); err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	if event.Status == "" {
		event.Status = EventStatusSuccess
	}

	query := `
		INSERT INTO activity_events (
			occurred_at, event_type, status, actor_user_id,
			resource_type, resource_id, project_id,
			request_id, message, changes, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp.UTC(), string(event.EventType), string(event.Status), event.ActorUserID,
		string(event.ResourceType), event.ResourceID, event.ProjectID,
		event.RequestID, event.Message, changesJSON, metadataJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert activity event: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (l *DBLogger) Close() error {
	return nil
}

// Search returns events matching filter, newest first.
func (l *DBLogger) Search(ctx context.Context, filter Filter) ([]*Event, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.StartTime != nil {
		add("occurred_at >= $%d", filter.StartTime.UTC())
	}
	if filter.EndTime != nil {
		add("occurred_at <= $%d", filter.EndTime.UTC())
	}
	if filter.ActorUserID != nil {
		add("actor_user_id = $%d", *filter.ActorUserID)
	}
	if filter.ProjectID != nil {
		add("project_id = $%d", *filter.ProjectID)
	}
	if filter.ResourceType != "" {
		add("resource_type = $%d", string(filter.ResourceType))
	}
	if filter.ResourceID != "" {
		add("resource_id = $%d", filter.ResourceID)
	}
	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			args = append(args, string(et))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		where = append(where, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := "SELECT " + eventColumns + " FROM activity_events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.limit(), filter.Offset)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search activity events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Get returns the event with id, or nil when absent.
func (l *DBLogger) Get(ctx context.Context, id int64) (*Event, error) {
	row := l.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM activity_events WHERE id = $1", id)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return event, err
}

// Cleanup deletes events older than the policy's MaxAge.
func (l *DBLogger) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	if policy.MaxAge <= 0 {
		return 0, fmt.Errorf("retention max age must be positive")
	}
	cutoff := l.now().UTC().Add(-policy.MaxAge)

	res, err := l.db.ExecContext(ctx, `DELETE FROM activity_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old activity events: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(s scanner) (*Event, error) {
	var (
		event                     Event
		eventType, status         string
		actor, projectID          sql.NullInt64
		resourceType, resourceID  sql.NullString
		requestID, message        sql.NullString
		changesJSON, metadataJSON sql.NullString
	)

	err := s.Scan(&event.ID, &event.Timestamp, &eventType, &status, &actor,
		&resourceType, &resourceID, &projectID, &requestID, &message,
		&changesJSON, &metadataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan activity event: %w", err)
	}

	event.EventType = EventType(eventType)
	event.Status = EventStatus(status)
	event.ResourceType = ResourceType(resourceType.String)
	event.ResourceID = resourceID.String
	event.RequestID = requestID.String
	event.Message = message.String
	if actor.Valid {
		event.ActorUserID = &actor.Int64
	}
	if projectID.Valid {
		event.ProjectID = &projectID.Int64
	}
	if changesJSON.Valid && changesJSON.String != "" {
		event.Changes = &ChangeDetails{}
		if err := json.Unmarshal([]byte(changesJSON.String), event.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &event, nil
}

// marshalNullable encodes v as JSON text, mapping nil to SQL NULL.
func marshalNullable(v interface{}) (sql.NullString, error) {
	switch t := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case *ChangeDetails:
		if t == nil {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
