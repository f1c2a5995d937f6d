package activity

import (
	"time"
)

// EventType represents the kind of activity event
type EventType string

const (
	// Role and assignment events
	EventTypeRoleCreate         EventType = "role.create"
	EventTypeRoleUpdate         EventType = "role.update"
	EventTypeRoleDelete         EventType = "role.delete"
	EventTypeRolePermissionsSet EventType = "role.permissions_set"
	EventTypeRoleAssign         EventType = "role.assign"
	EventTypeRoleRevoke         EventType = "role.revoke"
	EventTypePermissionSync     EventType = "permission.sync"

	// Settings events
	EventTypeSettingUpdate  EventType = "setting.update"
	EventTypeSettingDelete  EventType = "setting.delete"
	EventTypeSettingEnable  EventType = "setting.enable"
	EventTypeSettingDisable EventType = "setting.disable"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// ResourceType represents the type of resource an event refers to
type ResourceType string

const (
	ResourceTypeRole       ResourceType = "role"
	ResourceTypeAssignment ResourceType = "assignment"
	ResourceTypePermission ResourceType = "permission"
	ResourceTypeSetting    ResourceType = "setting"
)

// Event is a single activity log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	ActorUserID *int64 `json:"actor_user_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`
	ProjectID    *int64       `json:"project_id,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"message,omitempty"`

	Changes  *ChangeDetails         `json:"changes,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// Filter narrows an event search. Zero fields are ignored.
type Filter struct {
	StartTime *time.Time
	EndTime   *time.Time

	ActorUserID *int64
	ProjectID   *int64

	EventTypes   []EventType
	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 500
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultSearchLimit
	case f.Limit > maxSearchLimit:
		return maxSearchLimit
	default:
		return f.Limit
	}
}

// RetentionPolicy defines how long activity events are kept
type RetentionPolicy struct {
	MaxAge time.Duration
}

// DefaultRetentionPolicy keeps events for 90 days
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{MaxAge: 90 * 24 * time.Hour}
}
