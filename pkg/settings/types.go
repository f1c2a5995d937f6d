package settings

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrUnknownCategory is returned for a category with no system default.
	ErrUnknownCategory = errors.New("unknown settings category")
	// ErrStore wraps every settings store failure seen by the resolver.
	ErrStore = errors.New("settings store failure")
	// ErrInvalidValue is returned for a value that is not a JSON object.
	ErrInvalidValue = errors.New("invalid settings value")
	// ErrNotFound is returned when a write targets a missing setting.
	ErrNotFound = errors.New("setting not found")
)

// Scope is the layer a stored setting belongs to.
type Scope string

const (
	ScopeUser    Scope = "user"
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

// Valid reports whether s is a stored layer.
func (s Scope) Valid() bool {
	switch s {
	case ScopeUser, ScopeProject, ScopeGlobal:
		return true
	}
	return false
}

// Source names the layer a resolved value came from.
type Source string

const (
	SourceUser    Source = "user"
	SourceProject Source = "project"
	SourceGlobal  Source = "global"
	SourceSystem  Source = "system"
)

// Built-in categories. Every one of them must have a system default.
const (
	CategoryNotifications = "notifications"
	CategoryAppearance    = "appearance"
	CategoryDependencies  = "dependencies"
	CategoryWorkflow      = "workflow"
	CategoryTimeTracking  = "time_tracking"
	CategoryTaskDefaults  = "task_defaults"
)

// BuiltinCategories lists the categories every defaults table must cover.
var BuiltinCategories = []string{
	CategoryNotifications,
	CategoryAppearance,
	CategoryDependencies,
	CategoryWorkflow,
	CategoryTimeTracking,
	CategoryTaskDefaults,
}

// Setting is one stored override. OwnerID is the user id, the project id, or
// 0 for the global layer. Enabled only matters for project settings.
type Setting struct {
	ID        int64           `json:"id"`
	Scope     Scope           `json:"scope"`
	OwnerID   int64           `json:"owner_id"`
	Category  string          `json:"category"`
	Value     json.RawMessage `json:"value"`
	Enabled   bool            `json:"enabled"`
	UpdatedAt time.Time       `json:"updated_at"`
	UpdatedBy *int64          `json:"updated_by,omitempty"`
}

// ResolvedSetting is the effective value of a category for a user, and
// optionally a project. It is computed per call and never stored.
type ResolvedSetting struct {
	Category string          `json:"category"`
	Value    json.RawMessage `json:"value"`
	Source   Source          `json:"source"`
	Enabled  bool            `json:"enabled"`
}
