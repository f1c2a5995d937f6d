package settings

import (
	"encoding/json"
	"fmt"
)

// Layers holds the stored candidates for one resolution. A nil field means
// the layer has no setting, or was not consulted.
type Layers struct {
	Category string
	User     *Setting
	Project  *Setting
	Global   *Setting
	Default  json.RawMessage
	// UserOverridable is true when Policy marks Category as one where a
	// user setting always wins.
	UserOverridable bool
}

// Step is one named link in the precedence chain. Match reports whether
// the step supplies the value, and why or why not.
type Step struct {
	Name  string
	Match func(l Layers) (value json.RawMessage, source Source, ok bool, reason string)
}

// Policy is the declarative resolution policy: an ordered chain of steps
// plus the set of categories a user setting always wins for.
type Policy struct {
	UserOverridable map[string]bool
	Steps           []Step
}

// DefaultUserOverridable lists the categories that follow the user, not
// the project.
var DefaultUserOverridable = []string{
	CategoryNotifications,
	CategoryAppearance,
	CategoryTimeTracking,
}

// DefaultPolicy returns the standard chain with the built-in
// user-overridable categories.
func DefaultPolicy() Policy {
	return NewPolicy(DefaultUserOverridable)
}

// NewPolicy returns the standard chain with the given user-overridable
// categories.
func NewPolicy(userOverridable []string) Policy {
	set := make(map[string]bool, len(userOverridable))
	for _, c := range userOverridable {
		set[c] = true
	}
	return Policy{UserOverridable: set, Steps: DefaultSteps()}
}

// Validate checks that every user-overridable category is recognized.
func (p Policy) Validate(defaults *Defaults) error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("settings policy has no steps")
	}
	for c := range p.UserOverridable {
		if !defaults.Has(c) {
			return fmt.Errorf("%w: %q in user-overridable set", ErrUnknownCategory, c)
		}
	}
	return nil
}

// DefaultSteps returns the precedence chain, first match wins:
//
//	user-override  user setting, for user-overridable categories
//	project        enabled project setting
//	user           user setting
//	global         global setting
//	system         system default
func DefaultSteps() []Step {
	return []Step{
		{Name: "user-override", Match: matchUserOverride},
		{Name: "project", Match: matchProject},
		{Name: "user", Match: matchUser},
		{Name: "global", Match: matchGlobal},
		{Name: "system", Match: matchSystem},
	}
}

func matchUserOverride(l Layers) (json.RawMessage, Source, bool, string) {
	if !l.UserOverridable {
		return nil, "", false, "category is layered"
	}
	if l.User == nil {
		return nil, "", false, "no user setting"
	}
	return l.User.Value, SourceUser, true, "user setting on a user-overridable category"
}

func matchProject(l Layers) (json.RawMessage, Source, bool, string) {
	if l.Project == nil {
		return nil, "", false, "no project setting"
	}
	if !l.Project.Enabled {
		return nil, "", false, "project setting is disabled"
	}
	return l.Project.Value, SourceProject, true, "enabled project setting"
}

func matchUser(l Layers) (json.RawMessage, Source, bool, string) {
	if l.User == nil {
		return nil, "", false, "no user setting"
	}
	return l.User.Value, SourceUser, true, "user setting"
}

func matchGlobal(l Layers) (json.RawMessage, Source, bool, string) {
	if l.Global == nil {
		return nil, "", false, "no global setting"
	}
	return l.Global.Value, SourceGlobal, true, "global setting"
}

func matchSystem(l Layers) (json.RawMessage, Source, bool, string) {
	if l.Default == nil {
		return nil, "", false, "no system default"
	}
	return l.Default, SourceSystem, true, "system default"
}
