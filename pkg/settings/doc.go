// Package settings resolves layered tasklane settings.
//
// A category (workflow, notifications, ...) can be set per user, per
// project and globally. Resolver.Resolve walks an ordered chain of named
// steps and returns exactly one layer's value:
//
//	user-override  user setting, if the category is user-overridable
//	project        project setting, if enabled
//	user           user setting
//	global         global setting
//	system         default from defaults.yaml
//
// Values are never merged across layers. A disabled project setting is
// skipped but kept, so it can be re-enabled. Which categories are
// user-overridable is data in Policy, not code.
//
// Unlike permission checks, resolution surfaces store failures as errors
// wrapping ErrStore; callers never get a silently defaulted value.
//
// System defaults are embedded. DefaultsWatcher serves an operator file
// instead and reloads it on change.
package settings
