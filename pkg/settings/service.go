package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/platinummonkey/tasklane/pkg/activity"
	"github.com/platinummonkey/tasklane/pkg/observability"
)

// Service owns settings writes: it validates the category and value,
// writes through the store and records an activity event.
type Service struct {
	store    Store
	defaults DefaultsProvider
	activity activity.Logger
	logger   *observability.Logger
}

// NewService creates a settings write service.
func NewService(store Store, defaults DefaultsProvider, activityLogger activity.Logger, logger *observability.Logger) *Service {
	if activityLogger == nil {
		activityLogger = activity.NoopLogger{}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{store: store, defaults: defaults, activity: activityLogger, logger: logger}
}

// Put stores value for (scope, owner, category). Global settings always
// use owner 0. enabled is only kept for project settings; other scopes are
// stored enabled.
func (s *Service) Put(ctx context.Context, actor int64, scope Scope, ownerID int64, category string, value json.RawMessage, enabled bool) (*Setting, error) {
	if err := s.validate(scope, category); err != nil {
		return nil, err
	}
	if err := ValidateValue(value); err != nil {
		return nil, err
	}
	if scope == ScopeGlobal {
		ownerID = 0
	}
	if scope != ScopeProject {
		enabled = true
	}

	before, err := s.store.FindSetting(ctx, scope, ownerID, category)
	if err != nil {
		return nil, err
	}
	setting := &Setting{
		Scope:    scope,
		OwnerID:  ownerID,
		Category: category,
		Value:    value,
		Enabled:  enabled,
	}
	if actor > 0 {
		setting.UpdatedBy = &actor
	}
	if err := s.store.Upsert(ctx, setting); err != nil {
		return nil, err
	}
	s.record(ctx, activity.EventTypeSettingUpdate, actor, setting, before)
	return setting, nil
}

// SetEnabled turns a project override on or off without changing its value.
func (s *Service) SetEnabled(ctx context.Context, actor int64, projectID int64, category string, enabled bool) (*Setting, error) {
	if err := s.validate(ScopeProject, category); err != nil {
		return nil, err
	}
	var by *int64
	if actor > 0 {
		by = &actor
	}
	setting, err := s.store.SetEnabled(ctx, projectID, category, enabled, by)
	if err != nil {
		return nil, err
	}
	eventType := activity.EventTypeSettingDisable
	if enabled {
		eventType = activity.EventTypeSettingEnable
	}
	s.record(ctx, eventType, actor, setting, nil)
	return setting, nil
}

// Delete removes the setting for (scope, owner, category).
func (s *Service) Delete(ctx context.Context, actor int64, scope Scope, ownerID int64, category string) error {
	if err := s.validate(scope, category); err != nil {
		return err
	}
	if scope == ScopeGlobal {
		ownerID = 0
	}
	removed, err := s.store.Delete(ctx, scope, ownerID, category)
	if err != nil {
		return err
	}
	s.record(ctx, activity.EventTypeSettingDelete, actor, nil, removed)
	return nil
}

// List returns the settings stored for one owner.
func (s *Service) List(ctx context.Context, scope Scope, ownerID int64) ([]Setting, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: scope %q", ErrInvalidValue, scope)
	}
	if scope == ScopeGlobal {
		ownerID = 0
	}
	return s.store.List(ctx, scope, ownerID)
}

func (s *Service) validate(scope Scope, category string) error {
	if !scope.Valid() {
		return fmt.Errorf("%w: scope %q", ErrInvalidValue, scope)
	}
	if !s.defaults.Defaults().Has(category) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return nil
}

// ValidateValue requires a JSON object. Values replace the whole category,
// so scalars and arrays are never meaningful.
func ValidateValue(value json.RawMessage) error {
	if len(value) == 0 {
		return fmt.Errorf("%w: value is required", ErrInvalidValue)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(value, &obj); err != nil || obj == nil {
		return fmt.Errorf("%w: value must be a JSON object", ErrInvalidValue)
	}
	return nil
}

func (s *Service) record(ctx context.Context, eventType activity.EventType, actor int64, after, before *Setting) {
	ref := after
	if ref == nil {
		ref = before
	}
	event := activity.NewEvent(ctx, eventType, actor, activity.ResourceTypeSetting, ref.Category)
	if ref.Scope == ScopeProject {
		projectID := ref.OwnerID
		event.ProjectID = &projectID
	}
	event.Message = fmt.Sprintf("%s %s setting %s", eventType, ref.Scope, ref.Category)
	event.Metadata = map[string]interface{}{
		"scope":    string(ref.Scope),
		"owner_id": ref.OwnerID,
	}
	event.Changes = &activity.ChangeDetails{
		Before: settingSnapshot(before),
		After:  settingSnapshot(after),
	}
	if err := s.activity.Log(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event_type", string(eventType)).Warn("failed to record activity")
	}
}

func settingSnapshot(s *Setting) map[string]interface{} {
	if s == nil {
		return nil
	}
	return map[string]interface{}{
		"value":   s.Value,
		"enabled": s.Enabled,
	}
}
