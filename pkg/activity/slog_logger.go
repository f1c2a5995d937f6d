package activity

import (
	"context"

	"github.com/platinummonkey/tasklane/pkg/observability"
)

// SlogLogger writes activity events as structured log lines. Used when no
// database sink is configured.
type SlogLogger struct {
	logger *observability.Logger
}

// NewSlogLogger creates a log-backed activity logger
func NewSlogLogger(logger *observability.Logger) *SlogLogger {
	return &SlogLogger{logger: logger.WithField("component", "activity")}
}

func (l *SlogLogger) Log(ctx context.Context, event *Event) error {
	fields := map[string]interface{}{
		"event_type":    string(event.EventType),
		"status":        string(event.Status),
		"resource_type": string(event.ResourceType),
		"resource_id":   event.ResourceID,
	}
	if event.ActorUserID != nil {
		fields["actor_user_id"] = *event.ActorUserID
	}
	if event.ProjectID != nil {
		fields["project_id"] = *event.ProjectID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.Changes != nil {
		fields["changes"] = event.Changes
	}

	msg := event.Message
	if msg == "" {
		msg = "activity"
	}
	observability.WithTraceContext(ctx, l.logger).WithFields(fields).Info(msg)
	return nil
}

func (l *SlogLogger) Close() error { return nil }
