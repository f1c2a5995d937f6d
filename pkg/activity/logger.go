package activity

import (
	"context"
	"time"

	"github.com/platinummonkey/tasklane/pkg/contextkeys"
)

// Logger records activity events.
type Logger interface {
	Log(ctx context.Context, event *Event) error
	Close() error
}

// Store queries and prunes recorded events.
type Store interface {
	Search(ctx context.Context, filter Filter) ([]*Event, error)
	Get(ctx context.Context, id int64) (*Event, error)
	Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error)
}

// NewEvent builds a successful event stamped with the current time and the
// request ID carried by ctx.
func NewEvent(ctx context.Context, eventType EventType, actor int64, resourceType ResourceType, resourceID string) *Event {
	event := &Event{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		Status:       EventStatusSuccess,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    contextkeys.GetRequestID(ctx),
	}
	if actor > 0 {
		event.ActorUserID = &actor
	}
	return event
}

// NoopLogger discards events.
type NoopLogger struct{}

func (NoopLogger) Log(context.Context, *Event) error { return nil }
func (NoopLogger) Close() error                      { return nil }
