package activity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tasklane/pkg/observability"
)

type collectingLogger struct {
	mu      sync.Mutex
	events  []*Event
	block   chan struct{}
	closed  bool
	failing bool
}

func (c *collectingLogger) Log(_ context.Context, e *Event) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("write failed")
	}
	c.events = append(c.events, e)
	return nil
}

func (c *collectingLogger) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestAsyncLogger_DrainsOnClose(t *testing.T) {
	next := &collectingLogger{}
	l := NewAsyncLogger(next, 2, 100, observability.NopLogger())

	for i := 0; i < 50; i++ {
		require.NoError(t, l.Log(context.Background(), NewEvent(context.Background(), EventTypeSettingUpdate, 1, ResourceTypeSetting, "x")))
	}
	require.NoError(t, l.Close())

	assert.Len(t, next.events, 50)
	assert.True(t, next.closed)
	assert.ErrorIs(t, l.Log(context.Background(), &Event{}), ErrClosed)
	assert.NoError(t, l.Close())
}

func TestAsyncLogger_DropsWhenFull(t *testing.T) {
	next := &collectingLogger{block: make(chan struct{})}
	l := NewAsyncLogger(next, 1, 1, observability.NopLogger())

	// one event held by the worker, one in the buffer; keep going until full
	var full error
	for i := 0; i < 3 && full == nil; i++ {
		full = l.Log(context.Background(), &Event{EventType: EventTypeRoleAssign})
	}
	assert.ErrorIs(t, full, ErrQueueFull)

	close(next.block)
	require.NoError(t, l.Close())
}

func TestAsyncLogger_WriteFailureIsLogged(t *testing.T) {
	next := &collectingLogger{failing: true}
	l := NewAsyncLogger(next, 1, 4, observability.NopLogger())

	require.NoError(t, l.Log(context.Background(), &Event{EventType: EventTypeRoleCreate}))
	assert.NoError(t, l.Close())
	assert.Empty(t, next.events)
}
