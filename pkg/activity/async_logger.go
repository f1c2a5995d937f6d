package activity

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/platinummonkey/tasklane/pkg/observability"
)

// ErrQueueFull is returned by AsyncLogger.Log when the buffer is full. The
// event is dropped.
var ErrQueueFull = errors.New("activity queue full")

// ErrClosed is returned by AsyncLogger.Log after Close.
var ErrClosed = errors.New("activity logger closed")

// AsyncLogger moves event writes off the request path. Events are queued
// and written by a fixed set of workers; Close drains the queue.
type AsyncLogger struct {
	next    Logger
	logger  *observability.Logger
	timeout time.Duration
	queue   chan *Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncLogger starts workers goroutines writing to next. buffer bounds
// the number of queued events.
func NewAsyncLogger(next Logger, workers, buffer int, logger *observability.Logger) *AsyncLogger {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	l := &AsyncLogger{
		next:    next,
		logger:  logger.WithField("component", "activity_async"),
		timeout: 5 * time.Second,
		queue:   make(chan *Event, buffer),
	}
	for i := 0; i < workers; i++ {
		l.wg.Add(1)
		go l.worker()
	}
	return l
}

// Log queues event without blocking.
func (l *AsyncLogger) Log(_ context.Context, event *Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	select {
	case l.queue <- event:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s", ErrQueueFull, event.EventType)
	}
}

// Close stops accepting events, waits for the queue to drain and closes
// the wrapped logger.
func (l *AsyncLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()
	return l.next.Close()
}

func (l *AsyncLogger) worker() {
	defer l.wg.Done()
	for event := range l.queue {
		l.write(event)
	}
}

func (l *AsyncLogger) write(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithFields(map[string]interface{}{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("panic writing activity event")
		}
	}()

	if err := l.next.Log(ctx, event); err != nil {
		l.logger.WithError(err).WithField("event_type", string(event.EventType)).Warn("failed to write activity event")
	}
}
