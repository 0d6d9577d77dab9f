package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"mediagate.org/internal/access"
	"mediagate.org/internal/obs"
)

const (
	defaultQueueSize    = 256
	defaultWriteRetries = 3
	defaultWriteTimeout = 2 * time.Second
)

// Logger persists every decision without inflating decision latency:
// entries are queued to a background writer with bounded retry. A full
// queue falls back to an inline write rather than dropping the entry, and a
// write that still fails after retries is surfaced to telemetry.
type Logger struct {
	store        Store
	queue        chan *Entry
	wg           sync.WaitGroup
	closeOnce    sync.Once
	writeRetries int
	writeTimeout time.Duration
}

var _ access.AuditSink = (*Logger)(nil)

// LoggerOption configures Logger behavior.
type LoggerOption func(*Logger)

// WithQueueSize bounds the background writer's backlog.
func WithQueueSize(n int) LoggerOption {
	return func(l *Logger) {
		if n > 0 {
			l.queue = make(chan *Entry, n)
		}
	}
}

// WithWriteRetries bounds persistence attempts per entry.
func WithWriteRetries(n int) LoggerOption {
	return func(l *Logger) {
		if n > 0 {
			l.writeRetries = n
		}
	}
}

// WithWriteTimeout bounds each persistence attempt.
func WithWriteTimeout(d time.Duration) LoggerOption {
	return func(l *Logger) {
		if d > 0 {
			l.writeTimeout = d
		}
	}
}

// NewLogger starts the background writer over the given store.
func NewLogger(store Store, opts ...LoggerOption) (*Logger, error) {
	if store == nil {
		return nil, errors.New("audit: store is required")
	}
	l := &Logger{
		store:        store,
		queue:        make(chan *Entry, defaultQueueSize),
		writeRetries: defaultWriteRetries,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Record implements access.AuditSink. The entry is queued for the
// background writer; when the queue is full it gets one bounded inline
// write attempt instead, so a backlogged store costs the decision path at
// most a single write timeout, never the full retry schedule.
func (l *Logger) Record(final access.Decision, layers []access.Decision) {
	entry := NewEntry(final, layers)
	select {
	case l.queue <- entry:
		obs.SetAuditQueueDepth(len(l.queue))
	default:
		l.write(entry, 1)
	}
}

// Close drains the queue and stops the writer. Call it on shutdown so the
// trail stays complete.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.queue)
	})
	l.wg.Wait()
}

func (l *Logger) run() {
	defer l.wg.Done()
	for entry := range l.queue {
		l.write(entry, l.writeRetries)
		obs.SetAuditQueueDepth(len(l.queue))
	}
}

func (l *Logger) write(entry *Entry, attempts int) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
		lastErr = l.store.Append(ctx, entry)
		cancel()
		if lastErr == nil {
			return
		}
		if attempt < attempts {
			time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
		}
	}
	obs.AuditWriteFailed()
	obs.LogEvent(map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": "error",
		"msg":   "audit write failed",
		"entry": entry.ID,
		"error": lastErr.Error(),
	})
}
