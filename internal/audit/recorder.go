// Package audit records admin actions. Every event is logged as admin:audit
// and, when sinks are configured, delivered to them by a background worker.
package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quiz/internal/platform/logger"
	"quiz/pkg/requestcontext"
)

const (
	defaultBufferSize = 256
	drainTimeout      = 5 * time.Second
)

// Sink persists or forwards audit events.
type Sink interface {
	Name() string
	Append(ctx context.Context, event Event) error
}

// Recorder logs audit events and queues them for the sinks. Recording never
// blocks the request and never fails it: a full queue drops the event after
// it has been logged.
type Recorder struct {
	logger  *logger.Logger
	sinks   []Sink
	inbox   chan Event
	dropped atomic.Int64
	clock   func() time.Time
}

type Option func(*Recorder)

func WithSinks(sinks ...Sink) Option {
	return func(r *Recorder) {
		r.sinks = append(r.sinks, sinks...)
	}
}

func WithBufferSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.inbox = make(chan Event, n)
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(r *Recorder) {
		r.clock = clock
	}
}

func NewRecorder(log *logger.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		logger: log,
		inbox:  make(chan Event, defaultBufferSize),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record logs event and queues it for delivery. Unset RequestID and IP come
// from ctx. Invalid events are logged but not delivered.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.clock().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.IP == "" {
		if rc := requestcontext.From(ctx); rc != nil {
			event.IP = rc.IP
		}
	}
	r.logger.Info(ctx, "admin:audit", map[string]any{
		"adminId":      event.AdminID,
		"action":       string(event.Action),
		"resourceType": event.ResourceType,
		"resourceId":   event.ResourceID,
		"outcome":      string(event.Outcome),
	}, event.RequestID)

	if len(r.sinks) == 0 {
		return
	}
	if err := event.Validate(); err != nil {
		r.logger.Warn(ctx, "admin:audit_invalid", map[string]any{"error": err.Error()}, event.RequestID)
		return
	}
	select {
	case r.inbox <- event:
	default:
		r.dropped.Add(1)
		r.logger.Warn(ctx, "admin:audit_dropped", map[string]any{
			"eventId": event.ID.String(),
			"dropped": r.dropped.Load(),
		}, event.RequestID)
	}
}

// Dropped returns how many events were not delivered because the queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run delivers queued events until ctx is cancelled, then drains what is
// left with a short grace period.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain(context.WithoutCancel(ctx))
			return nil
		case event := <-r.inbox:
			r.deliver(ctx, event)
		}
	}
}

func (r *Recorder) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	for {
		select {
		case event := <-r.inbox:
			r.deliver(ctx, event)
		default:
			return
		}
	}
}

// deliver appends event to every sink concurrently. Sink failures are logged
// and do not affect the other sinks.
func (r *Recorder) deliver(ctx context.Context, event Event) {
	var g errgroup.Group
	for _, sink := range r.sinks {
		g.Go(func() error {
			if err := sink.Append(ctx, event); err != nil {
				r.logger.Slog().ErrorContext(ctx, "audit sink failed",
					slog.String("sink", sink.Name()),
					slog.String("event_id", event.ID.String()),
					slog.Any("error", err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}
