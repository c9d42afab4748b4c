// Package dispatch resolves handler arguments from a per-message container and
// runs each matching handler independently.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync"
	"time"

	"lunabot/internal/domain"
	"lunabot/internal/metrics"
	"lunabot/internal/router"
)

// MissingTypeError reports a handler whose required type was not in the container.
type MissingTypeError struct {
	Event   domain.EventName
	Handler *router.HandlerDescriptor
	Type    reflect.Type
}

func (e *MissingTypeError) Error() string {
	return fmt.Sprintf("%s: argument of type %s not provided for event %q", e.Handler, e.Type, e.Event)
}

// Dispatcher runs handlers from a frozen registry. Handlers are scheduled in
// registration order but run concurrently; Dispatch never waits for them.
type Dispatcher struct {
	registry *router.Registry
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight int
	idle     chan struct{}
}

func New(registry *router.Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch schedules every handler registered under event whose arguments
// resolve from c. Handlers with a missing argument are skipped with a
// diagnostic. It returns the number of handlers scheduled.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.EventName, c *Container) int {
	scheduled := 0
	for _, h := range d.registry.Handlers(event) {
		args, err := resolve(event, h, c)
		if err != nil {
			metrics.HandlersSkipped.WithLabelValues(string(event)).Inc()
			d.logger.Warn("handler skipped",
				"handler", h.Name,
				"event", event,
				"missing", err.Type.String(),
				"file", h.File,
				"line", h.Line,
			)
			continue
		}
		d.spawn(ctx, event, h, args)
		scheduled++
	}
	return scheduled
}

func resolve(event domain.EventName, h *router.HandlerDescriptor, c *Container) ([]reflect.Value, *MissingTypeError) {
	args := make([]reflect.Value, len(h.Params))
	for i, t := range h.Params {
		v, ok := c.Lookup(t)
		if !ok {
			return nil, &MissingTypeError{Event: event, Handler: h, Type: t}
		}
		args[i] = v
	}
	return args, nil
}

func (d *Dispatcher) spawn(ctx context.Context, event domain.EventName, h *router.HandlerDescriptor, args []reflect.Value) {
	d.acquire()
	metrics.HandlersScheduled.WithLabelValues(string(event)).Inc()

	go func() {
		start := time.Now()
		defer d.release()
		defer func() {
			metrics.HandlerDuration.WithLabelValues(string(event)).Observe(time.Since(start).Seconds())
			if r := recover(); r != nil {
				metrics.HandlerFailures.WithLabelValues(string(event), "panic").Inc()
				d.logger.Error("handler panic",
					"handler", h.Name,
					"event", event,
					"file", h.File,
					"line", h.Line,
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}()

		if err := h.Invoke(ctx, args); err != nil {
			metrics.HandlerFailures.WithLabelValues(string(event), "error").Inc()
			d.logger.Error("handler failed",
				"handler", h.Name,
				"event", event,
				"file", h.File,
				"line", h.Line,
				"err", err,
			)
		}
	}()
}

func (d *Dispatcher) acquire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFlight == 0 {
		d.idle = make(chan struct{})
	}
	d.inFlight++
	metrics.HandlersInFlight.Inc()
}

func (d *Dispatcher) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight--
	metrics.HandlersInFlight.Dec()
	if d.inFlight == 0 {
		close(d.idle)
	}
}

// InFlight returns the number of handler invocations still running.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// Wait blocks until no handler is running or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	for {
		d.mu.Lock()
		if d.inFlight == 0 {
			d.mu.Unlock()
			return nil
		}
		idle := d.idle
		d.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
