// Package events implements the driver's in-process publish/subscribe bus.
//
// A Bus offers three dispatch operations over one listener registry:
//
//   - Emit: notify every listener in registration order, discarding results.
//   - EmitThen: run every listener and wait until all of their results settle.
//   - EmitMap: collect every listener's immediate return value in order.
//
// A listener that panics never prevents its siblings from running. The
// failure is recovered into a *ListenerError, logged and returned to the
// emitter.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nomis52/specdriver/logging"
	"github.com/nomis52/specdriver/metrics"
)

// Listener handles one dispatched event. Its return value is ignored by Emit,
// awaited by EmitThen and collected by EmitMap.
type Listener func(args ...any) any

// Subscription identifies a registered listener.
type Subscription struct {
	id   uint64
	name string
}

// Name returns the event name the subscription listens on.
func (s Subscription) Name() string {
	return s.name
}

type registration struct {
	id       uint64
	listener Listener
	once     bool
}

// Bus is an in-process event bus. The zero value is not usable; use New.
type Bus struct {
	logger  *slog.Logger
	metrics *metrics.DriverMetrics

	mu        sync.RWMutex
	nextID    uint64
	listeners map[string][]registration
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report listener failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithMetrics records dispatches and listener failures.
func WithMetrics(m *metrics.DriverMetrics) Option {
	return func(b *Bus) {
		b.metrics = m
	}
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		logger:    logging.Discard(),
		listeners: make(map[string][]registration),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// On registers listener for name. Listeners run in registration order.
func (b *Bus) On(name string, listener Listener) Subscription {
	return b.register(name, listener, false)
}

// Once registers listener for a single dispatch of name.
func (b *Bus) Once(name string, listener Listener) Subscription {
	return b.register(name, listener, true)
}

func (b *Bus) register(name string, listener Listener, once bool) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.listeners[name] = append(b.listeners[name], registration{
		id:       b.nextID,
		listener: listener,
		once:     once,
	})
	return Subscription{id: b.nextID, name: name}
}

// Off removes the listener behind sub. Removing twice is a no-op.
func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub.name, sub.id)
}

func (b *Bus) removeLocked(name string, id uint64) {
	regs := b.listeners[name]
	for i, r := range regs {
		if r.id == id {
			regs = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(regs) == 0 {
		delete(b.listeners, name)
		return
	}
	b.listeners[name] = regs
}

// RemoveAll drops every listener for every event.
func (b *Bus) RemoveAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[string][]registration)
}

// ListenerCount returns the number of listeners registered for name.
func (b *Bus) ListenerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// snapshot returns the listeners for name, unregistering once-listeners.
// Dispatch works on the snapshot so listeners may subscribe or unsubscribe
// while an event is being delivered.
func (b *Bus) snapshot(name string) []Listener {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.listeners[name]
	result := make([]Listener, len(regs))
	for i, r := range regs {
		result[i] = r.listener
	}
	for _, r := range regs {
		if r.once {
			b.removeLocked(name, r.id)
		}
	}
	return result
}

// Emit calls every listener for name synchronously in registration order.
// The returned error joins one *ListenerError per panicking listener.
func (b *Bus) Emit(name string, args ...any) error {
	b.metrics.EventEmitted(name, "emit")

	var errs []error
	for i, l := range b.snapshot(name) {
		if _, err := b.invoke(name, i, l, args); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmitMap calls every listener for name synchronously and returns their
// results in registration order. A failed listener leaves a nil result and
// contributes a *ListenerError to the returned error.
func (b *Bus) EmitMap(name string, args ...any) ([]any, error) {
	b.metrics.EventEmitted(name, "emit_map")

	listeners := b.snapshot(name)
	results := make([]any, len(listeners))
	var errs []error
	for i, l := range listeners {
		v, err := b.invoke(name, i, l, args)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results[i] = v
	}
	return results, errors.Join(errs...)
}

// EmitThen calls every listener for name in registration order and waits for
// all results to settle. A listener may return a plain value, an error
// (a rejection) or a Future, which is awaited concurrently with the others.
// EmitThen returns once every Future settled, even after a failure; when any
// listener failed the first failure is returned. ctx bounds the wait.
func (b *Bus) EmitThen(ctx context.Context, name string, args ...any) ([]any, error) {
	b.metrics.EventEmitted(name, "emit_then")

	listeners := b.snapshot(name)
	results := make([]any, len(listeners))
	var g errgroup.Group

	for i, l := range listeners {
		i := i
		v, err := b.invoke(name, i, l, args)
		if err != nil {
			g.Go(func() error { return err })
			continue
		}

		switch r := v.(type) {
		case Future:
			g.Go(func() error {
				settled, err := r.Wait(ctx)
				if err != nil {
					b.metrics.ListenerFailed(name)
					return err
				}
				results[i] = settled
				return nil
			})
		case error:
			b.metrics.ListenerFailed(name)
			g.Go(func() error { return r })
		default:
			results[i] = r
		}
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// invoke runs one listener, converting a panic into a *ListenerError.
func (b *Bus) invoke(name string, index int, l Listener, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			lerr := &ListenerError{Event: name, Index: index, Value: r}
			b.metrics.ListenerFailed(name)
			b.logger.Error("event listener failed", "event", name, "listener", index, "error", lerr)
			result, err = nil, lerr
		}
	}()
	return l(args...), nil
}

// ListenerError reports a listener that panicked during dispatch.
type ListenerError struct {
	Event string
	Index int
	Value any
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener %d for %q panicked: %v", e.Index, e.Event, e.Value)
}

// Unwrap returns the panic value when it was an error.
func (e *ListenerError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
