package events

import "context"

// Future is an eventually-settled listener result awaited by EmitThen.
type Future interface {
	// Wait blocks until the result settles or ctx is done.
	Wait(ctx context.Context) (any, error)
}

type future struct {
	done  chan struct{}
	value any
	err   error
}

func (f *future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Go runs fn in a new goroutine and returns a Future for its result.
func Go(fn func() (any, error)) Future {
	f := &future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = fn()
	}()
	return f
}

// Resolved returns a Future that has already settled with v.
func Resolved(v any) Future {
	f := &future{done: make(chan struct{}), value: v}
	close(f.done)
	return f
}

// Rejected returns a Future that has already settled with err.
func Rejected(err error) Future {
	f := &future{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}
