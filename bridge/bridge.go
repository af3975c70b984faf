// Package bridge turns the asynchronous request/reply exchange with the host
// process into a blocking call.
//
// Every request is keyed by a ULID correlation token. The request is emitted
// on the event bus as "<origin>:request" carrying a *Request; whoever talks to
// the host settles it exactly once with Request.Reply. There is no timeout at
// this layer, only the caller's context.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/nomis52/specdriver/events"
	"github.com/nomis52/specdriver/logging"
	"github.com/nomis52/specdriver/metrics"
)

// Origin identifies the host service a channel talks to.
type Origin string

const (
	OriginBackend    Origin = "backend"
	OriginAutomation Origin = "automation"
)

// RequestEvent is the bus event requests for this origin are emitted on.
func (o Origin) RequestEvent() string {
	return string(o) + ":request"
}

// ErrUnknownRequest is returned when a reply does not match a pending
// request, either because it was already settled or its caller gave up.
var ErrUnknownRequest = errors.New("no pending request for token")

// ErrorPayload is the error object carried by a failed reply.
type ErrorPayload struct {
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Reply settles a request. A non-nil Error fails it.
type Reply struct {
	Response any           `json:"response,omitempty"`
	Error    *ErrorPayload `json:"error,omitempty"`
}

// Request is the payload of a request event.
type Request struct {
	Token  string
	Origin Origin
	Name   string
	Args   []any

	channel *Channel
	replies chan Reply
	done    chan struct{}
}

// Reply settles the request. Only the first reply is accepted.
func (r *Request) Reply(reply Reply) error {
	return r.channel.Settle(r.Token, reply)
}

// Done is closed once the request is settled or its caller gives up. Whoever
// holds the request on behalf of the host can use it to forget the token.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Channel issues requests for one origin.
type Channel struct {
	origin  Origin
	bus     *events.Bus
	logger  *slog.Logger
	metrics *metrics.DriverMetrics

	mu      sync.Mutex
	pending map[string]*Request
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the channel's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithMetrics records request counts and the pending gauge.
func WithMetrics(m *metrics.DriverMetrics) Option {
	return func(c *Channel) {
		c.metrics = m
	}
}

// NewChannel creates a channel for origin that emits requests on bus.
func NewChannel(origin Origin, bus *events.Bus, opts ...Option) *Channel {
	c := &Channel{
		origin:  origin,
		bus:     bus,
		logger:  logging.Discard(),
		pending: make(map[string]*Request),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("origin", string(origin))
	return c
}

// Origin returns the channel's origin.
func (c *Channel) Origin() Origin {
	return c.origin
}

// Pending returns the number of requests awaiting a reply.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Request emits a request for name and blocks until it is replied to or ctx
// is done. A reply carrying an error is returned as an *Error.
func (c *Channel) Request(ctx context.Context, name string, args ...any) (any, error) {
	token := ulid.Make().String()
	req := &Request{
		Token:   token,
		Origin:  c.origin,
		Name:    name,
		Args:    args,
		channel: c,
		replies: make(chan Reply, 1),
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	c.pending[token] = req
	n := len(c.pending)
	c.mu.Unlock()

	c.metrics.RequestSent(string(c.origin))
	c.metrics.SetPending(string(c.origin), n)
	c.logger.Debug("sending request", "name", name, "token", token)

	if err := c.bus.Emit(c.origin.RequestEvent(), req); err != nil {
		c.drop(token)
		c.metrics.RequestFailed(string(c.origin))
		return nil, fmt.Errorf("failed to dispatch %s request %q: %w", c.origin, name, err)
	}

	select {
	case reply := <-req.replies:
		if reply.Error != nil {
			c.metrics.RequestFailed(string(c.origin))
			return nil, newError(c.origin, reply.Error)
		}
		return reply.Response, nil
	case <-ctx.Done():
		c.drop(token)
		c.logger.Debug("request abandoned", "name", name, "token", token, "error", ctx.Err())
		return nil, ctx.Err()
	}
}

// Settle delivers reply to the request with token.
func (c *Channel) Settle(token string, reply Reply) error {
	c.mu.Lock()
	req, ok := c.pending[token]
	if ok {
		delete(c.pending, token)
	}
	n := len(c.pending)
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("dropping reply", "token", token)
		return fmt.Errorf("%w %s", ErrUnknownRequest, token)
	}

	c.metrics.SetPending(string(c.origin), n)
	req.replies <- reply
	close(req.done)
	return nil
}

// drop forgets token. Only the caller that removes a request from pending
// closes its done channel.
func (c *Channel) drop(token string) {
	c.mu.Lock()
	req, ok := c.pending[token]
	delete(c.pending, token)
	n := len(c.pending)
	c.mu.Unlock()

	if ok {
		close(req.done)
	}
	c.metrics.SetPending(string(c.origin), n)
}
