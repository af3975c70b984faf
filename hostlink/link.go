// Package hostlink connects the driver to the host process over a websocket.
//
// The host dials in once. Requests emitted on the bus for the backend and
// automation channels are written to it as "request" frames and settled by
// the matching "reply" frame. The host may also send "action" frames, which
// are dispatched as signals, and receives the public events it asked to be
// forwarded as "event" frames.
package hostlink

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nomis52/specdriver/bridge"
	"github.com/nomis52/specdriver/events"
	"github.com/nomis52/specdriver/logging"
)

// Frame types.
const (
	FrameRequest = "request"
	FrameReply   = "reply"
	FrameEvent   = "event"
	FrameAction  = "action"
)

// ErrorName is the error name used when the link itself fails a request.
const ErrorName = "HostLinkError"

const (
	writeTimeout = 10 * time.Second

	// actionQueueSize bounds the action frames read ahead of the one being
	// dispatched. The read loop blocks once it is full.
	actionQueueSize = 256
)

// Frame is one websocket message in either direction.
type Frame struct {
	Type     string               `json:"type"`
	Token    string               `json:"token,omitempty"`
	Origin   bridge.Origin        `json:"origin,omitempty"`
	Name     string               `json:"name,omitempty"`
	Args     []any                `json:"args,omitempty"`
	Response any                  `json:"response,omitempty"`
	Error    *bridge.ErrorPayload `json:"error,omitempty"`
}

// Dispatcher runs signals received from the host.
type Dispatcher interface {
	ActionName(ctx context.Context, name string, args ...any) ([]any, error)
}

// Link is an http.Handler accepting the host connection.
type Link struct {
	bus        *events.Bus
	dispatcher Dispatcher
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]*bridge.Request
	subs    []events.Subscription

	writeMu sync.Mutex
}

// Option configures a Link.
type Option func(*Link)

// WithLogger sets the link's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Link) {
		l.logger = logger
	}
}

// WithDispatcher enables action frames from the host.
func WithDispatcher(d Dispatcher) Option {
	return func(l *Link) {
		l.dispatcher = d
	}
}

// New creates a Link serving the request events of origins on bus.
func New(bus *events.Bus, origins []bridge.Origin, opts ...Option) *Link {
	l := &Link{
		bus:     bus,
		logger:  logging.Discard(),
		pending: make(map[string]*bridge.Request),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(l)
	}

	for _, origin := range origins {
		l.subs = append(l.subs, bus.On(origin.RequestEvent(), l.onRequest))
	}
	return l
}

// Forward sends the named public events to the host.
func (l *Link) Forward(names ...string) {
	for _, name := range names {
		name := name
		l.mu.Lock()
		l.subs = append(l.subs, l.bus.On(name, func(args ...any) any {
			if l.Connected() {
				if err := l.write(Frame{Type: FrameEvent, Name: name, Args: args}); err != nil {
					l.logger.Warn("failed to forward event", "event", name, "error", err)
				}
			}
			return nil
		}))
		l.mu.Unlock()
	}
}

// Connected reports whether a host is connected.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// ServeHTTP upgrades the connection and serves it until it closes. A new
// connection replaces the current one.
func (l *Link) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("failed to upgrade host connection", "error", err)
		return
	}

	l.mu.Lock()
	previous := l.conn
	l.conn = conn
	stale := l.pending
	l.pending = make(map[string]*bridge.Request)
	l.mu.Unlock()

	if previous != nil {
		l.logger.Info("host reconnected, dropping previous connection", "failed_requests", len(stale))
		previous.Close()
	}
	for _, req := range stale {
		l.fail(req, "host reconnected")
	}
	l.logger.Info("host connected", "remote_addr", r.RemoteAddr)

	l.readLoop(conn)
}

// readLoop settles replies inline and hands action frames to a single
// dispatch goroutine, so actions run one at a time in arrival order while an
// action waiting on the host can still receive its reply.
func (l *Link) readLoop(conn *websocket.Conn) {
	defer l.disconnect(conn)

	actions := make(chan Frame, actionQueueSize)
	defer close(actions)
	go l.dispatchLoop(actions)

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.logger.Warn("host connection read failed", "error", err)
			}
			return
		}

		switch f.Type {
		case FrameReply:
			l.onReply(f)
		case FrameAction:
			actions <- f
		default:
			l.logger.Warn("ignoring unknown frame", "type", f.Type)
		}
	}
}

// disconnect fails every request still waiting on conn.
func (l *Link) disconnect(conn *websocket.Conn) {
	conn.Close()

	l.mu.Lock()
	if l.conn != conn {
		l.mu.Unlock()
		return
	}
	l.conn = nil
	pending := l.pending
	l.pending = make(map[string]*bridge.Request)
	l.mu.Unlock()

	l.logger.Info("host disconnected", "failed_requests", len(pending))
	for _, req := range pending {
		l.fail(req, "host disconnected")
	}
}

func (l *Link) onRequest(args ...any) any {
	if len(args) == 0 {
		return nil
	}
	req, ok := args[0].(*bridge.Request)
	if !ok {
		return nil
	}

	l.mu.Lock()
	connected := l.conn != nil
	if connected {
		l.pending[req.Token] = req
	}
	l.mu.Unlock()

	if !connected {
		l.fail(req, "host not connected")
		return nil
	}
	if done := req.Done(); done != nil {
		go func() {
			<-done
			l.forget(req)
		}()
	}

	frame := Frame{
		Type:   FrameRequest,
		Token:  req.Token,
		Origin: req.Origin,
		Name:   req.Name,
		Args:   req.Args,
	}
	if err := l.write(frame); err != nil {
		l.mu.Lock()
		delete(l.pending, req.Token)
		l.mu.Unlock()
		l.fail(req, "failed to send request: "+err.Error())
	}
	return nil
}

func (l *Link) onReply(f Frame) {
	l.mu.Lock()
	req, ok := l.pending[f.Token]
	delete(l.pending, f.Token)
	l.mu.Unlock()

	if !ok {
		l.logger.Warn("reply for unknown request", "token", f.Token)
		return
	}
	if err := req.Reply(bridge.Reply{Response: f.Response, Error: f.Error}); err != nil {
		l.logger.Debug("reply not delivered", "token", f.Token, "error", err)
	}
}

func (l *Link) dispatchLoop(actions <-chan Frame) {
	for f := range actions {
		l.onAction(f)
	}
}

// forget drops req from pending once it is settled or abandoned.
func (l *Link) forget(req *bridge.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending[req.Token] == req {
		delete(l.pending, req.Token)
	}
}

// Pending returns the number of requests written to the host and not yet
// settled.
func (l *Link) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *Link) onAction(f Frame) {
	if l.dispatcher == nil {
		l.logger.Warn("ignoring action frame, no dispatcher", "signal", f.Name)
		return
	}
	if _, err := l.dispatcher.ActionName(context.Background(), f.Name, f.Args...); err != nil {
		l.logger.Warn("host action failed", "signal", f.Name, "error", err)
	}
}

func (l *Link) fail(req *bridge.Request, message string) {
	err := req.Reply(bridge.Reply{Error: &bridge.ErrorPayload{Name: ErrorName, Message: message}})
	if err != nil && !errors.Is(err, bridge.ErrUnknownRequest) {
		l.logger.Warn("failed to fail request", "token", req.Token, "error", err)
	}
}

func (l *Link) write(f Frame) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return errors.New("host not connected")
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(f)
}

// Close unsubscribes from the bus and drops the host connection.
func (l *Link) Close() error {
	l.mu.Lock()
	subs := l.subs
	l.subs = nil
	conn := l.conn
	l.mu.Unlock()

	for _, s := range subs {
		l.bus.Off(s)
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
