// Package driver assembles the driver core for one spec run: the state
// stores, event bus, action gateway, host request channels and test history.
//
// A Driver is constructed explicitly and handed to collaborators at wiring
// time. Reconfiguring it for the next spec replaces the stores but keeps the
// bus subscriptions.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nomis52/specdriver/bridge"
	"github.com/nomis52/specdriver/config"
	"github.com/nomis52/specdriver/events"
	"github.com/nomis52/specdriver/gateway"
	"github.com/nomis52/specdriver/history"
	"github.com/nomis52/specdriver/logging"
	"github.com/nomis52/specdriver/metrics"
	"github.com/nomis52/specdriver/state"
)

// KeyResumedAtTest is the runtime state key holding the id of the test a
// resumed run starts from.
const KeyResumedAtTest = "resumedAtTestId"

// Document is the page the driver runs in.
type Document interface {
	// SetDomain relaxes the document's origin to domain.
	SetDomain(domain string) error
}

// Runner is the test framework adapter.
type Runner interface {
	gateway.Runner
	Run(ctx context.Context) error
	Stop()
}

// Inspector is implemented by runners that expose their progress.
type Inspector interface {
	StartTime() time.Time
	TestsState() map[string]any
	// ErrorByTestID returns the error recorded for a failed test, or nil.
	ErrorByTestID(id string) error
}

// ErrNotInspectable is returned by Inspect when the attached runner does not
// implement Inspector.
var ErrNotInspectable = errors.New("the attached runner cannot be inspected")

// Commands is the command queue.
type Commands interface {
	gateway.Commands
	Stop()
}

// Info holds static properties of the host.
type Info struct {
	Arch     string         `json:"arch,omitempty" yaml:"arch,omitempty"`
	Version  string         `json:"version,omitempty" yaml:"version,omitempty"`
	Platform string         `json:"platform,omitempty" yaml:"platform,omitempty"`
	Spec     map[string]any `json:"spec,omitempty" yaml:"spec,omitempty"`
	Browser  map[string]any `json:"browser,omitempty" yaml:"browser,omitempty"`
}

// CookieScope is handed to the collaborator that manages cookies across the
// page boundary.
type CookieScope struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Domain    string `json:"domain,omitempty" yaml:"domain,omitempty"`
}

// Driver is the driver core.
type Driver struct {
	bus        *events.Bus
	gateway    *gateway.Gateway
	backend    *bridge.Channel
	automation *bridge.Channel
	history    *history.Store
	document   Document
	logger     *slog.Logger
	metrics    *metrics.DriverMetrics

	mu       sync.RWMutex
	config   *state.Store
	runtime  *state.Store
	env      *state.Store
	info     Info
	cookies  CookieScope
	runner   Runner
	commands Commands
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the base logger. Records logged while a test runs are also
// kept in that test's history.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithMetrics instruments every component.
func WithMetrics(m *metrics.DriverMetrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// WithDocument sets the page document the remote domain is applied to.
func WithDocument(doc Document) Option {
	return func(d *Driver) {
		d.document = doc
	}
}

// New creates a Driver configured with cfg.
func New(cfg config.Driver, opts ...Option) (*Driver, error) {
	d := &Driver{
		logger:  logging.Discard(),
		config:  state.New(nil),
		runtime: state.New(nil),
		env:     state.New(nil),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.history = history.NewStore(history.WithLogger(d.logger), history.WithMetrics(d.metrics))
	d.logger = slog.New(logging.NewCapturingHandler(d.logger.Handler(), d.history, d.currentTest))

	d.bus = events.New(events.WithLogger(d.logger), events.WithMetrics(d.metrics))
	d.gateway = gateway.New(d.bus, d.config, d.runtime,
		gateway.WithLogger(d.logger),
		gateway.WithMetrics(d.metrics),
		gateway.WithHistory(d.history),
	)
	d.backend = bridge.NewChannel(bridge.OriginBackend, d.bus, bridge.WithLogger(d.logger), bridge.WithMetrics(d.metrics))
	d.automation = bridge.NewChannel(bridge.OriginAutomation, d.bus, bridge.WithLogger(d.logger), bridge.WithMetrics(d.metrics))

	if err := d.SetConfig(cfg); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) currentTest() string {
	d.mu.RLock()
	runtime := d.runtime
	d.mu.RUnlock()
	return runtime.String(gateway.KeyCurrentTestID)
}

// SetConfig configures the driver for a new spec. The remote domain is applied
// to the document first; the stores are then replaced and a config event is
// emitted with the configuration values.
func (d *Driver) SetConfig(cfg config.Driver) error {
	domain := cfg.DomainName()
	if domain != "" {
		if d.document == nil {
			d.logger.Debug("no document attached, not applying remote domain", "domain", domain)
		} else if err := d.document.SetDomain(domain); err != nil {
			return fmt.Errorf("failed to set document domain %q: %w", domain, err)
		}
	}

	values := cfg.Values()
	configStore := state.New(values)
	runtime := state.New(nil)

	d.mu.Lock()
	d.config = configStore
	d.runtime = runtime
	d.env = state.New(cfg.Env)
	d.info = Info{
		Arch:     cfg.Arch,
		Version:  cfg.Version,
		Platform: cfg.Platform,
		Spec:     cfg.Spec,
		Browser:  cfg.Browser,
	}
	d.cookies = CookieScope{Namespace: cfg.Namespace, Domain: domain}
	d.mu.Unlock()

	d.gateway.Reconfigure(configStore, runtime)
	d.logger.Info("driver configured",
		"text_terminal", cfg.IsTextTerminal,
		"tests_kept_in_memory", cfg.NumTestsKeptInMemory,
		"domain", domain,
	)

	_, err := d.gateway.Action(context.Background(), gateway.CypressConfig, configStore.All())
	return err
}

// Attach wires the spec's runner and command queue.
func (d *Driver) Attach(runner Runner, commands Commands) {
	d.mu.Lock()
	d.runner = runner
	d.commands = commands
	d.mu.Unlock()

	d.gateway.Attach(runner, commands)
}

// Run starts the attached runner.
func (d *Driver) Run(ctx context.Context) error {
	d.mu.RLock()
	runner := d.runner
	d.mu.RUnlock()

	if runner == nil {
		return gateway.ErrNoRunner
	}
	return runner.Run(ctx)
}

// Stop stops the runner and command queue and emits the stop event.
func (d *Driver) Stop(ctx context.Context) error {
	d.mu.RLock()
	runner, commands := d.runner, d.commands
	d.mu.RUnlock()

	if runner == nil {
		return gateway.ErrNoRunner
	}
	if commands == nil {
		return gateway.ErrNoCommands
	}
	runner.Stop()
	commands.Stop()

	_, err := d.gateway.Action(ctx, gateway.CypressStop)
	return err
}

// Inspect returns the attached runner's Inspector.
func (d *Driver) Inspect() (Inspector, error) {
	d.mu.RLock()
	runner := d.runner
	d.mu.RUnlock()

	if runner == nil {
		return nil, gateway.ErrNoRunner
	}
	inspector, ok := runner.(Inspector)
	if !ok {
		return nil, ErrNotInspectable
	}
	return inspector, nil
}

// ResumeAtTest marks the run as resumed from test id.
func (d *Driver) ResumeAtTest(id string) {
	d.State().Set(KeyResumedAtTest, id)
	d.gateway.MarkResumed()
}

// Resumed reports whether the current run resumed after a page reload.
func (d *Driver) Resumed() bool {
	return d.gateway.Resumed()
}

// Action dispatches a signal.
func (d *Driver) Action(ctx context.Context, sig gateway.Signal, args ...any) ([]any, error) {
	return d.gateway.Action(ctx, sig, args...)
}

// ActionName dispatches a signal by wire name. Unknown names are ignored.
func (d *Driver) ActionName(ctx context.Context, name string, args ...any) ([]any, error) {
	return d.gateway.ActionName(ctx, name, args...)
}

// Backend requests name from the host backend.
func (d *Driver) Backend(ctx context.Context, name string, args ...any) (any, error) {
	return d.backend.Request(ctx, name, args...)
}

// Automation requests name from the browser automation service.
func (d *Driver) Automation(ctx context.Context, name string, args ...any) (any, error) {
	return d.automation.Request(ctx, name, args...)
}

// Channel returns the request channel for origin.
func (d *Driver) Channel(origin bridge.Origin) *bridge.Channel {
	if origin == bridge.OriginAutomation {
		return d.automation
	}
	return d.backend
}

// On subscribes to a public event.
func (d *Driver) On(name string, l events.Listener) events.Subscription {
	return d.bus.On(name, l)
}

// Off removes a subscription.
func (d *Driver) Off(sub events.Subscription) {
	d.bus.Off(sub)
}

// Emit emits name directly on the bus.
func (d *Driver) Emit(name string, args ...any) error {
	return d.bus.Emit(name, args...)
}

// Bus returns the event bus.
func (d *Driver) Bus() *events.Bus {
	return d.bus
}

// History returns the test history.
func (d *Driver) History() *history.Store {
	return d.history
}

// Logger returns the driver's logger.
func (d *Driver) Logger() *slog.Logger {
	return d.logger
}

// Config returns the configuration store.
func (d *Driver) Config() *state.Store {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// State returns the runtime state store.
func (d *Driver) State() *state.Store {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.runtime
}

// Env returns the environment store.
func (d *Driver) Env() *state.Store {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.env
}

// Info returns the host's static properties.
func (d *Driver) Info() Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info
}

// Cookies returns the cookie scope.
func (d *Driver) Cookies() CookieScope {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cookies
}
